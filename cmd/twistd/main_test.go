package main

import (
	"testing"

	"github.com/satoruisaka/TwistedDebate/internal/core"
	"github.com/satoruisaka/TwistedDebate/internal/format"
)

func TestParseParticipantSpec(t *testing.T) {
	role := format.Role{Name: "debater1"}

	tests := []struct {
		spec string
		want core.Participant
	}{
		{"human", core.Participant{Role: "debater1", Actor: core.ActorHuman}},
		{"HUMAN", core.Participant{Role: "debater1", Actor: core.ActorHuman}},
		{"mistral", core.Participant{Role: "debater1", Actor: "mistral"}},
		{"mistral:echo_er", core.Participant{Role: "debater1", Actor: "mistral", Mode: core.ModeEchoEr}},
		{"mistral:echo_er:neutral", core.Participant{Role: "debater1", Actor: "mistral", Mode: core.ModeEchoEr, Tone: core.ToneNeutral}},
		{":echo_er", core.Participant{Role: "debater1", Actor: "llama3.2", Mode: core.ModeEchoEr}},
	}
	for _, tt := range tests {
		got, err := parseParticipantSpec(tt.spec, role, "llama3.2")
		if err != nil {
			t.Errorf("parseParticipantSpec(%q) failed: %v", tt.spec, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseParticipantSpec(%q) = %+v, want %+v", tt.spec, got, tt.want)
		}
	}
}

func TestSeatParticipants(t *testing.T) {
	spec, err := format.Get(format.Panel)
	if err != nil {
		t.Fatal(err)
	}

	// One moderator seat plus three panelists: the group role absorbs
	// whatever seats remain after the singular ones.
	participants, err := seatParticipants(spec, []string{"human", "a", "b", "c"}, "llama3.2")
	if err != nil {
		t.Fatalf("seatParticipants failed: %v", err)
	}
	if len(participants) != 4 {
		t.Fatalf("got %d participants, want 4", len(participants))
	}
	if participants[0].Role != "moderator" || participants[0].Actor != core.ActorHuman {
		t.Errorf("moderator seat = %+v", participants[0])
	}
	for i, want := range []string{"panelist1", "panelist2", "panelist3"} {
		if participants[i+1].Role != want {
			t.Errorf("seat %d role = %q, want %q", i+1, participants[i+1].Role, want)
		}
	}

	if _, err := seatParticipants(spec, []string{"human"}, "llama3.2"); err == nil {
		t.Error("expected error for too few seats")
	}
}

func TestDefaultSeats(t *testing.T) {
	spec, err := format.Get(format.OneToOne)
	if err != nil {
		t.Fatal(err)
	}

	participantFlags = nil
	seats, err := defaultSeats(spec, "llama3.2")
	if err != nil {
		t.Fatalf("defaultSeats failed: %v", err)
	}
	if len(seats) != 2 || seats[0] != "llama3.2" || seats[1] != "llama3.2" {
		t.Errorf("seats = %v", seats)
	}

	// Defaulting must not leak into the -p flag slice, or a second
	// invocation in the same process would double-seat.
	if len(participantFlags) != 0 {
		t.Errorf("participantFlags mutated: %v", participantFlags)
	}
}
