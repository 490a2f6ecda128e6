package format

import (
	"testing"

	"github.com/satoruisaka/TwistedDebate/internal/core"
)

func TestCatalog(t *testing.T) {
	specs := Catalog()
	if len(specs) != 5 {
		t.Fatalf("expected 5 formats, got %d", len(specs))
	}

	for _, s := range specs {
		if s.HasOpening && s.ID != ManyOnOne {
			t.Errorf("format %s should not have an opening turn", s.ID)
		}
	}
}

func TestGet(t *testing.T) {
	s, err := Get(Panel)
	if err != nil {
		t.Fatalf("Get(panel) failed: %v", err)
	}
	if s.Roles[0].Base != "moderator" || !s.Roles[0].HumanAllowed {
		t.Errorf("panel should lead with a human-allowed moderator, got %+v", s.Roles[0])
	}

	if _, err := Get("free-for-all"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestExpandRoles(t *testing.T) {
	tests := []struct {
		id     ID
		counts map[string]int
		want   []string
	}{
		{OneToOne, nil, []string{"debater1", "debater2"}},
		{CrossExam, nil, []string{"examiner", "examinee"}},
		{ManyOnOne, map[string]int{"examiner": 3}, []string{"examinee", "examiner1", "examiner2", "examiner3"}},
		{Panel, map[string]int{"panelist": 2}, []string{"moderator", "panelist1", "panelist2"}},
		{RoundRobin, map[string]int{"participant": 4}, []string{"participant1", "participant2", "participant3", "participant4"}},
	}

	for _, tt := range tests {
		s, err := Get(tt.id)
		if err != nil {
			t.Fatalf("Get(%s): %v", tt.id, err)
		}
		roles, err := s.ExpandRoles(tt.counts)
		if err != nil {
			t.Fatalf("ExpandRoles(%s): %v", tt.id, err)
		}
		if len(roles) != len(tt.want) {
			t.Fatalf("%s: got %d roles, want %d", tt.id, len(roles), len(tt.want))
		}
		for i, r := range roles {
			if r.Name != tt.want[i] {
				t.Errorf("%s role %d = %q, want %q", tt.id, i, r.Name, tt.want[i])
			}
		}
	}
}

func TestExpandRolesBounds(t *testing.T) {
	s, _ := Get(ManyOnOne)
	if _, err := s.ExpandRoles(map[string]int{"examiner": 1}); err == nil {
		t.Error("expected error for examiner count below minimum")
	}
	if _, err := s.ExpandRoles(map[string]int{"examiner": 7}); err == nil {
		t.Error("expected error for examiner count above maximum")
	}
}

func TestValidate(t *testing.T) {
	model := func(role string) core.Participant {
		return core.Participant{Role: role, Actor: "llama3.2"}
	}

	t.Run("valid panel", func(t *testing.T) {
		s, _ := Get(Panel)
		ps := []core.Participant{
			{Role: "moderator", Actor: core.ActorHuman},
			model("panelist1"),
			model("panelist2"),
		}
		if err := s.Validate(ps); err != nil {
			t.Errorf("Validate failed: %v", err)
		}
	})

	t.Run("human rejected where not allowed", func(t *testing.T) {
		s, _ := Get(CrossExam)
		ps := []core.Participant{
			{Role: "examiner", Actor: core.ActorHuman},
			model("examinee"),
		}
		if err := s.Validate(ps); err == nil {
			t.Error("expected error for human examiner")
		}
	})

	t.Run("group size out of bounds", func(t *testing.T) {
		s, _ := Get(ManyOnOne)
		ps := []core.Participant{model("examinee"), model("examiner1")}
		if err := s.Validate(ps); err == nil {
			t.Error("expected error for a single examiner")
		}
	})

	t.Run("wrong role order", func(t *testing.T) {
		s, _ := Get(OneToOne)
		ps := []core.Participant{model("debater2"), model("debater1")}
		if err := s.Validate(ps); err == nil {
			t.Error("expected error for out-of-order roles")
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		s, _ := Get(OneToOne)
		ps := []core.Participant{
			{Role: "debater1", Actor: "llama3.2", Mode: "shout_er"},
			model("debater2"),
		}
		if err := s.Validate(ps); err == nil {
			t.Error("expected error for unknown mode")
		}
	})

	t.Run("trailing participant", func(t *testing.T) {
		s, _ := Get(OneToOne)
		ps := []core.Participant{model("debater1"), model("debater2"), model("debater3")}
		if err := s.Validate(ps); err == nil {
			t.Error("expected error for extra participant")
		}
	})
}
