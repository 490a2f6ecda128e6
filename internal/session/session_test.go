package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/satoruisaka/TwistedDebate/internal/core"
	"github.com/satoruisaka/TwistedDebate/internal/format"
	"github.com/satoruisaka/TwistedDebate/internal/ollama"
)

// mockGenerator returns canned text and records every request.
type mockGenerator struct {
	mu       sync.Mutex
	requests []ollama.GenerateRequest
	err      error
}

func (m *mockGenerator) Generate(_ context.Context, req ollama.GenerateRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("response %d from %s", len(m.requests), req.Model), nil
}

func (m *mockGenerator) calls() []ollama.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ollama.GenerateRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

type mockAnalyzer struct {
	metrics core.Metrics
	err     error
	calls   int
}

func (m *mockAnalyzer) Analyze(_ context.Context, _ string, _ []core.Message, iteration int) (core.Metrics, error) {
	m.calls++
	if m.err != nil {
		return core.Metrics{}, m.err
	}
	out := m.metrics
	out.Iteration = iteration
	return out, nil
}

func model(role, actor string) core.Participant {
	return core.Participant{Role: role, Label: role, Actor: actor, Mode: core.ModeEchoEr, Tone: core.ToneNeutral}
}

func TestNewValidation(t *testing.T) {
	gen := &mockGenerator{}
	valid := Config{
		Topic:         "t",
		Format:        format.OneToOne,
		Participants:  []core.Participant{model("debater1", "a"), model("debater2", "b")},
		MaxIterations: 2,
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty topic", func(c *Config) { c.Topic = "" }},
		{"unknown format", func(c *Config) { c.Format = "free-for-all" }},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }},
		{"gain too high", func(c *Config) { c.Gain = 11 }},
		{"missing participant", func(c *Config) { c.Participants = c.Participants[:1] }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			cfg.Participants = append([]core.Participant(nil), valid.Participants...)
			tt.mutate(&cfg)
			if _, err := New(cfg, gen, nil, Callbacks{}); err == nil {
				t.Error("expected validation error")
			}
		})
	}

	s, err := New(valid, gen, nil, Callbacks{})
	if err != nil {
		t.Fatalf("New failed for valid config: %v", err)
	}
	if got := s.Snapshot(); got.Status != core.StatusNotStarted || got.Gain != 5 {
		t.Errorf("new session = status %q gain %d, want not_started gain 5", got.Status, got.Gain)
	}
	if m := s.Metrics(); m.Convergence != core.Stable || m.AgreementScore != 0 {
		t.Errorf("new session should carry baseline metrics, got %+v", m)
	}
}

func TestRunOneToOneOrdering(t *testing.T) {
	gen := &mockGenerator{}
	an := &mockAnalyzer{metrics: core.Metrics{AgreementScore: 7, Convergence: core.Converging,
		Sensitivity: core.LevelLow, BiasLevel: core.BiasNeutral, TopicDrift: core.LevelLow}}

	s, err := New(Config{
		Topic:         "topic",
		Format:        format.OneToOne,
		Participants:  []core.Participant{model("debater1", "a"), model("debater2", "b")},
		MaxIterations: 2,
	}, gen, an, Callbacks{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	msgs := s.Messages()
	want := []struct {
		role      string
		iteration int
	}{
		{"debater1", 1}, {"debater2", 1},
		{"debater1", 2}, {"debater2", 2},
	}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].Role != w.role || msgs[i].Iteration != w.iteration {
			t.Errorf("message %d = %s@%d, want %s@%d",
				i, msgs[i].Role, msgs[i].Iteration, w.role, w.iteration)
		}
	}

	run := s.Snapshot()
	if run.Status != core.StatusCompleted || run.CompletedAt == nil {
		t.Errorf("run should be completed, got %q", run.Status)
	}
	if an.calls != 2 {
		t.Errorf("analyzer called %d times, want once per round", an.calls)
	}
	if m := s.Metrics(); m.Iteration != 2 || m.AgreementScore != 7 {
		t.Errorf("final metrics = %+v", m)
	}
}

func TestRunPanelSynthesis(t *testing.T) {
	gen := &mockGenerator{}
	s, err := New(Config{
		Topic:  "topic",
		Format: format.Panel,
		Participants: []core.Participant{
			model("moderator", "big-model"),
			model("panelist1", "a"),
			model("panelist2", "b"),
		},
		MaxIterations: 1,
	}, gen, nil, Callbacks{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 3 round turns plus synthesis", len(msgs))
	}
	last := msgs[3]
	if last.Role != "moderator" || last.Iteration != 2 {
		t.Errorf("synthesis = %s@%d, want moderator@2", last.Role, last.Iteration)
	}

	calls := gen.calls()
	if !strings.Contains(calls[3].Prompt, "FINAL SUMMARY") {
		t.Error("final moderator turn should use the synthesis prompt")
	}
}

func TestRunManyOnOneOpening(t *testing.T) {
	gen := &mockGenerator{}
	s, err := New(Config{
		Topic:  "topic",
		Format: format.ManyOnOne,
		Participants: []core.Participant{
			model("examinee", "a"),
			model("examiner1", "b"),
			model("examiner2", "c"),
		},
		MaxIterations: 1,
	}, gen, nil, Callbacks{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want opening plus 3 round turns", len(msgs))
	}
	if msgs[0].Role != "examinee" || msgs[0].Iteration != 0 {
		t.Errorf("opening = %s@%d, want examinee@0", msgs[0].Role, msgs[0].Iteration)
	}
	if msgs[1].Iteration != 1 {
		t.Errorf("round turns should start at iteration 1, got %d", msgs[1].Iteration)
	}
}

func TestRunAbsorbsGenerationFailure(t *testing.T) {
	gen := &mockGenerator{err: errors.New("connection refused")}
	s, err := New(Config{
		Topic:         "topic",
		Format:        format.OneToOne,
		Participants:  []core.Participant{model("debater1", "a"), model("debater2", "b")},
		MaxIterations: 1,
	}, gen, nil, Callbacks{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run should absorb generation failures, got %v", err)
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 placeholders", len(msgs))
	}
	for _, m := range msgs {
		if !strings.HasPrefix(m.Content, "[Error: Could not generate response.") {
			t.Errorf("placeholder content = %q", m.Content)
		}
	}
	if s.Snapshot().Status != core.StatusCompleted {
		t.Error("run should complete despite failures")
	}
}

func TestRunKeepsMetricsOnAnalyzerFailure(t *testing.T) {
	gen := &mockGenerator{}
	an := &mockAnalyzer{err: errors.New("bad json")}
	s, err := New(Config{
		Topic:         "topic",
		Format:        format.OneToOne,
		Participants:  []core.Participant{model("debater1", "a"), model("debater2", "b")},
		MaxIterations: 1,
	}, gen, an, Callbacks{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if m := s.Metrics(); m != core.BaselineMetrics() {
		t.Errorf("metrics should stay at baseline after analyzer failure, got %+v", m)
	}
}

func TestHumanTurnRendezvous(t *testing.T) {
	gen := &mockGenerator{}
	var s *Session
	var awaited []string

	cb := Callbacks{
		OnAwaitingInput: func(role string, iteration int) {
			awaited = append(awaited, fmt.Sprintf("%s@%d", role, iteration))
			if err := s.SubmitInput(role, iteration, "human point"); err != nil {
				t.Errorf("SubmitInput failed: %v", err)
			}
		},
	}

	s, err := New(Config{
		Topic:  "topic",
		Format: format.OneToOne,
		Participants: []core.Participant{
			{Role: "debater1", Label: "You", Actor: core.ActorHuman},
			model("debater2", "b"),
		},
		MaxIterations: 2,
	}, gen, nil, cb)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(awaited) != 2 {
		t.Fatalf("awaited %v, want one human turn per round", awaited)
	}

	msgs := s.Messages()
	if msgs[0].Role != core.RoleUser || msgs[0].Content != "human point" {
		t.Errorf("human message = %+v", msgs[0])
	}
	if msgs[0].Speaker != "You" {
		t.Errorf("human speaker = %q, want label", msgs[0].Speaker)
	}
}

func TestSubmitInputRejections(t *testing.T) {
	gen := &mockGenerator{}
	var s *Session

	cb := Callbacks{
		OnAwaitingInput: func(role string, iteration int) {
			if err := s.SubmitInput("debater2", iteration, "x"); err == nil {
				t.Error("expected rejection for wrong role")
			}
			if err := s.SubmitInput(role, iteration+1, "x"); err == nil {
				t.Error("expected rejection for wrong iteration")
			}
			if err := s.SubmitInput(role, iteration, ""); err == nil {
				t.Error("expected rejection for empty content")
			}
			if err := s.SubmitInput(role, iteration, "ok"); err != nil {
				t.Errorf("matching submission failed: %v", err)
			}
			if err := s.SubmitInput(role, iteration, "again"); err == nil {
				t.Error("expected rejection for duplicate submission")
			}
		},
	}

	s, err := New(Config{
		Topic:  "topic",
		Format: format.OneToOne,
		Participants: []core.Participant{
			{Role: "debater1", Actor: core.ActorHuman},
			model("debater2", "b"),
		},
		MaxIterations: 1,
	}, gen, nil, cb)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.SubmitInput("debater1", 1, "early"); err == nil {
		t.Error("expected rejection before any turn is awaited")
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := s.SubmitInput("debater1", 1, "late"); err == nil {
		t.Error("expected rejection after the run completes")
	}
}

func TestRunCancelledDuringHumanWait(t *testing.T) {
	gen := &mockGenerator{}
	ctx, cancel := context.WithCancel(context.Background())

	cb := Callbacks{
		OnAwaitingInput: func(string, int) { cancel() },
	}

	s, err := New(Config{
		Topic:  "topic",
		Format: format.OneToOne,
		Participants: []core.Participant{
			{Role: "debater1", Actor: core.ActorHuman},
			model("debater2", "b"),
		},
		MaxIterations: 1,
	}, gen, nil, cb)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := s.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
	if s.Snapshot().Status == core.StatusCompleted {
		t.Error("cancelled run must not be marked completed")
	}
}

func TestCallbacksFire(t *testing.T) {
	gen := &mockGenerator{}
	an := &mockAnalyzer{metrics: core.BaselineMetrics()}

	var messages, statuses, metrics int
	cb := Callbacks{
		OnMessage: func(core.Message) { messages++ },
		OnStatus:  func(core.RunStatus) { statuses++ },
		OnMetrics: func(core.Metrics) { metrics++ },
	}

	s, err := New(Config{
		Topic:         "topic",
		Format:        format.RoundRobin,
		Participants:  []core.Participant{model("participant1", "a"), model("participant2", "b")},
		MaxIterations: 1,
	}, gen, an, cb)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if messages != 2 || metrics != 1 || statuses != 2 {
		t.Errorf("callbacks = %d messages, %d metrics, %d statuses", messages, metrics, statuses)
	}
}
