// Package session runs a debate from configuration to completion: it
// sequences turns, windows context, collects metrics, and hands human
// seats their turns.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/satoruisaka/TwistedDebate/internal/core"
	"github.com/satoruisaka/TwistedDebate/internal/format"
	"github.com/satoruisaka/TwistedDebate/internal/ollama"
	"github.com/satoruisaka/TwistedDebate/internal/prompt"
)

// Generator is the LLM call the sequencer depends on.
type Generator interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (string, error)
}

// Analyzer scores the transcript after each round.
type Analyzer interface {
	Analyze(ctx context.Context, topic string, messages []core.Message, iteration int) (core.Metrics, error)
}

// Config describes a debate to run.
type Config struct {
	Topic         string
	Format        format.ID
	Participants  []core.Participant
	MaxIterations int
	Gain          int
}

// Callbacks observe the run as it progresses. Any callback may be nil.
type Callbacks struct {
	OnMessage       func(core.Message)
	OnMetrics       func(core.Metrics)
	OnStatus        func(core.RunStatus)
	OnAwaitingInput func(role string, iteration int)
}

// Session is one debate run. Create with New, drive with Run, and
// feed human turns through SubmitInput.
type Session struct {
	spec       format.Spec
	transcript *Transcript
	gen        Generator
	analyzer   Analyzer
	rv         rendezvous
	callbacks  Callbacks

	mu      sync.RWMutex
	run     core.Run
	metrics core.Metrics
}

// New validates the configuration and builds a session in the
// not-started state.
func New(cfg Config, gen Generator, an Analyzer, cb Callbacks) (*Session, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	spec, err := format.Get(cfg.Format)
	if err != nil {
		return nil, err
	}
	if err := spec.Validate(cfg.Participants); err != nil {
		return nil, err
	}
	if cfg.MaxIterations < 1 {
		return nil, fmt.Errorf("max iterations must be at least 1, got %d", cfg.MaxIterations)
	}
	gain := cfg.Gain
	if gain == 0 {
		gain = prompt.DefaultGain
	}
	if gain < prompt.MinGain || gain > prompt.MaxGain {
		return nil, fmt.Errorf("gain must be between %d and %d, got %d", prompt.MinGain, prompt.MaxGain, gain)
	}

	participants := make([]core.Participant, len(cfg.Participants))
	copy(participants, cfg.Participants)

	return &Session{
		spec:       spec,
		transcript: &Transcript{},
		gen:        gen,
		analyzer:   an,
		callbacks:  cb,
		run: core.Run{
			ID:            core.NewID(),
			Topic:         cfg.Topic,
			Format:        string(cfg.Format),
			Participants:  participants,
			MaxIterations: cfg.MaxIterations,
			Gain:          gain,
			Status:        core.StatusNotStarted,
			CreatedAt:     time.Now().UTC(),
		},
		metrics: core.BaselineMetrics(),
	}, nil
}

// Run drives the debate to completion. Generation failures are
// absorbed into placeholder messages so the run always finishes;
// the only error Run returns is context cancellation, which abandons
// the run in place.
func (s *Session) Run(ctx context.Context) error {
	run := s.Snapshot()
	slog.Info("starting debate",
		"id", run.ID,
		"format", run.Format,
		"participants", len(run.Participants),
		"iterations", run.MaxIterations)

	s.setStatus(core.StatusInProgress)

	// Many-on-one opens with the examinee's statement before any
	// examiner speaks. The opening is labeled iteration 0.
	if s.spec.HasOpening {
		if err := s.takeTurn(ctx, run.Participants[0], 0); err != nil {
			return err
		}
	}

	for i := 1; i <= run.MaxIterations; i++ {
		s.setIteration(i)
		for _, p := range run.Participants {
			if err := s.takeTurn(ctx, p, i); err != nil {
				return err
			}
		}
		s.analyze(ctx, i)
	}

	// The moderator closes with a synthesis over the full transcript,
	// labeled one past the final round. Human moderators skip it.
	if mod, ok := run.Moderator(); ok && !mod.IsHuman() {
		s.setIteration(run.MaxIterations + 1)
		if err := s.takeTurn(ctx, mod, run.MaxIterations+1); err != nil {
			return err
		}
	}

	s.complete()
	slog.Info("debate completed", "id", run.ID, "messages", s.transcript.Len())
	return nil
}

// takeTurn produces exactly one message for the participant, either
// by waiting on human input or by generating with the participant's
// actor model.
func (s *Session) takeTurn(ctx context.Context, p core.Participant, iteration int) error {
	if p.IsHuman() {
		return s.humanTurn(ctx, p, iteration)
	}

	run := s.Snapshot()
	history := SelectContext(p, s.transcript.All())
	turnPrompt, err := prompt.Turn(prompt.TurnRequest{
		Topic:         run.Topic,
		Participant:   p,
		Context:       history,
		Iteration:     iteration,
		MaxIterations: run.MaxIterations,
	})

	var content string
	if err == nil {
		params := prompt.ForGain(run.Gain)
		content, err = s.gen.Generate(ctx, ollama.GenerateRequest{
			Model:       p.Actor,
			Prompt:      turnPrompt,
			Temperature: params.Temperature,
			TopP:        params.TopP,
			TopK:        params.TopK,
		})
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("turn generation failed",
			"role", p.Role,
			"iteration", iteration,
			"error", err)
		content = fmt.Sprintf("[Error: Could not generate response. %v]", err)
	}

	s.append(core.Message{
		ID:        core.NewID(),
		Speaker:   p.DisplayName(),
		Role:      p.Role,
		Content:   content,
		Iteration: iteration,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

func (s *Session) humanTurn(ctx context.Context, p core.Participant, iteration int) error {
	s.rv.arm(p.Role, iteration)
	slog.Info("awaiting human input", "role", p.Role, "iteration", iteration)
	if s.callbacks.OnAwaitingInput != nil {
		s.callbacks.OnAwaitingInput(p.Role, iteration)
	}

	content, err := s.rv.wait(ctx)
	if err != nil {
		return err
	}

	s.append(core.Message{
		ID:        core.NewID(),
		Speaker:   p.DisplayName(),
		Role:      core.RoleUser,
		Content:   content,
		Iteration: iteration,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// analyze runs one metrics pass. A failed pass keeps the previous
// snapshot and never interrupts the run.
func (s *Session) analyze(ctx context.Context, iteration int) {
	if s.analyzer == nil {
		return
	}
	run := s.Snapshot()
	m, err := s.analyzer.Analyze(ctx, run.Topic, s.transcript.All(), iteration)
	if err != nil {
		slog.Warn("metrics analysis failed, keeping previous snapshot",
			"iteration", iteration, "error", err)
		return
	}

	s.mu.Lock()
	s.metrics = m
	s.mu.Unlock()
	if s.callbacks.OnMetrics != nil {
		s.callbacks.OnMetrics(m)
	}
}

// SubmitInput delivers a human participant's text for the turn
// currently awaited. Submissions for any other turn are rejected.
func (s *Session) SubmitInput(role string, iteration int, content string) error {
	if content == "" {
		return fmt.Errorf("input content is required")
	}
	return s.rv.Submit(role, iteration, content)
}

// AwaitingInput returns the human turn the run is blocked on, if any.
func (s *Session) AwaitingInput() (role string, iteration int, ok bool) {
	return s.rv.Pending()
}

// Snapshot returns a copy of the run's current state.
func (s *Session) Snapshot() core.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

// Messages returns a copy of the transcript so far.
func (s *Session) Messages() []core.Message {
	return s.transcript.All()
}

// Metrics returns the latest metrics snapshot.
func (s *Session) Metrics() core.Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

func (s *Session) append(m core.Message) {
	s.transcript.Append(m)
	if s.callbacks.OnMessage != nil {
		s.callbacks.OnMessage(m)
	}
}

func (s *Session) setStatus(status core.RunStatus) {
	s.mu.Lock()
	s.run.Status = status
	s.mu.Unlock()
	if s.callbacks.OnStatus != nil {
		s.callbacks.OnStatus(status)
	}
}

func (s *Session) setIteration(i int) {
	s.mu.Lock()
	s.run.CurrentIteration = i
	s.mu.Unlock()
}

func (s *Session) complete() {
	now := time.Now().UTC()
	s.mu.Lock()
	s.run.Status = core.StatusCompleted
	s.run.CompletedAt = &now
	s.mu.Unlock()
	if s.callbacks.OnStatus != nil {
		s.callbacks.OnStatus(core.StatusCompleted)
	}
}
