package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/satoruisaka/TwistedDebate/internal/core"
	"github.com/satoruisaka/TwistedDebate/internal/ollama"
)

type stubGenerator struct {
	response string
	err      error
	lastReq  ollama.GenerateRequest
}

func (s *stubGenerator) Generate(_ context.Context, req ollama.GenerateRequest) (string, error) {
	s.lastReq = req
	return s.response, s.err
}

var sampleMessages = []core.Message{
	{Speaker: "Debater One", Role: "debater1", Content: "Cities need cars.", Iteration: 1},
	{Speaker: "Debater Two", Role: "debater2", Content: "Cities need transit.", Iteration: 1},
}

func TestAnalyze(t *testing.T) {
	gen := &stubGenerator{response: `{
		"agreementScore": 6,
		"convergenceStatus": "CONVERGING",
		"emotionalSensitivity": "MEDIUM",
		"biasLevel": "NEUTRAL",
		"topicDrift": "LOW"
	}`}

	a := New(gen, "gemma3:27b")
	m, err := a.Analyze(context.Background(), "cars", sampleMessages, 2)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if m.AgreementScore != 6 {
		t.Errorf("score = %d, want 6", m.AgreementScore)
	}
	if m.Convergence != core.Converging || m.Sensitivity != core.LevelMedium {
		t.Errorf("unexpected metrics %+v", m)
	}
	if m.BiasLevel != core.BiasNeutral || m.TopicDrift != core.LevelLow {
		t.Errorf("unexpected metrics %+v", m)
	}
	if m.Iteration != 2 {
		t.Errorf("iteration = %d, want 2", m.Iteration)
	}

	if gen.lastReq.Model != "gemma3:27b" {
		t.Errorf("model = %q, want gemma3:27b", gen.lastReq.Model)
	}
	if gen.lastReq.Temperature != 0.3 || gen.lastReq.TopP != 0.8 || gen.lastReq.TopK != 20 {
		t.Errorf("analysis params = %v/%v/%v, want 0.3/0.8/20",
			gen.lastReq.Temperature, gen.lastReq.TopP, gen.lastReq.TopK)
	}
}

func TestAnalyzeCodeFencedJSON(t *testing.T) {
	gen := &stubGenerator{response: "Here are the metrics:\n```json\n" +
		`{"agreementScore": 3, "convergenceStatus": "DIVERGING", "emotionalSensitivity": "HIGH", "biasLevel": "HIGH", "topicDrift": "MEDIUM"}` +
		"\n```\nHope that helps."}

	a := New(gen, "m")
	m, err := a.Analyze(context.Background(), "t", sampleMessages, 1)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if m.Convergence != core.Diverging || m.AgreementScore != 3 {
		t.Errorf("unexpected metrics %+v", m)
	}
}

func TestAnalyzeBracedJSONInProse(t *testing.T) {
	gen := &stubGenerator{response: `Based on the discussion, {"agreementScore": 8.4, "convergenceStatus": "stable", "emotionalSensitivity": "low", "biasLevel": "low", "topicDrift": "low"} is my assessment.`}

	a := New(gen, "m")
	m, err := a.Analyze(context.Background(), "t", sampleMessages, 1)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if m.AgreementScore != 8 {
		t.Errorf("score = %d, want 8 (rounded)", m.AgreementScore)
	}
	if m.Convergence != core.Stable {
		t.Errorf("case-insensitive enum decode failed: %+v", m)
	}
}

func TestAnalyzeRejectsUnknownEnumValue(t *testing.T) {
	gen := &stubGenerator{response: `{"agreementScore": 5, "convergenceStatus": "STABLE", "emotionalSensitivity": "LOW", "biasLevel": "SLIGHTLY_POSITIVE", "topicDrift": "LOW"}`}

	a := New(gen, "m")
	if _, err := a.Analyze(context.Background(), "t", sampleMessages, 1); err == nil {
		t.Fatal("expected error for unknown biasLevel value")
	}
}

func TestAnalyzeRejectsMissingFields(t *testing.T) {
	gen := &stubGenerator{response: `{"agreementScore": 5, "convergenceStatus": "STABLE"}`}

	a := New(gen, "m")
	if _, err := a.Analyze(context.Background(), "t", sampleMessages, 1); err == nil {
		t.Fatal("expected error for missing fields")
	}
}

func TestAnalyzeRejectsScoreOutOfRange(t *testing.T) {
	gen := &stubGenerator{response: `{"agreementScore": 12, "convergenceStatus": "STABLE", "emotionalSensitivity": "LOW", "biasLevel": "LOW", "topicDrift": "LOW"}`}

	a := New(gen, "m")
	if _, err := a.Analyze(context.Background(), "t", sampleMessages, 1); err == nil {
		t.Fatal("expected error for score above 10")
	}
}

func TestAnalyzeGenerationFailure(t *testing.T) {
	gen := &stubGenerator{err: errors.New("connection refused")}

	a := New(gen, "m")
	if _, err := a.Analyze(context.Background(), "t", sampleMessages, 1); err == nil {
		t.Fatal("expected error when generation fails")
	}
}

func TestAnalyzeNoJSON(t *testing.T) {
	gen := &stubGenerator{response: "I cannot provide metrics right now."}

	a := New(gen, "m")
	if _, err := a.Analyze(context.Background(), "t", sampleMessages, 1); err == nil {
		t.Fatal("expected error when response holds no JSON")
	}
}
