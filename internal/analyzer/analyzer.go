// Package analyzer derives debate metrics from the transcript via an LLM.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"

	"github.com/satoruisaka/TwistedDebate/internal/core"
	"github.com/satoruisaka/TwistedDebate/internal/ollama"
	"github.com/satoruisaka/TwistedDebate/internal/prompt"
)

// Generator is the LLM call the analyzer depends on.
type Generator interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (string, error)
}

// Analyzer scores a debate after each completed round.
type Analyzer struct {
	gen   Generator
	model string
}

// New creates an Analyzer that scores with the given model.
func New(gen Generator, model string) *Analyzer {
	return &Analyzer{gen: gen, model: model}
}

// Analyze runs one metrics pass over the full transcript. It returns
// an error when the model's answer cannot be decoded strictly; the
// caller keeps its previous snapshot in that case.
func (a *Analyzer) Analyze(ctx context.Context, topic string, messages []core.Message, iteration int) (core.Metrics, error) {
	p, err := prompt.AnalysisPrompt(topic, messages)
	if err != nil {
		return core.Metrics{}, err
	}

	params := prompt.Analysis()
	raw, err := a.gen.Generate(ctx, ollama.GenerateRequest{
		Model:       a.model,
		Prompt:      p,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
	})
	if err != nil {
		return core.Metrics{}, fmt.Errorf("metrics generation failed: %w", err)
	}

	metrics, err := parseMetrics(raw)
	if err != nil {
		slog.Warn("failed to parse metrics response", "error", err, "iteration", iteration)
		return core.Metrics{}, err
	}
	metrics.Iteration = iteration
	return metrics, nil
}

type rawMetrics struct {
	AgreementScore *float64 `json:"agreementScore"`
	Convergence    *string  `json:"convergenceStatus"`
	Sensitivity    *string  `json:"emotionalSensitivity"`
	BiasLevel      *string  `json:"biasLevel"`
	TopicDrift     *string  `json:"topicDrift"`
}

var convergenceValues = map[string]core.Convergence{
	"CONVERGING": core.Converging,
	"DIVERGING":  core.Diverging,
	"STABLE":     core.Stable,
}

var levelValues = map[string]core.Level{
	"LOW":    core.LevelLow,
	"MEDIUM": core.LevelMedium,
	"HIGH":   core.LevelHigh,
}

var biasValues = map[string]core.Bias{
	"LOW":     core.BiasLow,
	"NEUTRAL": core.BiasNeutral,
	"HIGH":    core.BiasHigh,
}

// parseMetrics decodes the model's JSON answer. Every field is
// required and enum fields only accept their exact allowed values.
func parseMetrics(response string) (core.Metrics, error) {
	data, err := extractJSON(response)
	if err != nil {
		return core.Metrics{}, err
	}

	var raw rawMetrics
	if err := json.Unmarshal(data, &raw); err != nil {
		return core.Metrics{}, fmt.Errorf("failed to decode metrics JSON: %w", err)
	}
	if raw.AgreementScore == nil || raw.Convergence == nil || raw.Sensitivity == nil ||
		raw.BiasLevel == nil || raw.TopicDrift == nil {
		return core.Metrics{}, fmt.Errorf("metrics JSON missing required fields")
	}

	score := *raw.AgreementScore
	if score < 0 || score > 10 {
		return core.Metrics{}, fmt.Errorf("agreementScore %v out of range 0-10", score)
	}

	convergence, ok := convergenceValues[strings.ToUpper(strings.TrimSpace(*raw.Convergence))]
	if !ok {
		return core.Metrics{}, fmt.Errorf("invalid convergenceStatus %q", *raw.Convergence)
	}
	sensitivity, ok := levelValues[strings.ToUpper(strings.TrimSpace(*raw.Sensitivity))]
	if !ok {
		return core.Metrics{}, fmt.Errorf("invalid emotionalSensitivity %q", *raw.Sensitivity)
	}
	bias, ok := biasValues[strings.ToUpper(strings.TrimSpace(*raw.BiasLevel))]
	if !ok {
		return core.Metrics{}, fmt.Errorf("invalid biasLevel %q", *raw.BiasLevel)
	}
	drift, ok := levelValues[strings.ToUpper(strings.TrimSpace(*raw.TopicDrift))]
	if !ok {
		return core.Metrics{}, fmt.Errorf("invalid topicDrift %q", *raw.TopicDrift)
	}

	return core.Metrics{
		AgreementScore: int(math.Round(score)),
		Convergence:    convergence,
		Sensitivity:    sensitivity,
		BiasLevel:      bias,
		TopicDrift:     drift,
	}, nil
}

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON pulls a JSON object out of a model response. Models
// often wrap the object in prose or a markdown code fence, so three
// strategies are tried in order: the raw response, a fenced code
// block, and the outermost braces.
func extractJSON(response string) ([]byte, error) {
	trimmed := strings.TrimSpace(response)
	if json.Valid([]byte(trimmed)) && strings.HasPrefix(trimmed, "{") {
		return []byte(trimmed), nil
	}

	if m := codeBlockRe.FindStringSubmatch(response); m != nil {
		if json.Valid([]byte(m[1])) {
			return []byte(m[1]), nil
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start >= 0 && end > start {
		candidate := response[start : end+1]
		if json.Valid([]byte(candidate)) {
			return []byte(candidate), nil
		}
	}

	return nil, fmt.Errorf("no JSON object found in response")
}
