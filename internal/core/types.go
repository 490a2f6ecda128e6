// Package core contains the core domain types for twistd.
package core

import (
	"strings"
	"time"
)

// RunStatus represents the current status of a debate run.
type RunStatus string

const (
	StatusNotStarted RunStatus = "not_started"
	StatusInProgress RunStatus = "in_progress"
	StatusCompleted  RunStatus = "completed"
)

// ActorHuman is the actor value marking a participant as human-operated.
// Any other actor value names the Ollama model that speaks for the role.
const ActorHuman = "HUMAN"

// RoleUser is the role recorded on messages typed by a human participant.
const RoleUser = "user"

// DistortionMode selects how a participant warps its contribution.
type DistortionMode string

const (
	ModeEchoEr   DistortionMode = "echo_er"
	ModeInvertEr DistortionMode = "invert_er"
	ModeWhatIfEr DistortionMode = "what_if_er"
	ModeSoWhatEr DistortionMode = "so_what_er"
	ModeCucumbEr DistortionMode = "cucumb_er"
	ModeArchivEr DistortionMode = "archiv_er"
)

// Modes lists every distortion mode in display order.
func Modes() []DistortionMode {
	return []DistortionMode{
		ModeEchoEr,
		ModeInvertEr,
		ModeWhatIfEr,
		ModeSoWhatEr,
		ModeCucumbEr,
		ModeArchivEr,
	}
}

// ModeDescriptions maps each distortion mode to a short description.
var ModeDescriptions = map[DistortionMode]string{
	ModeEchoEr:   "Amplifies positives and opportunities",
	ModeInvertEr: "Negates and flips perspectives",
	ModeWhatIfEr: "Explores alternative scenarios",
	ModeSoWhatEr: "Questions implications and consequences",
	ModeCucumbEr: "Cool academic analysis",
	ModeArchivEr: "Historical context and parallels",
}

// Valid reports whether m is a known distortion mode.
func (m DistortionMode) Valid() bool {
	_, ok := ModeDescriptions[m]
	return ok
}

// Tone selects the register a participant speaks in.
type Tone string

const (
	ToneNeutral   Tone = "neutral"
	ToneTechnical Tone = "technical"
	TonePrimal    Tone = "primal"
	TonePoetic    Tone = "poetic"
	ToneSatirical Tone = "satirical"
)

// ToneDescriptions maps each tone to a short description.
var ToneDescriptions = map[Tone]string{
	ToneNeutral:   "Clear, standard language",
	ToneTechnical: "Precise, jargon-heavy analysis",
	TonePrimal:    "Short, punchy perspective",
	TonePoetic:    "Lyrical, metaphorical expression",
	ToneSatirical: "Witty, ironic commentary",
}

// Tones lists every tone in display order.
func Tones() []Tone {
	return []Tone{ToneNeutral, ToneTechnical, TonePrimal, TonePoetic, ToneSatirical}
}

// Valid reports whether t is a known tone.
func (t Tone) Valid() bool {
	switch t {
	case ToneNeutral, ToneTechnical, TonePrimal, TonePoetic, ToneSatirical:
		return true
	}
	return false
}

// Participant is one seat in a debate, either a model or a human.
type Participant struct {
	Role  string         `json:"role"`
	Label string         `json:"label"`
	Actor string         `json:"actor"`
	Mode  DistortionMode `json:"mode,omitempty"`
	Tone  Tone           `json:"tone,omitempty"`
}

// IsHuman reports whether the participant is human-operated.
func (p Participant) IsHuman() bool {
	return p.Actor == ActorHuman
}

// IsModerator reports whether the participant's role carries the
// moderator marker. The marker is a substring match on the role name,
// so "moderator" and "panel_moderator" both qualify.
func (p Participant) IsModerator() bool {
	return strings.Contains(strings.ToLower(p.Role), "moderator")
}

// DisplayName returns the label if set, otherwise the role.
func (p Participant) DisplayName() string {
	if p.Label != "" {
		return p.Label
	}
	return p.Role
}

// Message is a single transcript entry.
type Message struct {
	ID        string    `json:"id"`
	Speaker   string    `json:"speaker"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Iteration int       `json:"iteration"`
	CreatedAt time.Time `json:"created_at"`
}

// Convergence describes the trend of agreement across rounds.
type Convergence string

const (
	Converging Convergence = "Converging"
	Diverging  Convergence = "Diverging"
	Stable     Convergence = "Stable"
)

// Level is a coarse three-step scale used by several metrics.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// Bias grades the directional lean of the conversation.
type Bias string

const (
	BiasLow     Bias = "Low"
	BiasNeutral Bias = "Neutral"
	BiasHigh    Bias = "High"
)

// Metrics is one analyzer snapshot of the debate's trajectory.
type Metrics struct {
	AgreementScore int         `json:"agreementScore"`
	Convergence    Convergence `json:"convergenceStatus"`
	Sensitivity    Level       `json:"emotionalSensitivity"`
	BiasLevel      Bias        `json:"biasLevel"`
	TopicDrift     Level       `json:"topicDrift"`
	Iteration      int         `json:"iteration"`
}

// BaselineMetrics is the snapshot a run carries before any analysis
// has succeeded.
func BaselineMetrics() Metrics {
	return Metrics{
		AgreementScore: 0,
		Convergence:    Stable,
		Sensitivity:    LevelLow,
		BiasLevel:      BiasLow,
		TopicDrift:     LevelLow,
	}
}

// Run is one debate from configuration through completion.
type Run struct {
	ID               string        `json:"id"`
	Topic            string        `json:"topic"`
	Format           string        `json:"format"`
	Participants     []Participant `json:"participants"`
	MaxIterations    int           `json:"max_iterations"`
	Gain             int           `json:"gain"`
	CurrentIteration int           `json:"current_iteration"`
	Status           RunStatus     `json:"status"`
	CreatedAt        time.Time     `json:"created_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
}

// Moderator returns the first moderator participant, if any.
func (r *Run) Moderator() (Participant, bool) {
	for _, p := range r.Participants {
		if p.IsModerator() {
			return p, true
		}
	}
	return Participant{}, false
}

// RunSummary is a lightweight representation for listing archived runs.
type RunSummary struct {
	ID           string    `json:"id"`
	Topic        string    `json:"topic"`
	Format       string    `json:"format"`
	Status       RunStatus `json:"status"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
}
