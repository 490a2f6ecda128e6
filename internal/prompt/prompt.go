// Package prompt builds generation prompts and sampling parameters.
package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/satoruisaka/TwistedDebate/internal/core"
)

// Params are the Ollama sampling parameters for a generation call.
type Params struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	TopK        int     `json:"top_k"`
}

const (
	MinGain     = 1
	MaxGain     = 10
	DefaultGain = 5
)

// gainParams maps gain (distortion intensity) to sampling parameters.
var gainParams = map[int]Params{
	1:  {Temperature: 0.3, TopP: 0.7, TopK: 20},
	2:  {Temperature: 0.4, TopP: 0.75, TopK: 25},
	3:  {Temperature: 0.5, TopP: 0.8, TopK: 30},
	4:  {Temperature: 0.6, TopP: 0.85, TopK: 35},
	5:  {Temperature: 0.7, TopP: 0.9, TopK: 40},
	6:  {Temperature: 0.8, TopP: 0.92, TopK: 45},
	7:  {Temperature: 0.9, TopP: 0.94, TopK: 50},
	8:  {Temperature: 1.0, TopP: 0.95, TopK: 60},
	9:  {Temperature: 1.1, TopP: 0.97, TopK: 70},
	10: {Temperature: 1.2, TopP: 0.99, TopK: 80},
}

// ForGain returns the sampling parameters for a gain level, clamping
// out-of-range values into [MinGain, MaxGain].
func ForGain(gain int) Params {
	if gain < MinGain {
		gain = MinGain
	}
	if gain > MaxGain {
		gain = MaxGain
	}
	return gainParams[gain]
}

// Analysis returns the fixed low-variance parameters used for metrics
// analysis calls.
func Analysis() Params {
	return Params{Temperature: 0.3, TopP: 0.8, TopK: 20}
}

// modeGuidance is the per-mode role hint injected into turn prompts.
var modeGuidance = map[core.DistortionMode]string{
	core.ModeEchoEr:   "Focus on positive aspects and opportunities. Amplify what's working.",
	core.ModeInvertEr: "Challenge assumptions. Point out what's missing or contradictory.",
	core.ModeWhatIfEr: "Explore alternative scenarios. Ask 'what if' questions.",
	core.ModeSoWhatEr: "Question implications. Ask 'so what' and demand practical impact.",
	core.ModeCucumbEr: "Stay analytical and composed. Provide systematic analysis.",
	core.ModeArchivEr: "Connect to history and precedents. Provide context from past examples.",
}

// toneInstructions is the per-tone style instruction injected into prompts.
var toneInstructions = map[core.Tone]string{
	core.ToneNeutral:   "Use clear, standard language. Be direct and straightforward.",
	core.ToneTechnical: "Use precise, technical language. Include jargon and analytical terms where appropriate.",
	core.TonePrimal:    "Be concise and punchy. Use short sentences. Be direct and forceful.",
	core.TonePoetic:    "Use lyrical, metaphorical language. Be expressive and evocative.",
	core.ToneSatirical: "Use wit, irony, and humor. Be clever and engaging.",
}

// ModeGuidance returns the role hint for a mode.
func ModeGuidance(m core.DistortionMode) string {
	if g, ok := modeGuidance[m]; ok {
		return g
	}
	return "Provide your perspective."
}

// ToneInstruction returns the style instruction for a tone.
func ToneInstruction(t core.Tone) string {
	return toneInstructions[t]
}

var synthesisTemplate = template.Must(template.New("synthesis").Parse(`You are {{.Name}}, the moderator of this debate.

Topic: {{.Topic}}

Complete debate transcript:
{{.Context}}

This is the FINAL SUMMARY. Your job is to:
- Summarize EACH participant's key arguments (do NOT omit any participant)
- Identify points of agreement and disagreement across ALL participants
- Highlight the strongest points from each perspective
- Provide a brief but comprehensive conclusion without declaring a winner

IMPORTANT: Make sure to cover ALL participants who spoke. Do not leave anyone out.
IMPORTANT: Do NOT introduce yourself or use placeholder names. Jump straight into the summary.

Style: {{.Tone}}

Provide a comprehensive closing summary (MAX 200 words).`))

var moderatorOpeningTemplate = template.Must(template.New("moderatorOpening").Parse(`You are {{.Name}}, the moderator of this debate.

Topic: {{.Topic}}

This is the opening. Your job is to:
- Welcome the participants
- Clearly state the debate topic
- Explain the format briefly
- Invite participants to begin

Style: {{.Tone}}

IMPORTANT: Do NOT introduce yourself by name or use placeholder text like "[Your Name]". Your role is already displayed. Jump straight into your opening.

Provide a brief opening statement (MAX 100 words). Be welcoming and clear.`))

var openingTemplate = template.Must(template.New("opening").Parse(`You are {{.Name}} in a debate.

Topic: {{.Topic}}

This is your opening statement. Present your initial perspective on the topic.

Your role: {{.Mode}}
Style: {{.Tone}}

IMPORTANT: Do NOT introduce yourself by name or use placeholder text like "[Your Name]". Your identity is already displayed. Jump straight into your argument.

Provide a brief opening (MAX 100 words). Be specific and direct.`))

var moderatorTurnTemplate = template.Must(template.New("moderatorTurn").Parse(`You are {{.Name}}, the moderator of this debate.

Topic: {{.Topic}}

Full discussion so far:
{{.Context}}

Your job is to:
- Acknowledge key points made by EACH participant who has spoken
- Ask clarifying questions to explore ideas further
- Guide the discussion forward constructively

IMPORTANT: If multiple participants have spoken, acknowledge ALL of them. Don't skip anyone.
IMPORTANT: Do NOT introduce yourself or use placeholder names. Jump straight into moderation.

Style: {{.Tone}}

Provide brief moderation (MAX 100 words).`))

var examinerTemplate = template.Must(template.New("examiner").Parse(`You are {{.Name}}, an examiner in this examination.

Topic: {{.Topic}}

Recent discussion:
{{.Context}}

Your role: {{.Mode}}
Style: {{.Tone}}

IMPORTANT: Do NOT introduce yourself or use placeholder names. Jump straight into your question or challenge.

Ask a probing question or present a challenge to the examinee's position. Be specific and critical (MAX 100 words).`))

var examineeTemplate = template.Must(template.New("examinee").Parse(`You are {{.Name}}, the examinee responding to examiners.

Topic: {{.Topic}}

Recent discussion:
{{.Context}}

Your role: {{.Mode}}
Style: {{.Tone}}

IMPORTANT: Do NOT introduce yourself or use placeholder names. Jump straight into your response.

Respond to the examiners' questions and challenges. Defend or refine your position (MAX 100 words).`))

var turnTemplate = template.Must(template.New("turn").Parse(`You are {{.Name}} in a debate.

Topic: {{.Topic}}

Recent discussion:
{{.Context}}

Your role: {{.Mode}}
Style: {{.Tone}}

IMPORTANT: Do NOT introduce yourself or use placeholder names. Jump straight into your response.

Respond to the points raised. Provide a brief response (MAX 100 words). Be specific and direct.`))

var analysisTemplate = template.Must(template.New("analysis").Parse(`You are analyzing a debate to generate metrics. Be objective and precise.

Topic: {{.Topic}}

Recent conversation:
{{.Context}}

Analyze the debate and provide the following metrics in JSON format:

{
  "agreementScore": <number 0-10, where 0=total disagreement, 10=complete agreement>,
  "convergenceStatus": "<CONVERGING or DIVERGING or STABLE>",
  "emotionalSensitivity": "<LOW or MEDIUM or HIGH>",
  "biasLevel": "<LOW or NEUTRAL or HIGH>",
  "topicDrift": "<LOW or MEDIUM or HIGH>"
}

Analysis criteria:
- agreementScore: How much do participants agree on core points? Look for shared positions.
- convergenceStatus: Are positions getting closer (CONVERGING), further apart (DIVERGING), or staying same (STABLE)?
- emotionalSensitivity: Intensity of emotional language, charged words, personal attacks.
- biasLevel: Degree of one-sided arguments, partisan language, ignoring counterpoints.
- topicDrift: How much has discussion wandered from the original topic?

Respond ONLY with the JSON object, no explanation.`))

// TurnRequest carries everything needed to build one participant's
// generation prompt.
type TurnRequest struct {
	Topic         string
	Participant   core.Participant
	Context       []core.Message
	Iteration     int
	MaxIterations int
}

// synthesisTurn reports whether the request is the moderator's closing
// summary, which runs after all regular iterations complete.
func (r TurnRequest) synthesisTurn() bool {
	return r.Iteration > r.MaxIterations && r.Participant.IsModerator()
}

// Turn renders the generation prompt for a participant's turn. The
// template is chosen by the participant's position in the debate:
// synthesis for the moderator's closing turn, opening variants when no
// context exists yet, and role-specific variants otherwise.
func Turn(req TurnRequest) (string, error) {
	p := req.Participant
	data := map[string]interface{}{
		"Name":    p.DisplayName(),
		"Topic":   req.Topic,
		"Context": joinContext(req.Context),
		"Mode":    ModeGuidance(p.Mode),
		"Tone":    ToneInstruction(p.Tone),
	}

	tmpl := pickTemplate(req)
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func pickTemplate(req TurnRequest) *template.Template {
	p := req.Participant
	role := strings.ToLower(p.Role)

	switch {
	case req.synthesisTurn():
		return synthesisTemplate
	case len(req.Context) == 0 && p.IsModerator():
		return moderatorOpeningTemplate
	case len(req.Context) == 0:
		return openingTemplate
	case p.IsModerator():
		return moderatorTurnTemplate
	case strings.Contains(role, "examiner") && !strings.Contains(role, "examinee"):
		return examinerTemplate
	case strings.Contains(role, "examinee"):
		return examineeTemplate
	default:
		return turnTemplate
	}
}

// AnalysisPrompt renders the metrics analysis prompt over the full
// transcript. Message content is never truncated.
func AnalysisPrompt(topic string, messages []core.Message) (string, error) {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Speaker, m.Content))
	}
	data := map[string]interface{}{
		"Topic":   topic,
		"Context": strings.Join(lines, "\n\n"),
	}

	var buf bytes.Buffer
	if err := analysisTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render analysis prompt: %w", err)
	}
	return buf.String(), nil
}

func joinContext(messages []core.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Speaker, m.Content))
	}
	return strings.Join(lines, "\n")
}
