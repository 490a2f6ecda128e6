package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/satoruisaka/TwistedDebate/internal/core"
)

// MarkdownExporter exports debate runs to Markdown format.
type MarkdownExporter struct{}

// Export writes the debate as Markdown.
func (e *MarkdownExporter) Export(run *core.Run, messages []core.Message, metrics core.Metrics, w io.Writer) error {
	var sb strings.Builder

	// Title
	sb.WriteString(fmt.Sprintf("# TwistedDebate - %s\n\n", titleCase(run.Format)))

	// Metadata
	sb.WriteString(fmt.Sprintf("**Topic:** %s\n\n", run.Topic))
	sb.WriteString(fmt.Sprintf("**Date:** %s\n\n", run.CreatedAt.Format("2006-01-02 15:04:05 UTC")))
	sb.WriteString(fmt.Sprintf("**Gain Level:** %d/10\n\n", run.Gain))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n\n", run.Status))
	if run.CompletedAt != nil {
		sb.WriteString(fmt.Sprintf("**Duration:** %s\n\n", formatDuration(run.CreatedAt, *run.CompletedAt)))
	}

	// Participants
	sb.WriteString("## Participants\n\n")
	for _, p := range run.Participants {
		if p.IsHuman() {
			sb.WriteString(fmt.Sprintf("- **%s**: human\n", p.DisplayName()))
			continue
		}
		sb.WriteString(fmt.Sprintf("- **%s**: %s (%s mode, %s tone)\n",
			p.DisplayName(), p.Actor, orNA(string(p.Mode)), orNA(string(p.Tone))))
	}

	// Transcript
	sb.WriteString("\n---\n\n## Transcript\n\n")
	if len(messages) == 0 {
		sb.WriteString("*No messages recorded.*\n\n")
	}
	for _, msg := range messages {
		turnLabel := ""
		if msg.Iteration > 0 {
			turnLabel = fmt.Sprintf(" [Turn %d]", msg.Iteration)
		}
		sb.WriteString(fmt.Sprintf("### %s%s\n\n%s\n\n---\n\n", msg.Speaker, turnLabel, msg.Content))
	}

	// Metrics
	sb.WriteString("## Metrics\n\n")
	sb.WriteString(fmt.Sprintf("- **Agreement Score:** %d/10\n", metrics.AgreementScore))
	sb.WriteString(fmt.Sprintf("- **Convergence:** %s\n", metrics.Convergence))
	sb.WriteString(fmt.Sprintf("- **Emotional Sensitivity:** %s\n", metrics.Sensitivity))
	sb.WriteString(fmt.Sprintf("- **Bias Level:** %s\n", metrics.BiasLevel))
	sb.WriteString(fmt.Sprintf("- **Topic Drift:** %s\n", metrics.TopicDrift))

	// Footer
	sb.WriteString("\n\n*Generated by TwistedDebate*\n")

	_, err := w.Write([]byte(sb.String()))
	return err
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return "md"
}

// titleCase turns a format ID like "one-to-one" into "One To One".
func titleCase(format string) string {
	words := strings.Split(format, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
