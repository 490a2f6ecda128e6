// Package export writes debate transcripts to various formats.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/satoruisaka/TwistedDebate/internal/core"
)

// Format represents an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
	FormatJSON     Format = "json"
)

// Exporter defines the interface for exporting debate runs.
type Exporter interface {
	Export(run *core.Run, messages []core.Message, metrics core.Metrics, w io.Writer) error
	FileExtension() string
}

// GetExporter returns an exporter for the given format.
func GetExporter(format Format) (Exporter, error) {
	switch format {
	case FormatMarkdown:
		return &MarkdownExporter{}, nil
	case FormatPDF:
		return &PDFExporter{}, nil
	case FormatJSON:
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

// RecordFile describes a written export.
type RecordFile struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	URL      string `json:"url"`
}

// GenerateFilename creates a filename for an export, keyed by the
// debate format and the export time. Re-exporting the same run later
// yields a fresh filename rather than overwriting the earlier artifact.
func GenerateFilename(debateFormat string, exportedAt time.Time, ext string) string {
	return fmt.Sprintf("debate_%s_%s.%s", debateFormat, exportedAt.Format("2006-01-02_15-04-05"), ext)
}

// WriteRecord exports a run into dir and returns where it landed.
// The directory is created if needed.
func WriteRecord(dir string, format Format, run *core.Run, messages []core.Message, metrics core.Metrics) (*RecordFile, error) {
	exporter, err := GetExporter(format)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	filename := GenerateFilename(run.Format, time.Now().UTC(), exporter.FileExtension())
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := exporter.Export(run, messages, metrics, f); err != nil {
		return nil, fmt.Errorf("failed to export debate: %w", err)
	}

	return &RecordFile{
		Filename: filename,
		Path:     path,
		URL:      "/outputs/" + filename,
	}, nil
}

// Helper to format duration
func formatDuration(start, end time.Time) string {
	d := end.Sub(start)
	if d < time.Minute {
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
	return fmt.Sprintf("%.1f hours", d.Hours())
}
