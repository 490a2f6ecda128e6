package export

import (
	"encoding/json"
	"io"

	"github.com/satoruisaka/TwistedDebate/internal/core"
)

// JSONExporter exports debate runs to JSON format.
type JSONExporter struct{}

// ExportData represents the full export structure.
type ExportData struct {
	Run      *core.Run      `json:"run"`
	Messages []core.Message `json:"messages"`
	Metrics  core.Metrics   `json:"metrics"`
}

// Export writes the debate as JSON.
func (e *JSONExporter) Export(run *core.Run, messages []core.Message, metrics core.Metrics, w io.Writer) error {
	data := ExportData{
		Run:      run,
		Messages: messages,
		Metrics:  metrics,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return "json"
}
