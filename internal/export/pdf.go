package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/satoruisaka/TwistedDebate/internal/core"
)

// PDFExporter exports debate runs to PDF format.
type PDFExporter struct{}

// Export writes the debate as PDF.
func (e *PDFExporter) Export(run *core.Run, messages []core.Message, metrics core.Metrics, w io.Writer) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	pdf.AddPage()

	// Title
	pdf.SetFont("Arial", "B", 18)
	pdf.MultiCell(0, 10, e.sanitizeText(run.Topic), "", "C", false)
	pdf.Ln(5)

	// Metadata section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Debate Information")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	e.addMetadataRow(pdf, "Format:", titleCase(run.Format))
	e.addMetadataRow(pdf, "Status:", string(run.Status))
	e.addMetadataRow(pdf, "Gain:", fmt.Sprintf("%d/10", run.Gain))
	e.addMetadataRow(pdf, "Created:", run.CreatedAt.Format("January 2, 2006 at 3:04 PM"))
	if run.CompletedAt != nil {
		e.addMetadataRow(pdf, "Completed:", run.CompletedAt.Format("January 2, 2006 at 3:04 PM"))
		e.addMetadataRow(pdf, "Duration:", formatDuration(run.CreatedAt, *run.CompletedAt))
	}
	pdf.Ln(5)

	// Participants section
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Participants")
	pdf.Ln(8)

	for _, p := range run.Participants {
		e.addParticipantRow(pdf, p)
	}
	pdf.Ln(5)

	// Transcript
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Transcript")
	pdf.Ln(8)

	if len(messages) == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.Cell(0, 6, "No messages recorded.")
		pdf.Ln(6)
	}
	for _, msg := range messages {
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}

		pdf.SetFillColor(230, 230, 245)
		pdf.SetFont("Arial", "B", 10)
		header := e.sanitizeText(msg.Speaker)
		if msg.Iteration > 0 {
			header = fmt.Sprintf("%s - Turn %d", header, msg.Iteration)
		}
		pdf.CellFormat(0, 7, header, "", 1, "", true, 0, "")

		pdf.SetFont("Arial", "", 9)
		pdf.SetFillColor(255, 255, 255)
		pdf.MultiCell(0, 5, e.sanitizeText(msg.Content), "", "", false)
		pdf.Ln(5)
	}

	// Metrics
	if pdf.GetY() > 230 {
		pdf.AddPage()
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, "Metrics")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	e.addMetadataRow(pdf, "Agreement:", fmt.Sprintf("%d/10", metrics.AgreementScore))
	e.addMetadataRow(pdf, "Convergence:", string(metrics.Convergence))
	e.addMetadataRow(pdf, "Sensitivity:", string(metrics.Sensitivity))
	e.addMetadataRow(pdf, "Bias:", string(metrics.BiasLevel))
	e.addMetadataRow(pdf, "Topic Drift:", string(metrics.TopicDrift))

	// Footer
	pdf.SetY(-15)
	pdf.SetFont("Arial", "I", 8)
	pdf.CellFormat(0, 10, "Generated by TwistedDebate", "", 0, "C", false, 0, "")

	return pdf.Output(w)
}

// FileExtension returns the file extension for PDF.
func (e *PDFExporter) FileExtension() string {
	return "pdf"
}

// Helper to add a metadata row
func (e *PDFExporter) addMetadataRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(30, 5, label)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 5, value)
	pdf.Ln(5)
}

// Helper to add a participant line
func (e *PDFExporter) addParticipantRow(pdf *gofpdf.Fpdf, p core.Participant) {
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(40, 5, e.sanitizeText(p.DisplayName()))
	pdf.SetFont("Arial", "", 9)
	if p.IsHuman() {
		pdf.Cell(0, 5, "human")
	} else {
		pdf.Cell(0, 5, fmt.Sprintf("%s (%s mode, %s tone)", p.Actor, orNA(string(p.Mode)), orNA(string(p.Tone))))
	}
	pdf.Ln(5)
}

// Sanitize text for PDF (remove problematic characters)
func (e *PDFExporter) sanitizeText(text string) string {
	// gofpdf uses Windows-1252 encoding by default
	// Replace common Unicode characters that might cause issues
	replacer := strings.NewReplacer(
		"‘", "'",
		"’", "'",
		"“", "\"",
		"”", "\"",
		"–", "-",
		"—", "--",
		"…", "...",
		"•", "*",
		" ", " ",
	)
	return replacer.Replace(text)
}
