// Package storage provides persistence for archived debate runs.
package storage

import (
	"github.com/satoruisaka/TwistedDebate/internal/core"
)

// Storage defines the interface for the debate archive.
type Storage interface {
	// Initialize sets up the storage (creates tables, etc.)
	Initialize() error

	// Close closes the storage connection.
	Close() error

	// Run operations
	SaveRun(run *core.Run, messages []core.Message, metrics core.Metrics) error
	GetRun(id string) (*core.Run, *core.Metrics, error)
	DeleteRun(id string) error
	ListRuns(limit, offset int) ([]*core.RunSummary, error)

	// Message operations
	GetMessages(runID string) ([]core.Message, error)
}
