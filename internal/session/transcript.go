package session

import (
	"sync"

	"github.com/satoruisaka/TwistedDebate/internal/core"
)

// Transcript is the append-only message log of a run. A single
// sequencer goroutine appends; API handlers read concurrently.
type Transcript struct {
	mu       sync.RWMutex
	messages []core.Message
}

// Append adds a message to the end of the transcript.
func (t *Transcript) Append(m core.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, m)
}

// All returns a copy of every message in order.
func (t *Transcript) All() []core.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}
