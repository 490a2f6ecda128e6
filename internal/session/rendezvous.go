package session

import (
	"context"
	"fmt"
	"sync"
)

// rendezvous is the one-slot handoff between the sequencer waiting on
// a human turn and the surface (API or CLI) delivering the text. Only
// one turn can be awaited at a time; submissions for any other turn
// are rejected.
type rendezvous struct {
	mu        sync.Mutex
	armed     bool
	submitted bool
	role      string
	iteration int
	ch        chan string
}

// arm opens the slot for the given turn. Called by the sequencer
// before it announces the turn and blocks on wait.
func (r *rendezvous) arm(role string, iteration int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.armed = true
	r.submitted = false
	r.role = role
	r.iteration = iteration
	r.ch = make(chan string, 1)
}

// wait blocks until input arrives or the context is cancelled. The
// slot closes either way.
func (r *rendezvous) wait(ctx context.Context) (string, error) {
	r.mu.Lock()
	ch := r.ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.armed = false
		r.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case content := <-ch:
		return content, nil
	}
}

// Submit delivers human input for the awaited turn. It fails when no
// turn is awaited, the turn does not match, or input was already
// delivered.
func (r *rendezvous) Submit(role string, iteration int, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.armed {
		return fmt.Errorf("no human turn awaited")
	}
	if r.role != role || r.iteration != iteration {
		return fmt.Errorf("awaiting input for %s (iteration %d), not %s (iteration %d)",
			r.role, r.iteration, role, iteration)
	}
	if r.submitted {
		return fmt.Errorf("input already submitted for %s (iteration %d)", role, iteration)
	}

	r.submitted = true
	r.ch <- content
	return nil
}

// Pending returns the turn currently awaiting input, if any.
func (r *rendezvous) Pending() (role string, iteration int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.armed || r.submitted {
		return "", 0, false
	}
	return r.role, r.iteration, true
}
