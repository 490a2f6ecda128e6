package ollama

import "fmt"

// Error wraps failures from the Ollama API with the operation that
// produced them.
type Error struct {
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ollama %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("ollama %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
