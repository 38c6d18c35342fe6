package session

import "fmt"

// ValidationError reports a file rejected by the client-side allow-list
// before any network call was made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}
