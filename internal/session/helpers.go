package session

import (
	"fmt"

	"github.com/sioly123/Lazarus-Ground-Station/internal/flight"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// rollbackWithError ignores the error Rollback returns after a successful Commit.
func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err != nil {
		*err = fmt.Errorf("%w (rollback: %v)", *err, cErr)
	}
}

func parseTransition(s string) (flight.Transition, error) {
	switch s {
	case flight.Entered.String():
		return flight.Entered, nil
	case flight.Cleared.String():
		return flight.Cleared, nil
	default:
		return 0, fmt.Errorf("unknown transition %q", s)
	}
}
