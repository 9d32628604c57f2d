package watchdog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateWatchdog indicates a name is registered twice.
	ErrDuplicateWatchdog = errors.New("duplicate watchdog")
	// ErrInvalidTimeout indicates interval or max inactivity is not positive.
	ErrInvalidTimeout = errors.New("invalid watchdog timeout")
)

// StaleError lists armed watchdogs which are starved.
type StaleError struct {
	Names []string
}

// Error implements error.
func (e *StaleError) Error() string {
	return fmt.Sprintf("watchdogs starved: %s", strings.Join(e.Names, ", "))
}
