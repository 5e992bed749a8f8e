package mailjob

import (
	"errors"
	"fmt"
)

var (
	ErrNoJob          = errors.New("no bulk mail job")
	ErrTickInProgress = errors.New("a bulk mail batch is being sent, try again shortly")
	ErrNoRecipients   = errors.New("no users found")
	ErrPendingWork    = errors.New("a bulk mail job is still pending, cancel it or wait for it to complete")
	ErrNotActive      = errors.New("bulk mail job is not active")
	ErrNotPaused      = errors.New("bulk mail job is not paused")
)

// ValidationError collects every problem with a start request so the operator
// sees them all at once.
type ValidationError struct {
	Errors []error `json:"errors"`
}

func (v *ValidationError) Add(err error) {
	v.Errors = append(v.Errors, err)
}

func (v *ValidationError) HasError() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Error() string {
	if len(v.Errors) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", errors.Join(v.Errors...))
}

func (v *ValidationError) Unwrap() []error {
	return v.Errors
}
