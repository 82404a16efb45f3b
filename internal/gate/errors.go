package gate

import (
	"errors"
	"fmt"
)

// ErrProfileNotFound is returned by a ProfileStore when the subject has no
// profile record.
var ErrProfileNotFound = errors.New("gate: profile not found")

// ProfileLoadError wraps a failed profile lookup. It is treated exactly like
// a missing profile.
type ProfileLoadError struct {
	Subject string
	Err     error
}

func (e *ProfileLoadError) Error() string {
	return fmt.Sprintf("gate: load profile %s: %v", e.Subject, e.Err)
}

func (e *ProfileLoadError) Unwrap() error {
	return e.Err
}
