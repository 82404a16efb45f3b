package password

import (
	"errors"
	"strings"
)

// ErrWeakPassword is matched by every *ValidationError.
var ErrWeakPassword = errors.New("password does not meet policy")

// ValidationError lists the requirements a submitted password failed.
type ValidationError struct {
	Unmet []string
}

func (e *ValidationError) Error() string {
	return "password: missing " + strings.Join(e.Unmet, ", ")
}

// Is lets errors.Is(err, ErrWeakPassword) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrWeakPassword
}
