package tomikal

import (
	"errors"
	"fmt"
)

var ErrSessionExpired = errors.New(msgSessionExpired)
var ErrNotPermitted = errors.New("Access Denied")

// FormError is a client side validation failure. It is shown inline and the form stays as it was.
type FormError struct {
	Field   string
	Message string
}

func (e *FormError) Error() string {
	if e.Field == "" {
		return e.Message
	}

	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

type PermissionError struct {
	Permission Permission
	Message    string
}

func (e *PermissionError) Error() string {
	return e.Message
}

func (e *PermissionError) Is(target error) bool {
	return target == ErrNotPermitted
}
