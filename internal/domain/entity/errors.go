package entity

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks malformed automations and tasks. It is never retried.
var ErrConfiguration = errors.New("configuration error")

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// ConfigErrorf builds an error that matches ErrConfiguration.
func ConfigErrorf(format string, args ...any) error {
	return configErrorf(format, args...)
}

// AssertLocatorPresenceError is raised when an asserted locator exhausts its tries.
type AssertLocatorPresenceError struct {
	Message string
	Command string
	Err     error
}

func (e *AssertLocatorPresenceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s (command: %s)", e.Message, e.Command)
	}
	return fmt.Sprintf("%s (command: %s): %v", e.Message, e.Command, e.Err)
}

func (e *AssertLocatorPresenceError) Unwrap() error {
	return e.Err
}
