package session

import (
	"errors"
	"fmt"
)

// ErrSessionNotFound reports that no saved session exists at the resolved
// cookies path. Login flows treat this as a normal starting state; every
// other action surfaces it to the caller with guidance to log in first.
var ErrSessionNotFound = errors.New("session: not found")

// ErrNotLoggedIn reports that an action requiring authentication ran with no
// usable session.
var ErrNotLoggedIn = errors.New("session: not logged in, fetch a login QR code first")

// NotFoundError carries the path that was probed for a saved session.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session: no saved session at %s", e.Path)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrSessionNotFound }

// LoadError reports a session file that exists but cannot be decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("session: load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
