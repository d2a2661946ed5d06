package radio

import (
	"errors"
	"fmt"
)

// ErrorKind represents the specific kind of radio failure
type ErrorKind string

const (
	ServerOpenFailed  ErrorKind = "server_open_failed"
	AdvertisingFailed ErrorKind = "advertising_failed"
	PermissionDenied  ErrorKind = "permission_denied"
	RadioOff          ErrorKind = "radio_off"
)

// Error represents any radio-level problem
type Error struct {
	Kind ErrorKind
	Msg  string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare radio errors by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors for radio failure kinds
var (
	ErrServerOpenFailed  = &Error{Kind: ServerOpenFailed}
	ErrAdvertisingFailed = &Error{Kind: AdvertisingFailed}
	ErrPermissionDenied  = &Error{Kind: PermissionDenied}
	ErrRadioOff          = &Error{Kind: RadioOff}
)

// IsKind reports whether err is a radio Error with the given kind
func IsKind(err error, kind ErrorKind) bool {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind == kind
	}
	return false
}
