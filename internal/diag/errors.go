package diag

import (
	"errors"
	"fmt"
)

// Sentinel errors for each failure class. Use errors.Is against these.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrConnection    = errors.New("connection error")
	ErrTranslation   = errors.New("translation error")
	ErrIndex         = errors.New("index out of range")
	ErrLifecycle     = errors.New("lifecycle contract violation")
)

// Kind classifies a status message.
type Kind int

const (
	KindInfo Kind = iota
	KindStateChange
	KindConfiguration
	KindConnection
	KindTranslation
	KindIndex
	KindDropped
	KindLifecycle
	KindAutopilot
)

func (k Kind) String() string {
	switch k {
	case KindInfo:
		return "info"
	case KindStateChange:
		return "state"
	case KindConfiguration:
		return "configuration"
	case KindConnection:
		return "connection"
	case KindTranslation:
		return "translation"
	case KindIndex:
		return "index"
	case KindDropped:
		return "dropped"
	case KindLifecycle:
		return "lifecycle"
	case KindAutopilot:
		return "autopilot"
	default:
		return "unknown"
	}
}

// IsError reports whether messages of this kind describe a failure.
func (k Kind) IsError() bool {
	switch k {
	case KindConfiguration, KindConnection, KindTranslation, KindIndex, KindDropped, KindLifecycle:
		return true
	}
	return false
}

// Error ties a failure to the endpoint it happened on.
type Error struct {
	Kind     Kind
	Endpoint string
	Err      error
}

func (e *Error) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel belonging to the error's kind, so callers can test
// errors.Is(err, ErrConnection) without the wrapped cause carrying it.
func (e *Error) Is(target error) bool {
	return sentinel(e.Kind) == target
}

// Wrap builds an *Error of the given kind. A nil err yields nil.
func Wrap(kind Kind, endpoint string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Endpoint: endpoint, Err: err}
}

// KindOf maps an error back to its kind; unknown errors are KindInfo.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, ErrTranslation):
		return KindTranslation
	case errors.Is(err, ErrIndex):
		return KindIndex
	case errors.Is(err, ErrLifecycle):
		return KindLifecycle
	}
	return KindInfo
}

func sentinel(k Kind) error {
	switch k {
	case KindConfiguration:
		return ErrConfiguration
	case KindConnection:
		return ErrConnection
	case KindTranslation:
		return ErrTranslation
	case KindIndex:
		return ErrIndex
	case KindLifecycle:
		return ErrLifecycle
	}
	return nil
}
