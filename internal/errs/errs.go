// Package errs classifies failures of the XP subsystem so callers can decide
// whether to reject, skip, retry or self-heal.
package errs

import (
	"context"
	"errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration covers a disabled feature or a missing log channel.
	KindConfiguration
	// KindPermission covers role hierarchy and missing permission failures.
	KindPermission
	// KindTransient covers timeouts, rate limits and busy storage.
	KindTransient
	// KindDataIntegrity covers mapped roles that no longer exist.
	KindDataIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindPermission:
		return "permission"
	case KindTransient:
		return "transient"
	case KindDataIntegrity:
		return "data_integrity"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the innermost classified kind. Deadline expiry is always
// transient, even when nothing classified it.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindUnknown && e.Err != nil {
			return KindOf(e.Err)
		}
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

var (
	ErrFeatureDisabled = errors.New("xp system is not enabled for this server")
	ErrNoLogChannel    = errors.New("xp log channel is not configured")
)
