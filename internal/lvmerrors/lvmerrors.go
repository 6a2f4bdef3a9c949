// Package lvmerrors implements the error taxonomy of the metadata core.
//
// Every fallible routine in the original sources returns 0/1 and sets a
// diagnostic through a level-based logger; here the same taxonomy is
// carried as a small set of sentinel errors that participate in
// errors.Is/errors.As, plus a stack annotation analogous to the "stack"
// log marker.
package lvmerrors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind is one row of the taxonomy table.
type Kind int

const (
	KindNotFound Kind = iota
	KindInconsistent
	KindMissingPV
	KindIO
	KindFormat
	KindInvalidArgument
	KindLocked
	KindBusy
	KindOutOfSpace
	KindUnsupportedFeature
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInconsistent:
		return "Inconsistent"
	case KindMissingPV:
		return "MissingPV"
	case KindIO:
		return "IO"
	case KindFormat:
		return "Format"
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindLocked:
		return "Locked"
	case KindBusy:
		return "Busy"
	case KindOutOfSpace:
		return "OutOfSpace"
	case KindUnsupportedFeature:
		return "UnsupportedFeature"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is a taxonomy-tagged error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil && !strings.Contains(e.Msg, e.Err.Error()) {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, lvmerrors.NotFound) to match any *Error of the
// same Kind, not just a specific instance.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Kind == e.Kind && other.Msg == ""
	}
	return false
}

// newf formats like fmt.Errorf, so a %w verb keeps the wrapped error
// reachable through Unwrap.
func newf(k Kind, format string, args ...any) error {
	formatted := fmt.Errorf(format, args...)
	return &Error{Kind: k, Msg: formatted.Error(), Err: errors.Unwrap(formatted)}
}

func NotFoundf(format string, args ...any) error           { return newf(KindNotFound, format, args...) }
func Inconsistentf(format string, args ...any) error       { return newf(KindInconsistent, format, args...) }
func MissingPVf(format string, args ...any) error          { return newf(KindMissingPV, format, args...) }
func IOf(format string, args ...any) error                 { return newf(KindIO, format, args...) }
func Formatf(format string, args ...any) error             { return newf(KindFormat, format, args...) }
func InvalidArgumentf(format string, args ...any) error    { return newf(KindInvalidArgument, format, args...) }
func Lockedf(format string, args ...any) error              { return newf(KindLocked, format, args...) }
func Busyf(format string, args ...any) error                { return newf(KindBusy, format, args...) }
func OutOfSpacef(format string, args ...any) error          { return newf(KindOutOfSpace, format, args...) }
func UnsupportedFeaturef(format string, args ...any) error  { return newf(KindUnsupportedFeature, format, args...) }
func Internalf(format string, args ...any) error            { return newf(KindInternal, format, args...) }

// Sentinel values usable with errors.Is(err, lvmerrors.NotFound).
var (
	NotFound           = &Error{Kind: KindNotFound}
	Inconsistent       = &Error{Kind: KindInconsistent}
	MissingPV          = &Error{Kind: KindMissingPV}
	IO                 = &Error{Kind: KindIO}
	Format             = &Error{Kind: KindFormat}
	InvalidArgument    = &Error{Kind: KindInvalidArgument}
	Locked             = &Error{Kind: KindLocked}
	Busy               = &Error{Kind: KindBusy}
	OutOfSpace         = &Error{Kind: KindOutOfSpace}
	UnsupportedFeature = &Error{Kind: KindUnsupportedFeature}
	Internal           = &Error{Kind: KindInternal}
)

// WithStack records the caller's file:line, modelling the "stack" log
// marker that the original sources print when propagating an error up
// through several layers.
func WithStack(err error) error {
	if err == nil {
		return nil
	}
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		return err
	}
	return &stackError{file: file, line: line, err: err}
}

type stackError struct {
	file string
	line int
	err  error
}

func (e *stackError) Error() string {
	return fmt.Sprintf("%s:%d: %v", e.file, e.line, e.err)
}

func (e *stackError) Unwrap() error { return e.err }
