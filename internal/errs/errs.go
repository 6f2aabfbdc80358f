// Package errs defines the closed error taxonomy shared by every layer.
// The top-level command maps Kind to a process exit code; everything in
// between wraps with fmt.Errorf("...: %w", err) as usual.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for exit-code mapping and user-facing hints.
type Kind int

const (
	KindSystem Kind = iota
	KindInvalidArgument
	KindIo
	KindJson
	KindHttp
	KindEnv
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindIo:
		return "io"
	case KindJson:
		return "json"
	case KindHttp:
		return "http"
	case KindEnv:
		return "env"
	default:
		return "system"
	}
}

// Error carries a Kind and a human message. Use New/Newf/Wrap to construct.
type Error struct {
	kind Kind
	msg  string
	err  error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.err)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Kind() Kind { return e.kind }

func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

func Newf(kind Kind, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, err: err}
}

// KindOf returns the Kind of the outermost *Error in err's chain,
// or KindSystem when none is present.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindSystem
}

// Exit codes follow sysexits conventions: 64 for usage, 74 for every other
// failure. Shell signal deaths (128+N) are produced by the supervisor itself.
const (
	ExitOK    = 0
	ExitUsage = 64
	ExitIo    = 74
)

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if KindOf(err) == KindInvalidArgument {
		return ExitUsage
	}
	return ExitIo
}

// IsUsage reports whether err is a usage error (prints with a hint, exits 64).
func IsUsage(err error) bool {
	return KindOf(err) == KindInvalidArgument
}
