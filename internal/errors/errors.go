// Package errors defines the error kinds reported by the object store.
package errors

import (
	stderrors "errors"
	"fmt"
)

type Kind string

const (
	KindIO        Kind = "IO"
	KindCodec     Kind = "CODEC"
	KindFormat    Kind = "FORMAT"
	KindIntegrity Kind = "INTEGRITY"
	KindPath      Kind = "PATH"
)

// Error carries the kind of failure together with the operation and the
// path it happened on. Path may be empty for codec failures.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IO(op, path string, err error) *Error {
	return &Error{Kind: KindIO, Op: op, Path: path, Err: err}
}

func Codec(op string, err error) *Error {
	return &Error{Kind: KindCodec, Op: op, Err: err}
}

func Format(op, path, format string, args ...any) *Error {
	return &Error{
		Kind: KindFormat,
		Op:   op,
		Path: path,
		Err:  fmt.Errorf(format, args...),
	}
}

// Integrity reports a recomputed hash that disagrees with the expected one.
func Integrity(path, want, got string) *Error {
	return &Error{
		Kind: KindIntegrity,
		Op:   "verify",
		Path: path,
		Err:  fmt.Errorf("hash mismatch: want %s, got %s", want, got),
	}
}

// Path reports a structural operation that could not locate its target.
func Path(op, path, reason string) *Error {
	return &Error{
		Kind: KindPath,
		Op:   op,
		Path: path,
		Err:  stderrors.New(reason),
	}
}

// WithPath fills in the path of the first *Error in err's chain when the
// layer that produced it did not know it.
func WithPath(err error, path string) error {
	var e *Error
	if stderrors.As(err, &e) && e.Path == "" {
		e.Path = path
	}
	return err
}

// KindOf returns the kind of the first *Error in err's chain, or "" when
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
