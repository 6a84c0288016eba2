// Package status defines the error taxonomy shared by the Gear runtime and
// compiler, and the last-error slot both of them report through.
package status

import (
	"errors"
	"fmt"
)

// Kind classifies a reported failure.
type Kind int

const (
	OK Kind = iota
	TypeConversion
	UnknownSymbol
	DuplicateName
	InvalidProperty
	MultipleEntryPoints
	MissingEntryPoint
	UnexpectedEntryPoint
	CallFailure
	InvalidHandle
	InvalidEdit
	NotCompiled
	InvalidModule
	DebugServer
	CompileFailure
)

var kindNames = [...]string{
	OK:                   "ok",
	TypeConversion:       "type conversion",
	UnknownSymbol:        "unknown symbol",
	DuplicateName:        "duplicate name",
	InvalidProperty:      "invalid property",
	MultipleEntryPoints:  "multiple entry points",
	MissingEntryPoint:    "missing entry point",
	UnexpectedEntryPoint: "unexpected entry point",
	CallFailure:          "call failure",
	InvalidHandle:        "invalid handle",
	InvalidEdit:          "invalid edit",
	NotCompiled:          "not compiled",
	InvalidModule:        "invalid module",
	DebugServer:          "debug server",
	CompileFailure:       "compile failure",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error // optional underlying cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so errors.Is(err, &Error{Kind: k}) matches any
// error of kind k.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Message == "" && t.Kind == e.Kind
	}
	return false
}

// Errorf builds a classified error. A %w verb in format is honoured.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	wrapped := fmt.Errorf(format, args...)
	e := &Error{Kind: kind, Message: wrapped.Error()}
	if u := errors.Unwrap(wrapped); u != nil {
		e.Err = u
		e.Message = stripCause(e.Message, u.Error())
	}
	return e
}

func stripCause(msg, cause string) string {
	if n := len(msg) - len(cause); n >= 2 && msg[n:] == cause && msg[n-2:n] == ": " {
		return msg[:n-2]
	}
	return msg
}

// KindOf returns the kind of err, or OK for nil and CallFailure for errors
// that carry no classification.
func KindOf(err error) Kind {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		if e == nil {
			return OK
		}
		return e.Kind
	}
	return CallFailure
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
