package systrace

import (
	"errors"
	"fmt"
	"syscall"
)

// Code is a high-level error category, per SPEC_FULL.md §7's error table.
type Code string

const (
	CodeNotEnabled       Code = "tracing not enabled for this rank"
	CodeSymbolNotFound   Code = "dynamic symbol not found"
	CodeBarrierTimeout   Code = "startup barrier timeout"
	CodeWriterBusy       Code = "writer file locked by another thread"
	CodeBufferOverflow   Code = "accelerator-SDK buffer overflow"
	CodeIngestFailed     Code = "accelerator-SDK ingest failed"
	CodeDumpFailed       Code = "dump write failed"
	CodeInvalidParams    Code = "invalid parameters"
	CodeIOError          Code = "I/O error"
)

// Error is the structured error type every component returns, carrying
// enough context (which operation, which component, which rank) to
// diagnose a failure without parsing a message string.
type Error struct {
	Op        string // operation that failed, e.g. "dumpctl.dump"
	Component string // component name, e.g. "interposer", "sdktrace"
	Rank      int    // rank the error occurred on (-1 if not applicable)
	Code      Code
	Errno     syscall.Errno // kernel errno, 0 if not applicable
	Msg       string
	Inner     error
}

func (e *Error) Error() string {
	var parts []string
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("component=%s", e.Component))
	}
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Rank >= 0 {
		parts = append(parts, fmt.Sprintf("rank=%d", e.Rank))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("systrace: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("systrace: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// NewError constructs a structured Error with Rank left unset (-1).
func NewError(component, op string, code Code, msg string) *Error {
	return &Error{Component: component, Op: op, Rank: -1, Code: code, Msg: msg}
}

// NewRankError constructs a structured Error scoped to a specific rank.
func NewRankError(component, op string, rank int, code Code, msg string) *Error {
	return &Error{Component: component, Op: op, Rank: rank, Code: code, Msg: msg}
}

// WrapError wraps inner with systrace context, mapping a bare
// syscall.Errno to one of the Code categories above.
func WrapError(component, op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if se, ok := inner.(*Error); ok {
		return &Error{Component: component, Op: op, Rank: se.Rank, Code: se.Code, Errno: se.Errno, Msg: se.Msg, Inner: se.Inner}
	}

	code := CodeIOError
	var errno syscall.Errno
	if e, ok := inner.(syscall.Errno); ok {
		errno = e
		code = mapErrnoToCode(e)
	}
	return &Error{Component: component, Op: op, Rank: -1, Code: code, Errno: errno, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) Code {
	switch errno {
	case syscall.ENOENT:
		return CodeSymbolNotFound
	case syscall.EINVAL, syscall.E2BIG:
		return CodeInvalidParams
	case syscall.ETIMEDOUT:
		return CodeBarrierTimeout
	case syscall.EBUSY:
		return CodeWriterBusy
	default:
		return CodeIOError
	}
}

// IsCode reports whether err (or any error it wraps) is a *Error with
// the given Code.
func IsCode(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
