package systrace

import (
	"errors"
	"syscall"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewError("dumpctl", "dump", CodeDumpFailed, "could not write trace file")

	if err.Op != "dump" {
		t.Errorf("Expected Op=dump, got %s", err.Op)
	}
	if err.Code != CodeDumpFailed {
		t.Errorf("Expected Code=CodeDumpFailed, got %s", err.Code)
	}

	expected := "systrace: could not write trace file (component=dumpctl)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestRankError(t *testing.T) {
	err := NewRankError("sdktrace", "flush", 3, CodeWriterBusy, "file locked")

	if err.Rank != 3 {
		t.Errorf("Expected Rank=3, got %d", err.Rank)
	}
	if err.Error() != "systrace: file locked (component=sdktrace)" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestWrapErrorMapsErrno(t *testing.T) {
	err := WrapError("interposer", "dlsym", syscall.ENOENT)

	if err.Code != CodeSymbolNotFound {
		t.Errorf("Expected Code=CodeSymbolNotFound, got %s", err.Code)
	}
	if err.Errno != syscall.ENOENT {
		t.Errorf("Expected Errno=ENOENT, got %v", err.Errno)
	}
}

func TestWrapErrorNilIsNil(t *testing.T) {
	if WrapError("x", "y", nil) != nil {
		t.Error("expected WrapError(nil) to return nil")
	}
}

func TestWrapErrorPreservesExistingStructuredError(t *testing.T) {
	inner := NewRankError("barrier", "rendezvous", 1, CodeBarrierTimeout, "timed out")
	wrapped := WrapError("manager", "start", inner)

	if wrapped.Rank != 1 || wrapped.Code != CodeBarrierTimeout {
		t.Errorf("expected rank/code to carry through, got rank=%d code=%s", wrapped.Rank, wrapped.Code)
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("dumpctl", "dump", CodeDumpFailed, "disk full")
	var wrapped error = err

	if !IsCode(wrapped, CodeDumpFailed) {
		t.Error("expected IsCode to match")
	}
	if IsCode(wrapped, CodeIOError) {
		t.Error("expected IsCode to not match a different code")
	}
}

func TestErrorsIsMatchesOnCode(t *testing.T) {
	a := NewError("x", "op1", CodeIOError, "one message")
	b := NewError("y", "op2", CodeIOError, "a different message")

	if !errors.Is(a, b) {
		t.Error("expected errors.Is to match same-Code errors regardless of message")
	}
}
