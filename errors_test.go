package dasipc

import (
	"errors"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewError("SendRequest", ErrCodeTimeout, "no response within deadline")

	if err.Op != "SendRequest" {
		t.Errorf("Expected Op=SendRequest, got %s", err.Op)
	}
	if err.Code != ErrCodeTimeout {
		t.Errorf("Expected Code=ErrCodeTimeout, got %s", err.Code)
	}

	expected := "dasipc: SendRequest: no response within deadline (code=-1079999998)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestErrorValue(t *testing.T) {
	if got := ErrCodeInvalidMessageHeader.Value(); got != -1080000000+1 {
		t.Errorf("Value() = %d, want %d", got, -1080000000+1)
	}
}

func TestWrapError(t *testing.T) {
	inner := errors.New("connection reset")
	err := WrapError("Receive", ErrCodeConnectionClosed, inner)

	if err.Code != ErrCodeConnectionClosed {
		t.Errorf("Expected Code=ErrCodeConnectionClosed, got %s", err.Code)
	}
	if !errors.Is(err, inner) {
		t.Error("Expected wrapped error to satisfy errors.Is for the inner cause")
	}
	if WrapError("Receive", ErrCodeConnectionClosed, nil) != nil {
		t.Error("WrapError(nil) should return nil")
	}
}

func TestWrapErrorPreservesInnerCode(t *testing.T) {
	inner := NewError("AllocateSessionId", ErrCodeOutOfMemory, "session table exhausted")
	err := WrapError("Register", ErrCodeInvalidState, inner)

	if err.Code != ErrCodeOutOfMemory {
		t.Errorf("WrapError should preserve the inner *Error's code, got %s", err.Code)
	}
}

func TestErrorIs(t *testing.T) {
	a := &Error{Code: ErrCodeStaleHandle}
	b := &Error{Code: ErrCodeStaleHandle}
	c := &Error{Code: ErrCodeInvalidHandle}

	if !errors.Is(a, b) {
		t.Error("errors of the same code should match under errors.Is")
	}
	if errors.Is(a, c) {
		t.Error("errors of different codes should not match under errors.Is")
	}
}

func TestIsCode(t *testing.T) {
	err := NewError("LookupObject", ErrCodeObjectNotFound, "no such object")

	if !IsCode(err, ErrCodeObjectNotFound) {
		t.Error("IsCode should return true for matching code")
	}
	if IsCode(err, ErrCodeTimeout) {
		t.Error("IsCode should return false for non-matching code")
	}
	if IsCode(nil, ErrCodeTimeout) {
		t.Error("IsCode should return false for nil error")
	}
}

func TestIpcErrorCodeString(t *testing.T) {
	cases := map[IpcErrorCode]string{
		ErrCodeInvalidMessageHeader: "InvalidMessageHeader",
		ErrCodeReentrancy:           "Reentrancy",
		ErrCodeObjectNotFound:       "ObjectNotFound",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("%v.String() = %q, want %q", code, got, want)
		}
	}
}
