package coreerr

import (
	"errors"
	"testing"
)

func TestCoreErrorUnwrapMatchesSentinel(t *testing.T) {
	err := New(KindInvalidNonce, "nonce mismatch")
	if !errors.Is(err, ErrInvalidNonce) {
		t.Fatal("expected errors.Is to match ErrInvalidNonce sentinel")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindInternal, "tool failed", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestOfDefaultsToInternal(t *testing.T) {
	if Of(errors.New("plain")) != KindInternal {
		t.Fatal("expected plain errors to classify as internal")
	}
	if Of(NotFound("tool")) != KindNotFound {
		t.Fatal("expected NotFound() to classify as KindNotFound")
	}
}

func TestIs(t *testing.T) {
	err := PermissionDenied("denied by security policy")
	if !Is(err, KindPermissionDenied) {
		t.Fatal("expected Is to match KindPermissionDenied")
	}
	if Is(err, KindTimeout) {
		t.Fatal("expected Is to reject mismatched kind")
	}
}
