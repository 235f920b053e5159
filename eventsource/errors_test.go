package eventsource

import (
	"testing"
)

func TestRecoverableError(t *testing.T) {
	var err error = NewRecoverableError("the broker is %s", "unreachable")

	// Verify that we get the expected error message.
	if err.Error() != "the broker is unreachable" {
		t.Errorf("unexpected error message: %s", err.Error())
	}

	// The type must be distinct from an unrecoverable error.
	if _, ok := err.(RecoverableError); !ok {
		t.Errorf("the error doesn't appear to be a RecoverableError")
	}
	if _, ok := err.(UnrecoverableError); ok {
		t.Errorf("the error appears to be an UnrecoverableError")
	}
}

func TestUnrecoverableError(t *testing.T) {
	var err error = NewUnrecoverableError("no decoder for event %s", "bogus.event")

	// Verify that we get the expected error message.
	if err.Error() != "no decoder for event bogus.event" {
		t.Errorf("unexpected error message: %s", err.Error())
	}

	// The type must be distinct from a recoverable error.
	if _, ok := err.(UnrecoverableError); !ok {
		t.Errorf("the error doesn't appear to be an UnrecoverableError")
	}
	if _, ok := err.(RecoverableError); ok {
		t.Errorf("the error appears to be a RecoverableError")
	}
}
