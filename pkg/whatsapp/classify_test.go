package whatsapp

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		err      error
		expected Class
	}{
		{err: errors.New("Protocol error (Runtime.callFunctionOn): Target closed."), expected: ClassSessionFatal},
		{err: errors.New("websocket not connected"), expected: ClassSessionFatal},
		{err: errors.New("Evaluation failed: Session closed"), expected: ClassSessionFatal},
		{err: errors.New("unauthorized: auth token expired"), expected: ClassSessionFatal},
		{err: ErrNotRegistered, expected: ClassInvalidRecipient},
		{err: errors.New("Invalid number format"), expected: ClassInvalidRecipient},
		{err: errors.New("429 rate-overlimit"), expected: ClassRejected},
		{err: errors.New("Too many requests"), expected: ClassRejected},
		{err: errors.New("account banned"), expected: ClassRejected},
		{err: errors.New("i/o timeout"), expected: ClassTransient},
		{err: fmt.Errorf("wrapped: %w", errAttemptTimeout), expected: ClassTransient},
		{err: nil, expected: ClassTransient},
	}

	for _, tc := range testCases {
		name := "nil"
		if tc.err != nil {
			name = tc.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.expected {
				t.Fatalf("expected %s, got %s", tc.expected, got)
			}
		})
	}
}

func TestSendErrorMatching(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("send: %w", newSendError(KindDeliveryFailed, cause))

	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatal("expected kind match through wrapping")
	}
	if errors.Is(err, ErrRejected) {
		t.Fatal("different kinds must not match")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause must be reachable")
	}

	var sendErr *SendError
	if !errors.As(err, &sendErr) || sendErr.Kind != KindDeliveryFailed {
		t.Fatalf("errors.As failed: %v", err)
	}
	if sendErr.Error() != "message delivery failed: boom" {
		t.Fatalf("unexpected message: %s", sendErr.Error())
	}
}
