package hold

import (
	"errors"
	"fmt"
	"testing"
)

func TestStateTerminal(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateUnpaid, false},
		{StateAccepted, false},
		{StatePaid, true},
		{StateCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.state.Terminal(); got != tt.want {
			t.Fatalf("Terminal(%s): want %v, got %v", tt.state, tt.want, got)
		}
	}
}

func TestIsNotFound(t *testing.T) {
	notFound := &RPCError{Code: CodeInvoiceNotFound, Message: "no invoice"}
	if !IsNotFound(notFound) {
		t.Fatal("IsNotFound missed the companion's unknown-hash code")
	}
	if !IsNotFound(fmt.Errorf("hold.cancel: %w", notFound)) {
		t.Fatal("IsNotFound missed a wrapped error")
	}
	if IsNotFound(&RPCError{Code: 1, Message: "other"}) {
		t.Fatal("IsNotFound matched a foreign code")
	}
	if IsNotFound(errors.New("transport down")) {
		t.Fatal("IsNotFound matched a non-RPC error")
	}
}
