package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("boom"), KindInternal},
		{"classified", New(KindAuth, "op", "expired"), KindAuth},
		{"wrapped classified", fmt.Errorf("outer: %w", Wrap(KindDatabase, "insert", errors.New("disk"))), KindDatabase},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTransient},
		{"canceled", context.Canceled, KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(KindTransient, "op", nil); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestMessage(t *testing.T) {
	inner := NotFound("search", "Could not find %q", "xyzzy")
	outer := Wrap(KindNotFound, "handle", inner)

	if got, want := Message(outer), `Could not find "xyzzy"`; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}

	cause := errors.New("connection reset")
	if got := Message(Wrap(KindTransient, "fetch", cause)); got == cause.Error() {
		t.Errorf("Message() leaked the cause for a transient error: %q", got)
	}

	if !errors.Is(outer, inner) {
		t.Error("errors.Is(outer, inner) = false, want true")
	}
}
