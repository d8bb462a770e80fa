package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("join: %w", ErrAuthMismatch)
	if !errors.Is(wrapped, ErrAuthMismatch) {
		t.Fatalf("expected wrapped sentinel to match")
	}
	if KindOf(wrapped) != KindAuthMismatch {
		t.Fatalf("expected auth_mismatch, got %s", KindOf(wrapped))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("expected unknown errors to be internal")
	}
}

func TestTransientKeepsDomainErrors(t *testing.T) {
	if err := Transient("load quiz", ErrQuizNotFound); !errors.Is(err, ErrQuizNotFound) || KindOf(err) != KindNotFound {
		t.Fatalf("expected not_found to pass through, got %v", err)
	}
	err := Transient("upsert score", errors.New("connection reset"))
	if KindOf(err) != KindTransient {
		t.Fatalf("expected transient, got %s", KindOf(err))
	}
	if Transient("noop", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestErrorEventHidesStoreDetails(t *testing.T) {
	ev := ErrorEvent(Transient("upsert score", errors.New("pq: password authentication failed")))
	payload := ev.Payload.(ErrorPayload)
	if payload.Kind != KindTransient || payload.Message != "temporary failure, please retry" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	ev = ErrorEvent(ErrDuplicateRoom)
	if ev.Payload.(ErrorPayload).Message != "room already exists" {
		t.Fatalf("unexpected message %+v", ev.Payload)
	}
}
