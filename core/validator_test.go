package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingActionStore struct {
	*MemoryStore
}

func (failingActionStore) FindLatestAction(context.Context, ActionQuery) (Action, error) {
	return Action{}, errors.New("connection refused")
}

func seed(t *testing.T, store *MemoryStore, actions ...Action) {
	t.Helper()
	for _, action := range actions {
		if _, err := store.CreateAction(context.Background(), action); err != nil {
			t.Fatalf("seed %s: %v", action.StaticID, err)
		}
	}
}

func TestValidator_ExistsRFPReportsTypedNotFound(t *testing.T) {
	store := NewMemoryStore()
	validator := NewTransitionValidator(store, store, "requester")
	_, err := validator.ExistsRFP(context.Background(), "r1")
	if !IsNotFound(err) || !IsPermanent(err) {
		t.Fatalf("expected permanent not found, got %v", err)
	}
	if _, err := store.CreateRFP(context.Background(), testRFP("r1")); err != nil {
		t.Fatalf("create rfp: %v", err)
	}
	if _, err := validator.ExistsRFP(context.Background(), "r1"); err != nil {
		t.Fatalf("expected rfp to exist: %v", err)
	}
}

func TestValidator_OutboundReplyBlockedAfterOwnReject(t *testing.T) {
	store := NewMemoryStore()
	validator := NewTransitionValidator(store, store, "bank2")
	ctx := context.Background()
	if err := validator.OutboundReplyAllowed(ctx, "r1", ActionTypeResponse); err != nil {
		t.Fatalf("expected reply allowed: %v", err)
	}
	if err := validator.OutboundReplyAllowed(ctx, "r1", ActionTypeAccept); err == nil {
		t.Fatalf("expected non-reply type to be rejected")
	}
	seed(t, store, testAction("rej", "r1", ActionTypeReject, "bank2", "requester", ActionStatusCreated))
	if err := validator.OutboundReplyAllowed(ctx, "r1", ActionTypeResponse); err != nil {
		t.Fatalf("expected created reject not to block: %v", err)
	}
	if _, err := store.UpdateActionStatus(ctx, "rej", ActionStatusProcessed, nil); err != nil {
		t.Fatalf("process reject: %v", err)
	}
	err := validator.OutboundReplyAllowed(ctx, "r1", ActionTypeResponse)
	if err == nil || TextCode(err) != ErrorTransitionConflict {
		t.Fatalf("expected transition conflict after processed reject, got %v", err)
	}
}

func TestValidator_InboundReplyBlockedAfterSenderReject(t *testing.T) {
	store := NewMemoryStore()
	validator := NewTransitionValidator(store, store, "requester")
	ctx := context.Background()
	seed(t, store, testAction("rej", "r1", ActionTypeReject, "bank2", "requester", ActionStatusProcessed))
	if err := validator.InboundReplyAllowed(ctx, "r1", ActionTypeResponse, "bank2"); err == nil {
		t.Fatalf("expected reply from rejecting participant to be blocked")
	}
	if err := validator.InboundReplyAllowed(ctx, "r1", ActionTypeResponse, "bank1"); err != nil {
		t.Fatalf("expected other participant allowed: %v", err)
	}
}

func TestValidator_OutboundAcceptRules(t *testing.T) {
	ctx := context.Background()
	base := func() (*MemoryStore, *TransitionValidator) {
		store := NewMemoryStore()
		seed(t, store,
			testAction("resp1", "r1", ActionTypeResponse, "bank1", "requester", ActionStatusProcessed),
			testAction("resp3", "r1", ActionTypeResponse, "bank3", "requester", ActionStatusProcessed),
		)
		return store, NewTransitionValidator(store, store, "requester")
	}

	_, validator := base()
	if err := validator.OutboundAcceptAllowed(ctx, "r1", "bank1"); err != nil {
		t.Fatalf("expected accept allowed: %v", err)
	}
	if err := validator.OutboundAcceptAllowed(ctx, "r1", "bank2"); err == nil {
		t.Fatalf("expected accept without response to be blocked")
	}

	store, validator := base()
	seed(t, store, testAction("rej1", "r1", ActionTypeReject, "bank1", "requester", ActionStatusProcessed))
	if err := validator.OutboundAcceptAllowed(ctx, "r1", "bank1"); err == nil {
		t.Fatalf("expected accept after reject to be blocked")
	}

	store, validator = base()
	seed(t, store, testAction("dec1", "r1", ActionTypeDecline, "requester", "bank1", ActionStatusProcessed))
	if err := validator.OutboundAcceptAllowed(ctx, "r1", "bank1"); err == nil {
		t.Fatalf("expected accept after decline to be blocked")
	}

	store, validator = base()
	seed(t, store, testAction("acc3", "r1", ActionTypeAccept, "requester", "bank3", ActionStatusProcessed))
	if err := validator.OutboundAcceptAllowed(ctx, "r1", "bank1"); err == nil {
		t.Fatalf("expected second winner to be blocked")
	}
}

func TestValidator_InboundAcceptOrDeclineRules(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	validator := NewTransitionValidator(store, store, "bank1")
	if err := validator.InboundAcceptOrDeclineAllowed(ctx, "r1", "requester"); err == nil {
		t.Fatalf("expected accept without own response to be blocked")
	}
	seed(t, store, testAction("resp1", "r1", ActionTypeResponse, "bank1", "requester", ActionStatusProcessed))
	if err := validator.InboundAcceptOrDeclineAllowed(ctx, "r1", "requester"); err != nil {
		t.Fatalf("expected accept allowed: %v", err)
	}
	seed(t, store, testAction("acc1", "r1", ActionTypeAccept, "requester", "bank1", ActionStatusProcessed))
	if err := validator.InboundAcceptOrDeclineAllowed(ctx, "r1", "requester"); err == nil {
		t.Fatalf("expected second resolution to be blocked")
	}
}

func TestValidator_OutboundDeclineRules(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	validator := NewTransitionValidator(store, store, "requester")
	if err := validator.OutboundDeclineAllowed(ctx, "r1", "bank1"); err != nil {
		t.Fatalf("expected decline allowed: %v", err)
	}
	seed(t, store,
		testAction("rej2", "r1", ActionTypeReject, "bank2", "requester", ActionStatusProcessed),
		testAction("acc1", "r1", ActionTypeAccept, "requester", "bank1", ActionStatusProcessed),
	)
	if err := validator.OutboundDeclineAllowed(ctx, "r1", "bank2"); err == nil {
		t.Fatalf("expected decline to rejecting participant to be blocked")
	}
	if err := validator.OutboundDeclineAllowed(ctx, "r1", "bank1"); err == nil {
		t.Fatalf("expected decline to accepted participant to be blocked")
	}
	if err := validator.OutboundDeclineAllowed(ctx, "r1", "bank3"); err != nil {
		t.Fatalf("expected decline to bank3 allowed: %v", err)
	}
}

func TestValidator_DuplicateActionCheck(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	validator := NewTransitionValidator(store, store, "requester")
	if err := validator.DuplicateActionCheck(ctx, "a1"); err != nil {
		t.Fatalf("expected unknown action to pass: %v", err)
	}
	seed(t, store, testAction("a1", "r1", ActionTypeResponse, "bank1", "requester", ActionStatusCreated))
	if err := validator.DuplicateActionCheck(ctx, "a1"); err != nil {
		t.Fatalf("expected created action to be resumable: %v", err)
	}
	sentAt := time.Now()
	if _, err := store.UpdateActionStatus(ctx, "a1", ActionStatusProcessed, &sentAt); err != nil {
		t.Fatalf("process: %v", err)
	}
	err := validator.DuplicateActionCheck(ctx, "a1")
	if err == nil || !IsPermanent(err) || TextCode(err) != ErrorDuplicateAction {
		t.Fatalf("expected permanent duplicate error, got %v", err)
	}
}

func TestValidator_StoreFailuresAreTransient(t *testing.T) {
	store := NewMemoryStore()
	validator := NewTransitionValidator(failingActionStore{store}, store, "requester")
	err := validator.OutboundDeclineAllowed(context.Background(), "r1", "bank1")
	if err == nil {
		t.Fatalf("expected store failure")
	}
	if ClassifyError(err) != ErrorKindTransient || TextCode(err) != ErrorStoreUnavailable {
		t.Fatalf("expected transient store error, got %v (%s)", err, TextCode(err))
	}
}
