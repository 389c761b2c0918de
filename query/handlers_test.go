package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-rfp/core"
)

type stubReader struct {
	listFn func(ctx context.Context, rfpID string, types ...core.ActionType) ([]core.Action, error)
	getFn  func(ctx context.Context, rfpID string) (core.RequestForProposal, error)
}

func (s stubReader) ListActions(ctx context.Context, rfpID string, types ...core.ActionType) ([]core.Action, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, rfpID, types...)
}

func (s stubReader) GetRequestForProposal(ctx context.Context, rfpID string) (core.RequestForProposal, error) {
	if s.getFn == nil {
		return core.RequestForProposal{}, nil
	}
	return s.getFn(ctx, rfpID)
}

func TestListActionsQuery_QueryDelegates(t *testing.T) {
	called := false
	reader := stubReader{
		listFn: func(_ context.Context, rfpID string, types ...core.ActionType) ([]core.Action, error) {
			called = true
			if rfpID != "rfp-1" {
				t.Fatalf("unexpected rfp id %q", rfpID)
			}
			if len(types) != 1 || types[0] != core.ActionTypeResponse {
				t.Fatalf("unexpected types %v", types)
			}
			return []core.Action{{StaticID: "a1", Type: core.ActionTypeResponse}}, nil
		},
	}

	result, err := NewListActionsQuery(reader).Query(context.Background(), ListActionsMessage{
		RFPID: "rfp-1",
		Types: []core.ActionType{core.ActionTypeResponse},
	})
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if !called {
		t.Fatalf("expected action reader invocation")
	}
	if len(result) != 1 || result[0].StaticID != "a1" {
		t.Fatalf("unexpected actions: %#v", result)
	}
}

func TestListActionsQuery_RejectsUnknownType(t *testing.T) {
	reader := stubReader{
		listFn: func(context.Context, string, ...core.ActionType) ([]core.Action, error) {
			t.Fatalf("reader must not be called")
			return nil, nil
		},
	}
	_, err := NewListActionsQuery(reader).Query(context.Background(), ListActionsMessage{
		RFPID: "rfp-1",
		Types: []core.ActionType{"Counter"},
	})
	if core.TextCode(err) != core.ErrorBadInput {
		t.Fatalf("expected bad input, got %v", err)
	}
}

func TestGetRequestForProposalQuery_QueryDelegates(t *testing.T) {
	reader := stubReader{
		getFn: func(_ context.Context, rfpID string) (core.RequestForProposal, error) {
			return core.RequestForProposal{StaticID: rfpID}, nil
		},
	}
	rfp, err := NewGetRequestForProposalQuery(reader).Query(context.Background(), GetRequestForProposalMessage{RFPID: "rfp-9"})
	if err != nil {
		t.Fatalf("get rfp: %v", err)
	}
	if rfp.StaticID != "rfp-9" {
		t.Fatalf("unexpected rfp: %#v", rfp)
	}
}

func TestGetRequestForProposalQuery_PropagatesNotFound(t *testing.T) {
	reader := stubReader{
		getFn: func(_ context.Context, rfpID string) (core.RequestForProposal, error) {
			return core.RequestForProposal{}, core.NotFoundError(core.ErrRFPNotFound, "core: request for proposal not found", nil)
		},
	}
	_, err := NewGetRequestForProposalQuery(reader).Query(context.Background(), GetRequestForProposalMessage{RFPID: "missing"})
	if !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
