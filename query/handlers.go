package query

import (
	"context"

	"github.com/goliatone/go-rfp/core"
)

type ActionReader interface {
	ListActions(ctx context.Context, rfpID string, types ...core.ActionType) ([]core.Action, error)
}

type RequestForProposalReader interface {
	GetRequestForProposal(ctx context.Context, rfpID string) (core.RequestForProposal, error)
}

type ListActionsQuery struct {
	reader ActionReader
}

func NewListActionsQuery(reader ActionReader) *ListActionsQuery {
	return &ListActionsQuery{reader: reader}
}

func (q *ListActionsQuery) Query(ctx context.Context, msg ListActionsMessage) ([]core.Action, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: action reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListActions(ctx, msg.RFPID, msg.Types...)
}

type GetRequestForProposalQuery struct {
	reader RequestForProposalReader
}

func NewGetRequestForProposalQuery(reader RequestForProposalReader) *GetRequestForProposalQuery {
	return &GetRequestForProposalQuery{reader: reader}
}

func (q *GetRequestForProposalQuery) Query(
	ctx context.Context,
	msg GetRequestForProposalMessage,
) (core.RequestForProposal, error) {
	if q == nil || q.reader == nil {
		return core.RequestForProposal{}, queryDependencyError("query: request for proposal reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.RequestForProposal{}, err
	}
	return q.reader.GetRequestForProposal(ctx, msg.RFPID)
}
