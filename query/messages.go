package query

import (
	"strings"

	"github.com/goliatone/go-rfp/core"
)

const (
	TypeListActions           = "rfp.query.actions.list"
	TypeGetRequestForProposal = "rfp.query.request_for_proposal.get"
)

// ListActionsMessage lists the actions of one RFP; empty Types means all types.
type ListActionsMessage struct {
	RFPID string
	Types []core.ActionType
}

func (ListActionsMessage) Type() string { return TypeListActions }

func (m ListActionsMessage) Validate() error {
	if strings.TrimSpace(m.RFPID) == "" {
		return queryValidationError("rfp_id", "rfp id is required")
	}
	for _, actionType := range m.Types {
		if !actionType.Valid() {
			return queryValidationError("types", "unknown action type "+string(actionType))
		}
	}
	return nil
}

type GetRequestForProposalMessage struct {
	RFPID string
}

func (GetRequestForProposalMessage) Type() string { return TypeGetRequestForProposal }

func (m GetRequestForProposalMessage) Validate() error {
	if strings.TrimSpace(m.RFPID) == "" {
		return queryValidationError("rfp_id", "rfp id is required")
	}
	return nil
}
