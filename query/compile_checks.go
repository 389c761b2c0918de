package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-rfp/core"
)

var (
	_ gocmd.Querier[ListActionsMessage, []core.Action]                     = (*ListActionsQuery)(nil)
	_ gocmd.Querier[GetRequestForProposalMessage, core.RequestForProposal] = (*GetRequestForProposalQuery)(nil)
)
