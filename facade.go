package rfp

import (
	"fmt"

	rfpcommand "github.com/goliatone/go-rfp/command"
	rfpquery "github.com/goliatone/go-rfp/query"
)

type CommandQueryService interface {
	rfpcommand.MutatingService
	rfpquery.ActionReader
	rfpquery.RequestForProposalReader
}

type Commands struct {
	CreateRequest *rfpcommand.CreateRequestCommand
	CreateReply   *rfpcommand.CreateReplyCommand
	CreateAccept  *rfpcommand.CreateAcceptCommand
}

type Queries struct {
	ListActions           *rfpquery.ListActionsQuery
	GetRequestForProposal *rfpquery.GetRequestForProposalQuery
}

// Facade bundles the go-command handlers for one engine.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("rfp: command/query service is required")
	}
	return &Facade{
		service: service,
		commands: Commands{
			CreateRequest: rfpcommand.NewCreateRequestCommand(service),
			CreateReply:   rfpcommand.NewCreateReplyCommand(service),
			CreateAccept:  rfpcommand.NewCreateAcceptCommand(service),
		},
		queries: Queries{
			ListActions:           rfpquery.NewListActionsQuery(service),
			GetRequestForProposal: rfpquery.NewGetRequestForProposalQuery(service),
		},
	}, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

var _ CommandQueryService = (*Service)(nil)
