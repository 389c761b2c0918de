package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-rfp/core"
)

// MutatingService is the write side of the negotiation engine.
type MutatingService interface {
	CreateRequest(ctx context.Context, in core.CreateRequestInput) (core.CreateRequestResult, error)
	CreateReply(ctx context.Context, in core.CreateReplyInput) (core.SendResult, error)
	CreateAccept(ctx context.Context, in core.CreateAcceptInput) (core.AcceptResult, error)
}

type CreateRequestCommand struct {
	service MutatingService
}

func NewCreateRequestCommand(service MutatingService) *CreateRequestCommand {
	return &CreateRequestCommand{service: service}
}

func (c *CreateRequestCommand) Execute(ctx context.Context, msg CreateRequestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: create request service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.CreateRequest(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateReplyCommand struct {
	service MutatingService
}

func NewCreateReplyCommand(service MutatingService) *CreateReplyCommand {
	return &CreateReplyCommand{service: service}
}

func (c *CreateReplyCommand) Execute(ctx context.Context, msg CreateReplyMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: create reply service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.CreateReply(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateAcceptCommand struct {
	service MutatingService
}

func NewCreateAcceptCommand(service MutatingService) *CreateAcceptCommand {
	return &CreateAcceptCommand{service: service}
}

func (c *CreateAcceptCommand) Execute(ctx context.Context, msg CreateAcceptMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: create accept service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.CreateAccept(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
