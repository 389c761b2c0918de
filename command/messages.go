package command

import (
	"strings"

	"github.com/goliatone/go-rfp/core"
)

const (
	TypeCreateRequest = "rfp.command.request.create"
	TypeCreateReply   = "rfp.command.reply.create"
	TypeCreateAccept  = "rfp.command.accept.create"
)

type CreateRequestMessage struct {
	Input core.CreateRequestInput
}

func (CreateRequestMessage) Type() string { return TypeCreateRequest }

func (m CreateRequestMessage) Validate() error {
	if len(m.Input.Context) == 0 {
		return commandValidationError("context", "rfp context is required")
	}
	if len(trimmed(m.Input.ParticipantIDs)) == 0 {
		return commandValidationError("participant_ids", "at least one participant is required")
	}
	return commandWrapValidation(m.Input.Validate(), "command: invalid create request input")
}

type CreateReplyMessage struct {
	Input core.CreateReplyInput
}

func (CreateReplyMessage) Type() string { return TypeCreateReply }

func (m CreateReplyMessage) Validate() error {
	if strings.TrimSpace(m.Input.RFPID) == "" {
		return commandValidationError("rfp_id", "rfp id is required")
	}
	if !m.Input.Type.IsReply() {
		return commandValidationError("type", "reply type must be Response or Reject")
	}
	return commandWrapValidation(m.Input.Validate(), "command: invalid create reply input")
}

type CreateAcceptMessage struct {
	Input core.CreateAcceptInput
}

func (CreateAcceptMessage) Type() string { return TypeCreateAccept }

func (m CreateAcceptMessage) Validate() error {
	if strings.TrimSpace(m.Input.RFPID) == "" {
		return commandValidationError("rfp_id", "rfp id is required")
	}
	if strings.TrimSpace(m.Input.ParticipantID) == "" {
		return commandValidationError("participant_id", "participant id is required")
	}
	return commandWrapValidation(m.Input.Validate(), "command: invalid create accept input")
}

func trimmed(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
