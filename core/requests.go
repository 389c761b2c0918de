package core

import (
	"encoding/json"
	"strings"
)

// CreateRequestInput starts a negotiation. StaticID is optional; one is generated when empty.
type CreateRequestInput struct {
	StaticID       string
	Context        Payload
	ProductRequest Payload
	DocumentIDs    []string
	ParticipantIDs []string
}

func (in CreateRequestInput) Validate() error {
	if len(in.Context) == 0 {
		return BadInputError("core: rfp context is required", nil)
	}
	if !json.Valid(in.Context) {
		return BadInputError("core: rfp context must be valid JSON", nil)
	}
	if _, err := ParseRoutingContext(in.Context); err != nil {
		return err
	}
	if len(in.ProductRequest) > 0 && !json.Valid(in.ProductRequest) {
		return BadInputError("core: product request must be valid JSON", nil)
	}
	if len(nonEmpty(in.ParticipantIDs)) == 0 {
		return BadInputError("core: at least one participant is required", nil)
	}
	return nil
}

func (in CreateRequestInput) RFP() RequestForProposal {
	return RequestForProposal{
		StaticID:       strings.TrimSpace(in.StaticID),
		Context:        clonePayload(in.Context),
		ProductRequest: clonePayload(in.ProductRequest),
		DocumentIDs:    nonEmpty(in.DocumentIDs),
	}
}

type CreateRequestResult struct {
	RFP     RequestForProposal
	Results []SendResult
}

type CreateReplyInput struct {
	RFPID string
	Type  ActionType
	Data  Payload
}

func (in CreateReplyInput) Validate() error {
	if strings.TrimSpace(in.RFPID) == "" {
		return BadInputError("core: rfp id is required", nil)
	}
	if !in.Type.IsReply() {
		return BadInputError("core: reply type must be Response or Reject", map[string]any{
			"action_type": string(in.Type),
		})
	}
	if len(in.Data) > 0 && !json.Valid(in.Data) {
		return BadInputError("core: reply data must be valid JSON", nil)
	}
	return nil
}

type CreateAcceptInput struct {
	RFPID         string
	ParticipantID string
	Data          Payload
}

func (in CreateAcceptInput) Validate() error {
	if strings.TrimSpace(in.RFPID) == "" {
		return BadInputError("core: rfp id is required", nil)
	}
	if strings.TrimSpace(in.ParticipantID) == "" {
		return BadInputError("core: participant id is required", nil)
	}
	if len(in.Data) > 0 && !json.Valid(in.Data) {
		return BadInputError("core: accept data must be valid JSON", nil)
	}
	return nil
}

// AcceptResult carries the Accept delivery plus the Declines sent to every other participant.
type AcceptResult struct {
	Accept   SendResult
	Declines []SendResult
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
