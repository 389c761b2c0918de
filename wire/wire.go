// Package wire encodes negotiation actions for the bus and shapes the internal
// notifications forwarded to downstream consumers.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-rfp/core"
)

// Format fixes the message type prefix and the envelope version spoken on the bus.
type Format struct {
	Prefix  string
	Version int
}

func DefaultFormat() Format {
	return Format{Prefix: core.DefaultMessagePrefix, Version: core.DefaultMessageVersion}
}

func FormatFromConfig(cfg core.Config) Format {
	format := Format{
		Prefix:  strings.TrimSpace(cfg.Message.Prefix),
		Version: cfg.Message.Version,
	}
	return format.normalized()
}

func (f Format) normalized() Format {
	defaults := DefaultFormat()
	if strings.TrimSpace(f.Prefix) == "" {
		f.Prefix = defaults.Prefix
	}
	f.Prefix = strings.TrimSuffix(strings.TrimSpace(f.Prefix), ".")
	if f.Version <= 0 {
		f.Version = defaults.Version
	}
	return f
}

func (f Format) MessageType(actionType core.ActionType) string {
	f = f.normalized()
	return f.Prefix + "." + string(actionType)
}

// Envelope is the versioned bus message.
type Envelope struct {
	Version     int             `json:"version"`
	Context     core.Payload    `json:"context"`
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data"`
}

type Header struct {
	ActionID          string    `json:"actionId"`
	RFPID             string    `json:"rfpId"`
	RecipientStaticID string    `json:"recipientStaticID"`
	SenderStaticID    string    `json:"senderStaticID"`
	SentAt            time.Time `json:"sentAt"`
}

type RequestData struct {
	RFP            Header       `json:"rfp"`
	ProductRequest core.Payload `json:"productRequest,omitempty"`
	DocumentIDs    []string     `json:"documentIds,omitempty"`
}

type ReplyData struct {
	RFP      Header       `json:"rfp"`
	Response core.Payload `json:"response,omitempty"`
}

// Message is a decoded envelope with its typed payload.
type Message struct {
	Version        int
	Context        core.Payload
	MessageType    string
	Type           core.ActionType
	Header         Header
	ProductRequest core.Payload
	DocumentIDs    []string
	Response       core.Payload
}

// NewEnvelope builds the bus message for an action. The action must carry SentAt.
func NewEnvelope(format Format, action core.Action, rfp core.RequestForProposal) (Envelope, error) {
	format = format.normalized()
	if err := action.Validate(); err != nil {
		return Envelope{}, err
	}
	if action.RFPID != rfp.StaticID {
		return Envelope{}, core.BadInputError("wire: action does not belong to the request for proposal", map[string]any{
			"action_id": action.StaticID,
			"rfp_id":    rfp.StaticID,
		})
	}
	if action.SentAt == nil {
		return Envelope{}, core.BadInputError("wire: action sentAt is required", map[string]any{"action_id": action.StaticID})
	}
	header := Header{
		ActionID:          action.StaticID,
		RFPID:             action.RFPID,
		RecipientStaticID: action.RecipientStaticID,
		SenderStaticID:    action.SenderStaticID,
		SentAt:            action.SentAt.UTC(),
	}

	var data any
	if action.Type == core.ActionTypeRequest {
		data = RequestData{
			RFP:            header,
			ProductRequest: rfp.ProductRequest,
			DocumentIDs:    rfp.DocumentIDs,
		}
	} else {
		data = ReplyData{RFP: header, Response: action.Data}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, core.BadInputError(fmt.Sprintf("wire: encode data: %v", err), map[string]any{"action_id": action.StaticID})
	}
	return Envelope{
		Version:     format.Version,
		Context:     rfp.Context,
		MessageType: format.MessageType(action.Type),
		Data:        raw,
	}, nil
}

func Encode(envelope Envelope) ([]byte, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, core.BadInputError(fmt.Sprintf("wire: encode envelope: %v", err), nil)
	}
	return body, nil
}

// ParseMessageType splits "<prefix>.<ActionType>"; foreign prefixes are addressing errors.
func ParseMessageType(format Format, messageType string) (core.ActionType, error) {
	format = format.normalized()
	messageType = strings.TrimSpace(messageType)
	suffix, ok := strings.CutPrefix(messageType, format.Prefix+".")
	if !ok || suffix == "" {
		return "", core.AddressingError(fmt.Sprintf("wire: unsupported message type %q", messageType), map[string]any{
			"message_type": messageType,
		})
	}
	actionType := core.ActionType(suffix)
	if !actionType.Valid() {
		return "", core.AddressingError(fmt.Sprintf("wire: unsupported message type %q", messageType), map[string]any{
			"message_type": messageType,
		})
	}
	return actionType, nil
}

// Decode parses and validates a bus body. Every failure is permanent.
func Decode(format Format, body []byte) (Message, error) {
	format = format.normalized()
	var envelope Envelope
	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(&envelope); err != nil {
		return Message{}, core.BadInputError(fmt.Sprintf("wire: decode envelope: %v", err), nil)
	}
	if envelope.Version <= 0 || envelope.Version > format.Version {
		return Message{}, core.BadInputError(fmt.Sprintf("wire: unsupported envelope version %d", envelope.Version), map[string]any{
			"version": envelope.Version,
		})
	}
	actionType, err := ParseMessageType(format, envelope.MessageType)
	if err != nil {
		return Message{}, err
	}
	if len(envelope.Context) == 0 || bytes.Equal(bytes.TrimSpace(envelope.Context), []byte("null")) {
		return Message{}, core.BadInputError("wire: envelope context is required", map[string]any{
			"message_type": envelope.MessageType,
		})
	}

	msg := Message{
		Version:     envelope.Version,
		Context:     envelope.Context,
		MessageType: envelope.MessageType,
		Type:        actionType,
	}
	if actionType == core.ActionTypeRequest {
		var data RequestData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return Message{}, core.BadInputError(fmt.Sprintf("wire: decode request data: %v", err), nil)
		}
		msg.Header = data.RFP
		msg.ProductRequest = data.ProductRequest
		msg.DocumentIDs = data.DocumentIDs
	} else {
		var data ReplyData
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return Message{}, core.BadInputError(fmt.Sprintf("wire: decode reply data: %v", err), nil)
		}
		msg.Header = data.RFP
		msg.Response = data.Response
	}
	if err := msg.Header.validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (h Header) validate() error {
	meta := map[string]any{"action_id": h.ActionID, "rfp_id": h.RFPID}
	if strings.TrimSpace(h.ActionID) == "" || strings.TrimSpace(h.RFPID) == "" {
		return core.BadInputError("wire: rfp.actionId and rfp.rfpId are required", meta)
	}
	if strings.TrimSpace(h.SenderStaticID) == "" || strings.TrimSpace(h.RecipientStaticID) == "" {
		return core.BadInputError("wire: rfp.senderStaticID and rfp.recipientStaticID are required", meta)
	}
	return nil
}

// Action maps the message onto the record persisted by the receiving side.
func (m Message) Action(status core.ActionStatus) core.Action {
	action := core.Action{
		StaticID:          m.Header.ActionID,
		RFPID:             m.Header.RFPID,
		Type:              m.Type,
		SenderStaticID:    m.Header.SenderStaticID,
		RecipientStaticID: m.Header.RecipientStaticID,
		Status:            status,
		Data:              m.Response,
	}
	if !m.Header.SentAt.IsZero() {
		sentAt := m.Header.SentAt.UTC()
		action.SentAt = &sentAt
	}
	return action
}

// RFP rebuilds the request for proposal carried by a Request message.
func (m Message) RFP() core.RequestForProposal {
	return core.RequestForProposal{
		StaticID:       m.Header.RFPID,
		Context:        m.Context,
		ProductRequest: m.ProductRequest,
		DocumentIDs:    append([]string(nil), m.DocumentIDs...),
	}
}
