package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Payload carries business data the engine never inspects.
type Payload = json.RawMessage

type ActionType string

const (
	ActionTypeRequest  ActionType = "Request"
	ActionTypeResponse ActionType = "Response"
	ActionTypeReject   ActionType = "Reject"
	ActionTypeAccept   ActionType = "Accept"
	ActionTypeDecline  ActionType = "Decline"
)

func AllActionTypes() []ActionType {
	return []ActionType{
		ActionTypeRequest,
		ActionTypeResponse,
		ActionTypeReject,
		ActionTypeAccept,
		ActionTypeDecline,
	}
}

func ParseActionType(value string) (ActionType, error) {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range AllActionTypes() {
		if strings.EqualFold(trimmed, string(candidate)) {
			return candidate, nil
		}
	}
	return "", BadInputError(fmt.Sprintf("core: unsupported action type %q", value), map[string]any{
		"action_type": value,
	})
}

func (t ActionType) Valid() bool {
	switch t {
	case ActionTypeRequest, ActionTypeResponse, ActionTypeReject, ActionTypeAccept, ActionTypeDecline:
		return true
	default:
		return false
	}
}

// IsReply reports whether the type is sent by a recipient back to the requester.
func (t ActionType) IsReply() bool {
	return t == ActionTypeResponse || t == ActionTypeReject
}

// IsResolution reports whether the type closes a recipient branch from the requester side.
func (t ActionType) IsResolution() bool {
	return t == ActionTypeAccept || t == ActionTypeDecline
}

type ActionStatus string

const (
	ActionStatusCreated   ActionStatus = "Created"
	ActionStatusProcessed ActionStatus = "Processed"
	ActionStatusFailed    ActionStatus = "Failed"
)

func (s ActionStatus) Valid() bool {
	switch s {
	case ActionStatusCreated, ActionStatusProcessed, ActionStatusFailed:
		return true
	default:
		return false
	}
}

func (s ActionStatus) Terminal() bool {
	return s == ActionStatusProcessed || s == ActionStatusFailed
}

// CanTransitionTo enforces Created -> {Processed, Failed}; same-status writes are no-ops.
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	if s == next {
		return true
	}
	return s == ActionStatusCreated && next.Terminal()
}

type RequestForProposal struct {
	StaticID       string
	Context        Payload
	ProductRequest Payload
	DocumentIDs    []string
	CreatedAt      time.Time
}

func (r RequestForProposal) Validate() error {
	if strings.TrimSpace(r.StaticID) == "" {
		return BadInputError("core: rfp static id is required", nil)
	}
	if len(r.Context) == 0 {
		return BadInputError("core: rfp context is required", map[string]any{"rfp_id": r.StaticID})
	}
	if !json.Valid(r.Context) {
		return BadInputError("core: rfp context must be valid json", map[string]any{"rfp_id": r.StaticID})
	}
	if _, err := ParseRoutingContext(r.Context); err != nil {
		return err
	}
	if len(r.ProductRequest) > 0 && !json.Valid(r.ProductRequest) {
		return BadInputError("core: rfp product request must be valid json", map[string]any{"rfp_id": r.StaticID})
	}
	return nil
}

// RoutingContext is the part of an RFP context that routes internal notifications.
type RoutingContext struct {
	ProductID    string `json:"productId"`
	SubProductID string `json:"subProductId"`
}

// ParseRoutingContext requires a JSON object with non-empty productId and subProductId.
func ParseRoutingContext(raw Payload) (RoutingContext, error) {
	var routing RoutingContext
	if err := json.Unmarshal(raw, &routing); err != nil {
		return RoutingContext{}, BadInputError(fmt.Sprintf("core: rfp context is not an object: %v", err), nil)
	}
	routing.ProductID = strings.TrimSpace(routing.ProductID)
	routing.SubProductID = strings.TrimSpace(routing.SubProductID)
	if routing.ProductID == "" || routing.SubProductID == "" {
		return RoutingContext{}, BadInputError("core: rfp context requires productId and subProductId", map[string]any{
			"product_id":     routing.ProductID,
			"sub_product_id": routing.SubProductID,
		})
	}
	return routing, nil
}

type Action struct {
	StaticID          string
	RFPID             string
	Type              ActionType
	SenderStaticID    string
	RecipientStaticID string
	Status            ActionStatus
	Data              Payload
	SentAt            *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (a Action) Validate() error {
	meta := map[string]any{"action_id": a.StaticID, "rfp_id": a.RFPID}
	if strings.TrimSpace(a.StaticID) == "" {
		return BadInputError("core: action static id is required", meta)
	}
	if strings.TrimSpace(a.RFPID) == "" {
		return BadInputError("core: action rfp id is required", meta)
	}
	if !a.Type.Valid() {
		return BadInputError(fmt.Sprintf("core: unsupported action type %q", a.Type), meta)
	}
	if strings.TrimSpace(a.SenderStaticID) == "" || strings.TrimSpace(a.RecipientStaticID) == "" {
		return BadInputError("core: action sender and recipient are required", meta)
	}
	if !a.Status.Valid() {
		return BadInputError(fmt.Sprintf("core: unsupported action status %q", a.Status), meta)
	}
	if len(a.Data) > 0 && !json.Valid(a.Data) {
		return BadInputError("core: action data must be valid json", meta)
	}
	return nil
}

// SendResult is the per-recipient outcome of an outbound delivery.
type SendResult struct {
	ActionID          string
	RecipientStaticID string
	Type              ActionType
	Status            ActionStatus
	Err               error
}

func (r SendResult) Succeeded() bool {
	return r.Status == ActionStatusProcessed
}

type ActionQuery struct {
	RFPID             string
	Types             []ActionType
	Statuses          []ActionStatus
	SenderStaticID    string
	RecipientStaticID string
}

func (q ActionQuery) Matches(action Action) bool {
	if q.RFPID != "" && action.RFPID != q.RFPID {
		return false
	}
	if len(q.Types) > 0 && !containsType(q.Types, action.Type) {
		return false
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, action.Status) {
		return false
	}
	if q.SenderStaticID != "" && action.SenderStaticID != q.SenderStaticID {
		return false
	}
	if q.RecipientStaticID != "" && action.RecipientStaticID != q.RecipientStaticID {
		return false
	}
	return true
}

func (q ActionQuery) Normalize() ActionQuery {
	q.RFPID = strings.TrimSpace(q.RFPID)
	q.SenderStaticID = strings.TrimSpace(q.SenderStaticID)
	q.RecipientStaticID = strings.TrimSpace(q.RecipientStaticID)
	return q
}

func containsType(types []ActionType, target ActionType) bool {
	for _, candidate := range types {
		if candidate == target {
			return true
		}
	}
	return false
}

func containsStatus(statuses []ActionStatus, target ActionStatus) bool {
	for _, candidate := range statuses {
		if candidate == target {
			return true
		}
	}
	return false
}

func CloneAction(action Action) Action {
	cloned := action
	cloned.Data = clonePayload(action.Data)
	if action.SentAt != nil {
		sentAt := action.SentAt.UTC()
		cloned.SentAt = &sentAt
	}
	return cloned
}

func CloneRFP(rfp RequestForProposal) RequestForProposal {
	cloned := rfp
	cloned.Context = clonePayload(rfp.Context)
	cloned.ProductRequest = clonePayload(rfp.ProductRequest)
	cloned.DocumentIDs = append([]string(nil), rfp.DocumentIDs...)
	return cloned
}

func clonePayload(payload Payload) Payload {
	if payload == nil {
		return nil
	}
	return append(Payload(nil), payload...)
}
