package core

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// TransitionValidator answers whether a protocol action is legal for the local
// company. It only reads; callers write after a nil result.
type TransitionValidator struct {
	actions   ActionStore
	rfps      RFPStore
	companyID string
}

func NewTransitionValidator(actions ActionStore, rfps RFPStore, companyID string) *TransitionValidator {
	return &TransitionValidator{
		actions:   actions,
		rfps:      rfps,
		companyID: strings.TrimSpace(companyID),
	}
}

func (v *TransitionValidator) CompanyID() string {
	if v == nil {
		return ""
	}
	return v.companyID
}

// LatestActionQuery selects the newest action of one type; empty parties match any.
type LatestActionQuery struct {
	RFPID             string
	Type              ActionType
	Status            ActionStatus
	SenderStaticID    string
	RecipientStaticID string
}

func (q LatestActionQuery) actionQuery() ActionQuery {
	query := ActionQuery{
		RFPID:             q.RFPID,
		SenderStaticID:    q.SenderStaticID,
		RecipientStaticID: q.RecipientStaticID,
	}
	if q.Type != "" {
		query.Types = []ActionType{q.Type}
	}
	if q.Status != "" {
		query.Statuses = []ActionStatus{q.Status}
	}
	return query
}

func (v *TransitionValidator) ExistsRFP(ctx context.Context, rfpID string) (RequestForProposal, error) {
	if err := v.ready(); err != nil {
		return RequestForProposal{}, err
	}
	rfpID = strings.TrimSpace(rfpID)
	if rfpID == "" {
		return RequestForProposal{}, BadInputError("core: rfp id is required", nil)
	}
	rfp, err := v.rfps.GetRFP(ctx, rfpID)
	if err != nil {
		return RequestForProposal{}, storeReadError(err, "core: load request for proposal", map[string]any{"rfp_id": rfpID})
	}
	return rfp, nil
}

func (v *TransitionValidator) ExistsLatestAction(ctx context.Context, query LatestActionQuery) (Action, error) {
	if err := v.ready(); err != nil {
		return Action{}, err
	}
	action, err := v.actions.FindLatestAction(ctx, query.actionQuery().Normalize())
	if err != nil {
		return Action{}, storeReadError(err, "core: load latest action", map[string]any{
			"rfp_id":      query.RFPID,
			"action_type": string(query.Type),
		})
	}
	return action, nil
}

// OutboundReplyAllowed checks the local company has not already rejected the RFP.
func (v *TransitionValidator) OutboundReplyAllowed(ctx context.Context, rfpID string, actionType ActionType) error {
	if !actionType.IsReply() {
		return BadInputError(fmt.Sprintf("core: %s is not a reply action", actionType), map[string]any{"rfp_id": rfpID})
	}
	rejected, err := v.has(ctx, LatestActionQuery{
		RFPID:          rfpID,
		Type:           ActionTypeReject,
		Status:         ActionStatusProcessed,
		SenderStaticID: v.CompanyID(),
	})
	if err != nil {
		return err
	}
	if rejected {
		return TransitionError("core: request for proposal was already rejected", map[string]any{
			"rfp_id":      rfpID,
			"action_type": string(actionType),
		})
	}
	return nil
}

func (v *TransitionValidator) InboundReplyAllowed(ctx context.Context, rfpID string, actionType ActionType, senderID string) error {
	if !actionType.IsReply() {
		return BadInputError(fmt.Sprintf("core: %s is not a reply action", actionType), map[string]any{"rfp_id": rfpID})
	}
	rejected, err := v.has(ctx, LatestActionQuery{
		RFPID:          rfpID,
		Type:           ActionTypeReject,
		Status:         ActionStatusProcessed,
		SenderStaticID: senderID,
	})
	if err != nil {
		return err
	}
	if rejected {
		return TransitionError("core: participant already rejected the request for proposal", map[string]any{
			"rfp_id":           rfpID,
			"sender_static_id": senderID,
			"action_type":      string(actionType),
		})
	}
	return nil
}

// RequestSentTo checks a processed Request went from the local company to the participant.
func (v *TransitionValidator) RequestSentTo(ctx context.Context, rfpID string, participantID string) error {
	sent, err := v.has(ctx, LatestActionQuery{
		RFPID:             rfpID,
		Type:              ActionTypeRequest,
		Status:            ActionStatusProcessed,
		SenderStaticID:    v.CompanyID(),
		RecipientStaticID: participantID,
	})
	if err != nil {
		return err
	}
	if !sent {
		return TransitionError("core: no request was sent to participant", map[string]any{
			"rfp_id":         rfpID,
			"participant_id": participantID,
		})
	}
	return nil
}

func (v *TransitionValidator) OutboundAcceptAllowed(ctx context.Context, rfpID string, participantID string) error {
	meta := map[string]any{"rfp_id": rfpID, "participant_id": participantID}
	responded, err := v.has(ctx, LatestActionQuery{
		RFPID:             rfpID,
		Type:              ActionTypeResponse,
		Status:            ActionStatusProcessed,
		SenderStaticID:    participantID,
		RecipientStaticID: v.CompanyID(),
	})
	if err != nil {
		return err
	}
	if !responded {
		return TransitionError("core: participant has not responded", meta)
	}
	if err := v.notRejectedBy(ctx, rfpID, participantID); err != nil {
		return err
	}
	declined, err := v.has(ctx, LatestActionQuery{
		RFPID:             rfpID,
		Type:              ActionTypeDecline,
		Status:            ActionStatusProcessed,
		SenderStaticID:    v.CompanyID(),
		RecipientStaticID: participantID,
	})
	if err != nil {
		return err
	}
	if declined {
		return TransitionError("core: participant was already declined", meta)
	}
	accepted, err := v.has(ctx, LatestActionQuery{
		RFPID:  rfpID,
		Type:   ActionTypeAccept,
		Status: ActionStatusProcessed,
	})
	if err != nil {
		return err
	}
	if accepted {
		return TransitionError("core: request for proposal already has an accepted proposal", meta)
	}
	return nil
}

// InboundAcceptOrDeclineAllowed runs on the recipient side for an Accept or Decline from requesterID.
func (v *TransitionValidator) InboundAcceptOrDeclineAllowed(ctx context.Context, rfpID string, requesterID string) error {
	meta := map[string]any{"rfp_id": rfpID, "requester_id": requesterID}
	responded, err := v.has(ctx, LatestActionQuery{
		RFPID:             rfpID,
		Type:              ActionTypeResponse,
		Status:            ActionStatusProcessed,
		SenderStaticID:    v.CompanyID(),
		RecipientStaticID: requesterID,
	})
	if err != nil {
		return err
	}
	if !responded {
		return TransitionError("core: no response was sent for the request for proposal", meta)
	}
	if err := v.notRejectedBy(ctx, rfpID, v.CompanyID()); err != nil {
		return err
	}
	resolved, err := v.resolved(ctx, rfpID, requesterID, v.CompanyID())
	if err != nil {
		return err
	}
	if resolved {
		return TransitionError("core: request for proposal was already resolved", meta)
	}
	return nil
}

func (v *TransitionValidator) OutboundDeclineAllowed(ctx context.Context, rfpID string, participantID string) error {
	if err := v.notRejectedBy(ctx, rfpID, participantID); err != nil {
		return err
	}
	resolved, err := v.resolved(ctx, rfpID, v.CompanyID(), participantID)
	if err != nil {
		return err
	}
	if resolved {
		return TransitionError("core: participant was already resolved", map[string]any{
			"rfp_id":         rfpID,
			"participant_id": participantID,
		})
	}
	return nil
}

// DuplicateActionCheck fails permanently when the action already reached a terminal status.
// A Created record is a partial earlier attempt and may be resumed.
func (v *TransitionValidator) DuplicateActionCheck(ctx context.Context, actionID string) error {
	if err := v.ready(); err != nil {
		return err
	}
	existing, err := v.actions.GetAction(ctx, actionID)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return storeReadError(err, "core: load action", map[string]any{"action_id": actionID})
	}
	if existing.Status != ActionStatusCreated {
		return DuplicateActionError("core: action was already handled", map[string]any{
			"action_id": actionID,
			"status":    string(existing.Status),
		})
	}
	return nil
}

func (v *TransitionValidator) notRejectedBy(ctx context.Context, rfpID string, participantID string) error {
	rejected, err := v.has(ctx, LatestActionQuery{
		RFPID:          rfpID,
		Type:           ActionTypeReject,
		Status:         ActionStatusProcessed,
		SenderStaticID: participantID,
	})
	if err != nil {
		return err
	}
	if rejected {
		return TransitionError("core: participant rejected the request for proposal", map[string]any{
			"rfp_id":         rfpID,
			"participant_id": participantID,
		})
	}
	return nil
}

func (v *TransitionValidator) resolved(ctx context.Context, rfpID string, senderID string, recipientID string) (bool, error) {
	if err := v.ready(); err != nil {
		return false, err
	}
	matches, err := v.actions.FindActions(ctx, ActionQuery{
		RFPID:             rfpID,
		Types:             []ActionType{ActionTypeAccept, ActionTypeDecline},
		Statuses:          []ActionStatus{ActionStatusProcessed},
		SenderStaticID:    senderID,
		RecipientStaticID: recipientID,
	}.Normalize())
	if err != nil {
		return false, storeReadError(err, "core: load resolution actions", map[string]any{"rfp_id": rfpID})
	}
	return len(matches) > 0, nil
}

// AutoDeclineAllowed requires the local requester to have a processed Accept on the RFP.
func (v *TransitionValidator) AutoDeclineAllowed(ctx context.Context, rfpID string) error {
	accepted, err := v.has(ctx, LatestActionQuery{
		RFPID:          rfpID,
		Type:           ActionTypeAccept,
		Status:         ActionStatusProcessed,
		SenderStaticID: v.CompanyID(),
	})
	if err != nil {
		return err
	}
	if !accepted {
		return TransitionError("core: request for proposal has no accepted proposal", map[string]any{"rfp_id": rfpID})
	}
	return nil
}

func (v *TransitionValidator) has(ctx context.Context, query LatestActionQuery) (bool, error) {
	if _, err := v.ExistsLatestAction(ctx, query); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (v *TransitionValidator) ready() error {
	if v == nil || v.actions == nil || v.rfps == nil {
		return fmt.Errorf("core: transition validator is not configured")
	}
	if v.companyID == "" {
		return InternalError("core: transition validator requires a company id", nil)
	}
	return nil
}

// storeReadError keeps typed engine errors and marks anything else as a transient store failure.
func storeReadError(err error, message string, metadata map[string]any) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return err
	}
	return StoreUnavailableError(err, message, metadata)
}
