package inbound

import (
	"context"
	"fmt"

	"github.com/goliatone/go-rfp/core"
	"github.com/goliatone/go-rfp/wire"
)

// Role is the per-message-type step set plugged into the Pipeline.
type Role interface {
	Name() string
	MessageTypes() []core.ActionType
	// ValidateAndPersist runs transition and duplicate checks and stores the action as Created.
	ValidateAndPersist(ctx context.Context, msg wire.Message) (core.Action, error)
	BuildNotification(ctx context.Context, msg wire.Message) (wire.Notification, error)
}

type roleBase struct {
	store     core.Store
	validator *core.TransitionValidator
}

func newRoleBase(store core.Store, companyID string) roleBase {
	return roleBase{
		store:     store,
		validator: core.NewTransitionValidator(store, store, companyID),
	}
}

func (r roleBase) persist(ctx context.Context, msg wire.Message) (core.Action, error) {
	if err := r.validator.DuplicateActionCheck(ctx, msg.Header.ActionID); err != nil {
		return core.Action{}, err
	}
	action, err := r.store.UpsertAction(ctx, msg.Action(core.ActionStatusCreated))
	if err != nil {
		return core.Action{}, persistError(err, "inbound: save action", map[string]any{
			"action_id": msg.Header.ActionID,
			"rfp_id":    msg.Header.RFPID,
		})
	}
	return action, nil
}

func (roleBase) BuildNotification(_ context.Context, msg wire.Message) (wire.Notification, error) {
	return wire.NotificationFor(msg)
}

// RequestRecipient handles a Request at a recipient and records the RFP locally.
type RequestRecipient struct {
	roleBase
}

func NewRequestRecipient(store core.Store, companyID string) *RequestRecipient {
	return &RequestRecipient{roleBase: newRoleBase(store, companyID)}
}

func (*RequestRecipient) Name() string { return "request_recipient" }

func (*RequestRecipient) MessageTypes() []core.ActionType {
	return []core.ActionType{core.ActionTypeRequest}
}

func (r *RequestRecipient) ValidateAndPersist(ctx context.Context, msg wire.Message) (core.Action, error) {
	if msg.Type != core.ActionTypeRequest {
		return core.Action{}, core.AddressingError(fmt.Sprintf("inbound: %s is not handled by request recipient", msg.Type), nil)
	}
	if _, err := r.store.UpsertRFP(ctx, msg.RFP()); err != nil {
		return core.Action{}, persistError(err, "inbound: save request for proposal", map[string]any{
			"rfp_id": msg.Header.RFPID,
		})
	}
	return r.persist(ctx, msg)
}

// ReplyRecipient handles Response and Reject at the requester.
type ReplyRecipient struct {
	roleBase
}

func NewReplyRecipient(store core.Store, companyID string) *ReplyRecipient {
	return &ReplyRecipient{roleBase: newRoleBase(store, companyID)}
}

func (*ReplyRecipient) Name() string { return "reply_recipient" }

func (*ReplyRecipient) MessageTypes() []core.ActionType {
	return []core.ActionType{core.ActionTypeResponse, core.ActionTypeReject}
}

func (r *ReplyRecipient) ValidateAndPersist(ctx context.Context, msg wire.Message) (core.Action, error) {
	if !msg.Type.IsReply() {
		return core.Action{}, core.AddressingError(fmt.Sprintf("inbound: %s is not handled by reply recipient", msg.Type), nil)
	}
	if _, err := r.validator.ExistsRFP(ctx, msg.Header.RFPID); err != nil {
		return core.Action{}, err
	}
	if err := r.validator.RequestSentTo(ctx, msg.Header.RFPID, msg.Header.SenderStaticID); err != nil {
		return core.Action{}, err
	}
	if err := r.validator.InboundReplyAllowed(ctx, msg.Header.RFPID, msg.Type, msg.Header.SenderStaticID); err != nil {
		return core.Action{}, err
	}
	return r.persist(ctx, msg)
}

// ResolutionRecipient handles an Accept or a Decline at a recipient.
type ResolutionRecipient struct {
	roleBase
	actionType core.ActionType
}

func NewAcceptRecipient(store core.Store, companyID string) *ResolutionRecipient {
	return &ResolutionRecipient{roleBase: newRoleBase(store, companyID), actionType: core.ActionTypeAccept}
}

func NewDeclineRecipient(store core.Store, companyID string) *ResolutionRecipient {
	return &ResolutionRecipient{roleBase: newRoleBase(store, companyID), actionType: core.ActionTypeDecline}
}

func (r *ResolutionRecipient) Name() string {
	if r.actionType == core.ActionTypeDecline {
		return "decline_recipient"
	}
	return "accept_recipient"
}

func (r *ResolutionRecipient) MessageTypes() []core.ActionType {
	return []core.ActionType{r.actionType}
}

func (r *ResolutionRecipient) ValidateAndPersist(ctx context.Context, msg wire.Message) (core.Action, error) {
	if msg.Type != r.actionType {
		return core.Action{}, core.AddressingError(fmt.Sprintf("inbound: %s is not handled by %s", msg.Type, r.Name()), nil)
	}
	if _, err := r.validator.ExistsRFP(ctx, msg.Header.RFPID); err != nil {
		return core.Action{}, err
	}
	if err := r.validator.InboundAcceptOrDeclineAllowed(ctx, msg.Header.RFPID, msg.Header.SenderStaticID); err != nil {
		return core.Action{}, err
	}
	return r.persist(ctx, msg)
}

// DefaultRoles returns every role a company needs to act as requester and recipient.
func DefaultRoles(store core.Store, companyID string) []Role {
	return []Role{
		NewRequestRecipient(store, companyID),
		NewReplyRecipient(store, companyID),
		NewAcceptRecipient(store, companyID),
		NewDeclineRecipient(store, companyID),
	}
}

var (
	_ Role = (*RequestRecipient)(nil)
	_ Role = (*ReplyRecipient)(nil)
	_ Role = (*ResolutionRecipient)(nil)
)
