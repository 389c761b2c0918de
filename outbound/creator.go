package outbound

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/goliatone/go-rfp/core"
)

// Creator runs the validation-gated create step for outbound actions. Each call
// either reuses a pending Created action for the same branch or writes a new one.
type Creator struct {
	store     core.Store
	validator *core.TransitionValidator
	locker    core.NegotiationLocker
	lockTTL   time.Duration
	companyID string
	newID     core.IDGenerator
	now       func() time.Time
	observer  *core.Observer
}

type CreatorOption func(*Creator)

func WithCreatorIDGenerator(generator core.IDGenerator) CreatorOption {
	return func(c *Creator) {
		if generator != nil {
			c.newID = generator
		}
	}
}

func WithCreatorClock(now func() time.Time) CreatorOption {
	return func(c *Creator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithCreatorLocker(locker core.NegotiationLocker, ttl time.Duration) CreatorOption {
	return func(c *Creator) {
		c.locker = locker
		c.lockTTL = ttl
	}
}

func WithCreatorObserver(observer *core.Observer) CreatorOption {
	return func(c *Creator) {
		c.observer = observer
	}
}

func NewCreator(store core.Store, companyID string, opts ...CreatorOption) *Creator {
	companyID = strings.TrimSpace(companyID)
	creator := &Creator{
		store:     store,
		validator: core.NewTransitionValidator(store, store, companyID),
		locker:    core.NewMemoryNegotiationLocker(),
		companyID: companyID,
		newID:     uuid.NewString,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(creator)
		}
	}
	return creator
}

type CreateRequestsInput struct {
	RFP            core.RequestForProposal
	ParticipantIDs []string
}

// CreateRequests stores the RFP once and one Created Request per participant.
// Participants that already received a processed Request are skipped.
func (c *Creator) CreateRequests(ctx context.Context, in CreateRequestsInput) (core.RequestForProposal, []core.Action, error) {
	if err := c.ready(); err != nil {
		return core.RequestForProposal{}, nil, err
	}
	participants := normalizeParticipants(in.ParticipantIDs, c.companyID)
	if len(participants) == 0 {
		return core.RequestForProposal{}, nil, core.BadInputError("outbound: at least one participant is required", nil)
	}
	rfp := core.CloneRFP(in.RFP)
	if strings.TrimSpace(rfp.StaticID) == "" {
		rfp.StaticID = c.newID()
	}
	if err := rfp.Validate(); err != nil {
		return core.RequestForProposal{}, nil, err
	}

	var actions []core.Action
	err := core.WithNegotiationLock(ctx, c.locker, rfp.StaticID, c.lockTTL, func(ctx context.Context) error {
		stored, err := c.store.UpsertRFP(ctx, rfp)
		if err != nil {
			return saveError(err, "outbound: save request for proposal", map[string]any{"rfp_id": rfp.StaticID})
		}
		rfp = stored
		for _, participantID := range participants {
			sent, err := c.hasProcessed(ctx, rfp.StaticID, core.ActionTypeRequest, participantID)
			if err != nil {
				return err
			}
			if sent {
				continue
			}
			action, err := c.reuseOrCreate(ctx, rfp.StaticID, core.ActionTypeRequest, participantID, nil)
			if err != nil {
				return err
			}
			actions = append(actions, action)
		}
		return nil
	})
	if err != nil {
		return core.RequestForProposal{}, nil, err
	}
	return rfp, actions, nil
}

// CreateReply addresses a Response or Reject to the sender of the latest processed Request.
func (c *Creator) CreateReply(ctx context.Context, rfpID string, actionType core.ActionType, data core.Payload) (core.Action, error) {
	if err := c.ready(); err != nil {
		return core.Action{}, err
	}
	if !actionType.IsReply() {
		return core.Action{}, core.BadInputError(fmt.Sprintf("outbound: %s is not a reply action", actionType), map[string]any{"rfp_id": rfpID})
	}
	var action core.Action
	err := core.WithNegotiationLock(ctx, c.locker, rfpID, c.lockTTL, func(ctx context.Context) error {
		if _, err := c.validator.ExistsRFP(ctx, rfpID); err != nil {
			return err
		}
		request, err := c.validator.ExistsLatestAction(ctx, core.LatestActionQuery{
			RFPID:             rfpID,
			Type:              core.ActionTypeRequest,
			Status:            core.ActionStatusProcessed,
			RecipientStaticID: c.companyID,
		})
		if err != nil {
			return err
		}
		if err := c.validator.OutboundReplyAllowed(ctx, rfpID, actionType); err != nil {
			return err
		}
		action, err = c.reuseOrCreate(ctx, rfpID, actionType, request.SenderStaticID, data)
		return err
	})
	return action, err
}

func (c *Creator) CreateAccept(ctx context.Context, rfpID string, participantID string, data core.Payload) (core.Action, error) {
	if err := c.ready(); err != nil {
		return core.Action{}, err
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return core.Action{}, core.BadInputError("outbound: participant id is required", map[string]any{"rfp_id": rfpID})
	}
	var action core.Action
	err := core.WithNegotiationLock(ctx, c.locker, rfpID, c.lockTTL, func(ctx context.Context) error {
		if _, err := c.validator.ExistsRFP(ctx, rfpID); err != nil {
			return err
		}
		if err := c.validator.OutboundAcceptAllowed(ctx, rfpID, participantID); err != nil {
			return err
		}
		var err error
		action, err = c.reuseOrCreate(ctx, rfpID, core.ActionTypeAccept, participantID, data)
		return err
	})
	return action, err
}

func (c *Creator) CreateDecline(ctx context.Context, rfpID string, participantID string, data core.Payload) (core.Action, error) {
	if err := c.ready(); err != nil {
		return core.Action{}, err
	}
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return core.Action{}, core.BadInputError("outbound: participant id is required", map[string]any{"rfp_id": rfpID})
	}
	var action core.Action
	err := core.WithNegotiationLock(ctx, c.locker, rfpID, c.lockTTL, func(ctx context.Context) error {
		if _, err := c.validator.ExistsRFP(ctx, rfpID); err != nil {
			return err
		}
		if err := c.validator.OutboundDeclineAllowed(ctx, rfpID, participantID); err != nil {
			return err
		}
		var err error
		action, err = c.reuseOrCreate(ctx, rfpID, core.ActionTypeDecline, participantID, data)
		return err
	})
	return action, err
}

func (c *Creator) reuseOrCreate(
	ctx context.Context,
	rfpID string,
	actionType core.ActionType,
	recipientID string,
	data core.Payload,
) (core.Action, error) {
	meta := map[string]any{
		"rfp_id":              rfpID,
		"action_type":         string(actionType),
		"recipient_static_id": recipientID,
	}
	pending, err := c.store.FindLatestAction(ctx, core.ActionQuery{
		RFPID:             rfpID,
		Types:             []core.ActionType{actionType},
		Statuses:          []core.ActionStatus{core.ActionStatusCreated},
		SenderStaticID:    c.companyID,
		RecipientStaticID: recipientID,
	})
	switch {
	case err == nil:
		if len(data) == 0 {
			return pending, nil
		}
		pending.Data = data
		updated, upsertErr := c.store.UpsertAction(ctx, pending)
		if upsertErr != nil {
			return core.Action{}, saveError(upsertErr, "outbound: update pending action", meta)
		}
		c.observer.Debug(ctx, "reusing pending action", map[string]any{"action_id": updated.StaticID, "rfp_id": rfpID})
		return updated, nil
	case !core.IsNotFound(err):
		return core.Action{}, core.StoreUnavailableError(err, "outbound: load pending action", meta)
	}

	action := core.Action{
		StaticID:          c.newID(),
		RFPID:             rfpID,
		Type:              actionType,
		SenderStaticID:    c.companyID,
		RecipientStaticID: recipientID,
		Status:            core.ActionStatusCreated,
		Data:              data,
		CreatedAt:         c.now(),
	}
	created, err := c.store.CreateAction(ctx, action)
	if err != nil {
		return core.Action{}, saveError(err, "outbound: save action", meta)
	}
	return created, nil
}

func (c *Creator) hasProcessed(ctx context.Context, rfpID string, actionType core.ActionType, recipientID string) (bool, error) {
	_, err := c.validator.ExistsLatestAction(ctx, core.LatestActionQuery{
		RFPID:             rfpID,
		Type:              actionType,
		Status:            core.ActionStatusProcessed,
		SenderStaticID:    c.companyID,
		RecipientStaticID: recipientID,
	})
	if err == nil {
		return true, nil
	}
	if core.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func (c *Creator) ready() error {
	if c == nil || c.store == nil || c.validator == nil {
		return fmt.Errorf("outbound: creator is not configured")
	}
	if c.companyID == "" {
		return core.InternalError("outbound: creator requires a company id", nil)
	}
	return nil
}

// saveError keeps permanent store conditions (duplicate id, single winner) and
// reports everything else as a save failure.
func saveError(err error, message string, metadata map[string]any) error {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && core.IsPermanent(err) {
		return err
	}
	return core.SaveError(err, message, metadata)
}

func normalizeParticipants(ids []string, self string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || id == self {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
