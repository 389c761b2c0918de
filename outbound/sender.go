package outbound

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-rfp/core"
	"github.com/goliatone/go-rfp/wire"
)

// Sender delivers Created actions and records the outcome on each record.
type Sender struct {
	store     core.Store
	publisher core.Publisher
	format    wire.Format
	companyID string
	now       func() time.Time
	observer  *core.Observer
}

type SenderOption func(*Sender)

func WithSenderClock(now func() time.Time) SenderOption {
	return func(s *Sender) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSenderFormat(format wire.Format) SenderOption {
	return func(s *Sender) {
		s.format = format
	}
}

func WithSenderObserver(observer *core.Observer) SenderOption {
	return func(s *Sender) {
		s.observer = observer
	}
}

func NewSender(store core.Store, publisher core.Publisher, companyID string, opts ...SenderOption) *Sender {
	sender := &Sender{
		store:     store,
		publisher: publisher,
		format:    wire.DefaultFormat(),
		companyID: strings.TrimSpace(companyID),
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sender)
		}
	}
	return sender
}

// Send never returns delivery failures; they are reported on the result.
func (s *Sender) Send(ctx context.Context, action core.Action, rfp core.RequestForProposal) core.SendResult {
	startedAt := time.Now()
	result := core.SendResult{
		ActionID:          action.StaticID,
		RecipientStaticID: action.RecipientStaticID,
		Type:              action.Type,
		Status:            action.Status,
	}
	fields := map[string]any{
		"rfp_id":              action.RFPID,
		"action_id":           action.StaticID,
		"action_type":         string(action.Type),
		"recipient_static_id": action.RecipientStaticID,
	}
	if s == nil || s.store == nil || s.publisher == nil {
		result.Err = fmt.Errorf("outbound: sender is not configured")
		return result
	}
	if action.Status != core.ActionStatusCreated {
		s.observer.Debug(ctx, "action already delivered", fields)
		return result
	}

	sentAt := s.now()
	action.SentAt = &sentAt
	publishErr := s.publish(ctx, action, rfp)
	status := core.ActionStatusProcessed
	if publishErr != nil {
		status = core.ActionStatusFailed
	}
	updated, err := s.store.UpdateActionStatus(ctx, action.StaticID, status, &sentAt)
	switch {
	case err != nil && publishErr == nil:
		result.Err = core.SaveError(err, "outbound: record delivery", fields)
	case err != nil:
		result.Status = core.ActionStatusFailed
		result.Err = publishErr
	default:
		result.Status = updated.Status
		result.Err = publishErr
	}

	fields["status"] = string(result.Status)
	s.observer.ObserveOperation(ctx, startedAt, "send_action", result.Err, fields)
	return result
}

func (s *Sender) publish(ctx context.Context, action core.Action, rfp core.RequestForProposal) error {
	envelope, err := wire.NewEnvelope(s.format, action, rfp)
	if err != nil {
		return err
	}
	body, err := wire.Encode(envelope)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, core.BusMessage{
		Key:         action.RecipientStaticID,
		MessageType: envelope.MessageType,
		MessageID:   action.StaticID,
		Body:        body,
	})
}

// SendBatch sends sequentially and returns one result per action.
func (s *Sender) SendBatch(ctx context.Context, actions []core.Action, rfp core.RequestForProposal) []core.SendResult {
	results := make([]core.SendResult, 0, len(actions))
	for _, action := range actions {
		results = append(results, s.Send(ctx, action, rfp))
	}
	return results
}

// SendAll delivers every pending action of the type for the RFP. It fails only
// when there was something to send and nothing succeeded.
func (s *Sender) SendAll(ctx context.Context, rfpID string, actionType core.ActionType) ([]core.SendResult, error) {
	rfp, pending, err := s.pending(ctx, rfpID, actionType, "")
	if err != nil {
		return nil, err
	}
	results := s.SendBatch(ctx, pending, rfp)
	if len(results) > 0 && countSucceeded(results) == 0 {
		return results, core.DeliveryError(firstError(results), "outbound: no delivery succeeded", map[string]any{
			"rfp_id":      rfpID,
			"action_type": string(actionType),
			"attempted":   len(results),
		})
	}
	return results, nil
}

// SendLatest delivers the newest pending action of the type, optionally for one recipient.
func (s *Sender) SendLatest(ctx context.Context, rfpID string, actionType core.ActionType, recipientID string) (core.SendResult, error) {
	rfp, pending, err := s.pending(ctx, rfpID, actionType, recipientID)
	if err != nil {
		return core.SendResult{}, err
	}
	if len(pending) == 0 {
		return core.SendResult{}, core.NotFoundError(core.ErrActionNotFound, "outbound: no pending action to send", map[string]any{
			"rfp_id":      rfpID,
			"action_type": string(actionType),
		})
	}
	result := s.Send(ctx, pending[len(pending)-1], rfp)
	if !result.Succeeded() {
		return result, core.DeliveryError(result.Err, "outbound: delivery failed", map[string]any{
			"rfp_id":      rfpID,
			"action_id":   result.ActionID,
			"action_type": string(actionType),
		})
	}
	return result, nil
}

func (s *Sender) pending(
	ctx context.Context,
	rfpID string,
	actionType core.ActionType,
	recipientID string,
) (core.RequestForProposal, []core.Action, error) {
	if s == nil || s.store == nil {
		return core.RequestForProposal{}, nil, fmt.Errorf("outbound: sender is not configured")
	}
	rfp, err := s.store.GetRFP(ctx, rfpID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.RequestForProposal{}, nil, err
		}
		return core.RequestForProposal{}, nil, core.StoreUnavailableError(err, "outbound: load request for proposal", map[string]any{"rfp_id": rfpID})
	}
	pending, err := s.store.FindActions(ctx, core.ActionQuery{
		RFPID:             rfpID,
		Types:             []core.ActionType{actionType},
		Statuses:          []core.ActionStatus{core.ActionStatusCreated},
		SenderStaticID:    s.companyID,
		RecipientStaticID: recipientID,
	}.Normalize())
	if err != nil {
		return core.RequestForProposal{}, nil, core.StoreUnavailableError(err, "outbound: load pending actions", map[string]any{"rfp_id": rfpID})
	}
	return rfp, pending, nil
}

func countSucceeded(results []core.SendResult) int {
	count := 0
	for _, result := range results {
		if result.Succeeded() {
			count++
		}
	}
	return count
}

func firstError(results []core.SendResult) error {
	for _, result := range results {
		if result.Err != nil {
			return result.Err
		}
	}
	return nil
}
