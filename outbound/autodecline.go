package outbound

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goliatone/go-rfp/core"
)

// AutoDecliner sends Decline to every requested participant that neither
// rejected nor was already resolved once a winner is accepted.
type AutoDecliner struct {
	store    core.Store
	creator  *Creator
	sender   *Sender
	observer *core.Observer
}

func NewAutoDecliner(store core.Store, creator *Creator, sender *Sender, observer *core.Observer) *AutoDecliner {
	return &AutoDecliner{
		store:    store,
		creator:  creator,
		sender:   sender,
		observer: observer,
	}
}

func (d *AutoDecliner) DeclineRemaining(ctx context.Context, rfpID string) ([]core.SendResult, error) {
	startedAt := time.Now()
	results, err := d.declineRemaining(ctx, rfpID)
	d.observer.ObserveOperation(ctx, startedAt, "auto_decline", err, map[string]any{
		"rfp_id":      rfpID,
		"action_type": string(core.ActionTypeDecline),
		"declines":    len(results),
	})
	return results, err
}

func (d *AutoDecliner) declineRemaining(ctx context.Context, rfpID string) ([]core.SendResult, error) {
	if d == nil || d.store == nil || d.creator == nil || d.sender == nil {
		return nil, fmt.Errorf("outbound: auto decliner is not configured")
	}
	if err := d.creator.validator.AutoDeclineAllowed(ctx, rfpID); err != nil {
		return nil, err
	}
	toDecline, err := d.Candidates(ctx, rfpID)
	if err != nil {
		return nil, err
	}

	results := make([]core.SendResult, 0, len(toDecline))
	for _, participantID := range toDecline {
		if _, err := d.creator.CreateDecline(ctx, rfpID, participantID, nil); err != nil {
			if core.IsPermanent(err) {
				d.observer.Info(ctx, "auto decline skipped", map[string]any{
					"rfp_id":         rfpID,
					"participant_id": participantID,
					"reason":         err.Error(),
				})
				continue
			}
			results = append(results, core.SendResult{
				RecipientStaticID: participantID,
				Type:              core.ActionTypeDecline,
				Status:            core.ActionStatusFailed,
				Err:               err,
			})
		}
	}

	rfp, pending, err := d.sender.pending(ctx, rfpID, core.ActionTypeDecline, "")
	if err != nil {
		return results, err
	}
	return append(results, d.sender.SendBatch(ctx, pending, rfp)...), nil
}

// Candidates computes requested - rejected - resolved for the local requester.
func (d *AutoDecliner) Candidates(ctx context.Context, rfpID string) ([]string, error) {
	companyID := d.creator.companyID
	requested, err := d.collect(ctx, core.ActionQuery{
		RFPID:          rfpID,
		Types:          []core.ActionType{core.ActionTypeRequest},
		Statuses:       []core.ActionStatus{core.ActionStatusProcessed},
		SenderStaticID: companyID,
	}, recipientOf)
	if err != nil {
		return nil, err
	}
	rejected, err := d.collect(ctx, core.ActionQuery{
		RFPID:             rfpID,
		Types:             []core.ActionType{core.ActionTypeReject},
		Statuses:          []core.ActionStatus{core.ActionStatusProcessed},
		RecipientStaticID: companyID,
	}, senderOf)
	if err != nil {
		return nil, err
	}
	resolved, err := d.collect(ctx, core.ActionQuery{
		RFPID:          rfpID,
		Types:          []core.ActionType{core.ActionTypeAccept, core.ActionTypeDecline},
		Statuses:       []core.ActionStatus{core.ActionStatusProcessed},
		SenderStaticID: companyID,
	}, recipientOf)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(requested))
	for participantID := range requested {
		if _, ok := rejected[participantID]; ok {
			continue
		}
		if _, ok := resolved[participantID]; ok {
			continue
		}
		out = append(out, participantID)
	}
	sort.Strings(out)
	return out, nil
}

func (d *AutoDecliner) collect(
	ctx context.Context,
	query core.ActionQuery,
	pick func(core.Action) string,
) (map[string]struct{}, error) {
	actions, err := d.store.FindActions(ctx, query)
	if err != nil {
		return nil, core.StoreUnavailableError(err, "outbound: load actions for auto decline", map[string]any{"rfp_id": query.RFPID})
	}
	set := make(map[string]struct{}, len(actions))
	for _, action := range actions {
		set[pick(action)] = struct{}{}
	}
	return set, nil
}

func recipientOf(action core.Action) string { return action.RecipientStaticID }

func senderOf(action core.Action) string { return action.SenderStaticID }
