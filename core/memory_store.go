package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a process-local ActionStore and RFPStore.
type MemoryStore struct {
	mu      sync.RWMutex
	seq     int64
	actions map[string]memoryAction
	rfps    map[string]RequestForProposal
	Now     func() time.Time
}

type memoryAction struct {
	action Action
	seq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actions: map[string]memoryAction{},
		rfps:    map[string]RequestForProposal{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryStore) CreateAction(_ context.Context, action Action) (Action, error) {
	if s == nil {
		return Action{}, fmt.Errorf("core: memory store is not configured")
	}
	if err := action.Validate(); err != nil {
		return Action{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.actions[action.StaticID]; exists {
		return Action{}, DuplicateActionError("core: action already exists", map[string]any{
			"action_id": action.StaticID,
		})
	}
	return s.insertLocked(action)
}

func (s *MemoryStore) UpsertAction(_ context.Context, action Action) (Action, error) {
	if s == nil {
		return Action{}, fmt.Errorf("core: memory store is not configured")
	}
	if err := action.Validate(); err != nil {
		return Action{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.actions[action.StaticID]
	if !exists {
		return s.insertLocked(action)
	}
	merged, err := MergeAction(current.action, action)
	if err != nil {
		return Action{}, err
	}
	if err := s.ensureSingleWinnerLocked(merged); err != nil {
		return Action{}, err
	}
	merged.UpdatedAt = s.now()
	current.action = CloneAction(merged)
	s.actions[action.StaticID] = current
	return CloneAction(merged), nil
}

func (s *MemoryStore) GetAction(_ context.Context, staticID string) (Action, error) {
	if s == nil {
		return Action{}, fmt.Errorf("core: memory store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	current, ok := s.actions[strings.TrimSpace(staticID)]
	if !ok {
		return Action{}, NotFoundError(ErrActionNotFound, "core: action not found", map[string]any{"action_id": staticID})
	}
	return CloneAction(current.action), nil
}

func (s *MemoryStore) UpdateActionStatus(
	_ context.Context,
	staticID string,
	status ActionStatus,
	sentAt *time.Time,
) (Action, error) {
	if s == nil {
		return Action{}, fmt.Errorf("core: memory store is not configured")
	}
	staticID = strings.TrimSpace(staticID)
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.actions[staticID]
	if !ok {
		return Action{}, NotFoundError(ErrActionNotFound, "core: action not found", map[string]any{"action_id": staticID})
	}
	if !current.action.Status.CanTransitionTo(status) {
		return Action{}, TransitionError(
			fmt.Sprintf("core: action status cannot move from %s to %s", current.action.Status, status),
			map[string]any{"action_id": staticID},
		)
	}
	next := CloneAction(current.action)
	next.Status = status
	if sentAt != nil {
		stamped := sentAt.UTC()
		next.SentAt = &stamped
	}
	if err := s.ensureSingleWinnerLocked(next); err != nil {
		return Action{}, err
	}
	next.UpdatedAt = s.now()
	current.action = next
	s.actions[staticID] = current
	return CloneAction(next), nil
}

func (s *MemoryStore) FindActions(_ context.Context, query ActionQuery) ([]Action, error) {
	if s == nil {
		return nil, fmt.Errorf("core: memory store is not configured")
	}
	query = query.Normalize()
	s.mu.RLock()
	matches := make([]memoryAction, 0)
	for _, candidate := range s.actions {
		if query.Matches(candidate.action) {
			matches = append(matches, candidate)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		left, right := matches[i], matches[j]
		if !left.action.CreatedAt.Equal(right.action.CreatedAt) {
			return left.action.CreatedAt.Before(right.action.CreatedAt)
		}
		return left.seq < right.seq
	})
	out := make([]Action, 0, len(matches))
	for _, match := range matches {
		out = append(out, CloneAction(match.action))
	}
	return out, nil
}

func (s *MemoryStore) FindLatestAction(ctx context.Context, query ActionQuery) (Action, error) {
	matches, err := s.FindActions(ctx, query)
	if err != nil {
		return Action{}, err
	}
	if len(matches) == 0 {
		return Action{}, NotFoundError(ErrActionNotFound, "core: no matching action", queryMetadata(query))
	}
	return matches[len(matches)-1], nil
}

func (s *MemoryStore) CreateRFP(_ context.Context, rfp RequestForProposal) (RequestForProposal, error) {
	if s == nil {
		return RequestForProposal{}, fmt.Errorf("core: memory store is not configured")
	}
	if err := rfp.Validate(); err != nil {
		return RequestForProposal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rfps[rfp.StaticID]; exists {
		return RequestForProposal{}, DuplicateActionError("core: request for proposal already exists", map[string]any{
			"rfp_id": rfp.StaticID,
		})
	}
	return s.insertRFPLocked(rfp), nil
}

func (s *MemoryStore) UpsertRFP(_ context.Context, rfp RequestForProposal) (RequestForProposal, error) {
	if s == nil {
		return RequestForProposal{}, fmt.Errorf("core: memory store is not configured")
	}
	if err := rfp.Validate(); err != nil {
		return RequestForProposal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, exists := s.rfps[rfp.StaticID]; exists {
		return CloneRFP(existing), nil
	}
	return s.insertRFPLocked(rfp), nil
}

func (s *MemoryStore) GetRFP(_ context.Context, staticID string) (RequestForProposal, error) {
	if s == nil {
		return RequestForProposal{}, fmt.Errorf("core: memory store is not configured")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rfp, ok := s.rfps[strings.TrimSpace(staticID)]
	if !ok {
		return RequestForProposal{}, NotFoundError(ErrRFPNotFound, "core: request for proposal not found", map[string]any{
			"rfp_id": staticID,
		})
	}
	return CloneRFP(rfp), nil
}

func (s *MemoryStore) insertLocked(action Action) (Action, error) {
	if err := s.ensureSingleWinnerLocked(action); err != nil {
		return Action{}, err
	}
	now := s.now()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}
	action.UpdatedAt = now
	s.seq++
	s.actions[action.StaticID] = memoryAction{action: CloneAction(action), seq: s.seq}
	return CloneAction(action), nil
}

func (s *MemoryStore) insertRFPLocked(rfp RequestForProposal) RequestForProposal {
	if rfp.CreatedAt.IsZero() {
		rfp.CreatedAt = s.now()
	}
	s.rfps[rfp.StaticID] = CloneRFP(rfp)
	return CloneRFP(rfp)
}

func (s *MemoryStore) ensureSingleWinnerLocked(action Action) error {
	if action.Type != ActionTypeAccept || action.Status != ActionStatusProcessed {
		return nil
	}
	for id, candidate := range s.actions {
		if id == action.StaticID {
			continue
		}
		if candidate.action.RFPID == action.RFPID &&
			candidate.action.Type == ActionTypeAccept &&
			candidate.action.Status == ActionStatusProcessed {
			return TransitionError("core: request for proposal already has an accepted proposal", map[string]any{
				"rfp_id":    action.RFPID,
				"action_id": action.StaticID,
				"winner_id": id,
			})
		}
	}
	return nil
}

func (s *MemoryStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// MergeAction applies an upsert onto an existing record. Identity fields must match
// and status only moves forward.
func MergeAction(existing Action, incoming Action) (Action, error) {
	if existing.RFPID != incoming.RFPID ||
		existing.Type != incoming.Type ||
		existing.SenderStaticID != incoming.SenderStaticID ||
		existing.RecipientStaticID != incoming.RecipientStaticID {
		return Action{}, DuplicateActionError("core: action id reused for a different action", map[string]any{
			"action_id": existing.StaticID,
			"rfp_id":    incoming.RFPID,
		})
	}
	merged := CloneAction(existing)
	if existing.Status.CanTransitionTo(incoming.Status) {
		merged.Status = incoming.Status
	}
	if len(incoming.Data) > 0 {
		merged.Data = clonePayload(incoming.Data)
	}
	if incoming.SentAt != nil {
		sentAt := incoming.SentAt.UTC()
		merged.SentAt = &sentAt
	}
	return merged, nil
}

func queryMetadata(query ActionQuery) map[string]any {
	meta := map[string]any{"rfp_id": query.RFPID}
	if len(query.Types) > 0 {
		meta["types"] = fmt.Sprint(query.Types)
	}
	if len(query.Statuses) > 0 {
		meta["statuses"] = fmt.Sprint(query.Statuses)
	}
	if query.SenderStaticID != "" {
		meta["sender_static_id"] = query.SenderStaticID
	}
	if query.RecipientStaticID != "" {
		meta["recipient_static_id"] = query.RecipientStaticID
	}
	return meta
}

var (
	_ ActionStore = (*MemoryStore)(nil)
	_ RFPStore    = (*MemoryStore)(nil)
)
