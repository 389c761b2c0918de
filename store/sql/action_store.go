package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-rfp/core"
)

type ActionStore struct {
	db   *bun.DB
	repo repository.Repository[*actionRecord]
	now  func() time.Time
}

func NewActionStore(db *bun.DB) (*ActionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*actionRecord](db, actionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid action repository wiring: %w", err)
		}
	}
	return &ActionStore{db: db, repo: repo, now: utcNow}, nil
}

func (s *ActionStore) CreateAction(ctx context.Context, action core.Action) (core.Action, error) {
	if s == nil || s.db == nil {
		return core.Action{}, fmt.Errorf("sqlstore: action store is not configured")
	}
	if err := action.Validate(); err != nil {
		return core.Action{}, err
	}
	var created core.Action
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		inserted, err := s.insertTx(ctx, tx, action)
		if err != nil {
			return err
		}
		created = inserted
		return nil
	})
	if err != nil {
		return core.Action{}, writeError(err, "sqlstore: create action", actionMetadata(action))
	}
	return created, nil
}

// UpsertAction inserts a new action or merges onto the stored one with core.MergeAction.
func (s *ActionStore) UpsertAction(ctx context.Context, action core.Action) (core.Action, error) {
	if s == nil || s.db == nil {
		return core.Action{}, fmt.Errorf("sqlstore: action store is not configured")
	}
	if err := action.Validate(); err != nil {
		return core.Action{}, err
	}
	var saved core.Action
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, found, err := s.getTx(ctx, tx, action.StaticID)
		if err != nil {
			return err
		}
		if !found {
			inserted, err := s.insertTx(ctx, tx, action)
			if err != nil {
				return err
			}
			saved = inserted
			return nil
		}
		merged, err := core.MergeAction(current.toDomain(), action)
		if err != nil {
			return err
		}
		if err := s.ensureSingleWinnerTx(ctx, tx, merged); err != nil {
			return err
		}
		updated, err := s.writeTx(ctx, tx, current, merged)
		if err != nil {
			return err
		}
		saved = updated
		return nil
	})
	if err != nil {
		return core.Action{}, writeError(err, "sqlstore: upsert action", actionMetadata(action))
	}
	return saved, nil
}

func (s *ActionStore) GetAction(ctx context.Context, staticID string) (core.Action, error) {
	if s == nil || s.db == nil {
		return core.Action{}, fmt.Errorf("sqlstore: action store is not configured")
	}
	staticID = strings.TrimSpace(staticID)
	record := &actionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.static_id = ?", staticID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Action{}, core.NotFoundError(core.ErrActionNotFound, "sqlstore: action not found", map[string]any{
				"action_id": staticID,
			})
		}
		return core.Action{}, readError(err, "sqlstore: load action", map[string]any{"action_id": staticID})
	}
	return record.toDomain(), nil
}

func (s *ActionStore) UpdateActionStatus(
	ctx context.Context,
	staticID string,
	status core.ActionStatus,
	sentAt *time.Time,
) (core.Action, error) {
	if s == nil || s.db == nil {
		return core.Action{}, fmt.Errorf("sqlstore: action store is not configured")
	}
	staticID = strings.TrimSpace(staticID)
	if !status.Valid() {
		return core.Action{}, core.BadInputError(fmt.Sprintf("sqlstore: invalid action status %q", status), map[string]any{
			"action_id": staticID,
		})
	}
	meta := map[string]any{"action_id": staticID, "status": string(status)}
	var saved core.Action
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, found, err := s.getTx(ctx, tx, staticID)
		if err != nil {
			return err
		}
		if !found {
			return core.NotFoundError(core.ErrActionNotFound, "sqlstore: action not found", meta)
		}
		existing := current.toDomain()
		if !existing.Status.CanTransitionTo(status) {
			return core.TransitionError(
				fmt.Sprintf("sqlstore: action status cannot move from %s to %s", existing.Status, status),
				meta,
			)
		}
		next := core.CloneAction(existing)
		next.Status = status
		if sentAt != nil {
			stamped := sentAt.UTC()
			next.SentAt = &stamped
		}
		if err := s.ensureSingleWinnerTx(ctx, tx, next); err != nil {
			return err
		}
		updated, err := s.writeTx(ctx, tx, current, next)
		if err != nil {
			return err
		}
		saved = updated
		return nil
	})
	if err != nil {
		return core.Action{}, writeError(err, "sqlstore: update action status", meta)
	}
	return saved, nil
}

func (s *ActionStore) FindActions(ctx context.Context, query core.ActionQuery) ([]core.Action, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: action store is not configured")
	}
	var records []actionRecord
	err := s.selectActions(query.Normalize(), "ASC").Scan(ctx, &records)
	if err != nil && !isNoRows(err) {
		return nil, readError(err, "sqlstore: find actions", map[string]any{"rfp_id": query.RFPID})
	}
	out := make([]core.Action, 0, len(records))
	for i := range records {
		out = append(out, records[i].toDomain())
	}
	return out, nil
}

func (s *ActionStore) FindLatestAction(ctx context.Context, query core.ActionQuery) (core.Action, error) {
	if s == nil || s.db == nil {
		return core.Action{}, fmt.Errorf("sqlstore: action store is not configured")
	}
	query = query.Normalize()
	record := &actionRecord{}
	err := s.selectActions(query, "DESC").Limit(1).Scan(ctx, record)
	if err != nil {
		if isNoRows(err) {
			return core.Action{}, core.NotFoundError(core.ErrActionNotFound, "sqlstore: no matching action", map[string]any{
				"rfp_id": query.RFPID,
			})
		}
		return core.Action{}, readError(err, "sqlstore: find latest action", map[string]any{"rfp_id": query.RFPID})
	}
	return record.toDomain(), nil
}

func (s *ActionStore) selectActions(query core.ActionQuery, direction string) *bun.SelectQuery {
	q := s.db.NewSelect().Model((*actionRecord)(nil))
	if query.RFPID != "" {
		q = q.Where("?TableAlias.rfp_id = ?", query.RFPID)
	}
	if query.SenderStaticID != "" {
		q = q.Where("?TableAlias.sender_static_id = ?", query.SenderStaticID)
	}
	if query.RecipientStaticID != "" {
		q = q.Where("?TableAlias.recipient_static_id = ?", query.RecipientStaticID)
	}
	if len(query.Types) > 0 {
		types := make([]string, 0, len(query.Types))
		for _, actionType := range query.Types {
			types = append(types, string(actionType))
		}
		q = q.Where("?TableAlias.type IN (?)", bun.In(types))
	}
	if len(query.Statuses) > 0 {
		statuses := make([]string, 0, len(query.Statuses))
		for _, status := range query.Statuses {
			statuses = append(statuses, string(status))
		}
		q = q.Where("?TableAlias.status IN (?)", bun.In(statuses))
	}
	return q.
		OrderExpr("?TableAlias.created_at " + direction).
		OrderExpr("?TableAlias.seq " + direction)
}

func (s *ActionStore) insertTx(ctx context.Context, tx bun.Tx, action core.Action) (core.Action, error) {
	if err := s.ensureSingleWinnerTx(ctx, tx, action); err != nil {
		return core.Action{}, err
	}
	seq, err := s.nextSeq(ctx, tx)
	if err != nil {
		return core.Action{}, err
	}
	inserted, err := s.repo.CreateTx(ctx, tx, newActionRecord(action, seq, s.now()))
	if err != nil {
		return core.Action{}, err
	}
	return inserted.toDomain(), nil
}

func (s *ActionStore) writeTx(ctx context.Context, tx bun.Tx, current *actionRecord, next core.Action) (core.Action, error) {
	record := newActionRecord(next, current.Seq, s.now())
	record.CreatedAt = current.CreatedAt
	_, err := tx.NewUpdate().
		Model((*actionRecord)(nil)).
		Set("status = ?", record.Status).
		Set("data = ?", record.Data).
		Set("sent_at = ?", record.SentAt).
		Set("updated_at = ?", record.UpdatedAt).
		Where("static_id = ?", record.StaticID).
		Exec(ctx)
	if err != nil {
		return core.Action{}, err
	}
	return record.toDomain(), nil
}

func (s *ActionStore) getTx(ctx context.Context, tx bun.Tx, staticID string) (*actionRecord, bool, error) {
	record := &actionRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.static_id = ?", strings.TrimSpace(staticID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return record, true, nil
}

// The partial unique index backs this check across processes.
func (s *ActionStore) ensureSingleWinnerTx(ctx context.Context, tx bun.Tx, action core.Action) error {
	if action.Type != core.ActionTypeAccept || action.Status != core.ActionStatusProcessed {
		return nil
	}
	count, err := tx.NewSelect().
		Model((*actionRecord)(nil)).
		Where("?TableAlias.rfp_id = ?", action.RFPID).
		Where("?TableAlias.type = ?", string(core.ActionTypeAccept)).
		Where("?TableAlias.status = ?", string(core.ActionStatusProcessed)).
		Where("?TableAlias.static_id <> ?", action.StaticID).
		Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return core.TransitionError("sqlstore: request for proposal already has an accepted proposal", map[string]any{
			"rfp_id":    action.RFPID,
			"action_id": action.StaticID,
		})
	}
	return nil
}

func (s *ActionStore) nextSeq(ctx context.Context, tx bun.Tx) (int64, error) {
	var current int64
	err := tx.NewSelect().
		Model((*actionRecord)(nil)).
		ColumnExpr("COALESCE(MAX(?TableAlias.seq), 0)").
		Scan(ctx, &current)
	if err != nil {
		return 0, err
	}
	return current + 1, nil
}

func actionMetadata(action core.Action) map[string]any {
	return map[string]any{
		"action_id":   action.StaticID,
		"rfp_id":      action.RFPID,
		"action_type": string(action.Type),
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}
