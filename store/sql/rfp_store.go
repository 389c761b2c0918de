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

// RFPStore persists requests for proposal. Records are immutable once written.
type RFPStore struct {
	db   *bun.DB
	repo repository.Repository[*rfpRecord]
	now  func() time.Time
}

func NewRFPStore(db *bun.DB) (*RFPStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*rfpRecord](db, rfpHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid rfp repository wiring: %w", err)
		}
	}
	return &RFPStore{db: db, repo: repo, now: utcNow}, nil
}

func (s *RFPStore) CreateRFP(ctx context.Context, rfp core.RequestForProposal) (core.RequestForProposal, error) {
	if s == nil || s.repo == nil {
		return core.RequestForProposal{}, fmt.Errorf("sqlstore: rfp store is not configured")
	}
	if err := rfp.Validate(); err != nil {
		return core.RequestForProposal{}, err
	}
	created, err := s.repo.Create(ctx, newRFPRecord(rfp, s.now()))
	if err != nil {
		return core.RequestForProposal{}, writeError(err, "sqlstore: create request for proposal", map[string]any{
			"rfp_id": rfp.StaticID,
		})
	}
	return created.toDomain(), nil
}

// UpsertRFP returns the stored record when the id already exists.
func (s *RFPStore) UpsertRFP(ctx context.Context, rfp core.RequestForProposal) (core.RequestForProposal, error) {
	if s == nil || s.db == nil {
		return core.RequestForProposal{}, fmt.Errorf("sqlstore: rfp store is not configured")
	}
	if err := rfp.Validate(); err != nil {
		return core.RequestForProposal{}, err
	}
	meta := map[string]any{"rfp_id": rfp.StaticID}
	_, err := s.db.NewInsert().
		Model(newRFPRecord(rfp, s.now())).
		On("CONFLICT (static_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return core.RequestForProposal{}, writeError(err, "sqlstore: upsert request for proposal", meta)
	}
	return s.GetRFP(ctx, rfp.StaticID)
}

func (s *RFPStore) GetRFP(ctx context.Context, staticID string) (core.RequestForProposal, error) {
	if s == nil || s.db == nil {
		return core.RequestForProposal{}, fmt.Errorf("sqlstore: rfp store is not configured")
	}
	staticID = strings.TrimSpace(staticID)
	record := &rfpRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.static_id = ?", staticID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		meta := map[string]any{"rfp_id": staticID}
		if isNoRows(err) {
			return core.RequestForProposal{}, core.NotFoundError(core.ErrRFPNotFound, "sqlstore: request for proposal not found", meta)
		}
		return core.RequestForProposal{}, readError(err, "sqlstore: load request for proposal", meta)
	}
	return record.toDomain(), nil
}
