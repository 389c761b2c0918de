package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-rfp/core"
	"github.com/goliatone/go-rfp/identity"
)

// CounterpartyStore is a Directory backed by the rfp_counterparties table.
type CounterpartyStore struct {
	db   *bun.DB
	repo repository.Repository[*counterpartyRecord]
	now  func() time.Time
}

func NewCounterpartyStore(db *bun.DB) (*CounterpartyStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*counterpartyRecord](db, counterpartyHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid counterparty repository wiring: %w", err)
		}
	}
	return &CounterpartyStore{db: db, repo: repo, now: utcNow}, nil
}

func (s *CounterpartyStore) Save(ctx context.Context, company core.Counterparty) (core.Counterparty, error) {
	if s == nil || s.db == nil {
		return core.Counterparty{}, fmt.Errorf("sqlstore: counterparty store is not configured")
	}
	staticID := strings.TrimSpace(company.StaticID)
	if staticID == "" {
		return core.Counterparty{}, core.BadInputError("sqlstore: counterparty static id is required", nil)
	}
	metadata := company.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	now := s.now()
	record := &counterpartyRecord{
		StaticID:  staticID,
		Name:      strings.TrimSpace(company.Name),
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (static_id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("metadata = EXCLUDED.metadata").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.Counterparty{}, readError(err, "sqlstore: save counterparty", map[string]any{"static_id": staticID})
	}
	return record.toDomain(), nil
}

func (s *CounterpartyStore) Lookup(ctx context.Context, staticID string) (core.Counterparty, error) {
	if s == nil || s.db == nil {
		return core.Counterparty{}, fmt.Errorf("sqlstore: counterparty store is not configured")
	}
	staticID = strings.TrimSpace(staticID)
	record := &counterpartyRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.static_id = ?", staticID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Counterparty{}, identity.NotFound(staticID)
		}
		return core.Counterparty{}, core.DirectoryUnavailableError(err, "sqlstore: lookup counterparty", map[string]any{
			"static_id": staticID,
		})
	}
	return record.toDomain(), nil
}

func (s *CounterpartyStore) List(ctx context.Context) ([]core.Counterparty, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: counterparty store is not configured")
	}
	records, _, err := s.repo.List(ctx, repository.OrderBy("static_id ASC"))
	if err != nil {
		return nil, readError(err, "sqlstore: list counterparties", nil)
	}
	out := make([]core.Counterparty, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
