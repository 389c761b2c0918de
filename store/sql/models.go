package sqlstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-rfp/core"
)

type rfpRecord struct {
	bun.BaseModel `bun:"table:rfp_requests,alias:rr"`

	StaticID       string    `bun:"static_id,pk"`
	Context        string    `bun:"context,notnull"`
	ProductRequest *string   `bun:"product_request"`
	DocumentIDs    []string  `bun:"document_ids,type:jsonb,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type actionRecord struct {
	bun.BaseModel `bun:"table:rfp_actions,alias:ra"`

	StaticID          string     `bun:"static_id,pk"`
	RFPID             string     `bun:"rfp_id,notnull"`
	Type              string     `bun:"type,notnull"`
	SenderStaticID    string     `bun:"sender_static_id,notnull"`
	RecipientStaticID string     `bun:"recipient_static_id,notnull"`
	Status            string     `bun:"status,notnull"`
	Data              *string    `bun:"data"`
	SentAt            *time.Time `bun:"sent_at,nullzero"`
	Seq               int64      `bun:"seq,notnull"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type counterpartyRecord struct {
	bun.BaseModel `bun:"table:rfp_counterparties,alias:rc"`

	StaticID  string         `bun:"static_id,pk"`
	Name      string         `bun:"name,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func newRFPRecord(rfp core.RequestForProposal, now time.Time) *rfpRecord {
	createdAt := rfp.CreatedAt.UTC()
	if rfp.CreatedAt.IsZero() {
		createdAt = now
	}
	documentIDs := append([]string{}, rfp.DocumentIDs...)
	return &rfpRecord{
		StaticID:       strings.TrimSpace(rfp.StaticID),
		Context:        string(rfp.Context),
		ProductRequest: payloadColumn(rfp.ProductRequest),
		DocumentIDs:    documentIDs,
		CreatedAt:      createdAt,
	}
}

func (r *rfpRecord) toDomain() core.RequestForProposal {
	if r == nil {
		return core.RequestForProposal{}
	}
	var documentIDs []string
	if len(r.DocumentIDs) > 0 {
		documentIDs = append([]string{}, r.DocumentIDs...)
	}
	return core.RequestForProposal{
		StaticID:       r.StaticID,
		Context:        json.RawMessage(r.Context),
		ProductRequest: payloadValue(r.ProductRequest),
		DocumentIDs:    documentIDs,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func newActionRecord(action core.Action, seq int64, now time.Time) *actionRecord {
	createdAt := action.CreatedAt.UTC()
	if action.CreatedAt.IsZero() {
		createdAt = now
	}
	record := &actionRecord{
		StaticID:          strings.TrimSpace(action.StaticID),
		RFPID:             strings.TrimSpace(action.RFPID),
		Type:              string(action.Type),
		SenderStaticID:    strings.TrimSpace(action.SenderStaticID),
		RecipientStaticID: strings.TrimSpace(action.RecipientStaticID),
		Status:            string(action.Status),
		Data:              payloadColumn(action.Data),
		Seq:               seq,
		CreatedAt:         createdAt,
		UpdatedAt:         now,
	}
	if action.SentAt != nil {
		sentAt := action.SentAt.UTC()
		record.SentAt = &sentAt
	}
	return record
}

func (r *actionRecord) toDomain() core.Action {
	if r == nil {
		return core.Action{}
	}
	action := core.Action{
		StaticID:          r.StaticID,
		RFPID:             r.RFPID,
		Type:              core.ActionType(r.Type),
		SenderStaticID:    r.SenderStaticID,
		RecipientStaticID: r.RecipientStaticID,
		Status:            core.ActionStatus(r.Status),
		Data:              payloadValue(r.Data),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if r.SentAt != nil {
		sentAt := r.SentAt.UTC()
		action.SentAt = &sentAt
	}
	return action
}

func (r *counterpartyRecord) toDomain() core.Counterparty {
	if r == nil {
		return core.Counterparty{}
	}
	var metadata map[string]any
	if len(r.Metadata) > 0 {
		metadata = make(map[string]any, len(r.Metadata))
		for key, value := range r.Metadata {
			metadata[key] = value
		}
	}
	return core.Counterparty{
		StaticID: r.StaticID,
		Name:     r.Name,
		Metadata: metadata,
	}
}

func payloadColumn(payload core.Payload) *string {
	if len(payload) == 0 {
		return nil
	}
	value := string(payload)
	return &value
}

func payloadValue(column *string) core.Payload {
	if column == nil || *column == "" {
		return nil
	}
	return core.Payload(*column)
}
