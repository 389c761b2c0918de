package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Static ids are opaque strings; records with non-UUID ids report uuid.Nil.
func rfpHandlers() repository.ModelHandlers[*rfpRecord] {
	return repository.ModelHandlers[*rfpRecord]{
		NewRecord: func() *rfpRecord {
			return &rfpRecord{}
		},
		GetID: func(record *rfpRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.StaticID)
		},
		SetID: func(record *rfpRecord, id uuid.UUID) {
			if record == nil || strings.TrimSpace(record.StaticID) != "" {
				return
			}
			record.StaticID = id.String()
		},
		GetIdentifier: func() string {
			return "static_id"
		},
		GetIdentifierValue: func(record *rfpRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.StaticID)
		},
	}
}

func actionHandlers() repository.ModelHandlers[*actionRecord] {
	return repository.ModelHandlers[*actionRecord]{
		NewRecord: func() *actionRecord {
			return &actionRecord{}
		},
		GetID: func(record *actionRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.StaticID)
		},
		SetID: func(record *actionRecord, id uuid.UUID) {
			if record == nil || strings.TrimSpace(record.StaticID) != "" {
				return
			}
			record.StaticID = id.String()
		},
		GetIdentifier: func() string {
			return "static_id"
		},
		GetIdentifierValue: func(record *actionRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.StaticID)
		},
	}
}

func counterpartyHandlers() repository.ModelHandlers[*counterpartyRecord] {
	return repository.ModelHandlers[*counterpartyRecord]{
		NewRecord: func() *counterpartyRecord {
			return &counterpartyRecord{}
		},
		GetID: func(record *counterpartyRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.StaticID)
		},
		SetID: func(record *counterpartyRecord, id uuid.UUID) {
			if record == nil || strings.TrimSpace(record.StaticID) != "" {
				return
			}
			record.StaticID = id.String()
		},
		GetIdentifier: func() string {
			return "static_id"
		},
		GetIdentifierValue: func(record *counterpartyRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.StaticID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
