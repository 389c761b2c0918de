package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type ActionStore interface {
	CreateAction(ctx context.Context, action Action) (Action, error)
	// UpsertAction is idempotent by StaticID and never moves status backwards.
	UpsertAction(ctx context.Context, action Action) (Action, error)
	GetAction(ctx context.Context, staticID string) (Action, error)
	UpdateActionStatus(ctx context.Context, staticID string, status ActionStatus, sentAt *time.Time) (Action, error)
	FindActions(ctx context.Context, query ActionQuery) ([]Action, error)
	// FindLatestAction returns the newest match by CreatedAt or ErrActionNotFound.
	FindLatestAction(ctx context.Context, query ActionQuery) (Action, error)
}

type RFPStore interface {
	CreateRFP(ctx context.Context, rfp RequestForProposal) (RequestForProposal, error)
	UpsertRFP(ctx context.Context, rfp RequestForProposal) (RequestForProposal, error)
	GetRFP(ctx context.Context, staticID string) (RequestForProposal, error)
}

type Store interface {
	ActionStore
	RFPStore
}

// StoreProvider is returned by repository factories that build persistence-backed stores.
type StoreProvider interface {
	ActionStore() ActionStore
	RFPStore() RFPStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// BusMessage is a single publish on the bus; Key is the routing key or queue name.
type BusMessage struct {
	Key         string
	MessageType string
	MessageID   string
	Body        []byte
}

type Publisher interface {
	Publish(ctx context.Context, message BusMessage) error
}

type Delivery interface {
	Body() []byte
	Ack(ctx context.Context) error
	// Reject settles the delivery permanently; it is never redelivered.
	Reject(ctx context.Context, reason error) error
	Requeue(ctx context.Context, reason error) error
}

type DeliverySource interface {
	Next(ctx context.Context) (Delivery, error)
}

type Counterparty struct {
	StaticID string
	Name     string
	Metadata map[string]any
}

type Directory interface {
	Lookup(ctx context.Context, staticID string) (Counterparty, error)
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

// NegotiationLocker serializes validate-then-write sections for one RFP.
type NegotiationLocker interface {
	Acquire(ctx context.Context, rfpID string, ttl time.Duration) (LockHandle, error)
}

type IDGenerator func() string
