package sqlstore

import (
	"context"
	"fmt"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-rfp/core"
)

type RepositoryFactory struct {
	db *bun.DB

	actionStore       *ActionStore
	rfpStore          *RFPStore
	counterpartyStore *CounterpartyStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.actionStore != nil && f.rfpStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) ActionStore() core.ActionStore {
	if f == nil || f.actionStore == nil {
		return nil
	}
	return f.actionStore
}

func (f *RepositoryFactory) RFPStore() core.RFPStore {
	if f == nil || f.rfpStore == nil {
		return nil
	}
	return f.rfpStore
}

func (f *RepositoryFactory) CounterpartyStore() *CounterpartyStore {
	if f == nil {
		return nil
	}
	return f.counterpartyStore
}

// Directory exposes the counterparty table as a core.Directory.
func (f *RepositoryFactory) Directory() core.Directory {
	if f == nil || f.counterpartyStore == nil {
		return nil
	}
	return f.counterpartyStore
}

// Store combines the action and rfp stores into a single core.Store.
func (f *RepositoryFactory) Store() core.Store {
	if f == nil || f.actionStore == nil || f.rfpStore == nil {
		return nil
	}
	return combinedStore{ActionStore: f.actionStore, RFPStore: f.rfpStore}
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	actionStore, err := NewActionStore(f.db)
	if err != nil {
		return err
	}
	rfpStore, err := NewRFPStore(f.db)
	if err != nil {
		return err
	}
	counterpartyStore, err := NewCounterpartyStore(f.db)
	if err != nil {
		return err
	}
	f.actionStore = actionStore
	f.rfpStore = rfpStore
	f.counterpartyStore = counterpartyStore
	return nil
}

// SetClock overrides the timestamp source of every store built by the factory.
func (f *RepositoryFactory) SetClock(now func() time.Time) {
	if f == nil || now == nil {
		return
	}
	clock := func() time.Time { return now().UTC() }
	if f.actionStore != nil {
		f.actionStore.now = clock
	}
	if f.rfpStore != nil {
		f.rfpStore.now = clock
	}
	if f.counterpartyStore != nil {
		f.counterpartyStore.now = clock
	}
}

// Ping checks the underlying connection.
func (f *RepositoryFactory) Ping(ctx context.Context) error {
	if f == nil || f.db == nil {
		return fmt.Errorf("sqlstore: repository factory is not configured")
	}
	if err := f.db.PingContext(ctx); err != nil {
		return core.StoreUnavailableError(err, "sqlstore: ping database", nil)
	}
	return nil
}

type combinedStore struct {
	*ActionStore
	*RFPStore
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
