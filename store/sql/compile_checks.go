package sqlstore

import "github.com/goliatone/go-rfp/core"

var (
	_ core.ActionStore            = (*ActionStore)(nil)
	_ core.RFPStore               = (*RFPStore)(nil)
	_ core.Store                  = combinedStore{}
	_ core.Directory              = (*CounterpartyStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
