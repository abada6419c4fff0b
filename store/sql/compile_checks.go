package sqlstore

import "github.com/goliatone/go-resultlink/core"

var (
	_ core.PageViewRecorder       = (*PageViewStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
