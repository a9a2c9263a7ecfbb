package common

const (
	ComponentWatcher     = "watcher"
	ComponentReducer     = "reducer"
	ComponentEnrichment  = "enrichment"
	ComponentHistorySync = "history-sync"
	ComponentStorage     = "storage"
	ComponentAPI         = "api"
	ComponentRPC         = "rpc"
)

var AllComponents = map[string]struct{}{
	ComponentWatcher:     {},
	ComponentReducer:     {},
	ComponentEnrichment:  {},
	ComponentHistorySync: {},
	ComponentStorage:     {},
	ComponentAPI:         {},
	ComponentRPC:         {},
}
