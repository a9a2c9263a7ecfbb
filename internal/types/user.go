package types

// TaskRole is one relationship a user holds on a task. A user can hold several
// roles on the same task at once.
type TaskRole uint8

const (
	RoleCreator TaskRole = iota
	RoleManager
	RoleApplicant
	RoleExecutor
	RoleDisputeManager
)

// User holds the reverse index from task identifiers to the roles the user has
// on them, keyed chainId then taskId, plus free-form metadata.
type User struct {
	Tasks    map[uint64]map[string][]TaskRole `json:"tasks"`
	Metadata string                           `json:"metadata"`
}
