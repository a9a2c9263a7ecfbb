package api

import "time"

// ErrorResponse is the uniform error body. Internal errors never leak more
// than a generic message.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// HealthResponse reports process liveness and per-chain watch progress.
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Chains    []ChainStatus `json:"chains,omitempty"`
}

// ChainStatus is the watch progress of one chain.
type ChainStatus struct {
	ChainID       uint64 `json:"chainId"`
	LastSeenBlock uint64 `json:"lastSeenBlock"`
}

// StatsResponse aggregates counters across every chain.
type StatsResponse struct {
	TotalTasks    int     `json:"totalTasks"`
	TotalRFPs     int     `json:"totalRfps"`
	TotalEvents   int     `json:"totalEvents"`
	TotalUsers    int     `json:"totalUsers"`
	TotalUSDValue float64 `json:"totalUsdValue"`
}

// ResyncRequest asks for a historical range to be replayed.
type ResyncRequest struct {
	ChainID   uint64   `json:"chainId"`
	FromBlock uint64   `json:"fromBlock"`
	ToBlock   uint64   `json:"toBlock"`
	Addresses []string `json:"addresses,omitempty"`
}

// ResyncResponse acknowledges a started replay.
type ResyncResponse struct {
	Status    string `json:"status"`
	ChainID   uint64 `json:"chainId"`
	FromBlock uint64 `json:"fromBlock"`
	ToBlock   uint64 `json:"toBlock"`
}
