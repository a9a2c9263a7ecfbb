package config

import (
	"fmt"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"github.com/Openmesh-Network/openrd-indexer/internal/common"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
)

// Config represents the complete configuration for the indexer.
type Config struct {
	// Chains contains the configuration for all watched chains
	Chains []ChainConfig `yaml:"chains" json:"chains" toml:"chains"`

	// Storage contains the SQLite persistence configuration
	Storage StorageConfig `yaml:"storage" json:"storage" toml:"storage"`

	// IPFS contains metadata gateway configuration
	IPFS IPFSConfig `yaml:"ipfs" json:"ipfs" toml:"ipfs"`

	// Pricing contains token price oracle configuration
	Pricing PricingConfig `yaml:"pricing" json:"pricing" toml:"pricing"`

	// HistorySync contains backfill configuration
	HistorySync HistorySyncConfig `yaml:"history_sync" json:"history_sync" toml:"history_sync"`

	// Retry contains RPC retry configuration with exponential backoff
	Retry *RetryConfig `yaml:"retry,omitempty" json:"retry,omitempty" toml:"retry,omitempty"`

	// API contains the HTTP read API configuration
	API *APIConfig `yaml:"api,omitempty" json:"api,omitempty" toml:"api,omitempty"`

	// Logging contains logging configuration
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty" toml:"logging,omitempty"`

	// Metrics contains Prometheus metrics configuration
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty" toml:"metrics,omitempty"`
}

// ChainConfig represents a single chain to watch.
type ChainConfig struct {
	// ChainID is the numeric chain identifier
	ChainID uint64 `yaml:"chain_id" json:"chain_id" toml:"chain_id"`

	// Name is a human readable chain name used in logs
	Name string `yaml:"name" json:"name" toml:"name"`

	// RPCURL is the Ethereum RPC endpoint URL
	RPCURL string `yaml:"rpc_url" json:"rpc_url" toml:"rpc_url"`

	// Testnet marks the chain as a testnet; token prices resolve to zero
	Testnet bool `yaml:"testnet" json:"testnet" toml:"testnet"`

	// Contracts overrides the default deployment addresses for this chain
	Contracts *ContractsConfig `yaml:"contracts,omitempty" json:"contracts,omitempty" toml:"contracts,omitempty"`
}

// ContractsConfig holds per-chain contract deployment addresses as hex strings.
// Empty fields fall back to the default deployment addresses.
type ContractsConfig struct {
	Tasks    string `yaml:"tasks" json:"tasks" toml:"tasks"`
	Disputes string `yaml:"disputes" json:"disputes" toml:"disputes"`
	Drafts   string `yaml:"drafts" json:"drafts" toml:"drafts"`
	RFPs     string `yaml:"rfps" json:"rfps" toml:"rfps"`
}

// Validate checks that every configured address parses as a hex address.
func (c *ContractsConfig) Validate() error {
	for field, addr := range map[string]string{
		"tasks":    c.Tasks,
		"disputes": c.Disputes,
		"drafts":   c.Drafts,
		"rfps":     c.RFPs,
	} {
		if addr != "" && !ethcommon.IsHexAddress(addr) {
			return fmt.Errorf("contracts.%s: invalid address '%s'", field, addr)
		}
	}

	return nil
}

// StorageConfig represents the SQLite persistence configuration.
type StorageConfig struct {
	// Path is the file path to the SQLite database
	Path string `yaml:"path" json:"path" toml:"path"`

	// JournalMode sets the SQLite journal mode (e.g., "WAL", "DELETE")
	// WAL mode is recommended for better concurrency
	JournalMode string `yaml:"journal_mode" json:"journal_mode" toml:"journal_mode"`

	// Synchronous sets the synchronization level ("FULL", "NORMAL", "OFF")
	Synchronous string `yaml:"synchronous" json:"synchronous" toml:"synchronous"`

	// BusyTimeout is the time in milliseconds to wait when the database is locked
	BusyTimeout int `yaml:"busy_timeout" json:"busy_timeout" toml:"busy_timeout"`

	// MaxOpenConnections is the maximum number of open database connections
	MaxOpenConnections int `yaml:"max_open_connections" json:"max_open_connections" toml:"max_open_connections"`

	// MaxIdleConnections is the maximum number of idle connections in the pool
	MaxIdleConnections int `yaml:"max_idle_connections" json:"max_idle_connections" toml:"max_idle_connections"`
}

// ApplyDefaults sets default values for optional storage configuration fields.
func (s *StorageConfig) ApplyDefaults() {
	if s.JournalMode == "" {
		s.JournalMode = "WAL"
	}
	if s.Synchronous == "" {
		s.Synchronous = "NORMAL"
	}
	if s.BusyTimeout == 0 {
		s.BusyTimeout = 5000
	}
	if s.MaxOpenConnections == 0 {
		s.MaxOpenConnections = 25
	}
	if s.MaxIdleConnections == 0 {
		s.MaxIdleConnections = 5
	}
}

// IPFSConfig configures metadata resolution through IPFS gateways.
type IPFSConfig struct {
	// Gateway is the path-style gateway used for Qm-prefixed hashes
	Gateway string `yaml:"gateway" json:"gateway" toml:"gateway"`

	// SubdomainGateway is the host template for CID-style hashes
	// The literal "{cid}" is replaced with the content identifier
	SubdomainGateway string `yaml:"subdomain_gateway" json:"subdomain_gateway" toml:"subdomain_gateway"`

	// Timeout bounds a single metadata fetch
	Timeout common.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`
}

// ApplyDefaults sets default values for optional IPFS configuration fields.
func (i *IPFSConfig) ApplyDefaults() {
	if i.Gateway == "" {
		i.Gateway = "https://ipfs.io/ipfs/"
	}
	if i.SubdomainGateway == "" {
		i.SubdomainGateway = "https://{cid}.ipfs.w3s.link/"
	}
	if i.Timeout.Duration == 0 {
		i.Timeout = common.NewDuration(30 * time.Second) //nolint:mnd
	}
}

// PricingConfig configures the token price oracle.
type PricingConfig struct {
	// Enabled controls whether USD valuation runs at all
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// BaseURL is the price API endpoint
	BaseURL string `yaml:"base_url" json:"base_url" toml:"base_url"`

	// Timeout bounds a single price lookup
	Timeout common.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`
}

// ApplyDefaults sets default values for optional pricing configuration fields.
func (p *PricingConfig) ApplyDefaults() {
	if p.BaseURL == "" {
		p.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if p.Timeout.Duration == 0 {
		p.Timeout = common.NewDuration(10 * time.Second) //nolint:mnd
	}
}

// HistorySyncConfig configures historical log backfill.
type HistorySyncConfig struct {
	// ChunkSize is the block range per eth_getLogs call
	ChunkSize uint64 `yaml:"chunk_size" json:"chunk_size" toml:"chunk_size"`

	// Pacing is the delay between consecutive chunk fetches
	Pacing common.Duration `yaml:"pacing" json:"pacing" toml:"pacing"`
}

// ApplyDefaults sets default values for optional history sync configuration fields.
func (h *HistorySyncConfig) ApplyDefaults() {
	if h.ChunkSize == 0 {
		h.ChunkSize = 1000000
	}
	if h.Pacing.Duration == 0 {
		h.Pacing = common.NewDuration(1 * time.Second)
	}
}

// RetryConfig represents RPC retry configuration with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial request)
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" toml:"max_attempts"`

	// InitialBackoff is the initial backoff duration before first retry
	InitialBackoff common.Duration `yaml:"initial_backoff" json:"initial_backoff" toml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration
	MaxBackoff common.Duration `yaml:"max_backoff" json:"max_backoff" toml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64 `yaml:"backoff_multiplier" json:"backoff_multiplier" toml:"backoff_multiplier"`
}

// ApplyDefaults sets default values for retry configuration.
func (r *RetryConfig) ApplyDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.InitialBackoff.Duration == 0 {
		r.InitialBackoff = common.NewDuration(1 * time.Second)
	}
	if r.MaxBackoff.Duration == 0 {
		r.MaxBackoff = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if r.BackoffMultiplier == 0 {
		r.BackoffMultiplier = 2.0
	}
}

// APIConfig configures the HTTP read API.
type APIConfig struct {
	// Enabled controls whether the HTTP server starts
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// ReadTimeout bounds reading the request including the body
	ReadTimeout common.Duration `yaml:"read_timeout" json:"read_timeout" toml:"read_timeout"`

	// WriteTimeout bounds writing the response
	WriteTimeout common.Duration `yaml:"write_timeout" json:"write_timeout" toml:"write_timeout"`

	// CORSOrigins lists allowed CORS origins; "*" allows any
	CORSOrigins []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty" toml:"cors_origins,omitempty"`
}

// ApplyDefaults sets default values for optional API configuration fields.
func (a *APIConfig) ApplyDefaults() {
	if a.ListenAddress == "" {
		a.ListenAddress = ":8080"
	}
	if a.ReadTimeout.Duration == 0 {
		a.ReadTimeout = common.NewDuration(15 * time.Second) //nolint:mnd
	}
	if a.WriteTimeout.Duration == 0 {
		a.WriteTimeout = common.NewDuration(30 * time.Second) //nolint:mnd
	}
	if len(a.CORSOrigins) == 0 {
		a.CORSOrigins = []string{"*"}
	}
}

// Validate checks if the API configuration is valid.
func (a *APIConfig) Validate() error {
	if a.Enabled && a.ListenAddress == "" {
		return fmt.Errorf("listen_address is required when the api is enabled")
	}

	return nil
}

// LoggingConfig configures logging behavior with per-component log levels.
type LoggingConfig struct {
	// DefaultLevel is the default log level for all components
	// Options: "debug", "info", "warn", "error"
	DefaultLevel string `yaml:"default_level" json:"default_level" toml:"default_level"`

	// Development enables development mode (stack traces, console encoder)
	Development bool `yaml:"development" json:"development" toml:"development"`

	// ComponentLevels sets log levels for specific components
	// Available components:
	//   - watcher: Live log subscription and decoding
	//   - reducer: Event application to entity state
	//   - enrichment: Metadata, price and balance lookups
	//   - history-sync: Historical log backfill
	//   - storage: Collection persistence
	//   - api: HTTP read API
	//   - rpc: Chain RPC clients
	ComponentLevels map[string]string `yaml:"component_levels,omitempty" json:"component_levels,omitempty" toml:"component_levels,omitempty"` //nolint:lll
}

// ApplyDefaults sets default values for optional logging configuration fields.
func (l *LoggingConfig) ApplyDefaults() {
	if l.DefaultLevel == "" {
		l.DefaultLevel = "info"
	}
	if l.ComponentLevels == nil {
		l.ComponentLevels = make(map[string]string)
	}
}

// Validate checks if the logging configuration is valid.
func (l *LoggingConfig) Validate() error {
	if l.DefaultLevel != "" {
		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(l.DefaultLevel)]; !valid {
			return fmt.Errorf("logging.default_level: must be one of: debug, info, warn, error")
		}
	}

	for component, level := range l.ComponentLevels {
		if _, validComponent := common.AllComponents[common.ToLowerWithTrim(component)]; !validComponent {
			return fmt.Errorf("logging.component_levels: unknown component '%s'", component)
		}

		if _, valid := logger.ValidLogLevels[common.ToLowerWithTrim(level)]; !valid {
			return fmt.Errorf("logging.component_levels[%s]: must be one of: debug, info, warn, error", component)
		}
	}

	return nil
}

// GetComponentLevel returns the log level for a specific component.
// Falls back to DefaultLevel if no component-specific level is set.
func (l *LoggingConfig) GetComponentLevel(component string) string {
	if level, ok := l.ComponentLevels[component]; ok {
		return level
	}
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// GetDefaultLevel returns the default log level.
func (l *LoggingConfig) GetDefaultLevel() string {
	return common.ToLowerWithTrim(l.DefaultLevel)
}

// IsDevelopment returns whether development mode is enabled.
func (l *LoggingConfig) IsDevelopment() bool {
	return l.Development
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP endpoint are active
	Enabled bool `yaml:"enabled" json:"enabled" toml:"enabled"`

	// ListenAddress is the address to bind the metrics HTTP server to
	// Format: "host:port" or ":port"
	ListenAddress string `yaml:"listen_address" json:"listen_address" toml:"listen_address"`

	// Path is the HTTP path where metrics are exposed
	Path string `yaml:"path" json:"path" toml:"path"`
}

// ApplyDefaults sets default values for optional metrics configuration fields.
func (m *MetricsConfig) ApplyDefaults() {
	if m.ListenAddress == "" {
		m.ListenAddress = ":9090"
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
}

// Validate checks if the metrics configuration is valid.
func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.ListenAddress == "" {
			return fmt.Errorf("listen_address is required when metrics are enabled")
		}
		if m.Path == "" {
			return fmt.Errorf("path is required when metrics are enabled")
		}
		if m.Path[0] != '/' {
			return fmt.Errorf("path must start with '/'")
		}
	}
	return nil
}

// ApplyDefaults sets default values for optional configuration fields.
func (c *Config) ApplyDefaults() {
	c.Storage.ApplyDefaults()
	c.IPFS.ApplyDefaults()
	c.Pricing.ApplyDefaults()
	c.HistorySync.ApplyDefaults()

	if c.Retry != nil {
		c.Retry.ApplyDefaults()
	}

	if c.API != nil {
		c.API.ApplyDefaults()
	}

	if c.Logging != nil {
		c.Logging.ApplyDefaults()
	}

	if c.Metrics != nil {
		c.Metrics.ApplyDefaults()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("at least one chain must be configured")
	}

	chainIDs := make(map[uint64]bool)
	for i, chain := range c.Chains {
		if chain.ChainID == 0 {
			return fmt.Errorf("chains[%d]: chain_id is required", i)
		}

		if chainIDs[chain.ChainID] {
			return fmt.Errorf("chains[%d]: duplicate chain_id %d", i, chain.ChainID)
		}
		chainIDs[chain.ChainID] = true

		if chain.RPCURL == "" {
			return fmt.Errorf("chains[%d] (%d): rpc_url is required", i, chain.ChainID)
		}

		if chain.Contracts != nil {
			if err := chain.Contracts.Validate(); err != nil {
				return fmt.Errorf("chains[%d] (%d): %w", i, chain.ChainID, err)
			}
		}
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Storage.JournalMode != "" && c.Storage.JournalMode != "WAL" &&
		c.Storage.JournalMode != "DELETE" && c.Storage.JournalMode != "TRUNCATE" &&
		c.Storage.JournalMode != "PERSIST" && c.Storage.JournalMode != "MEMORY" {
		return fmt.Errorf("storage.journal_mode must be one of: WAL, DELETE, TRUNCATE, PERSIST, MEMORY")
	}

	if c.Storage.Synchronous != "" && c.Storage.Synchronous != "FULL" &&
		c.Storage.Synchronous != "NORMAL" && c.Storage.Synchronous != "OFF" {
		return fmt.Errorf("storage.synchronous must be one of: FULL, NORMAL, OFF")
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return err
		}
	}

	if c.API != nil {
		if err := c.API.Validate(); err != nil {
			return fmt.Errorf("api: %w", err)
		}
	}

	if c.Metrics != nil {
		if err := c.Metrics.Validate(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	return nil
}

// Chain returns the configuration for the given chain id, or nil if the
// chain is not configured.
func (c *Config) Chain(chainID uint64) *ChainConfig {
	for i := range c.Chains {
		if c.Chains[i].ChainID == chainID {
			return &c.Chains[i]
		}
	}

	return nil
}
