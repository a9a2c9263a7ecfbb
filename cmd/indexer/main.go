package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Openmesh-Network/openrd-indexer/internal/api"
	"github.com/Openmesh-Network/openrd-indexer/internal/common"
	"github.com/Openmesh-Network/openrd-indexer/internal/config"
	"github.com/Openmesh-Network/openrd-indexer/internal/contracts"
	"github.com/Openmesh-Network/openrd-indexer/internal/db"
	"github.com/Openmesh-Network/openrd-indexer/internal/enrich"
	"github.com/Openmesh-Network/openrd-indexer/internal/histsync"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
	"github.com/Openmesh-Network/openrd-indexer/internal/metrics"
	"github.com/Openmesh-Network/openrd-indexer/internal/reducer"
	"github.com/Openmesh-Network/openrd-indexer/internal/rpc"
	"github.com/Openmesh-Network/openrd-indexer/internal/storage"
	"github.com/Openmesh-Network/openrd-indexer/internal/watcher"
)

const version = "1.0.0"

var configPath string

var resyncFlags struct {
	chainID   uint64
	fromBlock uint64
	toBlock   uint64
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "indexer",
	Short: "OpenR&D task platform indexer",
	Long: `Watches the OpenR&D contracts on every configured chain, reduces their
events into a queryable entity graph (tasks, RFPs, disputes, drafts, users)
and serves it over an HTTP read API.`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runIndexer,
}

var resyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Replay a historical block range offline",
	Long: `Fetches and replays historical logs for one chain through the same
reducer path as live watching. Already consumed events are skipped, so
overlapping ranges are safe.`,
	RunE: runResync,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to configuration file")

	resyncCmd.Flags().Uint64Var(&resyncFlags.chainID, "chain-id", 0, "chain to replay")
	resyncCmd.Flags().Uint64Var(&resyncFlags.fromBlock, "from", 0, "first block of the range")
	resyncCmd.Flags().Uint64Var(&resyncFlags.toBlock, "to", 0, "last block of the range")
	_ = resyncCmd.MarkFlagRequired("chain-id")
	_ = resyncCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(resyncCmd)
}

// runtime bundles everything both commands wire up: storage, RPC clients,
// the reducer engine and the per-chain watchers.
type runtime struct {
	cfg      *config.Config
	database *sql.DB
	registry *rpc.Registry
	storage  *storage.Storage
	ledger   *histsync.Ledger
	watchers *watcher.MultichainWatcher
	histSync *histsync.HistorySync
	log      *logger.Logger
}

func buildRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	var logCfg logger.LoggingConfig
	if cfg.Logging != nil {
		logCfg = cfg.Logging
	}

	log := logger.NewComponentLoggerFromConfig(common.ComponentWatcher, logCfg)

	if err := db.RunMigrations(logger.NewComponentLoggerFromConfig(common.ComponentStorage, logCfg), cfg.Storage.Path); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	database, err := db.NewSQLiteDBFromConfig(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	registry, err := rpc.NewRegistry(ctx, cfg, logger.NewComponentLoggerFromConfig(common.ComponentRPC, logCfg))
	if err != nil {
		database.Close()
		return nil, err
	}

	clients := make(map[uint64]rpc.EthClient, len(cfg.Chains))
	receipts := make(map[uint64]reducer.ReceiptSource, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		client, err := registry.Client(chain.ChainID)
		if err != nil {
			registry.Close()
			database.Close()
			return nil, err
		}
		clients[chain.ChainID] = client
		receipts[chain.ChainID] = client
	}

	deployments := contracts.DeploymentsFromConfig(cfg.Chains)
	store := storage.New(storage.NewSQLiteBackend(database))

	engine := reducer.NewEngine(
		store,
		receipts,
		deployments,
		enrich.NewMetadataFetcher(cfg.IPFS),
		enrich.NewPriceOracle(cfg.Pricing, cfg.Chains, clients,
			logger.NewComponentLoggerFromConfig(common.ComponentEnrichment, logCfg)),
		enrich.NewBalanceReader(clients),
		logger.NewComponentLoggerFromConfig(common.ComponentReducer, logCfg),
	)

	ledger := histsync.NewLedger(database, logger.NewComponentLoggerFromConfig(common.ComponentHistorySync, logCfg))

	chainWatchers := make(map[uint64]*watcher.ContractWatcher, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		w := watcher.NewContractWatcher(chain.ChainID, clients[chain.ChainID], ledger, cfg.Retry,
			logger.NewComponentLoggerFromConfig(common.ComponentWatcher, logCfg))
		w.RegisterAll(deployments[chain.ChainID], engine.Apply)
		chainWatchers[chain.ChainID] = w

		log.Infow("watching chain",
			"chain_id", chain.ChainID,
			"name", chain.Name,
			"tasks", deployments[chain.ChainID].Tasks.Hex(),
		)
	}

	watchers := watcher.NewMultichainWatcher(chainWatchers)

	return &runtime{
		cfg:      cfg,
		database: database,
		registry: registry,
		storage:  store,
		ledger:   ledger,
		watchers: watchers,
		histSync: histsync.New(cfg.HistorySync, clients, watchers, ledger,
			logger.NewComponentLoggerFromConfig(common.ComponentHistorySync, logCfg)),
		log: log,
	}, nil
}

// close flushes every store and releases connections. Flush errors are logged
// rather than returned so shutdown always completes.
func (r *runtime) close() {
	if err := r.storage.Flush(); err != nil {
		r.log.Errorf("failed to flush collections on shutdown: %v", err)
	}
	r.registry.Close()
	if err := r.database.Close(); err != nil {
		r.log.Errorf("failed to close database: %v", err)
	}
}

func runIndexer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	var metricsServer *metrics.Server
	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics)
		if err := metricsServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
		defer func() {
			if err := metricsServer.Stop(ctx); err != nil {
				rt.log.Warnf("failed to stop metrics server: %v", err)
			}
		}()
	}

	group, gctx := errgroup.WithContext(ctx)

	if cfg.API != nil && cfg.API.Enabled {
		var logCfg logger.LoggingConfig
		if cfg.Logging != nil {
			logCfg = cfg.Logging
		}
		apiLog := logger.NewComponentLoggerFromConfig(common.ComponentAPI, logCfg)

		handler := api.NewHandler(rt.storage, rt.histSync, rt.ledger, rt.watchers.ChainIDs(), apiLog)
		server := api.NewServer(*cfg.API, handler, apiLog)

		group.Go(func() error {
			return server.Start(gctx)
		})
	}

	group.Go(func() error {
		return rt.watchers.Watch(gctx)
	})

	rt.log.Infow("indexer started", "chains", len(cfg.Chains), "version", version)

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	rt.log.Info("indexer stopped")
	return nil
}

func runResync(cmd *cobra.Command, args []string) error {
	if resyncFlags.fromBlock > resyncFlags.toBlock {
		return fmt.Errorf("--from must not exceed --to")
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	rt.log.Infow("replaying range",
		"chain_id", resyncFlags.chainID,
		"from", resyncFlags.fromBlock,
		"to", resyncFlags.toBlock,
	)

	if err := rt.histSync.Run(ctx, resyncFlags.chainID, resyncFlags.fromBlock, resyncFlags.toBlock, nil); err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	rt.log.Info("replay finished")
	return nil
}
