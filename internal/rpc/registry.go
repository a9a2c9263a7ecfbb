package rpc

import (
	"context"
	"fmt"

	"github.com/Openmesh-Network/openrd-indexer/internal/config"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
)

// Registry holds one connected client per configured chain.
type Registry struct {
	clients map[uint64]*Client
}

// NewRegistry dials every configured chain and verifies the endpoint reports
// the configured chain id.
func NewRegistry(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Registry, error) {
	clients := make(map[uint64]*Client, len(cfg.Chains))

	for _, chain := range cfg.Chains {
		client, err := NewClient(ctx, chain.RPCURL, cfg.Retry)
		if err != nil {
			closeAll(clients)
			return nil, fmt.Errorf("failed to connect to chain %d (%s): %w", chain.ChainID, chain.Name, err)
		}

		reported, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			closeAll(clients)
			return nil, fmt.Errorf("failed to query chain id for chain %d (%s): %w", chain.ChainID, chain.Name, err)
		}

		if reported != chain.ChainID {
			client.Close()
			closeAll(clients)
			return nil, fmt.Errorf("chain %d (%s): endpoint reports chain id %d", chain.ChainID, chain.Name, reported)
		}

		log.Infow("connected to chain", "chain_id", chain.ChainID, "name", chain.Name)
		clients[chain.ChainID] = client
	}

	return &Registry{clients: clients}, nil
}

// Client returns the client for the given chain id, or an error if the chain
// is not configured.
func (r *Registry) Client(chainID uint64) (*Client, error) {
	client, ok := r.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("no client for chain %d", chainID)
	}

	return client, nil
}

// ChainIDs returns the chain ids with a connected client.
func (r *Registry) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}

	return ids
}

// Close closes all client connections.
func (r *Registry) Close() {
	closeAll(r.clients)
}

func closeAll(clients map[uint64]*Client) {
	for _, client := range clients {
		client.Close()
	}
}
