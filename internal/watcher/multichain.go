package watcher

import (
	"context"
	"fmt"
	"sort"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// MultichainWatcher owns one ContractWatcher per chain and fans registration
// and log routing out to them.
type MultichainWatcher struct {
	watchers map[uint64]*ContractWatcher
}

// NewMultichainWatcher creates a watcher set from per-chain watchers.
func NewMultichainWatcher(watchers map[uint64]*ContractWatcher) *MultichainWatcher {
	return &MultichainWatcher{watchers: watchers}
}

// Watcher returns the watcher for chainID, or an error when the chain is not
// configured.
func (m *MultichainWatcher) Watcher(chainID uint64) (*ContractWatcher, error) {
	w, ok := m.watchers[chainID]
	if !ok {
		return nil, fmt.Errorf("no watcher for chain %d", chainID)
	}

	return w, nil
}

// ChainIDs returns the watched chain ids in ascending order.
func (m *MultichainWatcher) ChainIDs() []uint64 {
	ids := make([]uint64, 0, len(m.watchers))
	for id := range m.watchers {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// ForEach applies fn to every chain's watcher. Handler registration uses this
// to wire the same reducer set onto all chains.
func (m *MultichainWatcher) ForEach(fn func(w *ContractWatcher)) {
	for _, w := range m.watchers {
		fn(w)
	}
}

// ProcessLogs routes an ad-hoc batch of logs to the right chain's watcher.
// History sync feeds replayed logs through here so they take the same decode
// and dispatch path as live ones.
func (m *MultichainWatcher) ProcessLogs(ctx context.Context, chainID uint64, logs []ethtypes.Log) error {
	w, err := m.Watcher(chainID)
	if err != nil {
		return err
	}

	return w.ProcessLogs(ctx, logs)
}

// Watch runs every chain's live subscription loop until ctx is cancelled or
// one of them fails terminally.
func (m *MultichainWatcher) Watch(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, w := range m.watchers {
		w := w
		g.Go(func() error {
			return w.Watch(gctx)
		})
	}

	return g.Wait()
}
