package enrich

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Openmesh-Network/openrd-indexer/internal/contracts"
	"github.com/Openmesh-Network/openrd-indexer/internal/rpc"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

// BalanceReader reads the actual ERC20 balances held by a task escrow. The
// amounts in budget events are what was requested from the transfer, not what
// arrived, as tokens may take a transfer fee.
type BalanceReader struct {
	clients map[uint64]rpc.EthClient
}

// NewBalanceReader creates a reader over the given per-chain clients.
func NewBalanceReader(clients map[uint64]rpc.EthClient) *BalanceReader {
	return &BalanceReader{clients: clients}
}

// EscrowBudget re-reads the escrow balance of every token in the budget and
// returns the budget with the observed amounts.
func (r *BalanceReader) EscrowBudget(ctx context.Context, chainID uint64, escrow common.Address, budget []types.ERC20Transfer) ([]types.ERC20Transfer, error) {
	client, ok := r.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("no rpc client for chain %d", chainID)
	}

	result := make([]types.ERC20Transfer, len(budget))
	for i, entry := range budget {
		data, err := contracts.ERC20ABI.Pack("balanceOf", escrow)
		if err != nil {
			return nil, err
		}

		token := entry.TokenContract
		output, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data})
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", token.Hex(), err)
		}

		results, err := contracts.ERC20ABI.Unpack("balanceOf", output)
		if err != nil {
			return nil, fmt.Errorf("balance of %s: %w", token.Hex(), err)
		}
		if len(results) != 1 {
			return nil, fmt.Errorf("balance of %s: unexpected output length %d", token.Hex(), len(results))
		}
		balance, ok := results[0].(*big.Int)
		if !ok {
			return nil, fmt.Errorf("balance of %s: unexpected output type %T", token.Hex(), results[0])
		}

		result[i] = types.ERC20Transfer{
			TokenContract: token,
			Amount:        types.FromBig(balance),
		}
	}

	return result, nil
}
