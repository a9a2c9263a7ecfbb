package enrich

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/Openmesh-Network/openrd-indexer/internal/contracts"
	"github.com/Openmesh-Network/openrd-indexer/internal/rpc"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

func balanceOutput(t *testing.T, balance *big.Int) []byte {
	t.Helper()
	method, ok := contracts.ERC20ABI.Methods["balanceOf"]
	require.True(t, ok)
	output, err := method.Outputs.Pack(balance)
	require.NoError(t, err)
	return output
}

func TestBalanceReader_EscrowBudget(t *testing.T) {
	t.Parallel()

	escrow := common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	tokenA := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenB := common.HexToAddress("0x2222222222222222222222222222222222222222")

	// Escrow received less than requested, as with a fee-on-transfer token.
	balances := map[common.Address]*big.Int{
		tokenA: big.NewInt(990),
		tokenB: big.NewInt(500),
	}

	client := &stubEthClient{
		callContract: func(ctx context.Context, call ethereum.CallMsg) ([]byte, error) {
			data, err := contracts.ERC20ABI.Pack("balanceOf", escrow)
			require.NoError(t, err)
			require.Equal(t, data, call.Data)
			return balanceOutput(t, balances[*call.To]), nil
		},
	}

	reader := NewBalanceReader(map[uint64]rpc.EthClient{1: client})

	budget, err := reader.EscrowBudget(context.Background(), 1, escrow, []types.ERC20Transfer{
		{TokenContract: tokenA, Amount: types.NewBigInt(1000)},
		{TokenContract: tokenB, Amount: types.NewBigInt(500)},
	})
	require.NoError(t, err)
	require.Len(t, budget, 2)
	require.Equal(t, tokenA, budget[0].TokenContract)
	require.Equal(t, int64(990), budget[0].Amount.Int64())
	require.Equal(t, tokenB, budget[1].TokenContract)
	require.Equal(t, int64(500), budget[1].Amount.Int64())
}

func TestBalanceReader_Errors(t *testing.T) {
	t.Parallel()

	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	budget := []types.ERC20Transfer{{TokenContract: token, Amount: types.NewBigInt(1)}}

	reader := NewBalanceReader(map[uint64]rpc.EthClient{})
	_, err := reader.EscrowBudget(context.Background(), 1, common.Address{}, budget)
	require.Error(t, err)

	failing := &stubEthClient{
		callContract: func(ctx context.Context, call ethereum.CallMsg) ([]byte, error) {
			return nil, errors.New("rpc down")
		},
	}
	reader = NewBalanceReader(map[uint64]rpc.EthClient{1: failing})
	_, err = reader.EscrowBudget(context.Background(), 1, common.Address{}, budget)
	require.ErrorContains(t, err, "rpc down")
}
