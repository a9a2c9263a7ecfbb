package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/Openmesh-Network/openrd-indexer/internal/config"
)

// EthClient is the chain-facing surface used by the watcher, the history
// sync and the enrichment layer. Implemented by Client; test fakes implement
// the same interface.
type EthClient interface {
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error)
	GetLatestBlockHeader(ctx context.Context) (*types.Header, error)
	BatchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error)
	GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	CallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error)
}

// Compile-time check to ensure Client implements the EthClient interface.
var _ EthClient = (*Client)(nil)

// Client wraps the Ethereum RPC client with convenience methods for indexing.
// Unary calls retry with exponential backoff when a retry config is set.
type Client struct {
	eth   *ethclient.Client
	rpc   *rpc.Client
	retry *config.RetryConfig
}

// NewClient creates a new RPC client connected to the given endpoint.
func NewClient(ctx context.Context, endpoint string, retry *config.RetryConfig) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	return &Client{
		eth:   ethclient.NewClient(rpcClient),
		rpc:   rpcClient,
		retry: retry,
	}, nil
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

// instrument wraps a unary call with request metrics and retry.
func (c *Client) instrument(ctx context.Context, method string, fn func() error) error {
	RPCMethodInc(method)
	start := time.Now()

	err := retryWithBackoff(ctx, c.retry, method, fn)

	RPCMethodDuration(method, time.Since(start))
	if err != nil {
		RPCMethodError(method)
	}

	return err
}

// GetLogs retrieves logs matching the given filter query.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.instrument(ctx, "eth_getLogs", func() error {
		var callErr error
		logs, callErr = c.eth.FilterLogs(ctx, query)
		return callErr
	})

	return logs, err
}

// GetBlockHeader retrieves the header for a specific block number.
func (c *Client) GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	var header *types.Header
	err := c.instrument(ctx, "eth_getBlockByNumber", func() error {
		var callErr error
		header, callErr = c.eth.HeaderByNumber(ctx, big.NewInt(int64(blockNum)))
		return callErr
	})

	return header, err
}

// GetLatestBlockHeader retrieves the latest block header.
func (c *Client) GetLatestBlockHeader(ctx context.Context) (*types.Header, error) {
	var header *types.Header
	err := c.instrument(ctx, "eth_getBlockByNumber", func() error {
		var callErr error
		header, callErr = c.eth.HeaderByNumber(ctx, nil)
		return callErr
	})

	return header, err
}

// GetTransactionReceipt retrieves the receipt for a mined transaction.
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.instrument(ctx, "eth_getTransactionReceipt", func() error {
		var callErr error
		receipt, callErr = c.eth.TransactionReceipt(ctx, txHash)
		return callErr
	})

	return receipt, err
}

// SubscribeFilterLogs opens a live log subscription. Requires a websocket endpoint.
func (c *Client) SubscribeFilterLogs(
	ctx context.Context,
	query ethereum.FilterQuery,
	ch chan<- types.Log,
) (ethereum.Subscription, error) {
	RPCMethodInc("eth_subscribe")

	sub, err := c.eth.SubscribeFilterLogs(ctx, query, ch)
	if err != nil {
		RPCMethodError("eth_subscribe")
	}

	return sub, err
}

// CallContract executes a read-only contract call at the latest block.
func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg) ([]byte, error) {
	var result []byte
	err := c.instrument(ctx, "eth_call", func() error {
		var callErr error
		result, callErr = c.eth.CallContract(ctx, call, nil)
		return callErr
	})

	return result, err
}

// ChainID queries the chain id of the connected endpoint.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var id *big.Int
	err := c.instrument(ctx, "eth_chainId", func() error {
		var callErr error
		id, callErr = c.eth.ChainID(ctx)
		return callErr
	})
	if err != nil {
		return 0, err
	}

	return id.Uint64(), nil
}

// BatchGetBlockHeaders retrieves headers for multiple block numbers in a single batch call.
func (c *Client) BatchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error) {
	const maxBatch = 100
	var allResults []*types.Header

	for i := 0; i < len(blockNums); i += maxBatch {
		end := min(i+maxBatch, len(blockNums))
		chunk := blockNums[i:end]

		batch := make([]rpc.BatchElem, len(chunk))
		results := make([]*types.Header, len(chunk))

		for j, blockNum := range chunk {
			batch[j] = rpc.BatchElem{
				Method: "eth_getBlockByNumber",
				Args:   []any{toBlockNumArg(blockNum), false}, // false = don't include transactions
				Result: &results[j],
			}
		}

		RPCMethodInc("eth_getBlockByNumber")
		if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
			RPCMethodError("eth_getBlockByNumber")
			return nil, err
		}

		// Check for individual errors
		for _, elem := range batch {
			if elem.Error != nil {
				RPCMethodError("eth_getBlockByNumber")
				return nil, elem.Error
			}
		}

		allResults = append(allResults, results...)
	}

	return allResults, nil
}

// toBlockNumArg converts a block number to hex format.
func toBlockNumArg(blockNum uint64) string {
	return fmt.Sprintf("0x%x", blockNum)
}
