package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/Openmesh-Network/openrd-indexer/internal/config"
	"github.com/Openmesh-Network/openrd-indexer/internal/contracts"
	"github.com/Openmesh-Network/openrd-indexer/internal/logger"
	"github.com/Openmesh-Network/openrd-indexer/internal/rpc"
	"github.com/Openmesh-Network/openrd-indexer/internal/types"
)

// chainPricing holds the CoinGecko identifiers for one chain.
type chainPricing struct {
	coinID   string
	platform string
}

// pricingByChain maps chain ids to their CoinGecko coin and asset platform.
var pricingByChain = map[uint64]chainPricing{
	1:   {coinID: "ethereum", platform: "ethereum"},
	137: {coinID: "matic-network", platform: "polygon-pos"},
}

// nativeDecimals is the decimal count of the native currency on all supported
// chains.
const nativeDecimals = 18

// PriceOracle converts task budgets into an estimated USD value using the
// CoinGecko API. Testnet budgets are worthless and always price at zero.
type PriceOracle struct {
	cfg     config.PricingConfig
	testnet map[uint64]bool
	clients map[uint64]rpc.EthClient
	client  *http.Client
	log     *logger.Logger
}

// NewPriceOracle creates an oracle for the configured chains. The eth clients
// are used to read ERC20 token decimals.
func NewPriceOracle(cfg config.PricingConfig, chains []config.ChainConfig, clients map[uint64]rpc.EthClient, log *logger.Logger) *PriceOracle {
	testnet := make(map[uint64]bool, len(chains))
	for _, chain := range chains {
		testnet[chain.ChainID] = chain.Testnet
	}

	return &PriceOracle{
		cfg:     cfg,
		testnet: testnet,
		clients: clients,
		client:  &http.Client{Timeout: cfg.Timeout.Duration},
		log:     log,
	}
}

// BudgetValue estimates the combined USD value of a native budget and a set of
// ERC20 budget entries. Tokens whose price or decimals cannot be resolved are
// skipped.
func (o *PriceOracle) BudgetValue(ctx context.Context, chainID uint64, nativeBudget *types.BigInt, budget []types.ERC20Transfer) (float64, error) {
	if !o.cfg.Enabled {
		return 0, nil
	}
	if o.testnet[chainID] {
		return 0, nil
	}

	pricing, ok := pricingByChain[chainID]
	if !ok {
		return 0, fmt.Errorf("no pricing information for chain %d", chainID)
	}

	var total float64

	if nativeBudget != nil && nativeBudget.Sign() > 0 {
		price, err := o.nativePrice(ctx, pricing.coinID)
		if err != nil {
			return 0, fmt.Errorf("native price: %w", err)
		}
		total += price * toUnits(&nativeBudget.Int, nativeDecimals)
	}

	if len(budget) > 0 {
		addresses := make([]common.Address, len(budget))
		for i, entry := range budget {
			addresses[i] = entry.TokenContract
		}

		prices, err := o.tokenPrices(ctx, pricing.platform, addresses)
		if err != nil {
			return 0, fmt.Errorf("token prices: %w", err)
		}

		for _, entry := range budget {
			price, ok := prices[strings.ToLower(entry.TokenContract.Hex())]
			if !ok {
				o.log.Warnw("no price for budget token", "chain_id", chainID, "token", entry.TokenContract.Hex())
				continue
			}
			decimals, err := o.tokenDecimals(ctx, chainID, entry.TokenContract)
			if err != nil {
				o.log.Warnw("failed to read token decimals", "chain_id", chainID, "token", entry.TokenContract.Hex(), "error", err)
				continue
			}
			if entry.Amount != nil {
				total += price * toUnits(&entry.Amount.Int, decimals)
			}
		}
	}

	return total, nil
}

func (o *PriceOracle) nativePrice(ctx context.Context, coinID string) (float64, error) {
	endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", o.cfg.BaseURL, url.QueryEscape(coinID))

	var result map[string]map[string]float64
	if err := o.getJSON(ctx, endpoint, &result); err != nil {
		return 0, err
	}

	price, ok := result[coinID]["usd"]
	if !ok {
		return 0, fmt.Errorf("no usd quote for %s", coinID)
	}
	return price, nil
}

func (o *PriceOracle) tokenPrices(ctx context.Context, platform string, tokens []common.Address) (map[string]float64, error) {
	contractList := make([]string, len(tokens))
	for i, token := range tokens {
		contractList[i] = token.Hex()
	}
	endpoint := fmt.Sprintf("%s/simple/token_price/%s?contract_addresses=%s&vs_currencies=usd",
		o.cfg.BaseURL, url.PathEscape(platform), url.QueryEscape(strings.Join(contractList, ",")))

	var result map[string]map[string]float64
	if err := o.getJSON(ctx, endpoint, &result); err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(result))
	for contract, quotes := range result {
		if usd, ok := quotes["usd"]; ok {
			prices[strings.ToLower(contract)] = usd
		}
	}
	return prices, nil
}

func (o *PriceOracle) tokenDecimals(ctx context.Context, chainID uint64, token common.Address) (uint8, error) {
	client, ok := o.clients[chainID]
	if !ok {
		return 0, fmt.Errorf("no rpc client for chain %d", chainID)
	}

	data, err := contracts.ERC20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}

	output, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return 0, err
	}

	results, err := contracts.ERC20ABI.Unpack("decimals", output)
	if err != nil {
		return 0, err
	}
	if len(results) != 1 {
		return 0, fmt.Errorf("unexpected decimals output length %d", len(results))
	}
	decimals, ok := results[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected decimals output type %T", results[0])
	}
	return decimals, nil
}

func (o *PriceOracle) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("price request %s returned status %d", endpoint, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// toUnits converts a raw token amount to a float using the token's decimals.
// The result is an estimate, precision loss is acceptable for display values.
func toUnits(amount *big.Int, decimals uint8) float64 {
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	value := new(big.Float).SetInt(amount)
	result, _ := new(big.Float).Quo(value, scale).Float64()
	return result
}
