package contracts

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/Openmesh-Network/openrd-indexer/internal/config"
)

// DeploymentsFromConfig resolves the contract deployment for every configured
// chain. Fields left empty in the per-chain override fall back to the default
// deployment addresses.
func DeploymentsFromConfig(chains []config.ChainConfig) map[uint64]Deployment {
	deployments := make(map[uint64]Deployment, len(chains))

	for _, chain := range chains {
		deployment := DefaultDeployment()

		if chain.Contracts != nil {
			overrideAddress(&deployment.Tasks, chain.Contracts.Tasks)
			overrideAddress(&deployment.Disputes, chain.Contracts.Disputes)
			overrideAddress(&deployment.Drafts, chain.Contracts.Drafts)
			overrideAddress(&deployment.RFPs, chain.Contracts.RFPs)
		}

		deployments[chain.ChainID] = deployment
	}

	return deployments
}

func overrideAddress(dst *common.Address, hex string) {
	if hex != "" {
		*dst = common.HexToAddress(hex)
	}
}
