// Package enrich resolves off-chain data referenced by events: IPFS metadata,
// USD token prices and actual escrow balances. All of it is best effort; the
// callers log failures and keep going.
package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Openmesh-Network/openrd-indexer/internal/config"
)

// maxMetadataSize bounds a single metadata document read.
const maxMetadataSize = 1 << 20

// FetchError reports a non-success gateway response.
type FetchError struct {
	URL    string
	Status int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("metadata fetch %s returned status %d", e.URL, e.Status)
}

// MetadataFetcher resolves IPFS metadata references through HTTP gateways.
type MetadataFetcher struct {
	gateway          string
	subdomainGateway string
	client           *http.Client
}

// NewMetadataFetcher creates a fetcher from the IPFS configuration.
func NewMetadataFetcher(cfg config.IPFSConfig) *MetadataFetcher {
	return &MetadataFetcher{
		gateway:          cfg.Gateway,
		subdomainGateway: cfg.SubdomainGateway,
		client:           &http.Client{Timeout: cfg.Timeout.Duration},
	}
}

// Fetch downloads the metadata document behind an IPFS hash. V0 hashes (Qm
// prefixed) resolve through the path gateway, V1 CIDs through the subdomain
// gateway.
func (f *MetadataFetcher) Fetch(ctx context.Context, hash string) (string, error) {
	hash = strings.TrimPrefix(hash, "ipfs://")
	if hash == "" {
		return "", fmt.Errorf("empty metadata hash")
	}

	var url string
	if strings.HasPrefix(hash, "Qm") {
		url = f.gateway + hash
	} else {
		url = strings.Replace(f.subdomainGateway, "{cid}", hash, 1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return "", err
	}

	return string(body), nil
}
