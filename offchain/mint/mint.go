// Package mint calls the NFT minting backend.
package mint

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Abdullah1738/itheum-agent/internal/httpx"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

type Client struct {
	base string
	http *httpx.Client
}

func New(apiBase string, httpClient *http.Client) *Client {
	return &Client{base: httpx.BaseURL(apiBase), http: httpx.New(httpClient)}
}

type bulkMintResponse struct {
	AssetIDs []string `json:"assetIds"`
}

func validate(cfg protocol.MintConfig) error {
	var missing []string
	if cfg.MintForSolAddr == "" {
		missing = append(missing, "mintForSolAddr")
	}
	if cfg.TokenName == "" {
		missing = append(missing, "tokenName")
	}
	if cfg.MetadataOnIPFSURL == "" {
		missing = append(missing, "metadataOnIpfsUrl")
	}
	if cfg.Quantity <= 0 {
		missing = append(missing, "quantity")
	}
	if !cfg.SellerFeeBasisPoints.IsValid() {
		missing = append(missing, "sellerFeeBasisPoints")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: mint config: invalid %s", protocol.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// BulkMint mints cfg.Quantity assets and returns their ids. paymentHash is
// the settlement signature for the mint.
func (c *Client) BulkMint(ctx context.Context, cfg protocol.MintConfig, address, paymentHash string) ([]string, error) {
	if address == "" || paymentHash == "" {
		return nil, fmt.Errorf("%w: mint requires address and payment hash", protocol.ErrValidation)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("address", address)
	header.Set("payment-hash", paymentHash)

	var out bulkMintResponse
	if err := c.http.PostJSON(ctx, c.base+"/bulk-mint", header, cfg, &out); err != nil {
		return nil, fmt.Errorf("bulk mint: %w", err)
	}
	if len(out.AssetIDs) == 0 {
		return nil, fmt.Errorf("%w: bulk mint returned no asset ids", protocol.ErrMalformedResponse)
	}
	return out.AssetIDs, nil
}
