// Package pricing fetches the per-operation cost and token exchange rates.
// Nothing is cached: every settlement reads fresh prices.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Abdullah1738/itheum-agent/internal/httpx"
	"github.com/Abdullah1738/itheum-agent/offchain/solana"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

var ErrPriceLookup = errors.New("price lookup failed")

const DefaultPriceURL = "https://api.jup.ag/price/v2"

type Client struct {
	apiBase  string
	priceURL string
	http     *httpx.Client
}

// New builds a client for the cost endpoint under apiBase and the price
// service at priceURL (DefaultPriceURL when empty).
func New(apiBase, priceURL string, httpClient *http.Client) *Client {
	priceURL = strings.TrimRight(strings.TrimSpace(priceURL), "/")
	if priceURL == "" {
		priceURL = DefaultPriceURL
	}
	return &Client{
		apiBase:  httpx.BaseURL(apiBase),
		priceURL: priceURL,
		http:     httpx.New(httpClient),
	}
}

func lookupErr(endpoint string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPriceLookup, endpoint, err)
}

// Cost returns the price of one operation in whole tokens. Older backends
// name the field costPerFile.
func (c *Client) Cost(ctx context.Context) (decimal.Decimal, error) {
	endpoint := c.apiBase + "/payment-check"
	if c.apiBase == "" {
		return decimal.Zero, lookupErr(endpoint, fmt.Errorf("%w: api base required", protocol.ErrValidation))
	}
	var resp struct {
		Cost        *decimal.Decimal `json:"cost"`
		CostPerFile *decimal.Decimal `json:"costPerFile"`
	}
	if err := c.http.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return decimal.Zero, lookupErr(endpoint, err)
	}
	cost := resp.Cost
	if cost == nil {
		cost = resp.CostPerFile
	}
	if cost == nil {
		return decimal.Zero, lookupErr(endpoint, fmt.Errorf("%w: missing cost", protocol.ErrMalformedResponse))
	}
	if cost.IsNegative() {
		return decimal.Zero, lookupErr(endpoint, fmt.Errorf("%w: negative cost %s", protocol.ErrMalformedResponse, cost))
	}
	return *cost, nil
}

// TokenPriceInUSD quotes mint against the price service's default USD
// stablecoin.
func (c *Client) TokenPriceInUSD(ctx context.Context, mint solana.Pubkey) (decimal.Decimal, error) {
	return c.tokenPrice(ctx, mint, nil)
}

// TokenPriceIn returns how many vs tokens one mint token is worth.
func (c *Client) TokenPriceIn(ctx context.Context, mint, vs solana.Pubkey) (decimal.Decimal, error) {
	return c.tokenPrice(ctx, mint, &vs)
}

func (c *Client) tokenPrice(ctx context.Context, mint solana.Pubkey, vs *solana.Pubkey) (decimal.Decimal, error) {
	id := mint.Base58()
	q := url.Values{}
	q.Set("ids", id)
	if vs != nil {
		q.Set("vsToken", vs.Base58())
	}
	endpoint := c.priceURL + "?" + q.Encode()

	var resp struct {
		Data map[string]*struct {
			ID    string           `json:"id"`
			Price *decimal.Decimal `json:"price"`
		} `json:"data"`
	}
	if err := c.http.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return decimal.Zero, lookupErr(endpoint, err)
	}
	entry := resp.Data[id]
	if entry == nil || entry.Price == nil {
		return decimal.Zero, lookupErr(endpoint, fmt.Errorf("%w: no price for %s", protocol.ErrMalformedResponse, id))
	}
	if !entry.Price.IsPositive() {
		return decimal.Zero, lookupErr(endpoint, fmt.Errorf("%w: non-positive price %s", protocol.ErrMalformedResponse, entry.Price))
	}
	return *entry.Price, nil
}
