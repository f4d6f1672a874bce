// Package marshal talks to the data-stream encryption service.
package marshal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Abdullah1738/itheum-agent/internal/httpx"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

type EncryptRequest struct {
	DataNFTStreamURL      string `json:"dataNFTStreamUrl"`
	DataCreatorERDAddress string `json:"dataCreatorERDAddress,omitempty"`
	DataCreatorSOLAddress string `json:"dataCreatorSOLAddress,omitempty"`
}

type EncryptResponse struct {
	EncryptedMessage string `json:"encryptedMessage"`
	MessageHash      string `json:"messageHash"`
}

type decryptRequest struct {
	EncryptedMessage string `json:"encryptedMessage"`
}

type Client struct {
	base string
	http *httpx.Client
}

func New(apiBase string, httpClient *http.Client) *Client {
	return &Client{base: httpx.BaseURL(apiBase), http: httpx.New(httpClient)}
}

func header() http.Header {
	h := http.Header{}
	h.Set("Accept", "*/*")
	return h
}

func (c *Client) Encrypt(ctx context.Context, req EncryptRequest) (EncryptResponse, error) {
	if req.DataNFTStreamURL == "" {
		return EncryptResponse{}, fmt.Errorf("%w: data stream url is required", protocol.ErrValidation)
	}
	var out EncryptResponse
	if err := c.http.PostJSON(ctx, c.base+"/generate_V2", header(), req, &out); err != nil {
		return EncryptResponse{}, fmt.Errorf("encrypt: %w", err)
	}
	if out.EncryptedMessage == "" {
		return EncryptResponse{}, fmt.Errorf("%w: encrypt: missing encryptedMessage", protocol.ErrMalformedResponse)
	}
	return out, nil
}

// Decrypt returns the decrypted payload as the service sends it.
func (c *Client) Decrypt(ctx context.Context, encryptedMessage string) (json.RawMessage, error) {
	if encryptedMessage == "" {
		return nil, fmt.Errorf("%w: encrypted message is required", protocol.ErrValidation)
	}
	var out json.RawMessage
	if err := c.http.PostJSON(ctx, c.base+"/decrypt_v2", header(), decryptRequest{EncryptedMessage: encryptedMessage}, &out); err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return out, nil
}
