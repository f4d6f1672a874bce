// Package storage uploads files to the paid storage backend and publishes
// IPNS records for them.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/Abdullah1738/itheum-agent/internal/httpx"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

const uploadOrigin = "agent-sdk"

// File is an in-memory upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f File) contentType() string {
	if f.ContentType != "" {
		return f.ContentType
	}
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(f.Name))); t != "" {
		return t
	}
	return "application/octet-stream"
}

type UploadRequest struct {
	Files       []File
	Category    protocol.Category
	PaymentHash string
	Address     string
}

type Client struct {
	base string
	http *httpx.Client
}

// uploadHTTP has no overall timeout: a playlist upload can run for minutes
// and is bounded by the caller's context instead.
var uploadHTTP = &http.Client{}

// New returns a storage client. A nil httpClient uses a client without an
// overall request timeout.
func New(apiBase string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = uploadHTTP
	}
	return &Client{base: httpx.BaseURL(apiBase), http: httpx.New(httpClient)}
}

// Upload posts the files as one multipart request. The payment hash is the
// settlement signature covering len(req.Files) operations.
func (c *Client) Upload(ctx context.Context, req UploadRequest) ([]protocol.UploadedFile, error) {
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("%w: no files provided for upload", protocol.ErrValidation)
	}
	if req.PaymentHash == "" || req.Address == "" {
		return nil, fmt.Errorf("%w: upload requires payment hash and address", protocol.ErrValidation)
	}
	if req.Category == "" {
		req.Category = protocol.CategoryFiles
	}

	body, contentType, err := encodeMultipart(req)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("payment-hash", req.PaymentHash)
	header.Set("address", req.Address)

	var out []protocol.UploadedFile
	if err := c.http.Do(ctx, http.MethodPost, c.base+"/paymentOnTheGo/upload_v2", header, body, &out); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return out, nil
}

func encodeMultipart(req UploadRequest) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range req.Files {
		if f.Name == "" {
			return nil, "", fmt.Errorf("%w: upload file without a name", protocol.ErrValidation)
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, f.Name))
		h.Set("Content-Type", f.contentType())
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("encode %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", fmt.Errorf("encode %s: %w", f.Name, err)
		}
	}
	if err := w.WriteField("category", string(req.Category)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("origin", uploadOrigin); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// PinToIPNS points the address's IPNS name at cid.
func (c *Client) PinToIPNS(ctx context.Context, cid, address string) (protocol.IPNSRecord, error) {
	if cid == "" {
		return protocol.IPNSRecord{}, fmt.Errorf("%w: cid is required for ipns pinning", protocol.ErrValidation)
	}
	if address == "" {
		return protocol.IPNSRecord{}, fmt.Errorf("%w: address is required for ipns pinning", protocol.ErrValidation)
	}
	header := http.Header{}
	header.Set("address", address)
	endpoint := c.base + "/ipns/publish_v2?" + url.Values{"cid": {cid}}.Encode()

	var out protocol.IPNSRecord
	if err := c.http.GetJSON(ctx, endpoint, header, &out); err != nil {
		return protocol.IPNSRecord{}, fmt.Errorf("ipns publish: %w", err)
	}
	return out, nil
}
