// Package agent runs the paid workflows end to end: settle, upload or mint,
// and publish.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Abdullah1738/itheum-agent/offchain/solana"
	"github.com/Abdullah1738/itheum-agent/offchain/storage"
	"github.com/Abdullah1738/itheum-agent/protocol"
	"github.com/Abdullah1738/itheum-agent/result"
)

const (
	manifestFileName = "playlist-manifest.json"
	metadataFileName = "metadata.json"
	jsonContentType  = "application/json"
)

type Payer interface {
	HandlePayment(ctx context.Context, operations int) result.Result[string]
	Owner() solana.Pubkey
}

type Storage interface {
	Upload(ctx context.Context, req storage.UploadRequest) ([]protocol.UploadedFile, error)
	PinToIPNS(ctx context.Context, cid, address string) (protocol.IPNSRecord, error)
}

type Minter interface {
	BulkMint(ctx context.Context, cfg protocol.MintConfig, address, paymentHash string) ([]string, error)
}

// Manager serializes its workflows: at most one settlement per wallet is in
// flight at a time.
type Manager struct {
	payer   Payer
	storage Storage
	minter  Minter
	gateway string
	log     *slog.Logger
	now     func() time.Time

	inflight *semaphore.Weighted
}

func New(payer Payer, store Storage, minter Minter, gateway string, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if gateway == "" {
		gateway = protocol.DefaultIPFSGateway
	}
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}
	return &Manager{
		payer:    payer,
		storage:  store,
		minter:   minter,
		gateway:  gateway,
		log:      log.With("wallet", payer.Owner().Base58()),
		now:      time.Now,
		inflight: semaphore.NewWeighted(1),
	}
}

type UploadResult struct {
	IPNSHash         string
	PointingHash     string
	PaymentSignature string
	Uploaded         []protocol.UploadedFile
}

// UploadMusicFiles pays for len(files) uploads, uploads them, uploads the
// playlist manifest built from cfg and points the wallet's IPNS name at it.
func (m *Manager) UploadMusicFiles(ctx context.Context, files []storage.File, cfg protocol.MusicPlaylistConfig) (UploadResult, error) {
	if len(files) == 0 {
		return UploadResult{}, fmt.Errorf("%w: no files to upload", protocol.ErrValidation)
	}
	if err := m.inflight.Acquire(ctx, 1); err != nil {
		return UploadResult{}, err
	}
	defer m.inflight.Release(1)

	address := m.payer.Owner().Base58()
	m.log.Info("uploading music files", "files", len(files))

	sig, err := m.payer.HandlePayment(ctx, len(files)).Unwrap()
	if err != nil {
		return UploadResult{}, fmt.Errorf("payment: %w", err)
	}
	m.log.Info("payment processed", "signature", sig)

	uploaded, err := m.storage.Upload(ctx, storage.UploadRequest{
		Files:       files,
		Category:    protocol.CategoryMusicPlaylist,
		PaymentHash: sig,
		Address:     address,
	})
	if err != nil {
		return UploadResult{}, err
	}

	manifest, err := protocol.BuildMusicPlaylistManifest(cfg, uploaded, m.gateway, m.now())
	if err != nil {
		return UploadResult{}, fmt.Errorf("manifest: %w", err)
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return UploadResult{}, fmt.Errorf("manifest: %w", err)
	}
	manifestUpload, err := m.storage.Upload(ctx, storage.UploadRequest{
		Files:       []storage.File{{Name: manifestFileName, ContentType: jsonContentType, Data: data}},
		Category:    protocol.CategoryMusicPlaylist,
		PaymentHash: sig,
		Address:     address,
	})
	if err != nil {
		return UploadResult{}, fmt.Errorf("manifest upload: %w", err)
	}
	if len(manifestUpload) == 0 || manifestUpload[0].Hash == "" {
		return UploadResult{}, fmt.Errorf("%w: manifest upload returned no hash", protocol.ErrMalformedResponse)
	}

	ipns, err := m.storage.PinToIPNS(ctx, manifestUpload[0].Hash, address)
	if err != nil {
		return UploadResult{}, err
	}
	m.log.Info("playlist published", "ipns", ipns.Hash, "manifest", ipns.PointingHash)
	return UploadResult{
		IPNSHash:         ipns.Hash,
		PointingHash:     ipns.PointingHash,
		PaymentSignature: sig,
		Uploaded:         uploaded,
	}, nil
}

type MintResult struct {
	AssetIDs         []string
	MetadataURL      string
	PaymentSignature string
}

// MintMusicNFT pays for one operation, uploads the NFT metadata and mints
// against it. Unset mint fields default to the wallet, the NFT name and a
// quantity of one.
func (m *Manager) MintMusicNFT(ctx context.Context, nft protocol.MusicNFTConfig, mint protocol.MintConfig) (MintResult, error) {
	metadata, err := protocol.BuildMusicNFTMetadata(nft)
	if err != nil {
		return MintResult{}, err
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return MintResult{}, fmt.Errorf("metadata: %w", err)
	}
	if err := m.inflight.Acquire(ctx, 1); err != nil {
		return MintResult{}, err
	}
	defer m.inflight.Release(1)

	address := m.payer.Owner().Base58()
	sig, err := m.payer.HandlePayment(ctx, 1).Unwrap()
	if err != nil {
		return MintResult{}, fmt.Errorf("payment: %w", err)
	}

	up, err := m.storage.Upload(ctx, storage.UploadRequest{
		Files:       []storage.File{{Name: metadataFileName, ContentType: jsonContentType, Data: data}},
		Category:    protocol.CategoryFiles,
		PaymentHash: sig,
		Address:     address,
	})
	if err != nil {
		return MintResult{}, fmt.Errorf("metadata upload: %w", err)
	}
	if len(up) == 0 || up[0].Hash == "" {
		return MintResult{}, fmt.Errorf("%w: metadata upload returned no hash", protocol.ErrMalformedResponse)
	}
	metadataURL := m.gateway + up[0].Hash

	mint.MetadataOnIPFSURL = metadataURL
	if mint.MintForSolAddr == "" {
		mint.MintForSolAddr = address
	}
	if mint.TokenName == "" {
		mint.TokenName = nft.Name
	}
	if mint.Quantity == 0 {
		mint.Quantity = 1
	}
	ids, err := m.minter.BulkMint(ctx, mint, address, sig)
	if err != nil {
		return MintResult{}, err
	}
	m.log.Info("nft minted", "assets", len(ids), "metadata", metadataURL)
	return MintResult{AssetIDs: ids, MetadataURL: metadataURL, PaymentSignature: sig}, nil
}
