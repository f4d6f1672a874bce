package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"gopkg.in/yaml.v3"

	"github.com/Abdullah1738/itheum-agent/offchain/agent"
	"github.com/Abdullah1738/itheum-agent/offchain/deployments"
	"github.com/Abdullah1738/itheum-agent/offchain/marshal"
	"github.com/Abdullah1738/itheum-agent/offchain/mint"
	"github.com/Abdullah1738/itheum-agent/offchain/playlist"
	"github.com/Abdullah1738/itheum-agent/offchain/storage"
	"github.com/Abdullah1738/itheum-agent/offchain/wallet"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, stdout io.Writer) error {
	if len(argv) == 0 || argv[0] == "-h" || argv[0] == "--help" || argv[0] == "help" {
		usage(stdout)
		return nil
	}

	switch argv[0] {
	case "balance":
		return runBalance(ctx, argv[1:], stdout)
	case "credits":
		return runCredits(ctx, argv[1:], stdout)
	case "pay":
		return runPay(ctx, argv[1:], stdout)
	case "upload":
		return runUpload(ctx, argv[1:], stdout)
	case "mint":
		return runMint(ctx, argv[1:], stdout)
	case "journal":
		return runJournal(ctx, argv[1:], stdout)
	case "encrypt":
		return runEncrypt(ctx, argv[1:], stdout)
	case "decrypt":
		return runDecrypt(ctx, argv[1:], stdout)
	case "deployments":
		return runDeployments(argv[1:], stdout)
	case "keygen":
		return runKeygen(argv[1:], stdout)
	default:
		return fmt.Errorf("unknown command: %s", argv[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "itheum-agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  itheum-agent balance")
	fmt.Fprintln(w, "  itheum-agent credits --operations <n>")
	fmt.Fprintln(w, "  itheum-agent pay --operations <n>")
	fmt.Fprintln(w, "  itheum-agent upload --folder <dir> --name <playlist> --creator <name>")
	fmt.Fprintln(w, "  itheum-agent mint --nft <nft.yaml> [--token-name <name>] [--quantity <n>] [--seller-fee-bps <bps>]")
	fmt.Fprintln(w, "  itheum-agent journal [--unfinished] [--limit <n>]")
	fmt.Fprintln(w, "  itheum-agent encrypt --stream-url <url> [--sol-address <base58>]")
	fmt.Fprintln(w, "  itheum-agent decrypt --message <encrypted>")
	fmt.Fprintln(w, "  itheum-agent deployments [--deployment-file <path>]")
	fmt.Fprintln(w, "  itheum-agent keygen [--out <path>] [--force]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Common flags:")
	fmt.Fprintln(w, "  --config, --deployment, --deployment-file, --keypair, --priority-level, --log-level, --trace-exporter")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  ITHEUM_CONFIG, SOLANA_RPC_URL, ITHEUM_API_BASE, ITHEUM_KEYPAIR, ITHEUM_LOG_LEVEL")
	fmt.Fprintln(w, "  HELIUS_RPC_URL or HELIUS_API_KEY (+ HELIUS_CLUSTER) for --priority-level")
	fmt.Fprintln(w, "  OTEL_TRACES_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT for span export")
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func runBalance(ctx context.Context, argv []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("balance")
	common.register(fs)
	if err := fs.Parse(argv); err != nil {
		return err
	}

	a, err := newApp(ctx, &common)
	if err != nil {
		return err
	}
	defer a.Close()

	tokens, err := a.engine.SyncBalance(ctx).Unwrap()
	if err != nil {
		return err
	}
	lamports, err := a.rpc.BalanceLamports(ctx, a.wallet.Address())
	if err != nil {
		return err
	}
	return printJSON(stdout, map[string]any{
		"owner":       a.wallet.Address(),
		"deployment":  a.deployment.Name,
		"token_mint":  a.deployment.TokenMint,
		"tokens":      protocol.FromSubUnits(tokens, a.deployment.TokenDecimals).String(),
		"token_units": tokens,
		"lamports":    lamports,
	})
}

func runCredits(ctx context.Context, argv []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("credits")
	common.register(fs)
	ops := fs.Int("operations", 1, "Number of billable operations")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if *ops <= 0 {
		return errors.New("--operations must be > 0")
	}

	a, err := newApp(ctx, &common)
	if err != nil {
		return err
	}
	defer a.Close()

	req, err := a.engine.HandleCredits(ctx, *ops).Unwrap()
	if err != nil {
		return err
	}
	return printJSON(stdout, map[string]any{
		"operations":           *ops,
		"required_amount":      req.RequiredAmount.String(),
		"needs_token_purchase": req.NeedsTokenPurchase,
		"amount_to_purchase":   req.AmountToPurchase.String(),
	})
}

func runPay(ctx context.Context, argv []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("pay")
	common.register(fs)
	ops := fs.Int("operations", 1, "Number of billable operations")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if *ops <= 0 {
		return errors.New("--operations must be > 0")
	}

	a, err := newApp(ctx, &common)
	if err != nil {
		return err
	}
	defer a.Close()

	stopSpinner := spinner(fmt.Sprintf("settling %d operation(s)", *ops))
	sig, err := a.engine.HandlePayment(ctx, *ops).Unwrap()
	stopSpinner()
	if err != nil {
		return err
	}
	out := map[string]string{"signature": sig}
	if a.deployment.ExplorerTxURL != "" {
		out["explorer"] = a.deployment.ExplorerTxURL + sig
	}
	return printJSON(stdout, out)
}

func runUpload(ctx context.Context, argv []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("upload")
	common.register(fs)
	folder := fs.String("folder", "", "Playlist folder (info.json, audio/, images/)")
	name := fs.String("name", "", "Playlist name")
	creator := fs.String("creator", "", "Playlist creator")
	maxEdge := fs.Int("max-cover-edge", playlist.DefaultMaxCoverEdge, "Downscale cover art beyond this edge (negative disables)")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if strings.TrimSpace(*folder) == "" {
		return errors.New("--folder is required")
	}

	a, err := newApp(ctx, &common)
	if err != nil {
		return err
	}
	defer a.Close()

	pl, err := playlist.Build(*folder, *name, *creator, playlist.Options{MaxCoverEdge: *maxEdge, Log: a.log})
	if err != nil {
		return err
	}
	m := a.manager()

	stopSpinner := spinner(fmt.Sprintf("uploading %d file(s)", len(pl.Audio)+len(pl.Images)))
	res, err := m.UploadMusicFiles(ctx, pl.Files(), pl.Config)
	stopSpinner()
	if err != nil {
		return err
	}
	return printJSON(stdout, map[string]any{
		"ipns_hash":         res.IPNSHash,
		"pointing_hash":     res.PointingHash,
		"payment_signature": res.PaymentSignature,
		"uploaded":          len(res.Uploaded),
	})
}

func runMint(ctx context.Context, argv []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("mint")
	common.register(fs)
	nftPath := fs.String("nft", "", "NFT metadata file (YAML)")
	tokenName := fs.String("token-name", "", "Token name (default: metadata name)")
	recipient := fs.String("recipient", "", "Mint recipient (default: wallet address)")
	quantity := fs.Int("quantity", 1, "Copies to mint")
	sellerFee := fs.Uint("seller-fee-bps", 0, "Seller fee basis points")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if strings.TrimSpace(*nftPath) == "" {
		return errors.New("--nft is required")
	}
	if *sellerFee > 10_000 {
		return errors.New("--seller-fee-bps must be <= 10000")
	}

	raw, err := os.ReadFile(*nftPath)
	if err != nil {
		return err
	}
	var nft protocol.MusicNFTConfig
	if err := yaml.Unmarshal(raw, &nft); err != nil {
		return fmt.Errorf("decode %s: %w", *nftPath, err)
	}

	a, err := newApp(ctx, &common)
	if err != nil {
		return err
	}
	defer a.Close()

	stopSpinner := spinner("minting " + nft.Name)
	res, err := a.manager().MintMusicNFT(ctx, nft, protocol.MintConfig{
		MintForSolAddr:       *recipient,
		TokenName:            *tokenName,
		SellerFeeBasisPoints: protocol.Bps(*sellerFee),
		Quantity:             *quantity,
	})
	stopSpinner()
	if err != nil {
		return err
	}
	return printJSON(stdout, map[string]any{
		"asset_ids":         res.AssetIDs,
		"metadata_url":      res.MetadataURL,
		"payment_signature": res.PaymentSignature,
	})
}

func runJournal(ctx context.Context, argv []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("journal")
	common.register(fs)
	unfinished := fs.Bool("unfinished", false, "Only settlements that never reached done or failed")
	limit := fs.Int("limit", 20, "Max records")
	if err := fs.Parse(argv); err != nil {
		return err
	}

	a, err := newApp(ctx, &common)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.journal == nil {
		return errors.New("journal is disabled")
	}

	owner := a.wallet.PublicKey()
	if *unfinished {
		recs, err := a.journal.Unfinished(ctx, owner)
		if err != nil {
			return err
		}
		return printJSON(stdout, recs)
	}
	recs, err := a.journal.Recent(ctx, owner, *limit)
	if err != nil {
		return err
	}
	return printJSON(stdout, recs)
}

func runEncrypt(ctx context.Context, argv []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("encrypt")
	common.register(fs)
	streamURL := fs.String("stream-url", "", "Data stream URL to encrypt")
	solAddr := fs.String("sol-address", "", "Creator address (default: wallet address)")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if strings.TrimSpace(*streamURL) == "" {
		return errors.New("--stream-url is required")
	}

	a, err := newApp(ctx, &common)
	if err != nil {
		return err
	}
	defer a.Close()

	if *solAddr == "" {
		*solAddr = a.wallet.Address()
	}
	res, err := marshal.New(a.deployment.MarshalAPIBase, nil).Encrypt(ctx, marshal.EncryptRequest{
		DataNFTStreamURL:      *streamURL,
		DataCreatorSOLAddress: *solAddr,
	})
	if err != nil {
		return err
	}
	return printJSON(stdout, res)
}

func runDecrypt(ctx context.Context, argv []string, stdout io.Writer) error {
	var common commonFlags
	fs := newFlagSet("decrypt")
	common.register(fs)
	message := fs.String("message", "", "Encrypted message")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if strings.TrimSpace(*message) == "" {
		return errors.New("--message is required")
	}

	a, err := newApp(ctx, &common)
	if err != nil {
		return err
	}
	defer a.Close()

	raw, err := marshal.New(a.deployment.MarshalAPIBase, nil).Decrypt(ctx, *message)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runDeployments(argv []string, stdout io.Writer) error {
	fs := newFlagSet("deployments")
	file := fs.String("deployment-file", "", "Extra deployments registry (YAML or JSON)")
	if err := fs.Parse(argv); err != nil {
		return err
	}

	reg := deployments.Builtin()
	if *file != "" {
		extra, err := deployments.Load(*file)
		if err != nil {
			return err
		}
		reg = reg.Merge(extra)
	}
	return printJSON(stdout, reg)
}

func runKeygen(argv []string, stdout io.Writer) error {
	fs := newFlagSet("keygen")
	out := fs.String("out", wallet.DefaultKeypairPath(), "Keypair output path")
	force := fs.Bool("force", false, "Overwrite an existing keypair")
	if err := fs.Parse(argv); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return errors.New("--out is required")
	}

	w, err := wallet.Generate(*out, *force)
	if err != nil {
		return err
	}
	return printJSON(stdout, map[string]string{
		"address": w.Address(),
		"keypair": *out,
	})
}

func (a *app) manager() *agent.Manager {
	return agent.New(
		a.engine,
		storage.New(a.deployment.APIBase, nil),
		mint.New(a.deployment.APIBase, nil),
		a.deployment.IPFSGateway,
		a.log,
	)
}

// spinner draws an indeterminate progress bar on stderr until the returned
// func is called.
func spinner(description string) func() {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		t := time.NewTicker(100 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				_ = bar.Add(1)
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
		_ = bar.Finish()
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
