package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Abdullah1738/itheum-agent/internal/config"
	"github.com/Abdullah1738/itheum-agent/internal/logging"
	"github.com/Abdullah1738/itheum-agent/internal/tracing"
	"github.com/Abdullah1738/itheum-agent/offchain/deployments"
	"github.com/Abdullah1738/itheum-agent/offchain/helius"
	"github.com/Abdullah1738/itheum-agent/offchain/journal"
	"github.com/Abdullah1738/itheum-agent/offchain/jupiter"
	"github.com/Abdullah1738/itheum-agent/offchain/pricing"
	"github.com/Abdullah1738/itheum-agent/offchain/settlement"
	"github.com/Abdullah1738/itheum-agent/offchain/solana"
	"github.com/Abdullah1738/itheum-agent/offchain/solanarpc"
	"github.com/Abdullah1738/itheum-agent/offchain/swap"
	"github.com/Abdullah1738/itheum-agent/offchain/txsubmit"
	"github.com/Abdullah1738/itheum-agent/offchain/wallet"
)

// commonFlags are accepted by every command that touches the network.
type commonFlags struct {
	configPath     string
	deployment     string
	deploymentFile string
	keypair        string
	priorityLevel  string
	logLevel       string
	traceExporter  string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", os.Getenv("ITHEUM_CONFIG"), "Config file (YAML)")
	fs.StringVar(&c.deployment, "deployment", "", "Deployment name (default from config: mainnet)")
	fs.StringVar(&c.deploymentFile, "deployment-file", "", "Extra deployments registry (YAML or JSON)")
	fs.StringVar(&c.keypair, "keypair", "", "Solana keypair path (Solana CLI JSON format)")
	fs.StringVar(&c.priorityLevel, "priority-level", "", "Estimate the priority fee via Helius (Min/Low/Medium/High/VeryHigh/UnsafeMax)")
	fs.StringVar(&c.logLevel, "log-level", "", "Log level (debug/info/warn/error)")
	fs.StringVar(&c.traceExporter, "trace-exporter", "", "Span exporter (none/otlp; default from config or OTEL_TRACES_EXPORTER)")
}

func (c *commonFlags) load() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if c.deployment != "" {
		cfg.Deployment = c.deployment
	}
	if c.deploymentFile != "" {
		cfg.DeploymentFile = c.deploymentFile
	}
	if c.keypair != "" {
		cfg.Keypair = c.keypair
	}
	if c.priorityLevel != "" {
		cfg.Settlement.PriorityLevel = c.priorityLevel
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if c.traceExporter != "" {
		cfg.Tracing.Exporter = c.traceExporter
	}
	return cfg, cfg.Validate()
}

// app is the wired settlement stack for one command invocation.
type app struct {
	cfg        config.Config
	deployment deployments.Deployment
	wallet     *wallet.Wallet
	log        *slog.Logger
	rpc        *solanarpc.Client
	journal    *journal.Store
	engine     *settlement.Engine

	closers []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

func newApp(ctx context.Context, flags *commonFlags) (*app, error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, err
	}
	log, logCloser := logging.New(cfg.Logging, os.Stderr)
	a := &app{cfg: cfg, log: log, closers: []io.Closer{logCloser}}

	traces, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, traces)

	a.deployment, err = cfg.ResolveDeployment()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.wallet, err = wallet.Load(cfg.Keypair)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("load keypair: %w", err)
	}
	a.log = log.With("deployment", a.deployment.Name)
	a.rpc = solanarpc.New(a.deployment.RPCURL, nil)

	if !cfg.Journal.Disabled {
		a.journal, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, a.journal)
	}

	fee := a.priorityFee(ctx)
	submitter := txsubmit.New(a.rpc, a.wallet, cfg.Submit.Options(), a.log)
	swapper := swap.New(jupiter.New(a.deployment.JupiterQuoteAPI, nil), a.rpc, submitter, swap.Config{
		InputMint:      a.deployment.NativeMint,
		InputDecimals:  a.deployment.NativeDecimals,
		OutputMint:     a.deployment.TokenMint,
		InputBuffer:    cfg.Swap.InputBuffer,
		SlippageBps:    cfg.Swap.SlippageBps,
		PriorityFee:    fee,
		MinInputAmount: cfg.Swap.MinInputAmount,
	}, a.log)

	deps := settlement.Deps{
		Ledger:    a.rpc,
		Oracle:    pricing.New(a.deployment.APIBase, a.deployment.JupiterPriceAPI, nil),
		Swapper:   swapper,
		Submitter: submitter,
	}
	if a.journal != nil {
		deps.Journal = a.journal
	}
	a.engine, err = settlement.New(deps, settlement.Config{
		TokenMint:         a.deployment.TokenMint,
		TokenDecimals:     a.deployment.TokenDecimals,
		CollectionAddress: a.deployment.CollectionAddress,
		NativeMint:        a.deployment.NativeMint,
		Buffer:            cfg.Settlement.Buffer,
		PriorityFee:       fee,
		ExplorerTxURL:     a.deployment.ExplorerTxURL,
	}, a.log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// priorityFee estimates the fee through Helius when a level is configured
// and falls back to the static value on any failure.
func (a *app) priorityFee(ctx context.Context) uint64 {
	static := a.cfg.Settlement.PriorityFee
	if a.cfg.Settlement.PriorityLevel == "" {
		return static
	}
	level, err := helius.ParsePriorityLevel(a.cfg.Settlement.PriorityLevel)
	if err != nil {
		a.log.Warn("ignoring priority level", "err", err)
		return static
	}
	hc, err := helius.ClientFromEnv()
	if err != nil {
		a.log.Warn("helius unavailable, using static priority fee", "err", err, "priority_fee", static)
		return static
	}
	fee, err := hc.PriorityFee(ctx, level, []solana.Pubkey{
		a.wallet.PublicKey(),
		a.deployment.TokenMint,
		a.deployment.CollectionAddress,
	})
	if err != nil || fee == 0 {
		a.log.Warn("priority fee estimate failed, using static fee", "err", err, "priority_fee", static)
		return static
	}
	a.log.Debug("priority fee estimated", "level", string(level), "micro_lamports", fee)
	return fee
}
