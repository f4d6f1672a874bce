// Package config loads the agent configuration: a YAML file overlaid on
// defaults, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Abdullah1738/itheum-agent/internal/logging"
	"github.com/Abdullah1738/itheum-agent/internal/tracing"
	"github.com/Abdullah1738/itheum-agent/offchain/deployments"
	"github.com/Abdullah1738/itheum-agent/offchain/helius"
	"github.com/Abdullah1738/itheum-agent/offchain/journal"
	"github.com/Abdullah1738/itheum-agent/offchain/settlement"
	"github.com/Abdullah1738/itheum-agent/offchain/swap"
	"github.com/Abdullah1738/itheum-agent/offchain/txsubmit"
	"github.com/Abdullah1738/itheum-agent/offchain/wallet"
	"github.com/Abdullah1738/itheum-agent/protocol"
)

type Settlement struct {
	Buffer      decimal.Decimal `yaml:"buffer"`
	PriorityFee uint64          `yaml:"priority_fee"`
	// PriorityLevel, when set, replaces PriorityFee with a Helius estimate.
	PriorityLevel string `yaml:"priority_level"`
}

type Swap struct {
	InputBuffer    decimal.Decimal `yaml:"input_buffer"`
	SlippageBps    protocol.Bps    `yaml:"slippage_bps"`
	MinInputAmount uint64          `yaml:"min_input_amount"`
}

type Submit struct {
	SettleDelay  time.Duration `yaml:"settle_delay"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

func (s Submit) Options() txsubmit.Options {
	return txsubmit.Options{SettleDelay: s.SettleDelay, PollInterval: s.PollInterval, MaxAttempts: s.MaxAttempts}
}

type Journal struct {
	Path     string `yaml:"path"`
	Disabled bool   `yaml:"disabled"`
}

type Config struct {
	Deployment     string `yaml:"deployment"`
	DeploymentFile string `yaml:"deployment_file"`
	Keypair        string `yaml:"keypair"`
	// RPCURL and APIBase override the deployment's values.
	RPCURL  string `yaml:"rpc_url"`
	APIBase string `yaml:"api_base"`

	Settlement Settlement     `yaml:"settlement"`
	Swap       Swap           `yaml:"swap"`
	Submit     Submit         `yaml:"submit"`
	Journal    Journal        `yaml:"journal"`
	Logging    logging.Config `yaml:"logging"`
	Tracing    tracing.Config `yaml:"tracing"`
}

func Default() Config {
	submit := txsubmit.DefaultOptions()
	journalPath, _ := journal.DefaultPath()
	return Config{
		Deployment: "mainnet",
		Keypair:    wallet.DefaultKeypairPath(),
		Settlement: Settlement{
			Buffer:      settlement.DefaultBuffer(),
			PriorityFee: settlement.DefaultPriorityFee,
		},
		Swap: Swap{
			InputBuffer:    swap.DefaultInputBuffer(),
			SlippageBps:    swap.DefaultSlippageBps,
			MinInputAmount: swap.DefaultMinInputAmount,
		},
		Submit: Submit{
			SettleDelay:  submit.SettleDelay,
			PollInterval: submit.PollInterval,
			MaxAttempts:  submit.MaxAttempts,
		},
		Journal: Journal{Path: journalPath},
		Logging: logging.Config{Level: "info"},
	}
}

// Load overlays the YAML file at path (skipped when empty) on Default, then
// applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	overrideWithEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func overrideWithEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SOLANA_RPC_URL")); v != "" {
		cfg.RPCURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ITHEUM_API_BASE")); v != "" {
		cfg.APIBase = v
	}
	if v := strings.TrimSpace(os.Getenv("ITHEUM_KEYPAIR")); v != "" {
		cfg.Keypair = v
	}
	if v := strings.TrimSpace(os.Getenv("ITHEUM_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Deployment) == "" {
		errs = append(errs, errors.New("deployment required"))
	}
	if c.Settlement.Buffer.IsNegative() {
		errs = append(errs, errors.New("settlement.buffer must not be negative"))
	}
	if c.Settlement.PriorityLevel != "" {
		if _, err := helius.ParsePriorityLevel(c.Settlement.PriorityLevel); err != nil {
			errs = append(errs, fmt.Errorf("settlement.priority_level: %w", err))
		}
	}
	if c.Swap.InputBuffer.IsNegative() {
		errs = append(errs, errors.New("swap.input_buffer must not be negative"))
	}
	if !c.Swap.SlippageBps.IsValid() {
		errs = append(errs, fmt.Errorf("swap.slippage_bps: %w", protocol.ErrInvalidBps))
	}
	if c.Submit.SettleDelay < 0 || c.Submit.PollInterval < 0 {
		errs = append(errs, errors.New("submit delays must not be negative"))
	}
	if c.Submit.MaxAttempts <= 0 {
		errs = append(errs, errors.New("submit.max_attempts must be positive"))
	}
	if !c.Journal.Disabled && strings.TrimSpace(c.Journal.Path) == "" {
		errs = append(errs, errors.New("journal.path required unless journal.disabled"))
	}
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	return errors.Join(errs...)
}

// ResolveDeployment picks the configured deployment from the built-in
// registry overlaid with DeploymentFile, then applies the RPC and API
// overrides.
func (c Config) ResolveDeployment() (deployments.Deployment, error) {
	reg := deployments.Builtin()
	if c.DeploymentFile != "" {
		file, err := deployments.Load(c.DeploymentFile)
		if err != nil {
			return deployments.Deployment{}, err
		}
		reg = reg.Merge(file)
	}
	d, err := reg.FindByName(c.Deployment)
	if err != nil {
		return deployments.Deployment{}, err
	}
	if c.RPCURL != "" {
		d.RPCURL = c.RPCURL
	}
	if c.APIBase != "" {
		d.APIBase = c.APIBase
	}
	if err := d.Validate(); err != nil {
		return deployments.Deployment{}, err
	}
	return d, nil
}
