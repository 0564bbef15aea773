// Command litghost-operator is the main entry point for the LitGhost
// operator daemon: the process that holds the enclave's master-key
// handles and drives the manager core's batch loop against a ledger.
//
// Usage:
//
//	litghost-operator [flags]
//
// Flags:
//
//	--datadir          Data directory path (default: ~/.litghost-operator)
//	--ledger           Ledger RPC endpoint (default: http://127.0.0.1:8545)
//	--tick             Tick interval (default: 10s)
//	--scan-budget      Deposit scan time budget per tick (default: 3s)
//	--deposit-cap      Max deposits absorbed per tick (default: 256)
//	--chaff-multiplier Target chaff-to-real leaf ratio, 0 = manager default
//	--dry-run          Run against an in-memory ledger fixture (default: true)
//	--verbosity        Log level: debug, info, warn, error (default: info)
//	--metrics          Enable the Prometheus metrics endpoint
//	--metrics-addr     Prometheus metrics listen address
//	--tee-priv         Hex-encoded 32-byte TEE private key (required unless dry-run)
//	--user-master-key  Hex-encoded 32-byte user-master key (required unless dry-run)
//	--version          Print version and exit
package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	litlog "github.com/litghost/manager/log"
	"github.com/litghost/manager/metrics"
	"github.com/litghost/manager/node"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// cliConfig bundles the node.Config with the secret material and flags
// that aren't part of Config itself.
type cliConfig struct {
	node.Config
	teePrivHex    string
	userMasterHex string
}

// run is the actual entry point, returning an exit code. Accepts CLI
// arguments (without the program name) so it can be tested in isolation.
func run(args []string) int {
	cfg, exit, code := parseFlags(args)
	if exit {
		return code
	}

	litlog.SetDefault(litlog.New(logLevel(cfg.LogLevel)))
	logger := litlog.Default().Module("main")

	logger.Info("litghost-operator starting", "version", version, "commit", commit)
	logger.Info("configuration",
		"datadir", cfg.DataDir,
		"ledger", cfg.LedgerEndpoint,
		"tick", cfg.TickInterval,
		"scan_budget", cfg.ScanTimeBudget,
		"deposit_cap", cfg.DepositCap,
		"chaff_multiplier", cfg.ChaffMultiplier,
		"dry_run", cfg.DryRun,
		"metrics", cfg.Metrics,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	teePriv, userMaster, err := resolveSecrets(cfg)
	if err != nil {
		logger.Error("invalid secrets", "error", err)
		return 1
	}

	n, err := node.New(&cfg.Config, nil, teePriv, userMaster)
	if err != nil {
		logger.Error("failed to create node", "error", err)
		return 1
	}

	if cfg.Metrics {
		startMetricsServer(logger, cfg.MetricsAddr)
	}

	if err := n.Start(); err != nil {
		logger.Error("failed to start operator", "error", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig.String())

	if err := n.Stop(); err != nil {
		logger.Error("error during shutdown", "error", err)
		return 1
	}

	logger.Info("shutdown complete")
	return 0
}

// startMetricsServer serves the Prometheus /metrics endpoint over the
// default registry in the background. Bind failures are logged but
// don't prevent the operator from starting, since metrics are
// diagnostic rather than load-bearing.
func startMetricsServer(logger *litlog.Logger, addr string) {
	exporter := metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())
	srv := &http.Server{Addr: addr, Handler: exporter.Handler()}
	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
}

// resolveSecrets decodes the hex-encoded master keys, or synthesizes
// deterministic placeholders in dry-run mode when none were supplied.
func resolveSecrets(cfg cliConfig) (teePriv, userMaster [32]byte, err error) {
	if cfg.teePrivHex == "" || cfg.userMasterHex == "" {
		if !cfg.DryRun {
			return teePriv, userMaster, fmt.Errorf("--tee-priv and --user-master-key are required unless --dry-run")
		}
		copy(teePriv[:], "litghost-dry-run-tee-priv-000000")
		copy(userMaster[:], "litghost-dry-run-user-master-000")
		return teePriv, userMaster, nil
	}

	tp, err := decodeKey(cfg.teePrivHex)
	if err != nil {
		return teePriv, userMaster, fmt.Errorf("--tee-priv: %w", err)
	}
	um, err := decodeKey(cfg.userMasterHex)
	if err != nil {
		return teePriv, userMaster, fmt.Errorf("--user-master-key: %w", err)
	}
	return tp, um, nil
}

func decodeKey(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != 32 {
		return out, fmt.Errorf("want 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseFlags parses CLI arguments into a cliConfig. Returns the config,
// whether the caller should exit immediately, and the exit code.
func parseFlags(args []string) (cliConfig, bool, int) {
	cfg := cliConfig{Config: node.DefaultConfig()}
	cfg.DryRun = true

	fs := newFlagSet(&cfg)
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cfg, true, 2
	}

	if *showVersion {
		fmt.Printf("litghost-operator %s (commit %s)\n", version, commit)
		return cfg, true, 0
	}

	return cfg, false, 0
}

// newFlagSet creates a flag.FlagSet that binds all CLI flags to the
// given cliConfig. The FlagSet uses ContinueOnError so callers control
// the error handling behavior.
func newFlagSet(cfg *cliConfig) *flagSet {
	fs := newCustomFlagSet("litghost-operator")
	fs.StringVar(&cfg.DataDir, "datadir", cfg.DataDir, "data directory path")
	fs.StringVar(&cfg.LedgerEndpoint, "ledger", cfg.LedgerEndpoint, "ledger RPC endpoint")
	fs.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "tick interval")
	fs.DurationVar(&cfg.ScanTimeBudget, "scan-budget", cfg.ScanTimeBudget, "deposit scan time budget per tick")
	fs.IntVar(&cfg.DepositCap, "deposit-cap", cfg.DepositCap, "max deposits absorbed per tick")
	fs.IntVar(&cfg.ChaffMultiplier, "chaff-multiplier", cfg.ChaffMultiplier, "target chaff-to-real leaf ratio, 0 = manager default")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "run against an in-memory ledger fixture")
	fs.StringVar(&cfg.LogLevel, "verbosity", cfg.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&cfg.Metrics, "metrics", cfg.Metrics, "enable the Prometheus metrics endpoint")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address")
	fs.StringVar(&cfg.teePrivHex, "tee-priv", "", "hex-encoded 32-byte TEE private key")
	fs.StringVar(&cfg.userMasterHex, "user-master-key", "", "hex-encoded 32-byte user-master key")
	return fs
}
