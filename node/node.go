package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/litghost/manager/ledger"
	litlog "github.com/litghost/manager/log"
	"github.com/litghost/manager/manager"
	"github.com/litghost/manager/metrics"
)

// Node is the operator daemon: it owns the master-key handles, drives
// the manager core on a schedule, and submits the resulting batches
// through a Ledger. It never exposes the keys it holds outside of the
// manager call itself.
type Node struct {
	config *Config
	ledger ledger.Ledger
	params manager.Params
	log    *litlog.Logger

	// txSource/payoutSource pull any pending off-chain requests
	// (internal transfers, withdrawal requests) for the next tick.
	// Either may be nil, in which case a tick only processes deposits.
	txSource     func() []manager.Transaction
	payoutSource func() []manager.PayoutRequest

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates a Node that will drive lg with the given master-key
// secrets. config is validated before anything is initialized.
func New(config *Config, lg ledger.Ledger, teePriv, userMasterKey [32]byte) (*Node, error) {
	if config == nil {
		c := DefaultConfig()
		config = &c
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if lg == nil {
		if !config.DryRun {
			return nil, errors.New("node: ledger must not be nil unless dry-run")
		}
		lg = ledger.NewFixture()
	}

	n := &Node{
		config: config,
		ledger: lg,
		params: manager.Params{
			TeePriv:         teePriv,
			UserMasterKey:   userMasterKey,
			ScanTimeBudget:  config.ScanTimeBudget,
			DepositCap:      config.DepositCap,
			ChaffMultiplier: config.ChaffMultiplier,
		},
		log:  litlog.Default().Module("operator").With("name", config.Name),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	return n, nil
}

// SetTransactionSource installs the callback the operator polls each
// tick for pending internal transfers.
func (n *Node) SetTransactionSource(f func() []manager.Transaction) {
	n.txSource = f
}

// SetPayoutSource installs the callback the operator polls each tick
// for pending withdrawal requests.
func (n *Node) SetPayoutSource(f func() []manager.PayoutRequest) {
	n.payoutSource = f
}

// Start begins the ticking loop in a background goroutine. Each tick
// runs one manager invocation to completion, including its
// Ledger.SubmitUpdate call, before the next tick is allowed to start —
// the operator never overlaps batch-planning with in-flight ledger I/O.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return errors.New("node already running")
	}

	if err := n.config.InitDataDir(); err != nil {
		return err
	}

	n.log.Info("starting operator", "tick_interval", n.config.TickInterval, "dry_run", n.config.DryRun)
	n.running = true
	go n.run()
	return nil
}

func (n *Node) run() {
	defer close(n.done)

	ticker := time.NewTicker(n.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stop:
			n.log.Info("operator stop requested, draining current tick")
			return
		case <-ticker.C:
			n.runTick()
		}
	}
}

// runTick executes exactly one manager invocation and, if it produced a
// batch, submits it. Errors are logged and counted but never panic the
// loop; a failed tick simply waits for the next one.
func (n *Node) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), n.config.TickInterval)
	defer cancel()

	start := time.Now()
	var txs []manager.Transaction
	if n.txSource != nil {
		txs = n.txSource()
	}
	var payouts []manager.PayoutRequest
	if n.payoutSource != nil {
		payouts = n.payoutSource()
	}

	result, err := manager.Run(ctx, n.ledger, n.params, txs, payouts)
	metrics.BatchDuration.Observe(float64(time.Since(start).Milliseconds()))
	metrics.TicksRun.Inc()
	if err != nil {
		metrics.TickErrors.Inc()
		n.log.Error("manager invocation failed", "error", err)
		return
	}

	n.logSkipped(result.Skipped)

	if result.Batch == nil {
		metrics.BatchesEmpty.Inc()
		n.log.Debug("tick produced no batch")
		return
	}

	metrics.LeavesTouched.Set(int64(len(result.Batch.Updates)))
	if err := n.ledger.SubmitUpdate(ctx, *result.Batch); err != nil {
		metrics.TickErrors.Inc()
		n.log.Error("submit update failed", "error", err, "op_start", result.Batch.OpStart, "op_count", result.Batch.OpCount)
		return
	}

	metrics.BatchesSubmitted.Inc()
	metrics.LastProcessedBlock.Set(int64(result.Batch.NextBlock))
	n.log.Info("batch submitted",
		"op_start", result.Batch.OpStart,
		"op_count", result.Batch.OpCount,
		"updates", len(result.Batch.Updates),
		"new_users", len(result.Batch.NewUsers),
		"payouts", len(result.Batch.Payouts),
	)
}

func (n *Node) logSkipped(skipped []ledger.Skipped) {
	for _, s := range skipped {
		switch s.Kind {
		case ledger.SkippedDeposit:
			metrics.SkippedDeposits.Inc()
		case ledger.SkippedTransfer:
			metrics.SkippedTransfers.Inc()
		case ledger.SkippedPayout:
			metrics.SkippedPayouts.Inc()
		}
		n.log.Warn("operation skipped", "kind", s.Kind, "reason", s.Reason, "details", s.Details)
	}
}

// Stop signals the loop to exit after draining the current tick and
// waits for it to finish.
func (n *Node) Stop() error {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return nil
	}
	n.running = false
	close(n.stop)
	n.mu.Unlock()

	<-n.done
	n.log.Info("operator stopped")
	return nil
}

// Wait blocks until the operator loop has exited after Stop.
func (n *Node) Wait() {
	<-n.done
}

// Config returns the node configuration.
func (n *Node) Config() *Config {
	return n.config
}

// Running reports whether the operator loop is currently active.
func (n *Node) Running() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}
