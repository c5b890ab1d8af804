package monitors

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
)

// ExecutionRecorder aggregates order outcomes reported by the execution
// adapter into the execution monitor's snapshot. Rejections and fills are
// kept for one window; pending orders stay until the adapter resolves them;
// a position mismatch stays up until reconciliation clears it.
type ExecutionRecorder struct {
	window time.Duration
	clk    clock.Clock
	log    zerolog.Logger

	mu             sync.Mutex
	rejections     []time.Time
	fills          []fillOutcome
	mismatch       bool
	mismatchDetail string
	pending        map[string]time.Time
}

type fillOutcome struct {
	at          time.Time
	slippagePct float64
}

// NewExecutionRecorder creates a recorder whose rejection and slippage
// history spans the given window.
func NewExecutionRecorder(window time.Duration, clk clock.Clock, log zerolog.Logger) *ExecutionRecorder {
	return &ExecutionRecorder{
		window:  window,
		clk:     clk,
		log:     log.With().Str("component", "execution_recorder").Logger(),
		pending: make(map[string]time.Time),
	}
}

// RecordRejection notes an order the exchange refused.
func (r *ExecutionRecorder) RecordRejection(symbol, reason string) {
	now := r.clk.Now().UTC()
	r.mu.Lock()
	r.rejections = append(r.rejections, now)
	r.prune(now)
	count := len(r.rejections)
	r.mu.Unlock()
	r.log.Warn().
		Str("symbol", symbol).
		Str("reason", reason).
		Int("in_window", count).
		Msg("Order rejected")
}

// RecordFill notes a completed fill and its slippage against the intended
// price. Favorable fills pass zero or negative slippage and never trip the
// cap.
func (r *ExecutionRecorder) RecordFill(symbol string, slippagePct float64) {
	now := r.clk.Now().UTC()
	r.mu.Lock()
	r.fills = append(r.fills, fillOutcome{at: now, slippagePct: slippagePct})
	r.prune(now)
	r.mu.Unlock()
	r.log.Debug().
		Str("symbol", symbol).
		Float64("slippage_pct", slippagePct).
		Msg("Fill recorded")
}

// RecordOrderSubmitted tracks an order until RecordOrderResolved is called
// with the same ID.
func (r *ExecutionRecorder) RecordOrderSubmitted(orderID string) {
	now := r.clk.Now().UTC()
	r.mu.Lock()
	r.pending[orderID] = now
	r.mu.Unlock()
}

// RecordOrderResolved removes a filled or cancelled order from the pending
// set. Unknown IDs are ignored.
func (r *ExecutionRecorder) RecordOrderResolved(orderID string) {
	r.mu.Lock()
	delete(r.pending, orderID)
	r.mu.Unlock()
}

// SetPositionMismatch flags tracker and exchange disagreeing on an open
// position. Mismatches never expire on their own.
func (r *ExecutionRecorder) SetPositionMismatch(detail string) {
	r.mu.Lock()
	r.mismatch = true
	r.mismatchDetail = detail
	r.mu.Unlock()
	r.log.Error().Str("detail", detail).Msg("Position mismatch against exchange")
}

// ClearPositionMismatch removes the flag once reconciliation agrees again.
func (r *ExecutionRecorder) ClearPositionMismatch() {
	r.mu.Lock()
	r.mismatch = false
	r.mismatchDetail = ""
	r.mu.Unlock()
}

// ExecutionSnapshot implements the execution monitor's source.
func (r *ExecutionRecorder) ExecutionSnapshot() ExecutionSnapshot {
	now := r.clk.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(now)

	snap := ExecutionSnapshot{
		Rejections:       append([]time.Time(nil), r.rejections...),
		PositionMismatch: r.mismatch,
		MismatchDetail:   r.mismatchDetail,
	}
	for _, fill := range r.fills {
		if fill.slippagePct > snap.WorstSlippagePct {
			snap.WorstSlippagePct = fill.slippagePct
		}
	}
	for _, submitted := range r.pending {
		if snap.OldestPendingOrder.IsZero() || submitted.Before(snap.OldestPendingOrder) {
			snap.OldestPendingOrder = submitted
		}
	}
	return snap
}

// prune drops rejections and fills older than the window. Caller holds r.mu.
func (r *ExecutionRecorder) prune(now time.Time) {
	cutoff := now.Add(-r.window)

	rejections := r.rejections[:0]
	for _, at := range r.rejections {
		if at.After(cutoff) {
			rejections = append(rejections, at)
		}
	}
	r.rejections = rejections

	fills := r.fills[:0]
	for _, fill := range r.fills {
		if fill.at.After(cutoff) {
			fills = append(fills, fill)
		}
	}
	r.fills = fills
}
