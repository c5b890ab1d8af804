package monitors

import (
	"context"
	"testing"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeExecution struct {
	snap ExecutionSnapshot
}

func (f *fakeExecution) ExecutionSnapshot() ExecutionSnapshot { return f.snap }

func TestExecutionHealthy(t *testing.T) {
	clk := testClock()
	source := &fakeExecution{snap: ExecutionSnapshot{
		Rejections:       []time.Time{clk.Now().Add(-time.Minute)},
		WorstSlippagePct: 0.2,
	}}

	m := NewExecution(testMonitorConfig(), source, clk, zerolog.Nop())
	requireHealthy(t, m.Check(context.Background()))
}

func TestExecutionPositionMismatch(t *testing.T) {
	clk := testClock()
	source := &fakeExecution{snap: ExecutionSnapshot{
		PositionMismatch: true,
		MismatchDetail:   "BTCUSDT tracker=0.010 exchange=0.000",
	}}

	m := NewExecution(testMonitorConfig(), source, clk, zerolog.Nop())
	res := m.Check(context.Background())
	requireHalt(t, res, domain.TriggerPositionMismatch, domain.HaltHard)
	assert.Equal(t, domain.CategoryExecution, res.Trigger.Category)
}

func TestExecutionRejectionBurst(t *testing.T) {
	clk := testClock()
	var rejections []time.Time
	for i := 0; i < 5; i++ {
		rejections = append(rejections, clk.Now().Add(-time.Duration(i)*time.Second))
	}
	source := &fakeExecution{snap: ExecutionSnapshot{Rejections: rejections}}

	m := NewExecution(testMonitorConfig(), source, clk, zerolog.Nop())
	requireHalt(t, m.Check(context.Background()), domain.TriggerRejectionBurst, domain.HaltHard)
}

func TestExecutionOldRejectionsFallOutOfWindow(t *testing.T) {
	clk := testClock()
	var rejections []time.Time
	// Four recent, one beyond the 5 minute window.
	for i := 0; i < 4; i++ {
		rejections = append(rejections, clk.Now().Add(-time.Duration(i)*time.Second))
	}
	rejections = append(rejections, clk.Now().Add(-6*time.Minute))
	source := &fakeExecution{snap: ExecutionSnapshot{Rejections: rejections}}

	m := NewExecution(testMonitorConfig(), source, clk, zerolog.Nop())
	requireHealthy(t, m.Check(context.Background()))
}

func TestExecutionStuckOrder(t *testing.T) {
	clk := testClock()
	source := &fakeExecution{snap: ExecutionSnapshot{
		OldestPendingOrder: clk.Now().Add(-2*time.Minute - time.Second),
	}}

	m := NewExecution(testMonitorConfig(), source, clk, zerolog.Nop())
	requireHalt(t, m.Check(context.Background()), domain.TriggerOrderStuck, domain.HaltHard)
}

func TestExecutionPendingOrderWithinLimit(t *testing.T) {
	clk := testClock()
	source := &fakeExecution{snap: ExecutionSnapshot{
		OldestPendingOrder: clk.Now().Add(-time.Minute),
	}}

	m := NewExecution(testMonitorConfig(), source, clk, zerolog.Nop())
	requireHealthy(t, m.Check(context.Background()))
}

func TestExecutionSlippage(t *testing.T) {
	clk := testClock()
	source := &fakeExecution{snap: ExecutionSnapshot{WorstSlippagePct: 1.5}}

	m := NewExecution(testMonitorConfig(), source, clk, zerolog.Nop())
	requireHalt(t, m.Check(context.Background()), domain.TriggerSlippage, domain.HaltSoft)
}
