package di

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/database"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/marketdata"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/riskbudget"
)

// candleRetention bounds the market-history store. The guard and the
// volatility assessor only ever read recent candles.
const candleRetention = 30 * 24 * time.Hour

// Jobs is the maintenance cron: hourly WAL checkpoints on both databases,
// a nightly candle prune, and the budget rollover at the daily reset hour.
// It runs as the "maintenance" module under the registry.
type Jobs struct {
	cron *cron.Cron
	clk  clock.Clock
	log  zerolog.Logger
}

// RegisterJobs builds the maintenance schedule. Entries run in UTC; the
// budget reset hour is a UTC hour by contract.
func RegisterJobs(container *Container, cfg *config.Config, clk clock.Clock, log zerolog.Logger) (*Jobs, error) {
	j := &Jobs{
		cron: cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		clk:  clk,
		log:  log.With().Str("component", "maintenance").Logger(),
	}

	dbs := []*database.DB{container.AuditDB, container.StateDB}
	if _, err := j.cron.AddFunc("0 0 * * * *", func() { j.checkpoint(dbs) }); err != nil {
		return nil, fmt.Errorf("failed to schedule WAL checkpoint: %w", err)
	}
	if _, err := j.cron.AddFunc("0 30 0 * * *", func() { j.pruneCandles(container.Market) }); err != nil {
		return nil, fmt.Errorf("failed to schedule candle prune: %w", err)
	}
	rollover := fmt.Sprintf("0 0 %d * * *", cfg.Budget.DailyResetHourUTC)
	if _, err := j.cron.AddFunc(rollover, func() { j.rollover(container.Budget) }); err != nil {
		return nil, fmt.Errorf("failed to schedule daily rollover: %w", err)
	}

	container.Jobs = j
	return j, nil
}

// Name implements domain.Module.
func (j *Jobs) Name() string { return "maintenance" }

// Start begins the schedule.
func (j *Jobs) Start() error {
	j.cron.Start()
	j.log.Info().Int("entries", len(j.cron.Entries())).Msg("Maintenance jobs started")
	return nil
}

// Stop halts the schedule and waits for a running job to finish.
func (j *Jobs) Stop() error {
	<-j.cron.Stop().Done()
	j.log.Info().Msg("Maintenance jobs stopped")
	return nil
}

// Health implements domain.Module.
func (j *Jobs) Health() domain.ModuleHealth {
	return domain.ModuleHealth{
		Status:        domain.ModuleOK,
		LastHeartbeat: j.clk.Now().UTC(),
	}
}

func (j *Jobs) checkpoint(dbs []*database.DB) {
	for _, db := range dbs {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
	}
}

func (j *Jobs) pruneCandles(market *marketdata.Store) {
	pruned, err := market.PruneCandles(j.clk.Now().UTC().Add(-candleRetention))
	if err != nil {
		j.log.Error().Err(err).Msg("Candle prune failed")
		return
	}
	if pruned > 0 {
		j.log.Info().Int64("rows", pruned).Msg("Pruned old candles")
	}
}

func (j *Jobs) rollover(budget *riskbudget.Manager) {
	usage := budget.RolloverDaily()
	j.log.Info().Str("date", usage.Date).Msg("Daily budget rolled over")
}
