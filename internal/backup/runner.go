package backup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// runTimeout caps one backup run end to end, upload included.
const runTimeout = 10 * time.Minute

// Runner executes the backup service on a cron schedule. It implements
// the module contract so the registry starts and stops it with the rest
// of the system; trading never waits on it.
type Runner struct {
	svc           *Service
	schedule      string
	retentionDays int
	cron          *cron.Cron
	log           zerolog.Logger

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// NewRunner schedules the service under the given six-field cron spec.
func NewRunner(svc *Service, schedule string, retentionDays int, log zerolog.Logger) (*Runner, error) {
	r := &Runner{
		svc:           svc,
		schedule:      schedule,
		retentionDays: retentionDays,
		cron:          cron.New(cron.WithSeconds()),
		log:           log.With().Str("component", "backup_runner").Logger(),
	}

	if _, err := r.cron.AddFunc(schedule, r.runOnce); err != nil {
		return nil, fmt.Errorf("failed to schedule backup job: %w", err)
	}

	return r, nil
}

// Name returns the module name.
func (r *Runner) Name() string { return "backup" }

// Start begins the schedule. The first backup runs at the next cron
// tick, not immediately, so startup never waits on an upload.
func (r *Runner) Start() error {
	r.cron.Start()
	r.log.Info().Str("schedule", r.schedule).Msg("Backup schedule started")
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (r *Runner) Stop() error {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.log.Info().Msg("Backup schedule stopped")
	return nil
}

// Health reports the last run's outcome. A runner that has not run yet
// is healthy; backups that keep failing surface here and in metrics.
func (r *Runner) Health() domain.ModuleHealth {
	r.mu.Lock()
	defer r.mu.Unlock()

	health := domain.ModuleHealth{
		Status:        domain.ModuleOK,
		LastHeartbeat: r.lastRun,
	}
	if r.lastErr != nil {
		health.Status = domain.ModuleDegraded
		health.Details = map[string]string{"last_error": r.lastErr.Error()}
	}
	return health
}

// RunNow performs one backup and rotation outside the schedule, for the
// ops API.
func (r *Runner) RunNow(ctx context.Context) error {
	return r.run(ctx)
}

// ListBackups returns the archives currently in the bucket, newest first.
func (r *Runner) ListBackups(ctx context.Context) ([]Info, error) {
	return r.svc.ListBackups(ctx)
}

func (r *Runner) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if err := r.run(ctx); err != nil {
		r.log.Error().Err(err).Msg("Scheduled backup failed")
	}
}

func (r *Runner) run(ctx context.Context) error {
	err := r.svc.CreateAndUploadBackup(ctx)
	if err == nil {
		if rotateErr := r.svc.RotateOldBackups(ctx, r.retentionDays); rotateErr != nil {
			r.log.Error().Err(rotateErr).Msg("Backup rotation failed")
		}
	}

	r.mu.Lock()
	r.lastRun = r.svc.clk.Now()
	r.lastErr = err
	r.mu.Unlock()

	return err
}
