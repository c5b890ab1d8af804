package monitors

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/rs/zerolog"
)

// IngestSnapshot describes the ingestion pipeline's recent activity.
type IngestSnapshot struct {
	// LatestData maps each required feed to its newest data timestamp.
	// A zero time means the feed has delivered nothing yet.
	LatestData map[string]time.Time
	// SchemaMismatches counts payloads rejected for shape since start.
	SchemaMismatches int
	// ConsecutiveFailures counts ingestion attempts failed in a row.
	ConsecutiveFailures int
}

// IngestSource supplies the data-integrity monitor's snapshot.
type IngestSource interface {
	IngestSnapshot() IngestSnapshot
}

// DataIntegrity halts when required feeds go missing or stale, when
// payload schemas stop matching, or when ingestion keeps failing.
// Staleness resolves on its own once data resumes, so it asks for SOFT;
// a schema mismatch means code and data disagree and needs a human.
type DataIntegrity struct {
	cfg    config.MonitorConfig
	source IngestSource
	clk    clock.Clock
	log    zerolog.Logger
}

// NewDataIntegrity creates the data-integrity monitor.
func NewDataIntegrity(cfg config.MonitorConfig, source IngestSource, clk clock.Clock, log zerolog.Logger) *DataIntegrity {
	return &DataIntegrity{
		cfg:    cfg,
		source: source,
		clk:    clk,
		log:    log.With().Str("monitor", "data_integrity").Logger(),
	}
}

func (m *DataIntegrity) ID() string              { return "data_integrity" }
func (m *DataIntegrity) Interval() time.Duration { return m.cfg.DataIntegrityInterval }

func (m *DataIntegrity) Check(_ context.Context) domain.MonitorResult {
	started := m.clk.Now().UTC()
	snap := m.source.IngestSnapshot()

	details := map[string]any{
		"feeds":                len(snap.LatestData),
		"schema_mismatches":    snap.SchemaMismatches,
		"consecutive_failures": snap.ConsecutiveFailures,
	}

	if snap.SchemaMismatches > 0 {
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerSchemaMismatch, domain.CategoryDataIntegrity, domain.HaltHard,
			fmt.Sprintf("%d payloads rejected for schema mismatch", snap.SchemaMismatches), details)
	}

	for feed, ts := range snap.LatestData {
		if ts.IsZero() {
			return haltResult(m.ID(), m.clk, started,
				domain.TriggerStaleData, domain.CategoryDataIntegrity, domain.HaltSoft,
				fmt.Sprintf("feed %s has delivered no data", feed), details)
		}
		age := started.Sub(ts)
		if age > m.cfg.MaxDataAge {
			details["stale_feed"] = feed
			details["age_seconds"] = age.Seconds()
			return haltResult(m.ID(), m.clk, started,
				domain.TriggerStaleData, domain.CategoryDataIntegrity, domain.HaltSoft,
				fmt.Sprintf("feed %s is %s old, limit %s", feed, age.Round(time.Second), m.cfg.MaxDataAge), details)
		}
	}

	if snap.ConsecutiveFailures >= m.cfg.MaxIngestionFailures {
		return haltResult(m.ID(), m.clk, started,
			domain.TriggerIngestionFailures, domain.CategoryDataIntegrity, domain.HaltSoft,
			fmt.Sprintf("%d consecutive ingestion failures", snap.ConsecutiveFailures), details)
	}

	return healthyResult(m.ID(), m.clk, started, details)
}
