package monitors

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/clock"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/config"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/database"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// infraProbes are the host samplers; tests replace them.
type infraProbes struct {
	cpuPercent  func() (float64, error)
	memPercent  func() (float64, error)
	diskPercent func(path string) (float64, error)
}

func defaultProbes() infraProbes {
	return infraProbes{
		cpuPercent: func() (float64, error) {
			// 100ms sample keeps the check fast while staying accurate
			// enough for a 95% threshold.
			percents, err := cpu.Percent(100*time.Millisecond, false)
			if err != nil {
				return 0, err
			}
			if len(percents) == 0 {
				return 0, nil
			}
			return percents[0], nil
		},
		memPercent: func() (float64, error) {
			stat, err := mem.VirtualMemory()
			if err != nil {
				return 0, err
			}
			return stat.UsedPercent, nil
		},
		diskPercent: func(path string) (float64, error) {
			stat, err := disk.Usage(path)
			if err != nil {
				return 0, err
			}
			return stat.UsedPercent, nil
		},
	}
}

// Infrastructure watches the host and the databases. A database that
// stops answering loses the audit trail, so connectivity and error bursts
// demand HARD, as do a full disk and a skewed clock. CPU and memory
// pressure pass once load drops and ask for SOFT. Failing to sample a
// host metric is logged and skipped, never escalated.
type Infrastructure struct {
	cfg      config.MonitorConfig
	dataDir  string
	dbs      []*database.DB
	dbErrors func() int           // recent DB error count; nil disables the burst check
	skew     func() time.Duration // external clock skew estimate; nil disables the check
	probes   infraProbes
	clk      clock.Clock
	log      zerolog.Logger
}

// NewInfrastructure creates the infrastructure monitor. dbErrors and skew
// may be nil when no counter or external time reference is wired.
func NewInfrastructure(cfg config.MonitorConfig, dataDir string, dbs []*database.DB, dbErrors func() int, skew func() time.Duration, clk clock.Clock, log zerolog.Logger) *Infrastructure {
	return &Infrastructure{
		cfg:      cfg,
		dataDir:  dataDir,
		dbs:      dbs,
		dbErrors: dbErrors,
		skew:     skew,
		probes:   defaultProbes(),
		clk:      clk,
		log:      log.With().Str("monitor", "infrastructure").Logger(),
	}
}

func (m *Infrastructure) ID() string              { return "infrastructure" }
func (m *Infrastructure) Interval() time.Duration { return m.cfg.InfraInterval }

func (m *Infrastructure) Check(ctx context.Context) domain.MonitorResult {
	started := m.clk.Now().UTC()
	details := map[string]any{}

	for _, db := range m.dbs {
		if err := db.QuickCheck(ctx); err != nil {
			details["database"] = db.Name()
			return haltResult(m.ID(), m.clk, started,
				domain.TriggerDBErrors, domain.CategoryInfrastructure, domain.HaltHard,
				fmt.Sprintf("database %s is not answering: %v", db.Name(), err), details)
		}
	}

	if m.dbErrors != nil {
		count := m.dbErrors()
		details["db_errors"] = count
		if count >= m.cfg.DBErrorBurst {
			return haltResult(m.ID(), m.clk, started,
				domain.TriggerDBErrors, domain.CategoryInfrastructure, domain.HaltHard,
				fmt.Sprintf("%d database errors in the recent window", count), details)
		}
	}

	if diskPct, err := m.probes.diskPercent(m.dataDir); err != nil {
		m.log.Warn().Err(err).Msg("Failed to sample disk usage")
	} else {
		details["disk_pct"] = diskPct
		if diskPct > m.cfg.DiskThresholdPct {
			return haltResult(m.ID(), m.clk, started,
				domain.TriggerDiskUsage, domain.CategoryInfrastructure, domain.HaltHard,
				fmt.Sprintf("disk usage %.1f%% exceeds %.1f%%", diskPct, m.cfg.DiskThresholdPct), details)
		}
	}

	if m.skew != nil {
		skew := m.skew()
		if skew < 0 {
			skew = -skew
		}
		details["clock_skew_ms"] = skew.Milliseconds()
		if skew > m.cfg.MaxClockSkew {
			return haltResult(m.ID(), m.clk, started,
				domain.TriggerClockSkew, domain.CategoryInfrastructure, domain.HaltHard,
				fmt.Sprintf("clock skew %s exceeds %s", skew, m.cfg.MaxClockSkew), details)
		}
	}

	if cpuPct, err := m.probes.cpuPercent(); err != nil {
		m.log.Warn().Err(err).Msg("Failed to sample CPU usage")
	} else {
		details["cpu_pct"] = cpuPct
		if cpuPct > m.cfg.CPUThresholdPct {
			return haltResult(m.ID(), m.clk, started,
				domain.TriggerCPUUsage, domain.CategoryInfrastructure, domain.HaltSoft,
				fmt.Sprintf("CPU usage %.1f%% exceeds %.1f%%", cpuPct, m.cfg.CPUThresholdPct), details)
		}
	}

	if memPct, err := m.probes.memPercent(); err != nil {
		m.log.Warn().Err(err).Msg("Failed to sample memory usage")
	} else {
		details["mem_pct"] = memPct
		if memPct > m.cfg.MemThresholdPct {
			return haltResult(m.ID(), m.clk, started,
				domain.TriggerMemoryUsage, domain.CategoryInfrastructure, domain.HaltSoft,
				fmt.Sprintf("memory usage %.1f%% exceeds %.1f%%", memPct, m.cfg.MemThresholdPct), details)
		}
	}

	return healthyResult(m.ID(), m.clk, started, details)
}
