package riskscore

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
	"github.com/cuongccna/ProjectBotTrading-sub001/internal/events"
)

// ChangeDetector compares consecutive assessments and surfaces escalations
// as alert candidates. De-escalations update the baseline silently: only
// movement toward danger is worth waking anyone up for.
type ChangeDetector struct {
	mu   sync.Mutex
	prev *domain.RiskAssessment

	em  *events.Manager
	log zerolog.Logger
}

// NewChangeDetector wires the detector to the event manager. A nil manager
// disables emission; Observe still returns the candidates.
func NewChangeDetector(em *events.Manager, log zerolog.Logger) *ChangeDetector {
	return &ChangeDetector{
		em:  em,
		log: log.With().Str("component", "risk_change_detector").Logger(),
	}
}

// Observe ingests the next assessment and returns the escalation
// candidates: one per dimension whose state rose, plus one overall entry
// when the level rose. The first observation sets the baseline and returns
// nothing.
func (d *ChangeDetector) Observe(cur domain.RiskAssessment) []domain.RiskStateChange {
	d.mu.Lock()
	prev := d.prev
	c := cur
	d.prev = &c
	d.mu.Unlock()

	if prev == nil {
		return nil
	}

	var changes []domain.RiskStateChange
	for _, dim := range domain.RiskDimensions {
		p := prev.Dimensions[dim]
		n := cur.Dimensions[dim]
		if n.State > p.State {
			changes = append(changes, domain.RiskStateChange{
				Dimension: dim,
				FromState: p.State,
				ToState:   n.State,
				Reason:    n.Reason,
				At:        cur.EvaluatedAt,
			})
		}
	}
	if cur.Level.Rank() > prev.Level.Rank() {
		changes = append(changes, domain.RiskStateChange{
			Overall:   true,
			FromLevel: prev.Level,
			ToLevel:   cur.Level,
			Reason:    fmt.Sprintf("total risk score rose from %d to %d", prev.Total, cur.Total),
			At:        cur.EvaluatedAt,
		})
	}

	for _, ch := range changes {
		d.emit(ch, cur.Total)
	}
	return changes
}

func (d *ChangeDetector) emit(ch domain.RiskStateChange, total int) {
	d.log.Warn().
		Bool("overall", ch.Overall).
		Str("dimension", string(ch.Dimension)).
		Str("reason", ch.Reason).
		Msg("Risk state escalated")

	if d.em == nil {
		return
	}
	d.em.Emit("riskscore", &events.RiskStateChangedData{
		Dimension: ch.Dimension,
		From:      ch.FromState,
		To:        ch.ToState,
		FromLevel: ch.FromLevel,
		ToLevel:   ch.ToLevel,
		Total:     total,
		Reason:    ch.Reason,
	})
}
