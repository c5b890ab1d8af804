package health

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// DimensionScorer turns a metrics snapshot into one dimension's score.
// Implementations are pure: same snapshot, same score.
type DimensionScorer interface {
	Dimension() domain.HealthDimension
	Score(snap MetricsSnapshot) domain.DimensionScore
}

// Penalty weights applied inside the scorers. A timed-out request hurts
// availability more than a retried one; a fatal error hurts the error
// rate more than a recoverable one.
const (
	timeoutPenaltyWeight   = 0.5
	retryPenaltyWeight     = 0.25
	emptyResponsePenalty   = 25.0
	recoverableErrorWeight = 0.4
	// Standard scale factor relating MAD to the normal distribution.
	madZScale = 0.6745
)

// AvailabilityScorer scores the share of successful requests, penalized
// by timeout and retry ratios.
type AvailabilityScorer struct {
	minSamples int
}

// NewAvailabilityScorer creates an availability scorer.
func NewAvailabilityScorer(minSamples int) *AvailabilityScorer {
	return &AvailabilityScorer{minSamples: minSamples}
}

// Dimension implements DimensionScorer.
func (s *AvailabilityScorer) Dimension() domain.HealthDimension {
	return domain.HealthAvailability
}

// Score implements DimensionScorer.
func (s *AvailabilityScorer) Score(snap MetricsSnapshot) domain.DimensionScore {
	total := len(snap.Requests)
	if total < s.minSamples {
		return insufficient(domain.HealthAvailability, total, s.minSamples)
	}

	var success, timeouts, retries int
	for _, r := range snap.Requests {
		if r.Success {
			success++
		}
		if r.TimedOut {
			timeouts++
		}
		if r.Retried {
			retries++
		}
	}

	successRate := float64(success) / float64(total)
	timeoutRatio := float64(timeouts) / float64(total)
	retryRatio := float64(retries) / float64(total)

	score := successRate * 100 * (1 - timeoutPenaltyWeight*timeoutRatio - retryPenaltyWeight*retryRatio)
	score = clampScore(score)

	return domain.DimensionScore{
		Dimension: domain.HealthAvailability,
		Score:     score,
		Explanation: fmt.Sprintf("success=%.0f%% timeouts=%.0f%% retries=%.0f%% over %d requests",
			successRate*100, timeoutRatio*100, retryRatio*100, total),
	}
}

// FreshnessScorer scores the age of the newest delivered data against the
// fresh and stale cutoffs, linearly in between.
type FreshnessScorer struct {
	fresh time.Duration
	stale time.Duration
}

// NewFreshnessScorer creates a freshness scorer. Ages at or below fresh
// score 100; ages at or above stale score 0.
func NewFreshnessScorer(fresh, stale time.Duration) *FreshnessScorer {
	return &FreshnessScorer{fresh: fresh, stale: stale}
}

// Dimension implements DimensionScorer.
func (s *FreshnessScorer) Dimension() domain.HealthDimension {
	return domain.HealthFreshness
}

// Score implements DimensionScorer.
func (s *FreshnessScorer) Score(snap MetricsSnapshot) domain.DimensionScore {
	if len(snap.Data) == 0 {
		return insufficient(domain.HealthFreshness, 0, 1)
	}

	var newest time.Time
	for _, d := range snap.Data {
		if d.DataTS.After(newest) {
			newest = d.DataTS
		}
	}

	age := snap.Now.Sub(newest)
	var score float64
	switch {
	case age <= s.fresh:
		score = 100
	case age >= s.stale:
		score = 0
	default:
		score = 100 * float64(s.stale-age) / float64(s.stale-s.fresh)
	}

	return domain.DimensionScore{
		Dimension:   domain.HealthFreshness,
		Score:       clampScore(score),
		Explanation: fmt.Sprintf("newest data age %s (fresh<=%s stale>=%s)", age.Round(time.Millisecond), s.fresh, s.stale),
	}
}

// ConsistencyScorer scores tracked value series by the share of outliers,
// detected with MAD-based modified z-scores.
type ConsistencyScorer struct {
	zThreshold float64
	minSamples int
}

// NewConsistencyScorer creates a consistency scorer flagging values whose
// modified z-score exceeds the threshold.
func NewConsistencyScorer(zThreshold float64, minSamples int) *ConsistencyScorer {
	return &ConsistencyScorer{zThreshold: zThreshold, minSamples: minSamples}
}

// Dimension implements DimensionScorer.
func (s *ConsistencyScorer) Dimension() domain.HealthDimension {
	return domain.HealthConsistency
}

// Score implements DimensionScorer.
func (s *ConsistencyScorer) Score(snap MetricsSnapshot) domain.DimensionScore {
	var total, outliers int
	for _, samples := range snap.Values {
		if len(samples) < s.minSamples {
			continue
		}
		total += len(samples)
		outliers += countOutliers(samples, s.zThreshold)
	}

	if total == 0 {
		return insufficient(domain.HealthConsistency, 0, s.minSamples)
	}

	score := 100 * (1 - float64(outliers)/float64(total))
	return domain.DimensionScore{
		Dimension:   domain.HealthConsistency,
		Score:       clampScore(score),
		Explanation: fmt.Sprintf("%d outliers in %d tracked values (z>%.1f)", outliers, total, s.zThreshold),
	}
}

func countOutliers(samples []ValueSample, zThreshold float64) int {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - median)
	}
	sortedDev := append([]float64(nil), deviations...)
	sort.Float64s(sortedDev)
	mad := stat.Quantile(0.5, stat.Empirical, sortedDev, nil)

	var outliers int
	for i, v := range values {
		if mad == 0 {
			// Degenerate window: any departure from the median is an outlier.
			if deviations[i] != 0 {
				outliers++
			}
			continue
		}
		z := madZScale * (v - median) / mad
		if math.Abs(z) > zThreshold {
			outliers++
		}
	}
	return outliers
}

// CompletenessScorer scores delivered field counts against expectations,
// penalized by the empty-response ratio.
type CompletenessScorer struct {
	minSamples int
}

// NewCompletenessScorer creates a completeness scorer.
func NewCompletenessScorer(minSamples int) *CompletenessScorer {
	return &CompletenessScorer{minSamples: minSamples}
}

// Dimension implements DimensionScorer.
func (s *CompletenessScorer) Dimension() domain.HealthDimension {
	return domain.HealthCompleteness
}

// Score implements DimensionScorer.
func (s *CompletenessScorer) Score(snap MetricsSnapshot) domain.DimensionScore {
	total := len(snap.Data)
	if total < s.minSamples {
		return insufficient(domain.HealthCompleteness, total, s.minSamples)
	}

	var expected, received, empty int
	for _, d := range snap.Data {
		expected += d.FieldsExpected
		received += d.FieldsReceived
		if d.Empty {
			empty++
		}
	}

	var ratio float64 = 1
	if expected > 0 {
		ratio = float64(received) / float64(expected)
	}
	emptyRatio := float64(empty) / float64(total)

	score := ratio*100 - emptyResponsePenalty*emptyRatio
	return domain.DimensionScore{
		Dimension:   domain.HealthCompleteness,
		Score:       clampScore(score),
		Explanation: fmt.Sprintf("fields %d/%d, %d empty of %d deliveries", received, expected, empty, total),
	}
}

// ErrorRateScorer scores the weighted error count against the request
// count. Fatal errors count full weight, recoverable ones less.
type ErrorRateScorer struct {
	minSamples int
}

// NewErrorRateScorer creates an error-rate scorer.
func NewErrorRateScorer(minSamples int) *ErrorRateScorer {
	return &ErrorRateScorer{minSamples: minSamples}
}

// Dimension implements DimensionScorer.
func (s *ErrorRateScorer) Dimension() domain.HealthDimension {
	return domain.HealthErrorRate
}

// Score implements DimensionScorer.
func (s *ErrorRateScorer) Score(snap MetricsSnapshot) domain.DimensionScore {
	requests := len(snap.Requests)
	if requests < s.minSamples {
		return insufficient(domain.HealthErrorRate, requests, s.minSamples)
	}

	var weighted float64
	var fatal int
	for _, e := range snap.Errors {
		if e.Fatal {
			weighted += 1.0
			fatal++
		} else {
			weighted += recoverableErrorWeight
		}
	}

	score := 100 - weighted/float64(requests)*100
	return domain.DimensionScore{
		Dimension:   domain.HealthErrorRate,
		Score:       clampScore(score),
		Explanation: fmt.Sprintf("%d errors (%d fatal) over %d requests", len(snap.Errors), fatal, requests),
	}
}

func insufficient(dim domain.HealthDimension, have, want int) domain.DimensionScore {
	return domain.DimensionScore{
		Dimension:   dim,
		Score:       100,
		Flagged:     true,
		Explanation: fmt.Sprintf("insufficient samples (%d of %d required)", have, want),
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
