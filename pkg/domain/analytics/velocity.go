// Package analytics provides velocity measurements and tabular sprint statistics
// produced by the prediction engine.
package analytics

import (
	"math"
	"sort"
)

// DefaultConfidence is the confidence level used when persisting velocity bounds.
const DefaultConfidence = 0.95

// defaultSpread is the relative error of a measurement at DefaultConfidence.
const defaultSpread = 0.2

// ConfidenceInterval represents low/expected/high estimates for forecasting.
type ConfidenceInterval struct {
	Low      float64 // Pessimistic estimate
	Expected float64 // Most likely estimate
	High     float64 // Optimistic estimate
}

// Range returns the difference between high and low estimates.
func (ci ConfidenceInterval) Range() float64 {
	return ci.High - ci.Low
}

// IsNarrow returns true if the confidence interval is relatively tight.
func (ci ConfidenceInterval) IsNarrow() bool {
	if ci.Expected == 0 {
		return false
	}
	return ci.Range()/ci.Expected < 0.5
}

// Measurement is a measured velocity (work units per day) with an uncertainty.
type Measurement struct {
	Value float64
	// Spread is the relative error at DefaultConfidence. Zero means the default 20%.
	Spread float64
}

// NewMeasurement creates a measurement with the default spread.
func NewMeasurement(value float64) Measurement {
	return Measurement{Value: value}
}

func (m Measurement) factor(confidence float64) float64 {
	spread := m.Spread
	if spread <= 0 {
		spread = defaultSpread
	}
	if confidence <= 0 || confidence >= 1 {
		confidence = DefaultConfidence
	}
	return 1 + spread*confidence/DefaultConfidence
}

// LowerEstimate returns the lower bound of the measurement at the given confidence.
func (m Measurement) LowerEstimate(confidence float64) float64 {
	return m.Value / m.factor(confidence)
}

// HigherEstimate returns the upper bound of the measurement at the given confidence.
func (m Measurement) HigherEstimate(confidence float64) float64 {
	return m.Value * m.factor(confidence)
}

// Interval returns the measurement as a confidence interval.
func (m Measurement) Interval(confidence float64) ConfidenceInterval {
	return ConfidenceInterval{
		Low:      m.LowerEstimate(confidence),
		Expected: m.Value,
		High:     m.HigherEstimate(confidence),
	}
}

// VelocityJSON returns the JSON-safe form stored in a project's velocities.
func VelocityJSON(m Measurement) map[string]any {
	return map[string]any{
		"value":           m.Value,
		"lower_estimate":  round(m.LowerEstimate(DefaultConfidence)),
		"higher_estimate": round(m.HigherEstimate(DefaultConfidence)),
		"confidence":      DefaultConfidence,
	}
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// VelocityStats holds statistical summary of velocity data.
type VelocityStats struct {
	Mean    float64 // Average velocity
	Median  float64 // Median velocity
	StdDev  float64 // Standard deviation
	Min     float64 // Minimum observed velocity
	Max     float64 // Maximum observed velocity
	Samples int     // Number of samples
}

// ComputeVelocityStats summarizes per-sprint velocity samples.
func ComputeVelocityStats(samples []float64) VelocityStats {
	if len(samples) == 0 {
		return VelocityStats{}
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	mean := sum / float64(len(sorted))

	var sq float64
	for _, s := range sorted {
		sq += (s - mean) * (s - mean)
	}

	median := sorted[len(sorted)/2]
	if len(sorted)%2 == 0 {
		median = (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2
	}

	return VelocityStats{
		Mean:    mean,
		Median:  median,
		StdDev:  math.Sqrt(sq / float64(len(sorted))),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		Samples: len(sorted),
	}
}

// Variability returns the coefficient of variation (StdDev/Mean).
func (vs VelocityStats) Variability() float64 {
	if vs.Mean == 0 {
		return 0
	}
	return vs.StdDev / vs.Mean
}

// IsConsistent returns true if velocity is relatively stable.
func (vs VelocityStats) IsConsistent() bool {
	return vs.Variability() < 0.3
}

// Measurement converts the summary into a measurement whose spread follows the
// observed variability.
func (vs VelocityStats) Measurement() Measurement {
	return Measurement{Value: vs.Mean, Spread: vs.Variability()}
}
