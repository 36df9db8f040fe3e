package agents

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/athena-ops/athena-stack/internal/models"
)

// minTrendPoints is the fewest samples a series needs before trend and
// anomaly analysis are meaningful.
const minTrendPoints = 5

// zScoreThreshold flags a sample as anomalous.
const zScoreThreshold = 3.0

// anomalyWindow is how many preceding samples form the rolling baseline
// for anomaly scoring.
const anomalyWindow = 10

// Threshold is a warning/critical band for a metric family (percent).
type Threshold struct {
	Warning  float64
	Critical float64
}

// DefaultThresholds returns the built-in bands for the standard resource
// utilization metrics. The "default" entry covers usage metrics without
// their own band.
func DefaultThresholds() map[string]Threshold {
	return map[string]Threshold{
		"cpu":     {Warning: 70, Critical: 85},
		"memory":  {Warning: 80, Critical: 90},
		"disk":    {Warning: 85, Critical: 95},
		"default": {Warning: 75, Critical: 90},
	}
}

// SeriesStats summarizes one metric series.
type SeriesStats struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Last  float64 `json:"last_value"`
}

// Trend describes the direction of a metric series.
type Trend struct {
	Direction     string    `json:"direction"` // "increasing", "decreasing", "stable"
	Slope         float64   `json:"slope"`
	Confidence    float64   `json:"confidence"`
	ChangePercent float64   `json:"change_percent"`
	Forecast      []float64 `json:"forecast,omitempty"`
}

// MetricsAgent computes statistics, trends, and anomalies on metric series.
type MetricsAgent struct {
	thresholds map[string]Threshold
}

// NewMetricsAgent creates a metrics analysis agent. A nil thresholds map
// falls back to DefaultThresholds.
func NewMetricsAgent(thresholds map[string]Threshold) *MetricsAgent {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	return &MetricsAgent{thresholds: thresholds}
}

func (a *MetricsAgent) Name() string { return "metrics" }

// thresholdFor resolves the band for a metric name. Names like cpu_usage
// or memory_percent resolve to their family; unrecognized usage metrics
// take the "default" band, anything else has no band.
func (a *MetricsAgent) thresholdFor(name string) (Threshold, bool) {
	family := strings.TrimSuffix(strings.TrimSuffix(name, "_percent"), "_usage")
	if th, ok := a.thresholds[family]; ok {
		return th, true
	}
	if family != name {
		th, ok := a.thresholds["default"]
		return th, ok
	}
	return Threshold{}, false
}

// Analyze groups samples by metric name, then computes per-series stats,
// trends, z-score anomalies, and threshold breaches.
func (a *MetricsAgent) Analyze(ctx context.Context, in Input) (models.AgentResult, error) {
	if err := ctx.Err(); err != nil {
		return models.AgentResult{}, err
	}

	result := models.AgentResult{Agent: a.Name(), RiskLevel: models.RiskLow}

	series := groupByName(in.Metrics)
	if len(series) == 0 {
		result.Summary = "No metric samples found in the analysis window."
		return result, nil
	}

	stats := make(map[string]SeriesStats, len(series))
	trends := make(map[string]Trend, len(series))
	var anomalies []models.Anomaly
	var recs []models.Recommendation

	names := sortedNames(series)
	for _, name := range names {
		values := series[name]
		st := computeStats(values)
		stats[name] = st
		trends[name] = computeTrend(values)

		anomalies = append(anomalies, detectAnomalies(name, values)...)

		if th, ok := a.thresholdFor(name); ok {
			switch {
			case st.Last >= th.Critical:
				result.RiskLevel = result.RiskLevel.Max(models.RiskCritical)
				recs = append(recs, thresholdAction(name, st.Last, "critical"))
			case st.Last >= th.Warning:
				result.RiskLevel = result.RiskLevel.Max(models.RiskMedium)
				recs = append(recs, thresholdAction(name, st.Last, "warning"))
			}
		}
	}

	for _, an := range anomalies {
		result.RiskLevel = result.RiskLevel.Max(an.Severity)
	}

	result.Anomalies = anomalies
	result.Recommendations = recs
	result.Details = map[string]any{
		"series":    len(series),
		"samples":   len(in.Metrics),
		"stats":     stats,
		"trends":    trends,
		"anomalies": len(anomalies),
	}
	result.Summary = a.summarize(names, stats, trends, anomalies)
	return result, nil
}

func groupByName(samples []models.Metric) map[string][]float64 {
	series := make(map[string][]float64)
	for _, m := range samples {
		series[m.Name] = append(series[m.Name], m.Value)
	}
	return series
}

func sortedNames(series map[string][]float64) []string {
	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func computeStats(values []float64) SeriesStats {
	st := SeriesStats{Count: len(values)}
	if len(values) == 0 {
		return st
	}

	st.Min = values[0]
	st.Max = values[0]
	var sum float64
	for _, v := range values {
		sum += v
		if v < st.Min {
			st.Min = v
		}
		if v > st.Max {
			st.Max = v
		}
	}
	st.Mean = sum / float64(len(values))
	st.Last = values[len(values)-1]

	var sq float64
	for _, v := range values {
		d := v - st.Mean
		sq += d * d
	}
	st.Std = math.Sqrt(sq / float64(len(values)))
	return st
}

// computeTrend fits a least-squares line through the series. Direction is
// "stable" unless the fit is confident (|r| above 0.5) and the series is
// long enough.
func computeTrend(values []float64) Trend {
	if len(values) < minTrendPoints {
		return Trend{Direction: "stable"}
	}

	slope, intercept, r := linearRegression(values)

	t := Trend{
		Direction:  "stable",
		Slope:      slope,
		Confidence: math.Abs(r),
	}
	if t.Confidence > 0.5 {
		if slope > 0 {
			t.Direction = "increasing"
		} else if slope < 0 {
			t.Direction = "decreasing"
		}
	}

	if first := values[0]; first != 0 {
		t.ChangePercent = (values[len(values)-1] - first) / first * 100
	}

	// Extrapolate the fitted line a few steps ahead.
	lastX := float64(len(values) - 1)
	for i := 1; i <= minTrendPoints; i++ {
		t.Forecast = append(t.Forecast, slope*(lastX+float64(i))+intercept)
	}
	return t
}

func linearRegression(values []float64) (slope, intercept, r float64) {
	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX, sumYY float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
		sumYY += y * y
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n, 0
	}

	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n

	rDenom := math.Sqrt(denom * (n*sumYY - sumY*sumY))
	if rDenom != 0 {
		r = (n*sumXY - sumX*sumY) / rDenom
	}
	return slope, intercept, r
}

// detectAnomalies scores each sample against a rolling baseline of the
// preceding anomalyWindow samples. A global baseline would let a slow
// trend inflate the deviation and mask genuine spikes.
func detectAnomalies(name string, values []float64) []models.Anomaly {
	if len(values) < minTrendPoints {
		return nil
	}

	var anomalies []models.Anomaly
	for i := minTrendPoints; i < len(values); i++ {
		lo := i - anomalyWindow
		if lo < 0 {
			lo = 0
		}
		base := computeStats(values[lo:i])
		if base.Std == 0 {
			continue
		}

		v := values[i]
		z := math.Abs(v-base.Mean) / base.Std
		if z <= zScoreThreshold {
			continue
		}

		severity := models.RiskMedium
		if z > 5 {
			severity = models.RiskCritical
		} else if z > 4 {
			severity = models.RiskHigh
		}

		anomalies = append(anomalies, models.Anomaly{
			MetricName:  name,
			Value:       v,
			ZScore:      z,
			Severity:    severity,
			Description: fmt.Sprintf("%s sample %.2f deviates %.1f sigma from rolling mean %.2f", name, v, z, base.Mean),
		})
	}
	return anomalies
}

func thresholdAction(name string, value float64, state string) models.Recommendation {
	priority := models.RiskMedium
	if state == "critical" {
		priority = models.RiskCritical
	}

	action := fmt.Sprintf("Investigate %s: currently %.1f%% (%s)", name, value, state)
	switch strings.TrimSuffix(strings.TrimSuffix(name, "_percent"), "_usage") + "_usage" {
	case "cpu_usage":
		action = fmt.Sprintf("Identify top CPU consumers and consider scaling out (currently %.1f%%)", value)
	case "memory_usage":
		action = fmt.Sprintf("Check for memory leaks or raise limits (currently %.1f%%)", value)
	case "disk_usage":
		action = fmt.Sprintf("Free disk space or expand the volume (currently %.1f%%)", value)
	}

	return models.Recommendation{
		Action:   action,
		Reason:   fmt.Sprintf("%s at %.1f%% crossed the %s threshold", name, value, state),
		Priority: priority,
	}
}

func (a *MetricsAgent) summarize(names []string, stats map[string]SeriesStats, trends map[string]Trend, anomalies []models.Anomaly) string {
	s := fmt.Sprintf("Analyzed %d metric series.", len(names))

	rising := 0
	for _, name := range names {
		if trends[name].Direction == "increasing" {
			rising++
		}
	}
	if rising > 0 {
		s += fmt.Sprintf(" %d series trending upward.", rising)
	}
	if len(anomalies) > 0 {
		s += fmt.Sprintf(" %d anomalous samples detected.", len(anomalies))
	}
	for _, name := range names {
		if th, ok := a.thresholdFor(name); ok && stats[name].Last >= th.Warning {
			s += fmt.Sprintf(" %s at %.1f%%.", name, stats[name].Last)
		}
	}
	return s
}
