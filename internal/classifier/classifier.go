// Package classifier infers whether an incident's burn is traffic-driven,
// degradation-driven, or mixed from whatever signals happen to be available.
package classifier

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/KingRain/octrix/internal/models"
)

// Classifier scores incident signals across five independent categories and
// combines them into a driver verdict with confidence and evidence.
type Classifier struct {
	logger *slog.Logger
}

// New constructs a Classifier.
func New(logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{logger: logger}
}

// scoreAcc averages only the signals that were actually supplied. An absent
// signal contributes to neither the numerator nor the denominator, so sparse
// input does not bias the score toward zero.
type scoreAcc struct {
	sum float64
	n   int
}

func (a *scoreAcc) add(v float64) {
	a.sum += clamp(v, 0, 1)
	a.n++
}

func (a *scoreAcc) addFlag(v bool) {
	if v {
		a.add(1)
	} else {
		a.add(0)
	}
}

func (a *scoreAcc) value() float64 {
	if a.n == 0 {
		return 0
	}
	return a.sum / float64(a.n)
}

// Classify computes the five sub-scores, combines them into the two composite
// axes, and applies the decision rule. The result is deterministic for a given
// signals+category input.
func (c *Classifier) Classify(signals models.ClassificationSignals, category models.Category) models.Classification {
	traffic := trafficScore(signals)
	quality := qualityScore(signals, category)
	resource := resourceScore(signals, category)
	capacity := capacityScore(signals)
	change := changeScore(signals, category)

	trafficDriven := 0.5*traffic + 0.25*resource + 0.25*capacity
	degradationDriven := 0.6*quality + 0.4*change

	driver, confidence := decide(trafficDriven, degradationDriven)

	return models.Classification{
		Driver:     driver,
		Confidence: confidence,
		Evidence:   buildEvidence(signals, driver),
		Scores: map[string]float64{
			"traffic":           traffic,
			"quality":           quality,
			"resource":          resource,
			"capacity":          capacity,
			"change":            change,
			"trafficDriven":     trafficDriven,
			"degradationDriven": degradationDriven,
		},
	}
}

// ClassifyFromCategory is the signal-light fallback used when no numeric
// signals are available at all. Category membership maps straight to a driver
// with fixed confidence.
func (c *Classifier) ClassifyFromCategory(category models.Category) models.Classification {
	driver := models.DriverDegradation
	switch category {
	case models.CategoryHighCPU, models.CategoryHighMemory, models.CategoryNodePressure:
		driver = models.DriverTrafficSurge
	case models.CategoryMultiServiceFailure:
		driver = models.DriverMixed
	}
	return models.Classification{
		Driver:     driver,
		Confidence: 0.7,
		Evidence:   fmt.Sprintf("inferred from category %s without live signals", category),
	}
}

// decide applies the composite-axis decision rule.
func decide(trafficDriven, degradationDriven float64) (models.Driver, float64) {
	diff := math.Abs(trafficDriven - degradationDriven)
	maxScore := math.Max(trafficDriven, degradationDriven)

	if diff < 0.3 && maxScore > 0.2 {
		return models.DriverMixed, 1 - (diff/0.3)*0.5
	}
	if maxScore < 0.3 {
		return models.DriverMixed, 0.5
	}
	if trafficDriven >= degradationDriven {
		return models.DriverTrafficSurge, math.Min(trafficDriven, 1.0)
	}
	return models.DriverDegradation, math.Min(degradationDriven, 1.0)
}

func trafficScore(s models.ClassificationSignals) float64 {
	var acc scoreAcc
	if s.RPSDeltaPercent != nil {
		acc.add(*s.RPSDeltaPercent / 100)
	}
	if s.RPSBaselineRatio != nil {
		acc.add((*s.RPSBaselineRatio - 1) / 2)
	}
	if s.ScalingVelocity != nil {
		acc.add(*s.ScalingVelocity / 5)
	}
	return acc.value()
}

func qualityScore(s models.ClassificationSignals, category models.Category) float64 {
	var acc scoreAcc
	if s.ErrorRate != nil {
		acc.add(*s.ErrorRate / 0.2)
	}
	if s.ErrorRateDelta != nil {
		acc.add(*s.ErrorRateDelta / 0.1)
	}
	if s.LatencyRatio != nil {
		acc.add((*s.LatencyRatio - 1) / 3)
	}
	if s.RestartCount != nil {
		acc.add(*s.RestartCount / 5)
	}
	if s.OOMKilled != nil {
		acc.addFlag(*s.OOMKilled)
	}
	if s.CrashLooping != nil {
		acc.addFlag(*s.CrashLooping)
	}
	acc.addFlag(isDegradationCategory(category))
	return acc.value()
}

func resourceScore(s models.ClassificationSignals, category models.Category) float64 {
	var acc scoreAcc
	if s.CPUPercent != nil {
		acc.add((*s.CPUPercent - 60) / 40)
	}
	if s.MemoryPercent != nil {
		acc.add((*s.MemoryPercent - 60) / 40)
	}
	if s.Throttled != nil {
		acc.addFlag(*s.Throttled)
	}
	if s.NodePressure != nil {
		acc.addFlag(*s.NodePressure)
	}
	acc.addFlag(isResourceCategory(category))
	return acc.value()
}

func capacityScore(s models.ClassificationSignals) float64 {
	var acc scoreAcc
	if s.CurrentReplicas != nil && s.MaxReplicas != nil && *s.MaxReplicas > 0 {
		utilisation := *s.CurrentReplicas / *s.MaxReplicas
		acc.add((utilisation - 0.8) / 0.2)
	}
	if s.DesiredReplicas != nil && s.CurrentReplicas != nil && s.MaxReplicas != nil && *s.MaxReplicas > 0 {
		lag := (*s.DesiredReplicas - *s.CurrentReplicas) / *s.MaxReplicas
		acc.add(lag * 2)
	}
	if s.ScalingActive != nil && *s.ScalingActive && s.ScalingEffectiveness != nil {
		acc.add(*s.ScalingEffectiveness)
	}
	return acc.value()
}

func changeScore(s models.ClassificationSignals, category models.Category) float64 {
	var acc scoreAcc
	if s.MinutesSinceDeploy != nil {
		minutes := *s.MinutesSinceDeploy
		switch {
		case minutes <= 10:
			acc.add(1)
		case minutes <= 30:
			acc.add(0.6)
		case minutes <= 60:
			acc.add(0.3)
		default:
			acc.add(0)
		}
	}
	if s.DeployCorrelation != nil {
		acc.add(*s.DeployCorrelation)
	}
	acc.addFlag(isChangeCategory(category))
	return acc.value()
}

func isDegradationCategory(category models.Category) bool {
	switch category {
	case models.CategoryPodCrash, models.CategoryCrashLoop, models.CategoryPersistentRestarts,
		models.CategoryBuggyDeployment, models.CategoryConfigMapError, models.CategoryDBFailure,
		models.CategoryUnknownCrash, models.CategoryImagePullError:
		return true
	}
	return false
}

func isResourceCategory(category models.Category) bool {
	switch category {
	case models.CategoryHighCPU, models.CategoryHighMemory,
		models.CategoryOOMKilled, models.CategoryNodePressure:
		return true
	}
	return false
}

func isChangeCategory(category models.Category) bool {
	switch category {
	case models.CategoryBuggyDeployment, models.CategoryConfigMapError:
		return true
	}
	return false
}

// buildEvidence assembles a human-readable sentence from whichever raw
// signals crossed notable thresholds, falling back to a generic driver-based
// sentence when nothing individual stands out.
func buildEvidence(s models.ClassificationSignals, driver models.Driver) string {
	var parts []string
	if s.RPSDeltaPercent != nil && *s.RPSDeltaPercent >= 50 {
		parts = append(parts, fmt.Sprintf("request rate +%.0f%% vs baseline", *s.RPSDeltaPercent))
	}
	if s.ErrorRate != nil && *s.ErrorRate >= 0.05 {
		parts = append(parts, fmt.Sprintf("error rate %.1f%%", *s.ErrorRate*100))
	}
	if s.LatencyRatio != nil && *s.LatencyRatio >= 2 {
		parts = append(parts, fmt.Sprintf("latency %.1fx baseline", *s.LatencyRatio))
	}
	if s.CPUPercent != nil && *s.CPUPercent >= 85 {
		parts = append(parts, fmt.Sprintf("CPU at %.0f%%", *s.CPUPercent))
	}
	if s.MemoryPercent != nil && *s.MemoryPercent >= 85 {
		parts = append(parts, fmt.Sprintf("memory at %.0f%%", *s.MemoryPercent))
	}
	if s.RestartCount != nil && *s.RestartCount >= 3 {
		parts = append(parts, fmt.Sprintf("%.0f restarts", *s.RestartCount))
	}
	if s.OOMKilled != nil && *s.OOMKilled {
		parts = append(parts, "container OOM-killed")
	}
	if s.CurrentReplicas != nil && s.MaxReplicas != nil && *s.MaxReplicas > 0 && *s.CurrentReplicas >= *s.MaxReplicas {
		parts = append(parts, "replicas at configured maximum")
	}
	if s.MinutesSinceDeploy != nil && *s.MinutesSinceDeploy <= 30 {
		parts = append(parts, fmt.Sprintf("deployment changed %.0f min ago", *s.MinutesSinceDeploy))
	}

	if len(parts) == 0 {
		switch driver {
		case models.DriverTrafficSurge:
			return "signal pattern consistent with a traffic surge"
		case models.DriverDegradation:
			return "signal pattern consistent with service degradation"
		default:
			return "no single signal dominates; traffic and degradation both plausible"
		}
	}
	return strings.Join(parts, "; ")
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
