package models

import "time"

// Driver classifies an incident's root-cause axis.
type Driver string

const (
	DriverTrafficSurge Driver = "traffic-surge"
	DriverDegradation  Driver = "degradation"
	DriverMixed        Driver = "mixed"
)

// Classification is the result of driver inference for one incident.
type Classification struct {
	Driver     Driver             `json:"driver"`
	Confidence float64            `json:"confidence"`
	Evidence   string             `json:"evidence"`
	Scores     map[string]float64 `json:"scores,omitempty"`
}

// ClassificationSignals carries the optional numeric inputs to driver
// inference. Nil fields were not observed and are excluded from scoring
// rather than treated as zero.
type ClassificationSignals struct {
	// Traffic shape.
	RPSDeltaPercent  *float64 `json:"rpsDeltaPercent,omitempty"`  // change vs. baseline, in percent
	RPSBaselineRatio *float64 `json:"rpsBaselineRatio,omitempty"` // absolute rate divided by baseline
	ScalingVelocity  *float64 `json:"scalingVelocity,omitempty"`  // replica change rate, replicas/min

	// Service quality.
	ErrorRate      *float64 `json:"errorRate,omitempty"`      // current error fraction [0,1]
	ErrorRateDelta *float64 `json:"errorRateDelta,omitempty"` // change vs. baseline error fraction
	LatencyRatio   *float64 `json:"latencyRatio,omitempty"`   // current latency divided by baseline
	RestartCount   *float64 `json:"restartCount,omitempty"`
	OOMKilled      *bool    `json:"oomKilled,omitempty"`
	CrashLooping   *bool    `json:"crashLooping,omitempty"`

	// Resource saturation.
	CPUPercent    *float64 `json:"cpuPercent,omitempty"`
	MemoryPercent *float64 `json:"memoryPercent,omitempty"`
	Throttled     *bool    `json:"throttled,omitempty"`
	NodePressure  *bool    `json:"nodePressure,omitempty"`

	// Capacity headroom.
	CurrentReplicas      *float64 `json:"currentReplicas,omitempty"`
	DesiredReplicas      *float64 `json:"desiredReplicas,omitempty"`
	MaxReplicas          *float64 `json:"maxReplicas,omitempty"`
	ScalingActive        *bool    `json:"scalingActive,omitempty"`
	ScalingEffectiveness *float64 `json:"scalingEffectiveness,omitempty"` // [0,1], observed relief per added replica

	// Change correlation.
	MinutesSinceDeploy *float64 `json:"minutesSinceDeploy,omitempty"`
	DeployCorrelation  *float64 `json:"deployCorrelation,omitempty"` // externally supplied, [0,1]
}

// Float wraps a literal for optional signal fields.
func Float(v float64) *float64 { return &v }

// Bool wraps a literal for optional signal flags.
func Bool(v bool) *bool { return &v }

// PodSample is one pod's health snapshot at sampling time.
type PodSample struct {
	Name          string     `json:"name"`
	Namespace     string     `json:"namespace"`
	CPUPercent    float64    `json:"cpuPercent"`
	MemoryPercent float64    `json:"memoryPercent"`
	DiskPercent   float64    `json:"diskPercent"`
	Restarts      int        `json:"restarts"`
	Phase         string     `json:"phase"`
	LastDeployAt  *time.Time `json:"lastDeployAt,omitempty"`
}

// NodeSample is one node's health snapshot at sampling time.
type NodeSample struct {
	Name           string  `json:"name"`
	CPUPercent     float64 `json:"cpuPercent"`
	MemoryPercent  float64 `json:"memoryPercent"`
	DiskPercent    float64 `json:"diskPercent"`
	Ready          bool    `json:"ready"`
	MemoryPressure bool    `json:"memoryPressure"`
}

// FleetSnapshot is a periodic view of fleet health supplied by the signal
// source.
type FleetSnapshot struct {
	Timestamp time.Time    `json:"timestamp"`
	Nodes     []NodeSample `json:"nodes"`
	Pods      []PodSample  `json:"pods"`
}
