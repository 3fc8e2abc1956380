// Package detector turns fleet snapshots into incidents, deduplicated per
// resource and category through the cooldown tracker.
package detector

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/KingRain/octrix/internal/classifier"
	"github.com/KingRain/octrix/internal/metrics"
	"github.com/KingRain/octrix/internal/models"
	"github.com/KingRain/octrix/internal/store"
)

// AlertSink receives the low-detail alert raised alongside each incident.
// Delivery is an external concern; implementations must not block detection.
type AlertSink interface {
	Notify(alert models.Alert)
}

// Threshold holds warning and critical bounds for one metric type. Critical
// wins when both are crossed.
type Threshold struct {
	Warning  float64
	Critical float64
}

// Thresholds is the severity threshold table driving detection.
type Thresholds struct {
	CPUPercent    Threshold
	MemoryPercent Threshold
	DiskPercent   Threshold
	Restarts      Threshold
}

// DefaultThresholds returns the table used when none is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUPercent:    Threshold{Warning: 80, Critical: 92},
		MemoryPercent: Threshold{Warning: 80, Critical: 90},
		DiskPercent:   Threshold{Warning: 80, Critical: 90},
		Restarts:      Threshold{Warning: 3, Critical: 5},
	}
}

// Detector evaluates snapshots against the threshold table and creates
// incidents for everything not suppressed by an active cooldown.
type Detector struct {
	logger     *slog.Logger
	thresholds Thresholds
	incidents  *store.IncidentStore
	cooldowns  *store.CooldownTracker
	classifier *classifier.Classifier
	alerts     AlertSink
}

// New constructs a Detector. alerts may be nil when no subscriber exists.
func New(logger *slog.Logger, thresholds Thresholds, incidents *store.IncidentStore, cooldowns *store.CooldownTracker, cls *classifier.Classifier, alerts AlertSink) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if cls == nil {
		cls = classifier.New(logger)
	}
	return &Detector{
		logger:     logger,
		thresholds: thresholds,
		incidents:  incidents,
		cooldowns:  cooldowns,
		classifier: cls,
		alerts:     alerts,
	}
}

// Evaluate walks one fleet snapshot and returns the incidents it created.
// Detections whose resource+category cooldown is active are suppressed
// entirely: no incident, no alert.
func (d *Detector) Evaluate(snapshot models.FleetSnapshot) []models.Incident {
	var created []models.Incident
	for _, pod := range snapshot.Pods {
		created = append(created, d.evaluatePod(pod)...)
	}
	for _, node := range snapshot.Nodes {
		created = append(created, d.evaluateNode(node)...)
	}
	return created
}

type finding struct {
	category models.Category
	severity models.Severity
	summary  string
}

func (d *Detector) evaluatePod(pod models.PodSample) []models.Incident {
	resource := models.ResourceRef{Name: pod.Name, Kind: "pod", Namespace: pod.Namespace}
	snapshot := map[string]float64{
		"cpuPercent":    pod.CPUPercent,
		"memoryPercent": pod.MemoryPercent,
		"diskPercent":   pod.DiskPercent,
		"restarts":      float64(pod.Restarts),
	}

	var findings []finding
	if f, ok := grade(d.thresholds.CPUPercent, pod.CPUPercent, models.CategoryHighCPU,
		fmt.Sprintf("pod %s CPU at %.1f%%", pod.Name, pod.CPUPercent)); ok {
		findings = append(findings, f)
	}
	if f, ok := grade(d.thresholds.MemoryPercent, pod.MemoryPercent, models.CategoryHighMemory,
		fmt.Sprintf("pod %s memory at %.1f%%", pod.Name, pod.MemoryPercent)); ok {
		findings = append(findings, f)
	}
	if f, ok := grade(d.thresholds.Restarts, float64(pod.Restarts), models.CategoryPersistentRestarts,
		fmt.Sprintf("pod %s restarted %d times", pod.Name, pod.Restarts)); ok {
		findings = append(findings, f)
	}

	switch pod.Phase {
	case "CrashLoopBackOff":
		findings = append(findings, finding{
			category: models.CategoryCrashLoop,
			severity: models.SeverityForCategory(models.CategoryCrashLoop),
			summary:  fmt.Sprintf("pod %s is crash-looping", pod.Name),
		})
	case "OOMKilled":
		findings = append(findings, finding{
			category: models.CategoryOOMKilled,
			severity: models.SeverityForCategory(models.CategoryOOMKilled),
			summary:  fmt.Sprintf("pod %s was OOM-killed", pod.Name),
		})
	case "ImagePullBackOff", "ErrImagePull":
		findings = append(findings, finding{
			category: models.CategoryImagePullError,
			severity: models.SeverityForCategory(models.CategoryImagePullError),
			summary:  fmt.Sprintf("pod %s cannot pull its image", pod.Name),
		})
	case "Failed":
		findings = append(findings, finding{
			category: models.CategoryPodCrash,
			severity: models.SeverityForCategory(models.CategoryPodCrash),
			summary:  fmt.Sprintf("pod %s crashed", pod.Name),
		})
	}

	var created []models.Incident
	for _, f := range findings {
		if inc, ok := d.create(resource, f, snapshot, podSignals(pod, f.category)); ok {
			created = append(created, inc)
		}
	}
	return created
}

func (d *Detector) evaluateNode(node models.NodeSample) []models.Incident {
	resource := models.ResourceRef{Name: node.Name, Kind: "node"}
	snapshot := map[string]float64{
		"cpuPercent":    node.CPUPercent,
		"memoryPercent": node.MemoryPercent,
		"diskPercent":   node.DiskPercent,
	}

	var findings []finding
	if f, ok := grade(d.thresholds.CPUPercent, node.CPUPercent, models.CategoryHighCPU,
		fmt.Sprintf("node %s CPU at %.1f%%", node.Name, node.CPUPercent)); ok {
		findings = append(findings, f)
	}
	if f, ok := grade(d.thresholds.DiskPercent, node.DiskPercent, models.CategoryNodePressure,
		fmt.Sprintf("node %s disk at %.1f%%", node.Name, node.DiskPercent)); ok {
		findings = append(findings, f)
	}
	if node.MemoryPressure {
		findings = append(findings, finding{
			category: models.CategoryNodePressure,
			severity: models.SeverityForCategory(models.CategoryNodePressure),
			summary:  fmt.Sprintf("node %s reports memory pressure", node.Name),
		})
	}
	if !node.Ready {
		findings = append(findings, finding{
			category: models.CategoryNodeNotReady,
			severity: models.SeverityForCategory(models.CategoryNodeNotReady),
			summary:  fmt.Sprintf("node %s is not ready", node.Name),
		})
	}

	var created []models.Incident
	for _, f := range findings {
		signals := models.ClassificationSignals{
			CPUPercent:    models.Float(node.CPUPercent),
			MemoryPercent: models.Float(node.MemoryPercent),
			NodePressure:  models.Bool(node.MemoryPressure),
		}
		if inc, ok := d.create(resource, f, snapshot, signals); ok {
			created = append(created, inc)
		}
	}
	return created
}

// grade selects at most one severity per metric: the critical threshold wins
// when both are crossed.
func grade(t Threshold, value float64, category models.Category, summary string) (finding, bool) {
	switch {
	case t.Critical > 0 && value >= t.Critical:
		return finding{category: category, severity: models.SeverityCritical, summary: summary}, true
	case t.Warning > 0 && value >= t.Warning:
		return finding{category: category, severity: models.SeverityMedium, summary: summary}, true
	}
	return finding{}, false
}

// create makes the incident unless the cooldown for resource+category is
// active, and sets the cooldown immediately on creation.
func (d *Detector) create(resource models.ResourceRef, f finding, snapshot map[string]float64, signals models.ClassificationSignals) (models.Incident, bool) {
	key := resource.Key(f.category)
	if d.cooldowns.IsActive(key) {
		metrics.ObserveSuppressed()
		return models.Incident{}, false
	}
	d.cooldowns.Set(key)

	classification := d.classifier.Classify(signals, f.category)
	alertID := uuid.New().String()
	inc := models.Incident{
		ID:             uuid.New().String(),
		Category:       f.category,
		Severity:       f.severity,
		Status:         models.StatusOpen,
		Resource:       resource,
		Summary:        f.summary,
		Metrics:        snapshot,
		Classification: &classification,
		RelatedAlerts:  []string{alertID},
	}
	inc = d.incidents.Create(inc)
	metrics.ObserveDetection(string(f.category), string(f.severity))

	d.emitAlert(alertID, inc)
	d.logger.Info("incident detected",
		slog.String("incident_id", inc.ID),
		slog.String("category", string(inc.Category)),
		slog.String("severity", string(inc.Severity)),
		slog.String("resource", resource.Namespace+"/"+resource.Name),
	)
	return inc, true
}

// Inject creates a synthetic incident, bypassing threshold evaluation but not
// the cooldown or classification. Used by the simulation harness.
func (d *Detector) Inject(category models.Category, resource models.ResourceRef, snapshot map[string]float64, signals *models.ClassificationSignals) (models.Incident, bool) {
	key := resource.Key(category)
	if d.cooldowns.IsActive(key) {
		metrics.ObserveSuppressed()
		return models.Incident{}, false
	}
	d.cooldowns.Set(key)

	var classification models.Classification
	if signals != nil {
		classification = d.classifier.Classify(*signals, category)
	} else {
		classification = d.classifier.ClassifyFromCategory(category)
	}

	severity := models.SeverityForCategory(category)
	alertID := uuid.New().String()
	inc := models.Incident{
		ID:             uuid.New().String(),
		Category:       category,
		Severity:       severity,
		Status:         models.StatusOpen,
		Resource:       resource,
		Summary:        fmt.Sprintf("injected %s on %s", category, resource.Name),
		Metrics:        snapshot,
		Classification: &classification,
		RelatedAlerts:  []string{alertID},
	}
	inc = d.incidents.Create(inc)
	metrics.ObserveDetection(string(category), string(severity))
	d.emitAlert(alertID, inc)
	return inc, true
}

func (d *Detector) emitAlert(alertID string, inc models.Incident) {
	if d.alerts == nil {
		return
	}
	alert := models.Alert{
		ID:         alertID,
		IncidentID: inc.ID,
		Category:   inc.Category,
		Severity:   inc.Severity,
		Resource:   inc.Resource,
		Message:    inc.Summary,
		Timestamp:  time.Now(),
	}
	d.alerts.Notify(alert)
}

func podSignals(pod models.PodSample, category models.Category) models.ClassificationSignals {
	signals := models.ClassificationSignals{
		CPUPercent:    models.Float(pod.CPUPercent),
		MemoryPercent: models.Float(pod.MemoryPercent),
		RestartCount:  models.Float(float64(pod.Restarts)),
		OOMKilled:     models.Bool(category == models.CategoryOOMKilled),
		CrashLooping:  models.Bool(pod.Phase == "CrashLoopBackOff"),
	}
	if pod.LastDeployAt != nil {
		signals.MinutesSinceDeploy = models.Float(time.Since(*pod.LastDeployAt).Minutes())
	}
	return signals
}
