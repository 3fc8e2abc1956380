package detector

import (
	"testing"
	"time"

	"github.com/KingRain/octrix/internal/models"
	"github.com/KingRain/octrix/internal/store"
)

type captureSink struct {
	alerts []models.Alert
}

func (s *captureSink) Notify(alert models.Alert) {
	s.alerts = append(s.alerts, alert)
}

func newDetector(t *testing.T) (*Detector, *store.IncidentStore, *store.CooldownTracker, *captureSink) {
	t.Helper()
	incidents := store.NewIncidentStore()
	cooldowns := store.NewCooldownTracker(5 * time.Minute)
	sink := &captureSink{}
	d := New(nil, DefaultThresholds(), incidents, cooldowns, nil, sink)
	return d, incidents, cooldowns, sink
}

func healthyPod(name string) models.PodSample {
	return models.PodSample{
		Name:      name,
		Namespace: "prod",
		Phase:     "Running",
	}
}

func TestEvaluateHealthySnapshotCreatesNothing(t *testing.T) {
	d, incidents, _, sink := newDetector(t)
	created := d.Evaluate(models.FleetSnapshot{
		Pods:  []models.PodSample{healthyPod("api-1")},
		Nodes: []models.NodeSample{{Name: "node-1", CPUPercent: 40, DiskPercent: 30, Ready: true}},
	})
	if len(created) != 0 {
		t.Fatalf("expected no incidents, got %d", len(created))
	}
	if incidents.Stats().Total != 0 {
		t.Fatalf("store should be empty")
	}
	if len(sink.alerts) != 0 {
		t.Fatalf("no alerts expected")
	}
}

func TestEvaluateGradesCriticalOverWarning(t *testing.T) {
	d, _, _, _ := newDetector(t)
	pod := healthyPod("api-1")
	pod.CPUPercent = 95 // above both warning 80 and critical 92

	created := d.Evaluate(models.FleetSnapshot{Pods: []models.PodSample{pod}})
	if len(created) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(created))
	}
	inc := created[0]
	if inc.Category != models.CategoryHighCPU {
		t.Fatalf("expected high-cpu, got %s", inc.Category)
	}
	if inc.Severity != models.SeverityCritical {
		t.Fatalf("critical threshold must win, got %s", inc.Severity)
	}
}

func TestEvaluateWarningSeverity(t *testing.T) {
	d, _, _, _ := newDetector(t)
	pod := healthyPod("api-1")
	pod.MemoryPercent = 85 // warning only

	created := d.Evaluate(models.FleetSnapshot{Pods: []models.PodSample{pod}})
	if len(created) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(created))
	}
	if created[0].Severity != models.SeverityMedium {
		t.Fatalf("expected medium for warning crossing, got %s", created[0].Severity)
	}
}

func TestEvaluatePodPhases(t *testing.T) {
	d, _, _, _ := newDetector(t)
	cases := []struct {
		phase    string
		category models.Category
	}{
		{"CrashLoopBackOff", models.CategoryCrashLoop},
		{"OOMKilled", models.CategoryOOMKilled},
		{"ImagePullBackOff", models.CategoryImagePullError},
		{"ErrImagePull", models.CategoryImagePullError},
		{"Failed", models.CategoryPodCrash},
	}
	for i, tc := range cases {
		pod := healthyPod("api-" + tc.phase + "-" + string(rune('a'+i)))
		pod.Phase = tc.phase
		created := d.Evaluate(models.FleetSnapshot{Pods: []models.PodSample{pod}})
		if len(created) != 1 {
			t.Fatalf("%s: expected 1 incident, got %d", tc.phase, len(created))
		}
		if created[0].Category != tc.category {
			t.Fatalf("%s: expected %s, got %s", tc.phase, tc.category, created[0].Category)
		}
		if created[0].Severity != models.SeverityForCategory(tc.category) {
			t.Fatalf("%s: severity mismatch", tc.phase)
		}
	}
}

func TestEvaluateCooldownSuppression(t *testing.T) {
	d, incidents, cooldowns, sink := newDetector(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	cooldowns.SetClock(func() time.Time { return clock })

	pod := healthyPod("api-1")
	pod.Phase = "CrashLoopBackOff"
	snapshot := models.FleetSnapshot{Pods: []models.PodSample{pod}}

	if created := d.Evaluate(snapshot); len(created) != 1 {
		t.Fatalf("first pass should create, got %d", len(created))
	}
	// Same condition inside the window: suppressed, no incident, no alert.
	clock = base.Add(time.Minute)
	if created := d.Evaluate(snapshot); len(created) != 0 {
		t.Fatalf("second pass inside cooldown should be suppressed, got %d", len(created))
	}
	if incidents.Stats().Total != 1 {
		t.Fatalf("expected exactly 1 stored incident, got %d", incidents.Stats().Total)
	}
	if len(sink.alerts) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d", len(sink.alerts))
	}

	// After window expiry a fresh incident is allowed.
	clock = base.Add(6 * time.Minute)
	if created := d.Evaluate(snapshot); len(created) != 1 {
		t.Fatalf("post-expiry pass should create, got %d", len(created))
	}
	if incidents.Stats().Total != 2 {
		t.Fatalf("expected 2 stored incidents, got %d", incidents.Stats().Total)
	}
}

func TestEvaluateDistinctCategoriesShareNoCooldown(t *testing.T) {
	d, _, _, _ := newDetector(t)
	pod := healthyPod("api-1")
	pod.CPUPercent = 95
	pod.MemoryPercent = 95

	created := d.Evaluate(models.FleetSnapshot{Pods: []models.PodSample{pod}})
	if len(created) != 2 {
		t.Fatalf("expected separate high-cpu and high-memory incidents, got %d", len(created))
	}
}

func TestEvaluateNodeFindings(t *testing.T) {
	d, _, _, _ := newDetector(t)
	created := d.Evaluate(models.FleetSnapshot{
		Nodes: []models.NodeSample{{
			Name:           "node-1",
			DiskPercent:    95,
			MemoryPressure: true,
			Ready:          false,
		}},
	})
	got := make(map[models.Category]models.Incident)
	for _, inc := range created {
		got[inc.Category] = inc
	}
	if _, ok := got[models.CategoryNodePressure]; !ok {
		t.Fatalf("expected node-pressure incident, got %v", created)
	}
	if _, ok := got[models.CategoryNodeNotReady]; !ok {
		t.Fatalf("expected node-not-ready incident, got %v", created)
	}
	if got[models.CategoryNodeNotReady].Resource.Kind != "node" {
		t.Fatalf("node incident must reference a node resource")
	}
}

func TestIncidentCarriesClassificationAndAlertLink(t *testing.T) {
	d, _, _, sink := newDetector(t)
	pod := healthyPod("api-1")
	pod.Phase = "OOMKilled"
	pod.MemoryPercent = 70

	created := d.Evaluate(models.FleetSnapshot{Pods: []models.PodSample{pod}})
	if len(created) != 1 {
		t.Fatalf("expected 1 incident, got %d", len(created))
	}
	inc := created[0]
	if inc.Classification == nil {
		t.Fatalf("expected classification on detection")
	}
	if len(inc.RelatedAlerts) != 1 {
		t.Fatalf("expected 1 related alert, got %d", len(inc.RelatedAlerts))
	}
	if len(sink.alerts) != 1 || sink.alerts[0].ID != inc.RelatedAlerts[0] {
		t.Fatalf("alert id must match the incident's related alert")
	}
	if sink.alerts[0].IncidentID != inc.ID {
		t.Fatalf("alert must reference its incident")
	}
}

func TestInject(t *testing.T) {
	d, _, _, _ := newDetector(t)
	resource := models.ResourceRef{Name: "payments", Kind: "deployment", Namespace: "prod"}

	inc, ok := d.Inject(models.CategoryDBFailure, resource, map[string]float64{"errorRate": 0.4}, nil)
	if !ok {
		t.Fatalf("expected injection to create an incident")
	}
	if inc.Severity != models.SeverityForCategory(models.CategoryDBFailure) {
		t.Fatalf("injected severity must come from the category table, got %s", inc.Severity)
	}
	if inc.Classification == nil || inc.Classification.Confidence != 0.7 {
		t.Fatalf("expected category-based classification fallback, got %+v", inc.Classification)
	}

	// Second injection for the same resource+category is cooldown-suppressed.
	if _, ok := d.Inject(models.CategoryDBFailure, resource, nil, nil); ok {
		t.Fatalf("expected suppression inside the cooldown window")
	}
}

func TestInjectWithSignals(t *testing.T) {
	d, _, _, _ := newDetector(t)
	signals := &models.ClassificationSignals{
		RPSDeltaPercent: models.Float(150),
		CPUPercent:      models.Float(95),
	}
	inc, ok := d.Inject(models.CategoryHighCPU, models.ResourceRef{Name: "api", Namespace: "prod"}, nil, signals)
	if !ok {
		t.Fatalf("expected injection to create an incident")
	}
	if inc.Classification.Driver != models.DriverTrafficSurge {
		t.Fatalf("expected traffic-surge from supplied signals, got %s", inc.Classification.Driver)
	}
}
