package healer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/KingRain/octrix/internal/escalation"
	"github.com/KingRain/octrix/internal/models"
	"github.com/KingRain/octrix/internal/store"
)

// fakeExecutor records calls and can be told to fail or to block until
// released.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []models.ActionType
	err   error
	gate  chan struct{}
	count atomic.Int64
}

func (f *fakeExecutor) Execute(ctx context.Context, action models.ActionType, resource models.ResourceRef, params map[string]string) (string, error) {
	f.count.Add(1)
	f.mu.Lock()
	f.calls = append(f.calls, action)
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("executed %s on %s", action, resource.Name), nil
}

type fixture struct {
	engine      *Engine
	incidents   *store.IncidentStore
	rules       *store.RuleRegistry
	events      *store.EventLog
	escalations *escalation.Manager
	executor    *fakeExecutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	incidents := store.NewIncidentStore()
	rules := store.NewRuleRegistry()
	rules.SeedDefaults()
	events := store.NewEventLog(100)
	escalations := escalation.NewManager(nil, nil)
	executor := &fakeExecutor{}
	engine := NewEngine(nil, incidents, rules, events, escalations, executor)
	return &fixture{
		engine:      engine,
		incidents:   incidents,
		rules:       rules,
		events:      events,
		escalations: escalations,
		executor:    executor,
	}
}

func (f *fixture) openIncident(id string, category models.Category) models.Incident {
	return f.incidents.Create(models.Incident{
		ID:       id,
		Category: category,
		Severity: models.SeverityForCategory(category),
		Status:   models.StatusOpen,
		Resource: models.ResourceRef{Name: "api-7f9", Kind: "pod", Namespace: "prod"},
	})
}

func TestEvaluatePassHealsAndResolves(t *testing.T) {
	f := newFixture(t)
	f.openIncident("inc-1", models.CategoryPodCrash)

	f.engine.EvaluatePass(context.Background())
	f.engine.Wait()

	inc, err := f.incidents.Get("inc-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if inc.Status != models.StatusResolved {
		t.Fatalf("expected resolved, got %s", inc.Status)
	}
	if !inc.AutoHealAttempted || inc.AutoHealResult != models.AutoHealSuccess {
		t.Fatalf("unexpected auto-heal record: %+v", inc)
	}

	events := f.events.ForIncident("inc-1")
	if len(events) != 2 {
		t.Fatalf("expected in-progress + success events, got %d", len(events))
	}
	if events[0].Status != models.EventInProgress || events[1].Status != models.EventSuccess {
		t.Fatalf("expected event order in-progress then success, got %s,%s", events[0].Status, events[1].Status)
	}

	rule, _ := f.rules.GetForCategory(models.CategoryPodCrash)
	if rule.TriggerCount != 1 || rule.LastTriggered == nil {
		t.Fatalf("expected trigger recorded on the rule, got %+v", rule)
	}
}

func TestEvaluatePassFailureEscalates(t *testing.T) {
	f := newFixture(t)
	f.executor.err = errors.New("kubelet unreachable")
	f.openIncident("inc-1", models.CategoryCrashLoop)

	f.engine.EvaluatePass(context.Background())
	f.engine.Wait()

	inc, _ := f.incidents.Get("inc-1")
	if inc.Status != models.StatusEscalated {
		t.Fatalf("expected escalated after failed action, got %s", inc.Status)
	}
	if inc.AutoHealResult != models.AutoHealFailed {
		t.Fatalf("expected failed result, got %s", inc.AutoHealResult)
	}

	events := f.events.ForIncident("inc-1")
	if len(events) != 2 || events[1].Status != models.EventFailed {
		t.Fatalf("expected failed event, got %+v", events)
	}
	if len(f.escalations.Records()) != 1 {
		t.Fatalf("expected an escalation record")
	}
	// Crash-loop does not freeze automation.
	if f.escalations.Frozen() {
		t.Fatalf("failed heal must not freeze automation")
	}
}

func TestFreezeForcingCategoryEscalatesWithoutDispatch(t *testing.T) {
	f := newFixture(t)
	f.openIncident("inc-1", models.CategoryDBFailure)

	f.engine.EvaluatePass(context.Background())
	f.engine.Wait()

	inc, _ := f.incidents.Get("inc-1")
	if inc.Status != models.StatusEscalated {
		t.Fatalf("expected escalated, got %s", inc.Status)
	}
	if inc.AutoHealAttempted {
		t.Fatalf("freeze-forcing category must never be dispatched")
	}
	if f.executor.count.Load() != 0 {
		t.Fatalf("executor must not be called")
	}
	if !f.escalations.Frozen() {
		t.Fatalf("db-failure escalation must freeze automation")
	}
}

func TestFrozenAutomationEscalatesEverything(t *testing.T) {
	f := newFixture(t)
	f.escalations.Escalate(models.Incident{ID: "trip", Category: models.CategoryBuggyDeployment}, "bad rollout")
	f.openIncident("inc-1", models.CategoryPodCrash)

	f.engine.EvaluatePass(context.Background())
	f.engine.Wait()

	inc, _ := f.incidents.Get("inc-1")
	if inc.Status != models.StatusEscalated {
		t.Fatalf("expected escalation while frozen, got %s", inc.Status)
	}
	if f.executor.count.Load() != 0 {
		t.Fatalf("no action may run while automation is frozen")
	}
}

func TestNoEnabledRuleEscalates(t *testing.T) {
	f := newFixture(t)
	rule, _ := f.rules.GetForCategory(models.CategoryHighCPU)
	if _, err := f.rules.Toggle(rule.ID); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	f.openIncident("inc-1", models.CategoryHighCPU)

	f.engine.EvaluatePass(context.Background())
	f.engine.Wait()

	inc, _ := f.incidents.Get("inc-1")
	if inc.Status != models.StatusEscalated {
		t.Fatalf("expected escalation without an enabled rule, got %s", inc.Status)
	}
	if f.executor.count.Load() != 0 {
		t.Fatalf("executor must not be called")
	}
}

func TestNoActionRuleEscalates(t *testing.T) {
	f := newFixture(t)
	if _, err := f.rules.Create(models.HealingRule{
		Name:           "unknown crash triage",
		Enabled:        true,
		TargetCategory: models.CategoryUnknownCrash,
		Action:         models.ActionNone,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	f.openIncident("inc-1", models.CategoryUnknownCrash)

	f.engine.EvaluatePass(context.Background())
	f.engine.Wait()

	inc, _ := f.incidents.Get("inc-1")
	if inc.Status != models.StatusEscalated {
		t.Fatalf("expected escalation for no-action rule, got %s", inc.Status)
	}
	if f.executor.count.Load() != 0 {
		t.Fatalf("no-action rule must not dispatch")
	}
}

func TestIncidentNeverDispatchedTwiceConcurrently(t *testing.T) {
	f := newFixture(t)
	f.executor.gate = make(chan struct{})
	f.openIncident("inc-1", models.CategoryPodCrash)

	// First pass dispatches and blocks inside the executor.
	f.engine.EvaluatePass(context.Background())
	// Second pass sees the incident still in flight and must skip it.
	f.engine.EvaluatePass(context.Background())

	close(f.executor.gate)
	f.engine.Wait()

	if got := f.executor.count.Load(); got != 1 {
		t.Fatalf("expected exactly 1 dispatch, got %d", got)
	}
	inc, _ := f.incidents.Get("inc-1")
	if inc.Status != models.StatusResolved {
		t.Fatalf("expected resolved, got %s", inc.Status)
	}
}

func TestHealIncidentManual(t *testing.T) {
	f := newFixture(t)
	f.openIncident("inc-1", models.CategoryHighMemory)

	inc, err := f.engine.HealIncident(context.Background(), "inc-1")
	if err != nil {
		t.Fatalf("HealIncident: %v", err)
	}
	if inc.Status != models.StatusResolved {
		t.Fatalf("expected resolved, got %s", inc.Status)
	}
	if f.executor.count.Load() != 1 {
		t.Fatalf("expected one dispatch, got %d", f.executor.count.Load())
	}
}

func TestHealIncidentManualBypassesFreeze(t *testing.T) {
	f := newFixture(t)
	f.escalations.Escalate(models.Incident{ID: "trip", Category: models.CategoryDBFailure}, "db down")
	f.openIncident("inc-1", models.CategoryPodCrash)

	inc, err := f.engine.HealIncident(context.Background(), "inc-1")
	if err != nil {
		t.Fatalf("manual heal must bypass the freeze: %v", err)
	}
	if inc.Status != models.StatusResolved {
		t.Fatalf("expected resolved, got %s", inc.Status)
	}
}

func TestHealIncidentRejectsTerminal(t *testing.T) {
	f := newFixture(t)
	f.openIncident("inc-1", models.CategoryPodCrash)
	if _, err := f.incidents.Transition("inc-1", models.StatusResolved, nil); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	if _, err := f.engine.HealIncident(context.Background(), "inc-1"); err == nil {
		t.Fatalf("expected error for terminal incident")
	}
}

func TestHealIncidentRejectsUnknownID(t *testing.T) {
	f := newFixture(t)
	if _, err := f.engine.HealIncident(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHealIncidentRejectsNoRuleCategory(t *testing.T) {
	f := newFixture(t)
	f.openIncident("inc-1", models.CategoryConfigMapError)

	if _, err := f.engine.HealIncident(context.Background(), "inc-1"); err == nil {
		t.Fatalf("expected error when no rule targets the category")
	}
	if f.executor.count.Load() != 0 {
		t.Fatalf("executor must not be called")
	}
}

func TestHealIncidentInFlight(t *testing.T) {
	f := newFixture(t)
	f.executor.gate = make(chan struct{})
	f.openIncident("inc-1", models.CategoryPodCrash)

	f.engine.EvaluatePass(context.Background())

	_, err := f.engine.HealIncident(context.Background(), "inc-1")
	if !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}

	close(f.executor.gate)
	f.engine.Wait()
}
