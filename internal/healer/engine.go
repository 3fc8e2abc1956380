// Package healer evaluates open incidents against the rule registry,
// dispatches remediation actions, and decides resolve vs. escalate.
package healer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KingRain/octrix/internal/escalation"
	"github.com/KingRain/octrix/internal/metrics"
	"github.com/KingRain/octrix/internal/models"
	"github.com/KingRain/octrix/internal/store"
	"github.com/KingRain/octrix/internal/utils"
)

// ErrInFlight is returned when a manual heal races an in-progress dispatch.
var ErrInFlight = fmt.Errorf("incident is already being processed")

// Engine drives the healing half of the incident lifecycle.
type Engine struct {
	logger      *slog.Logger
	incidents   *store.IncidentStore
	rules       *store.RuleRegistry
	events      *store.EventLog
	escalations *escalation.Manager
	executor    ActionExecutor
	latencies   *utils.LatencyTracker

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// NewEngine constructs the healing engine.
func NewEngine(logger *slog.Logger, incidents *store.IncidentStore, rules *store.RuleRegistry, events *store.EventLog, escalations *escalation.Manager, executor ActionExecutor) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if executor == nil {
		executor = DryRunExecutor{Logger: logger}
	}
	return &Engine{
		logger:      logger,
		incidents:   incidents,
		rules:       rules,
		events:      events,
		escalations: escalations,
		executor:    executor,
		latencies:   utils.NewLatencyTracker(1024),
		inflight:    make(map[string]struct{}),
	}
}

// EvaluatePass examines every open incident once. Ineligible incidents are
// escalated inline; eligible ones are dispatched on isolated workers so one
// slow action cannot stall the pass. One incident's failure never aborts the
// evaluation of the others.
func (e *Engine) EvaluatePass(ctx context.Context) {
	start := time.Now()
	for _, inc := range e.incidents.Open() {
		if ctx.Err() != nil {
			break
		}
		e.evaluate(ctx, inc)
	}
	e.latencies.Observe(time.Since(start))
}

// EvaluateIncident applies the loop's eligibility and dispatch policy to one
// incident immediately, outside the periodic pass. Injection uses it so that
// freeze-forcing categories take effect without waiting for the next tick.
func (e *Engine) EvaluateIncident(ctx context.Context, inc models.Incident) {
	e.evaluate(ctx, inc)
}

func (e *Engine) evaluate(ctx context.Context, inc models.Incident) {
	if !e.acquire(inc.ID) {
		return
	}

	rule, reason, eligible := e.eligibility(inc)
	if !eligible {
		defer e.release(inc.ID)
		e.escalate(inc, reason)
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.release(inc.ID)
		e.heal(ctx, inc, rule)
	}()
}

// eligibility decides whether the incident may be auto-healed, and with which
// rule. The freeze-forcing categories always escalate regardless of rules.
func (e *Engine) eligibility(inc models.Incident) (models.HealingRule, string, bool) {
	if models.FreezesAutomation(inc.Category) {
		return models.HealingRule{}, fmt.Sprintf("category %s requires a human operator", inc.Category), false
	}
	if e.escalations.Frozen() {
		return models.HealingRule{}, "automation is frozen", false
	}
	rule, ok := e.rules.GetForCategory(inc.Category)
	if !ok {
		return models.HealingRule{}, fmt.Sprintf("no enabled healing rule for category %s", inc.Category), false
	}
	if rule.Action == models.ActionNone {
		return models.HealingRule{}, fmt.Sprintf("category %s requires manual approval", inc.Category), false
	}
	return rule, "", true
}

// HealIncident is the manual entry point. It bypasses the evaluation loop and
// the automation freeze (the operator asked explicitly) but follows the same
// match, dispatch, and record contract for one incident on demand.
func (e *Engine) HealIncident(ctx context.Context, id string) (models.Incident, error) {
	inc, err := e.incidents.Get(id)
	if err != nil {
		return models.Incident{}, err
	}
	if inc.Status.Terminal() {
		return models.Incident{}, fmt.Errorf("incident %s is already %s", id, inc.Status)
	}
	rule, ok := e.rules.GetForCategory(inc.Category)
	if !ok {
		return models.Incident{}, fmt.Errorf("no enabled healing rule for category %s", inc.Category)
	}
	if rule.Action == models.ActionNone {
		return models.Incident{}, fmt.Errorf("category %s requires manual approval", inc.Category)
	}
	if !e.acquire(id) {
		return models.Incident{}, ErrInFlight
	}
	defer e.release(id)

	e.heal(ctx, inc, rule)
	return e.incidents.Get(id)
}

// heal dispatches one action and records the outcome. The healing event for
// an attempt is always appended before the incident's status is advanced, so
// a log consumer never observes a status change it cannot explain.
func (e *Engine) heal(ctx context.Context, inc models.Incident, rule models.HealingRule) {
	e.appendEvent(inc, rule, models.EventInProgress, "dispatching "+string(rule.Action), 0)
	if _, err := e.incidents.Transition(inc.ID, models.StatusHealing, func(rec *models.Incident) {
		rec.AutoHealAttempted = true
		rec.AutoHealResult = models.AutoHealPending
	}); err != nil {
		// Raced by another transition; nothing was dispatched.
		e.logger.Warn("healing skipped", slog.String("incident_id", inc.ID), slog.Any("error", err))
		return
	}

	start := time.Now()
	detail, err := e.execute(ctx, rule, inc.Resource)
	duration := time.Since(start)

	if err != nil {
		metrics.ObserveHealing(string(rule.Action), metrics.OutcomeError, duration)
		e.appendEvent(inc, rule, models.EventFailed, err.Error(), duration)
		if _, terr := e.incidents.Transition(inc.ID, models.StatusEscalated, func(rec *models.Incident) {
			rec.AutoHealResult = models.AutoHealFailed
		}); terr != nil {
			e.logger.Error("escalation transition failed", slog.String("incident_id", inc.ID), slog.Any("error", terr))
		}
		e.escalations.Escalate(inc, fmt.Sprintf("action %s failed: %v", rule.Action, err))
		return
	}

	metrics.ObserveHealing(string(rule.Action), metrics.OutcomeSuccess, duration)
	e.appendEvent(inc, rule, models.EventSuccess, detail, duration)
	e.rules.RecordTrigger(rule.ID, time.Now())
	if _, terr := e.incidents.Transition(inc.ID, models.StatusResolved, func(rec *models.Incident) {
		rec.AutoHealResult = models.AutoHealSuccess
	}); terr != nil {
		e.logger.Error("resolve transition failed", slog.String("incident_id", inc.ID), slog.Any("error", terr))
	}
	e.logger.Info("incident auto-healed",
		slog.String("incident_id", inc.ID),
		slog.String("action", string(rule.Action)),
		slog.Duration("duration", duration),
	)
}

// execute runs the action on its own goroutine under the action's deadline,
// so a non-cancellable executor cannot block the caller past the timeout.
func (e *Engine) execute(ctx context.Context, rule models.HealingRule, resource models.ResourceRef) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeoutFor(rule.Action))
	defer cancel()

	type outcome struct {
		detail string
		err    error
	}
	ch := make(chan outcome, 1)
	go func() {
		detail, err := e.executor.Execute(ctx, rule.Action, resource, rule.Parameters)
		ch <- outcome{detail: detail, err: err}
	}()

	select {
	case out := <-ch:
		return out.detail, out.err
	case <-ctx.Done():
		return "", fmt.Errorf("action %s on %s: %w", rule.Action, resource.Name, ctx.Err())
	}
}

// escalate routes an ineligible incident to a human without dispatching.
func (e *Engine) escalate(inc models.Incident, reason string) {
	if _, err := e.incidents.Transition(inc.ID, models.StatusEscalated, nil); err != nil {
		e.logger.Warn("escalation transition failed", slog.String("incident_id", inc.ID), slog.Any("error", err))
		return
	}
	e.escalations.Escalate(inc, reason)
}

func (e *Engine) appendEvent(inc models.Incident, rule models.HealingRule, status models.EventStatus, detail string, duration time.Duration) {
	e.events.Append(models.HealingEvent{
		ID:         uuid.New().String(),
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		IncidentID: inc.ID,
		Status:     status,
		Resource:   inc.Resource,
		Action:     rule.Action,
		Detail:     detail,
		Duration:   duration,
		Timestamp:  time.Now(),
	})
}

// acquire marks an incident as in-flight; it returns false when another
// dispatch already holds it. This is the hard mutual-exclusion guarantee: an
// incident is never dispatched to two actions concurrently.
func (e *Engine) acquire(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[id]; busy {
		return false
	}
	e.inflight[id] = struct{}{}
	return true
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)
}

// Wait blocks until all in-flight workers have completed. Stop paths use it
// so partially recorded attempts finish their event writes.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// LatencyP95 returns the current p95 evaluation pass latency.
func (e *Engine) LatencyP95() time.Duration {
	return e.latencies.Percentile(95)
}
