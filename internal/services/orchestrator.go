// Package services exposes the orchestrator operations consumed by the API
// layer and the two control loops.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KingRain/octrix/internal/detector"
	"github.com/KingRain/octrix/internal/escalation"
	"github.com/KingRain/octrix/internal/healer"
	"github.com/KingRain/octrix/internal/models"
	"github.com/KingRain/octrix/internal/patterns"
	"github.com/KingRain/octrix/internal/store"
)

// SignalSource supplies periodic fleet snapshots. It is an external
// collaborator; the orchestrator only consumes it.
type SignalSource interface {
	Snapshot(ctx context.Context) (models.FleetSnapshot, error)
}

// Orchestrator is the facade wiring detection, classification, healing, and
// escalation over the shared in-memory stores.
type Orchestrator struct {
	logger      *slog.Logger
	source      SignalSource
	detector    *detector.Detector
	engine      *healer.Engine
	escalations *escalation.Manager
	incidents   *store.IncidentStore
	rules       *store.RuleRegistry
	events      *store.EventLog
	miner       *patterns.Miner
}

// NewOrchestrator constructs the facade. source may be nil when the process
// runs purely on injected incidents.
func NewOrchestrator(
	logger *slog.Logger,
	source SignalSource,
	det *detector.Detector,
	engine *healer.Engine,
	escalations *escalation.Manager,
	incidents *store.IncidentStore,
	rules *store.RuleRegistry,
	events *store.EventLog,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		logger:      logger,
		source:      source,
		detector:    det,
		engine:      engine,
		escalations: escalations,
		incidents:   incidents,
		rules:       rules,
		events:      events,
		miner:       patterns.NewMiner(logger),
	}
}

// DetectionPass samples the signal source and evaluates the snapshot. A
// sampling failure is logged and the cycle skipped; it has no incident side
// effects.
func (o *Orchestrator) DetectionPass(ctx context.Context) {
	if o.source == nil {
		return
	}
	snapshot, err := o.source.Snapshot(ctx)
	if err != nil {
		o.logger.Warn("signal source unavailable, skipping cycle", slog.Any("error", err))
		return
	}
	created := o.detector.Evaluate(snapshot)
	if len(created) > 0 {
		o.logger.Info("detection pass complete", slog.Int("incidents", len(created)))
	}
}

// HealingPass evaluates all open incidents once.
func (o *Orchestrator) HealingPass(ctx context.Context) {
	o.engine.EvaluatePass(ctx)
}

// ListIncidents returns incidents, optionally filtered by status.
func (o *Orchestrator) ListIncidents(status string) ([]models.Incident, error) {
	var filter models.Status
	if status != "" {
		parsed, err := models.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filter = parsed
	}
	return o.incidents.List(filter), nil
}

// GetIncident returns one incident by id.
func (o *Orchestrator) GetIncident(id string) (models.Incident, error) {
	return o.incidents.Get(id)
}

// Stats summarises the incident store.
func (o *Orchestrator) Stats() models.IncidentStats {
	return o.incidents.Stats()
}

// AcknowledgeIncident marks an incident as acknowledged by an operator. For
// escalated incidents the escalation record is acknowledged instead; that
// never unfreezes automation by itself.
func (o *Orchestrator) AcknowledgeIncident(id, by string) (models.Incident, error) {
	inc, err := o.incidents.Get(id)
	if err != nil {
		return models.Incident{}, err
	}
	if inc.Status == models.StatusEscalated {
		o.escalations.Acknowledge(id, by)
		return inc, nil
	}
	return o.incidents.Transition(id, models.StatusAcknowledged, nil)
}

// ResolveIncident closes an incident manually.
func (o *Orchestrator) ResolveIncident(id string) (models.Incident, error) {
	return o.incidents.Transition(id, models.StatusResolved, nil)
}

// ManualHeal dispatches the matching rule for one incident on demand.
func (o *Orchestrator) ManualHeal(ctx context.Context, id string) (models.Incident, error) {
	return o.engine.HealIncident(ctx, id)
}

// Inject creates a synthetic incident, bypassing threshold evaluation but not
// the cooldown or classification, then applies healing policy to it
// immediately so freeze-forcing categories take effect at once.
func (o *Orchestrator) Inject(ctx context.Context, category string, resource models.ResourceRef, snapshot map[string]float64, signals *models.ClassificationSignals) (models.Incident, error) {
	parsed, err := models.ParseCategory(category)
	if err != nil {
		return models.Incident{}, err
	}
	if resource.Name == "" {
		return models.Incident{}, fmt.Errorf("resource name is required")
	}
	inc, created := o.detector.Inject(parsed, resource, snapshot, signals)
	if !created {
		return models.Incident{}, fmt.Errorf("detection for %s suppressed by active cooldown", resource.Key(parsed))
	}
	if models.FreezesAutomation(parsed) {
		o.engine.EvaluateIncident(ctx, inc)
		return o.incidents.Get(inc.ID)
	}
	return inc, nil
}

// ListRules returns all healing rules.
func (o *Orchestrator) ListRules() []models.HealingRule {
	return o.rules.List()
}

// CreateRule validates and stores a new healing rule.
func (o *Orchestrator) CreateRule(rule models.HealingRule) (models.HealingRule, error) {
	return o.rules.Create(rule)
}

// UpdateRule replaces the mutable fields of an existing rule.
func (o *Orchestrator) UpdateRule(id string, rule models.HealingRule) (models.HealingRule, error) {
	return o.rules.Update(id, rule)
}

// ToggleRule flips a rule's enabled flag.
func (o *Orchestrator) ToggleRule(id string) (models.HealingRule, error) {
	return o.rules.Toggle(id)
}

// ListEvents returns the retained healing events, newest first.
func (o *Orchestrator) ListEvents() []models.HealingEvent {
	return o.events.List()
}

// ClearEvents discards the healing event history.
func (o *Orchestrator) ClearEvents() {
	o.events.Clear()
}

// AutomationStatus reports the freeze state.
func (o *Orchestrator) AutomationStatus() escalation.AutomationStatus {
	return o.escalations.Status()
}

// Unfreeze lifts the automation freeze; false when not frozen.
func (o *Orchestrator) Unfreeze(by string) bool {
	return o.escalations.Unfreeze(by)
}

// Escalations returns all escalation records.
func (o *Orchestrator) Escalations() []models.EscalationRecord {
	return o.escalations.Records()
}

// Patterns mines recurring-incident patterns from terminal incidents.
func (o *Orchestrator) Patterns() []models.RecurringPattern {
	return o.miner.Mine(o.incidents.List(""))
}

// Drain waits for in-flight healing workers, letting stop paths finish their
// event writes.
func (o *Orchestrator) Drain() {
	o.engine.Wait()
}
