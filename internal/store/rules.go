package store

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/KingRain/octrix/internal/models"
)

// RuleRegistry holds healing rules keyed by id. Matching is first-match over
// enabled rules with the same target category, in creation order.
type RuleRegistry struct {
	mu    sync.RWMutex
	rules map[string]*models.HealingRule
	order []string
}

// NewRuleRegistry creates an empty registry.
func NewRuleRegistry() *RuleRegistry {
	return &RuleRegistry{rules: make(map[string]*models.HealingRule)}
}

// rulePackFile is the YAML root for seeded rule packs.
type rulePackFile struct {
	Rules []models.HealingRule `yaml:"rules"`
}

// LoadRulePack seeds the registry from a YAML rule pack. A missing file is not
// an error; the registry simply starts empty.
func (r *RuleRegistry) LoadRulePack(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read rule pack: %w", err)
	}
	var pack rulePackFile
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return fmt.Errorf("parse rule pack: %w", err)
	}
	for _, rule := range pack.Rules {
		if _, err := r.Create(rule); err != nil {
			return fmt.Errorf("rule %q: %w", rule.Name, err)
		}
	}
	return nil
}

// SeedDefaults installs one enabled rule per auto-healable category using the
// static category → action table. Used when no rule pack is configured.
func (r *RuleRegistry) SeedDefaults() {
	for _, category := range []models.Category{
		models.CategoryPodCrash,
		models.CategoryCrashLoop,
		models.CategoryPersistentRestarts,
		models.CategoryHighCPU,
		models.CategoryHighMemory,
		models.CategoryOOMKilled,
		models.CategoryImagePullError,
	} {
		rule := models.HealingRule{
			Name:           string(category) + "-default",
			Enabled:        true,
			TargetCategory: category,
			Action:         models.ActionForCategory(category),
			CooldownSecs:   300,
			MaxRetries:     1,
		}
		// Defaults come from the static table and always validate.
		_, _ = r.Create(rule)
	}
}

// Create validates and inserts a rule, assigning an id when absent.
func (r *RuleRegistry) Create(rule models.HealingRule) (models.HealingRule, error) {
	if err := rule.Validate(); err != nil {
		return models.HealingRule{}, err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rules[rule.ID]; exists {
		return models.HealingRule{}, fmt.Errorf("rule %s already exists", rule.ID)
	}
	stored := rule
	r.rules[rule.ID] = &stored
	r.order = append(r.order, rule.ID)
	return stored, nil
}

// Get returns a copy of the rule with the given id.
func (r *RuleRegistry) Get(id string) (models.HealingRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return models.HealingRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return *rule, nil
}

// List returns all rules in creation order.
func (r *RuleRegistry) List() []models.HealingRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.HealingRule, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.rules[id])
	}
	return out
}

// Update replaces the mutable fields of an existing rule.
func (r *RuleRegistry) Update(id string, update models.HealingRule) (models.HealingRule, error) {
	update.ID = id
	if err := update.Validate(); err != nil {
		return models.HealingRule{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return models.HealingRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	rule.Name = update.Name
	rule.Enabled = update.Enabled
	rule.TargetCategory = update.TargetCategory
	rule.Action = update.Action
	rule.Parameters = update.Parameters
	rule.CooldownSecs = update.CooldownSecs
	rule.MaxRetries = update.MaxRetries
	return *rule, nil
}

// Toggle flips a rule's enabled flag and returns the new state.
func (r *RuleRegistry) Toggle(id string) (models.HealingRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return models.HealingRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	rule.Enabled = !rule.Enabled
	return *rule, nil
}

// GetForCategory returns the first enabled rule targeting category.
func (r *RuleRegistry) GetForCategory(category models.Category) (models.HealingRule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		rule := r.rules[id]
		if rule.Enabled && rule.TargetCategory == category {
			return *rule, true
		}
	}
	return models.HealingRule{}, false
}

// RecordTrigger bumps the trigger counter and timestamp after a dispatch.
func (r *RuleRegistry) RecordTrigger(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[id]
	if !ok {
		return
	}
	rule.TriggerCount++
	stamp := at
	rule.LastTriggered = &stamp
}

// EnabledCategories returns the categories with at least one enabled rule,
// sorted for stable output.
func (r *RuleRegistry) EnabledCategories() []models.Category {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[models.Category]struct{})
	for _, rule := range r.rules {
		if rule.Enabled {
			seen[rule.TargetCategory] = struct{}{}
		}
	}
	out := make([]models.Category, 0, len(seen))
	for category := range seen {
		out = append(out, category)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
