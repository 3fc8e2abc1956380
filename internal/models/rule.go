package models

import (
	"fmt"
	"time"
)

// ActionType enumerates the remediation actions a healing rule may dispatch.
type ActionType string

const (
	ActionRestartPod      ActionType = "restart-pod"
	ActionScaleDeployment ActionType = "scale-deployment"
	ActionPatchMemory     ActionType = "patch-memory"
	ActionPatchCPU        ActionType = "patch-cpu"
	ActionRetryImagePull  ActionType = "retry-image-pull"
	ActionNone            ActionType = "no-action"
)

// ParseActionType validates a raw action string. Unknown values are rejected
// here, at rule-creation time, never at dispatch time.
func ParseActionType(raw string) (ActionType, error) {
	switch ActionType(raw) {
	case ActionRestartPod, ActionScaleDeployment, ActionPatchMemory,
		ActionPatchCPU, ActionRetryImagePull, ActionNone:
		return ActionType(raw), nil
	default:
		return "", fmt.Errorf("unknown action type %q", raw)
	}
}

// ActionForCategory is the static category → action table. Categories mapped
// to ActionNone require a human and always escalate.
func ActionForCategory(category Category) ActionType {
	switch category {
	case CategoryOOMKilled, CategoryHighMemory:
		return ActionPatchMemory
	case CategoryHighCPU:
		return ActionScaleDeployment
	case CategoryPodCrash, CategoryCrashLoop, CategoryPersistentRestarts:
		return ActionRestartPod
	case CategoryImagePullError:
		return ActionRetryImagePull
	default:
		return ActionNone
	}
}

// HealingRule maps an incident category to a remediation action with
// parameters and retry/cooldown policy.
type HealingRule struct {
	ID             string            `json:"id" yaml:"id"`
	Name           string            `json:"name" yaml:"name"`
	Enabled        bool              `json:"enabled" yaml:"enabled"`
	TargetCategory Category          `json:"targetCategory" yaml:"targetCategory"`
	Action         ActionType        `json:"action" yaml:"action"`
	Parameters     map[string]string `json:"parameters,omitempty" yaml:"parameters"`
	CooldownSecs   int               `json:"cooldownSeconds" yaml:"cooldownSeconds"`
	MaxRetries     int               `json:"maxRetries" yaml:"maxRetries"`

	TriggerCount  int        `json:"triggerCount"`
	LastTriggered *time.Time `json:"lastTriggered,omitempty"`
}

// Validate checks rule fields that must hold before the rule enters the
// registry.
func (r HealingRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if r.TargetCategory == "" {
		return fmt.Errorf("rule target category is required")
	}
	if _, err := ParseActionType(string(r.Action)); err != nil {
		return err
	}
	if r.CooldownSecs < 0 {
		return fmt.Errorf("rule cooldown must be non-negative")
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("rule max retries must be non-negative")
	}
	return nil
}
