package healer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KingRain/octrix/internal/models"
)

// ActionExecutor performs the actual remediation call. The orchestrator only
// decides what to invoke and when; the mutation itself happens behind this
// boundary.
type ActionExecutor interface {
	Execute(ctx context.Context, action models.ActionType, resource models.ResourceRef, params map[string]string) (string, error)
}

// timeoutFor bounds each action type. A stuck executor must not stall the
// evaluation loop beyond this.
func timeoutFor(action models.ActionType) time.Duration {
	switch action {
	case models.ActionRestartPod:
		return 30 * time.Second
	case models.ActionScaleDeployment:
		return 45 * time.Second
	case models.ActionPatchMemory, models.ActionPatchCPU:
		return 60 * time.Second
	case models.ActionRetryImagePull:
		return 2 * time.Minute
	default:
		return 30 * time.Second
	}
}

// DryRunExecutor satisfies ActionExecutor without touching the cluster. It is
// the default wiring when no cluster adapter is configured.
type DryRunExecutor struct {
	Logger *slog.Logger
}

// Execute logs the intended mutation and reports success.
func (e DryRunExecutor) Execute(ctx context.Context, action models.ActionType, resource models.ResourceRef, params map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	detail := fmt.Sprintf("dry-run %s on %s/%s", action, resource.Namespace, resource.Name)
	if e.Logger != nil {
		e.Logger.Info("dry-run action",
			slog.String("action", string(action)),
			slog.String("resource", resource.Namespace+"/"+resource.Name),
		)
	}
	return detail, nil
}
