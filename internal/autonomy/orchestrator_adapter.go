package autonomy

import (
	"context"

	"github.com/flowtitan/flowtitan/internal/cfg"
	"github.com/flowtitan/flowtitan/internal/exec"
	"github.com/flowtitan/flowtitan/internal/negotiator"
)

// orchestratorAdapter satisfies PlanDispatcher against a concrete
// *exec.Orchestrator, whose ExecutePlan returns exec.PlanResult rather
// than interface{}.
type orchestratorAdapter struct {
	orch *exec.Orchestrator
}

// NewOrchestratorDispatcher wraps orch for use as an Engine's
// PlanDispatcher.
func NewOrchestratorDispatcher(orch *exec.Orchestrator) PlanDispatcher {
	return &orchestratorAdapter{orch: orch}
}

func (a *orchestratorAdapter) ExecutePlan(ctx context.Context, sessionID, planID string, g *cfg.CFG, caller negotiator.CallerContext) interface{} {
	return a.orch.ExecutePlan(ctx, sessionID, planID, g, caller)
}
