package core

import (
	"context"
	"fmt"
)

// NewDeadVolumeRule returns the rule reminding operators to load dead volume
// on top of the drawn totals.
func NewDeadVolumeRule() Rule {
	return deadVolumeRule{}
}

type deadVolumeRule struct{}

func (deadVolumeRule) Name() string { return "dead_volume" }

func (deadVolumeRule) Evaluate(_ context.Context, plan Plan, cfg Config) (Result, error) {
	if cfg.DeadVolume <= 0 || len(plan.Summary) == 0 {
		return Result{}, nil
	}
	return Result{Violations: []Violation{{
		Rule:     "dead_volume",
		Severity: SeverityLog,
		Message:  fmt.Sprintf("add dead volume (~%g uL per well) on top of the listed totals", cfg.DeadVolume),
	}}}, nil
}
