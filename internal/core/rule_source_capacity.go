package core

import (
	"context"
	"fmt"
)

// NewSourceWellCapacityRule returns the rule flagging source wells whose
// drawn total plus dead volume exceeds the configured well capacity.
func NewSourceWellCapacityRule() Rule {
	return sourceWellCapacityRule{}
}

type sourceWellCapacityRule struct{}

func (sourceWellCapacityRule) Name() string { return "source_well_capacity" }

func (sourceWellCapacityRule) Evaluate(_ context.Context, plan Plan, cfg Config) (Result, error) {
	if cfg.SourceWellCapacity <= 0 {
		return Result{}, nil
	}
	res := Result{}
	for _, s := range plan.Summary {
		needed := s.TotalVolume + cfg.DeadVolume
		if needed > cfg.SourceWellCapacity+volumeEpsilon {
			res.Violations = append(res.Violations, Violation{
				Rule:       "source_well_capacity",
				Severity:   SeverityWarn,
				Message:    fmt.Sprintf("source well %s (%s) needs %g uL but holds at most %g uL", s.SourceWell, s.Reagent, needed, cfg.SourceWellCapacity),
				SourceWell: s.SourceWell,
			})
		}
	}
	return res, nil
}
