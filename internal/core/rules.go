package core

import "context"

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine whether a plan is released.
const (
	// SeverityBlock rejects the plan.
	SeverityBlock Severity = "block"
	// SeverityWarn reports a problem but keeps the plan.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation is a single rule finding, optionally tied to a source well.
type Violation struct {
	Rule       string
	Severity   Severity
	Message    string
	SourceWell string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "plan blocked by rule " + v.Rule + ": " + v.Message
		}
	}
	return "plan blocked by rules"
}

// Rule inspects a finished plan.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, plan Plan, cfg Config) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// NewDefaultRulesEngine builds a rules engine with the built-in advisory rules.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewDeadVolumeRule())
	engine.Register(NewSourceWellCapacityRule())
	return engine
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine) Evaluate(ctx context.Context, plan Plan, cfg Config) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, plan, cfg)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
