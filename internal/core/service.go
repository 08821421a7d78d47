package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Clock provides the current time for operation timing.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Service runs the full plan pipeline: expansion, allocation and the advisory rules.
type Service struct {
	engine  *RulesEngine
	metrics MetricsRecorder
	logger  *zap.Logger
	clock   Clock
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the structured logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRulesEngine replaces the default rules engine.
func WithRulesEngine(e *RulesEngine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithClock overrides the clock used for timing.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewService constructs a service with the default rules and a no-op logger.
func NewService(opts ...Option) *Service {
	s := &Service{
		engine: NewDefaultRulesEngine(),
		logger: zap.NewNop(),
		clock:  systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlanRequest is the fully materialized input of one plan build.
type PlanRequest struct {
	Config      Config
	SourceWells []SourceWell
	Spec        Spec
}

// Plan expands the specification, allocates every reaction against a fresh
// WellPool built from the source wells and evaluates the rules. Blocking
// violations are returned as RuleViolationError together with the result.
func (s *Service) Plan(ctx context.Context, req PlanRequest) (Plan, Result, error) {
	if err := ctx.Err(); err != nil {
		return Plan{}, Result{}, err
	}
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return Plan{}, Result{}, err
	}
	if req.Spec == nil {
		return Plan{}, Result{}, ConfigError{Field: "mode", Reason: fmt.Sprintf("no %s specification provided", cfg.Mode)}
	}
	if req.Spec.Mode() != cfg.Mode {
		return Plan{}, Result{}, ConfigError{
			Field:  "mode",
			Reason: fmt.Sprintf("mode is %q but the specification describes %q", cfg.Mode, req.Spec.Mode()),
		}
	}

	var reactions []Reaction
	err := s.run(ctx, "expand", func() error {
		var err error
		reactions, err = Expand(req.Spec, cfg.Plate())
		return err
	})
	if err != nil {
		return Plan{}, Result{}, err
	}
	s.logger.Debug("expanded reactions", zap.String("mode", string(cfg.Mode)), zap.Int("reactions", len(reactions)))

	var (
		plan   Plan
		listed []SourceWell
	)
	err = s.run(ctx, "build", func() error {
		pool, err := NewWellPool(req.SourceWells)
		if err != nil {
			return err
		}
		if _, ok := pool.Holder(cfg.MastermixWell); !ok {
			listed = pool.Wells(cfg.MastermixName)
		}
		plan, err = Build(reactions, pool, cfg)
		return err
	})
	if err != nil {
		return Plan{}, Result{}, err
	}
	if len(listed) > 0 {
		ids := make([]string, len(listed))
		for i, w := range listed {
			ids[i] = w.WellID
		}
		s.logger.Warn("mastermix well is not on the source plate; drawing from it alongside the listed mastermix wells",
			zap.String("mastermix_well", cfg.MastermixWell),
			zap.Strings("listed_wells", ids))
	}
	s.logger.Info("built plan",
		zap.Int("reactions", len(plan.Reactions)),
		zap.Int("dispenses", len(plan.Dispenses)),
		zap.Int("source_wells", len(plan.Summary)))

	var res Result
	err = s.run(ctx, "rules", func() error {
		var err error
		res, err = s.engine.Evaluate(ctx, plan, cfg)
		return err
	})
	if err != nil {
		return Plan{}, Result{}, err
	}
	for _, v := range res.Violations {
		fields := []zap.Field{zap.String("rule", v.Rule), zap.String("severity", string(v.Severity))}
		if v.SourceWell != "" {
			fields = append(fields, zap.String("source_well", v.SourceWell))
		}
		switch v.Severity {
		case SeverityBlock, SeverityWarn:
			s.logger.Warn(v.Message, fields...)
		default:
			s.logger.Debug(v.Message, fields...)
		}
	}
	if res.HasBlocking() {
		return Plan{}, res, RuleViolationError{Result: res}
	}

	if obs, ok := s.metrics.(PlanObserver); ok {
		obs.ObservePlan(ctx, plan)
	}
	return plan, res, nil
}

func (s *Service) run(ctx context.Context, op string, fn func() error) error {
	start := s.clock.Now()
	err := fn()
	if s.metrics != nil {
		s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	}
	if err != nil {
		s.logger.Debug("plan stage failed", zap.String("operation", op), zap.Error(err))
	}
	return err
}
