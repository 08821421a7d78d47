package core

import "fmt"

// MastermixVolume returns the filler volume that brings a reaction up to the
// configured total. A negative remainder is a configuration error; it is
// never clamped.
func MastermixVolume(cfg Config, r Reaction) (float64, error) {
	var parts float64
	for range r.Parts {
		parts += cfg.PartDispenseVolume
	}
	mm := cfg.TotalReactionVolume - parts
	if mm < -volumeEpsilon {
		return 0, ConfigError{
			Field: "total reaction volume",
			Reason: fmt.Sprintf("reaction in %s has %d parts x %g uL = %g uL, exceeding total volume %g uL",
				r.TargetWell, len(r.Parts), cfg.PartDispenseVolume, parts, cfg.TotalReactionVolume),
		}
	}
	if mm < 0 {
		mm = 0
	}
	return mm, nil
}

// Allocator turns reactions into dispense operations by drawing every part
// and the mastermix from a WellPool.
type Allocator struct {
	pool *WellPool
	cfg  Config
}

// NewAllocator binds an allocator to the pool it draws from.
func NewAllocator(pool *WellPool, cfg Config) *Allocator {
	return &Allocator{pool: pool, cfg: cfg}
}

// Allocate draws the parts of r in declared order followed by the mastermix.
// The mastermix remainder is checked before any part is drawn.
func (a *Allocator) Allocate(r Reaction) ([]DispenseOp, error) {
	mm, err := MastermixVolume(a.cfg, r)
	if err != nil {
		return nil, err
	}
	ops := make([]DispenseOp, 0, len(r.Parts)+1)
	for _, part := range r.Parts {
		src, err := a.pool.Draw(part, a.cfg.PartDispenseVolume)
		if err != nil {
			return nil, err
		}
		ops = append(ops, DispenseOp{SourceWell: src.WellID, TargetWell: r.TargetWell, Reagent: part, Volume: a.cfg.PartDispenseVolume})
	}
	src, err := a.pool.Draw(a.cfg.MastermixName, mm)
	if err != nil {
		return nil, err
	}
	ops = append(ops, DispenseOp{SourceWell: src.WellID, TargetWell: r.TargetWell, Reagent: a.cfg.MastermixName, Volume: mm})
	return ops, nil
}
