package core

import "fmt"

// volumeEpsilon absorbs floating point noise when comparing running totals
// and mastermix remainders.
const volumeEpsilon = 1e-9

// WellPool maps each reagent to the source wells holding it and tracks how
// much volume has been drawn from every well. It owns all allocation state
// for a single plan build and is not safe for concurrent use.
type WellPool struct {
	wells  map[string][]SourceWell
	holder map[string]string
	drawn  map[string]float64
}

// NewWellPool registers the source plate wells in declaration order. Well
// identifiers must be unique and every well must name a reagent.
func NewWellPool(wells []SourceWell) (*WellPool, error) {
	p := &WellPool{
		wells:  make(map[string][]SourceWell),
		holder: make(map[string]string),
		drawn:  make(map[string]float64),
	}
	for _, w := range wells {
		if err := p.add(w); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *WellPool) add(w SourceWell) error {
	if w.Reagent == "" {
		return ValidationError{Field: "source well", Value: w.WellID, Reason: "reagent name is empty"}
	}
	if _, _, err := ParseWell(w.WellID); err != nil {
		return err
	}
	if holder, ok := p.holder[w.WellID]; ok {
		return ValidationError{Field: "source well", Value: w.WellID, Reason: fmt.Sprintf("already holds %q", holder)}
	}
	p.holder[w.WellID] = w.Reagent
	p.wells[w.Reagent] = append(p.wells[w.Reagent], w)
	return nil
}

// Register adds a well to the pool after construction. Registering a well
// that already holds the same reagent is a no-op; a well holding a different
// reagent is rejected.
func (p *WellPool) Register(w SourceWell) error {
	if err := p.checkRegister(w); err != nil {
		return err
	}
	if _, ok := p.holder[w.WellID]; ok {
		return nil
	}
	return p.add(w)
}

// checkRegister reports the error Register would return without changing the
// pool.
func (p *WellPool) checkRegister(w SourceWell) error {
	if holder, ok := p.holder[w.WellID]; ok {
		if holder == w.Reagent {
			return nil
		}
		return ValidationError{
			Field:  "source well",
			Value:  w.WellID,
			Reason: fmt.Sprintf("holds %q and cannot also hold %q", holder, w.Reagent),
		}
	}
	if w.Reagent == "" {
		return ValidationError{Field: "source well", Value: w.WellID, Reason: "reagent name is empty"}
	}
	_, _, err := ParseWell(w.WellID)
	return err
}

// Holder returns the reagent registered in a well.
func (p *WellPool) Holder(wellID string) (string, bool) {
	reagent, ok := p.holder[wellID]
	return reagent, ok
}

// Has reports whether at least one well holds the reagent.
func (p *WellPool) Has(reagent string) bool {
	return len(p.wells[reagent]) > 0
}

// Wells returns the wells registered for a reagent in declaration order.
func (p *WellPool) Wells(reagent string) []SourceWell {
	return append([]SourceWell(nil), p.wells[reagent]...)
}

// Drawn returns the cumulative volume drawn from a well so far.
func (p *WellPool) Drawn(wellID string) float64 {
	return p.drawn[wellID]
}

// Draw picks the well of reagent with the smallest cumulative drawn volume,
// preferring the first-listed well on ties, records the draw against it and
// returns it.
func (p *WellPool) Draw(reagent string, volume float64) (SourceWell, error) {
	candidates := p.wells[reagent]
	if len(candidates) == 0 {
		return SourceWell{}, MissingReagentError{Reagents: []string{reagent}}
	}
	if volume < 0 {
		return SourceWell{}, ValidationError{Field: "volume", Value: fmt.Sprint(volume), Reason: "must not be negative"}
	}
	best := candidates[0]
	for _, w := range candidates[1:] {
		if p.drawn[w.WellID] < p.drawn[best.WellID]-volumeEpsilon {
			best = w
		}
	}
	p.drawn[best.WellID] += volume
	return best, nil
}
