package core

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Plan is the complete, internally consistent output of one build.
type Plan struct {
	Reactions []Reaction
	// Dispenses are in generation order: reaction order, then part order,
	// mastermix last for each reaction.
	Dispenses []DispenseOp
	// Summary has one entry per source well drawn from, in column-major
	// plate order.
	Summary []WellSummary
}

// Build allocates every reaction against pool and aggregates the per-well
// summary. The configured mastermix well is registered for the mastermix
// reagent once every input has been checked, so a failed build leaves pool
// untouched. Either a complete plan or an error is returned.
func Build(reactions []Reaction, pool *WellPool, cfg Config) (Plan, error) {
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}
	if pool == nil {
		return Plan{}, fmt.Errorf("build plan: nil well pool")
	}
	if len(reactions) == 0 {
		return Plan{}, ConfigError{Field: "reactions", Reason: "no reactions to plan"}
	}
	mastermix := SourceWell{WellID: cfg.MastermixWell, Reagent: cfg.MastermixName}
	if err := pool.checkRegister(mastermix); err != nil {
		return Plan{}, err
	}
	if missing := missingReagents(reactions, pool, cfg.MastermixName); len(missing) > 0 {
		return Plan{}, MissingReagentError{Reagents: missing}
	}
	for _, r := range reactions {
		if len(r.Parts) == 0 {
			return Plan{}, ValidationError{Field: "reaction", Value: r.TargetWell, Reason: "has no parts"}
		}
		if _, err := MastermixVolume(cfg, r); err != nil {
			return Plan{}, err
		}
	}
	if err := pool.Register(mastermix); err != nil {
		return Plan{}, err
	}

	alloc := NewAllocator(pool, cfg)
	agg := newSummaryAggregator()
	dispenses := make([]DispenseOp, 0, len(reactions)*4)
	for i, r := range reactions {
		ops, err := alloc.Allocate(r)
		if err != nil {
			return Plan{}, err
		}
		for _, op := range ops {
			agg.add(i, op)
		}
		dispenses = append(dispenses, ops...)
	}

	return Plan{
		Reactions: cloneReactions(reactions),
		Dispenses: dispenses,
		Summary:   agg.summaries(),
	}, nil
}

// TargetWells returns the reaction target wells in column-major plate order.
func (p Plan) TargetWells() []string {
	out := make([]string, len(p.Reactions))
	for i, r := range p.Reactions {
		out[i] = r.TargetWell
	}
	slices.SortFunc(out, CompareWells)
	return out
}

// PartCounts returns the smallest and largest number of parts in any reaction.
func (p Plan) PartCounts() (lowest, highest int) {
	for i, r := range p.Reactions {
		n := len(r.Parts)
		if i == 0 || n < lowest {
			lowest = n
		}
		if n > highest {
			highest = n
		}
	}
	return lowest, highest
}

// missingReagents lists the parts no well holds. The mastermix reagent counts
// as present since Build registers its well before allocating.
func missingReagents(reactions []Reaction, pool *WellPool, mastermix string) []string {
	seen := make(map[string]struct{})
	var missing []string
	for _, r := range reactions {
		for _, part := range r.Parts {
			if part == mastermix || pool.Has(part) {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			missing = append(missing, part)
		}
	}
	sort.Strings(missing)
	return missing
}

type wellTotals struct {
	summary      WellSummary
	lastReaction int
}

type summaryAggregator struct {
	wells map[string]*wellTotals
}

func newSummaryAggregator() *summaryAggregator {
	return &summaryAggregator{wells: make(map[string]*wellTotals)}
}

// add must be called with non-decreasing reaction indexes so that repeated
// draws from the same well within one reaction count that reaction once.
func (a *summaryAggregator) add(reaction int, op DispenseOp) {
	t, ok := a.wells[op.SourceWell]
	if !ok {
		t = &wellTotals{summary: WellSummary{SourceWell: op.SourceWell, Reagent: op.Reagent}, lastReaction: -1}
		a.wells[op.SourceWell] = t
	}
	if t.lastReaction != reaction {
		t.summary.ReactionCount++
		t.lastReaction = reaction
	}
	t.summary.TotalVolume += op.Volume
}

func (a *summaryAggregator) summaries() []WellSummary {
	out := make([]WellSummary, 0, len(a.wells))
	for _, t := range a.wells {
		out = append(out, t.summary)
	}
	slices.SortFunc(out, func(x, y WellSummary) int {
		if c := CompareWells(x.SourceWell, y.SourceWell); c != 0 {
			return c
		}
		return strings.Compare(x.SourceWell, y.SourceWell)
	})
	return out
}

func cloneReactions(in []Reaction) []Reaction {
	out := make([]Reaction, len(in))
	for i, r := range in {
		out[i] = Reaction{TargetWell: r.TargetWell, Parts: append([]string(nil), r.Parts...)}
	}
	return out
}
