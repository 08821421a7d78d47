package core

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func baseConfig() Config {
	return Config{
		Mode:                ModeCombinatorial,
		TotalReactionVolume: 10,
		PartDispenseVolume:  0.5,
		MastermixWell:       "A1",
		MastermixName:       "Mastermix",
	}
}

func TestBuild_ScenarioA_MastermixVolume(t *testing.T) {
	reactions, err := Expand(CombinatorialSpec{Groups: []PartGroup{
		{Parts: []string{"P1", "P2"}},
		{Parts: []string{"C1", "C2", "C3"}},
	}}, PlateMWP96)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	pool := mustPool(t,
		SourceWell{"B1", "P1"}, SourceWell{"B2", "P2"},
		SourceWell{"C1", "C1"}, SourceWell{"C2", "C2"}, SourceWell{"C3", "C3"})
	plan, err := Build(reactions, pool, baseConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(plan.Reactions) != 6 {
		t.Fatalf("got %d reactions", len(plan.Reactions))
	}
	if len(plan.Dispenses) != 6*3 {
		t.Fatalf("got %d dispenses", len(plan.Dispenses))
	}
	for i := 2; i < len(plan.Dispenses); i += 3 {
		op := plan.Dispenses[i]
		if op.Reagent != "Mastermix" || op.SourceWell != "A1" || op.Volume != 9.0 {
			t.Fatalf("unexpected mastermix op %+v", op)
		}
	}
}

func TestBuild_ScenarioB_SplitReagent(t *testing.T) {
	reactions := []Reaction{
		{TargetWell: "B1", Parts: []string{"X"}},
		{TargetWell: "B2", Parts: []string{"X"}},
		{TargetWell: "B3", Parts: []string{"X"}},
		{TargetWell: "B4", Parts: []string{"X"}},
	}
	cfg := baseConfig()
	cfg.Mode = ModeManualRows
	cfg.TotalReactionVolume = 2
	cfg.PartDispenseVolume = 1
	cfg.MastermixWell = "H12"
	pool := mustPool(t, SourceWell{"A1", "X"}, SourceWell{"A2", "X"})
	plan, err := Build(reactions, pool, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want := []WellSummary{
		{SourceWell: "A1", Reagent: "X", ReactionCount: 2, TotalVolume: 2.0},
		{SourceWell: "A2", Reagent: "X", ReactionCount: 2, TotalVolume: 2.0},
		{SourceWell: "H12", Reagent: "Mastermix", ReactionCount: 4, TotalVolume: 4.0},
	}
	if diff := cmp.Diff(want, plan.Summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	sources := []string{}
	for _, op := range plan.Dispenses {
		if op.Reagent == "X" {
			sources = append(sources, op.SourceWell)
		}
	}
	if diff := cmp.Diff([]string{"A1", "A2", "A1", "A2"}, sources); diff != "" {
		t.Fatalf("draw order mismatch:\n%s", diff)
	}
}

func TestBuild_ScenarioD_NegativeMastermix(t *testing.T) {
	cfg := baseConfig()
	cfg.TotalReactionVolume = 5
	cfg.PartDispenseVolume = 1
	pool := mustPool(t, SourceWell{"B1", "X"})
	reactions := []Reaction{{TargetWell: "A1", Parts: []string{"X", "X", "X", "X", "X", "X"}}}
	_, err := Build(reactions, pool, cfg)
	var cerr ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if pool.Drawn("B1") != 0 {
		t.Fatalf("no part may be drawn when the mastermix check fails")
	}
}

func TestBuild_ZeroMastermixStillEmitted(t *testing.T) {
	cfg := baseConfig()
	cfg.TotalReactionVolume = 1
	pool := mustPool(t, SourceWell{"B1", "X"}, SourceWell{"B2", "Y"})
	plan, err := Build([]Reaction{{TargetWell: "C1", Parts: []string{"X", "Y"}}}, pool, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	last := plan.Dispenses[len(plan.Dispenses)-1]
	if last.Reagent != "Mastermix" || last.Volume != 0 {
		t.Fatalf("expected zero-volume mastermix op, got %+v", last)
	}
}

func TestBuild_Conservation(t *testing.T) {
	cfg := baseConfig()
	cfg.TotalReactionVolume = 7.3
	cfg.PartDispenseVolume = 0.35
	reactions, err := Expand(CombinatorialSpec{
		Common: []string{"BB", "Term"},
		Groups: []PartGroup{{Parts: []string{"a", "b", "c"}}, {Parts: []string{"x", "y", "z", "w"}}},
	}, PlateMWP96)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	pool := mustPool(t,
		SourceWell{"B1", "a"}, SourceWell{"B2", "b"}, SourceWell{"B3", "c"},
		SourceWell{"C1", "x"}, SourceWell{"C2", "y"}, SourceWell{"C3", "z"}, SourceWell{"C4", "w"},
		SourceWell{"D1", "BB"}, SourceWell{"D2", "BB"}, SourceWell{"D3", "Term"},
		SourceWell{"A2", "Mastermix"})
	plan, err := Build(reactions, pool, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sums := make(map[string]float64)
	for _, op := range plan.Dispenses {
		if op.Volume < 0 {
			t.Fatalf("negative volume %+v", op)
		}
		sums[op.TargetWell] += op.Volume
	}
	if len(sums) != len(reactions) {
		t.Fatalf("expected %d targets, got %d", len(reactions), len(sums))
	}
	for well, sum := range sums {
		if math.Abs(sum-cfg.TotalReactionVolume) > 1e-9 {
			t.Fatalf("target %s sums to %v", well, sum)
		}
	}
	var total float64
	for _, s := range plan.Summary {
		total += s.TotalVolume
	}
	if want := cfg.TotalReactionVolume * float64(len(reactions)); math.Abs(total-want) > 1e-9 {
		t.Fatalf("summary total %v, want %v", total, want)
	}
	// mastermix is split over the listed well A2 and the configured well A1
	for _, s := range plan.Summary {
		if s.Reagent == "Mastermix" && s.ReactionCount != 6 {
			t.Fatalf("mastermix well %s served %d reactions", s.SourceWell, s.ReactionCount)
		}
	}
}

func TestBuild_Determinism(t *testing.T) {
	build := func() Plan {
		reactions, err := Expand(CombinatorialSpec{
			Groups: []PartGroup{{Parts: []string{"a", "b"}}, {Parts: []string{"x", "y", "z"}}},
		}, PlateMWP96)
		if err != nil {
			t.Fatalf("Expand: %v", err)
		}
		pool := mustPool(t,
			SourceWell{"B1", "a"}, SourceWell{"B2", "a"}, SourceWell{"B3", "b"},
			SourceWell{"C1", "x"}, SourceWell{"C2", "y"}, SourceWell{"C3", "z"}, SourceWell{"C4", "z"})
		plan, err := Build(reactions, pool, baseConfig())
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		return plan
	}
	if diff := cmp.Diff(build(), build()); diff != "" {
		t.Fatalf("plans differ:\n%s", diff)
	}
}

func TestBuild_DuplicatePartWithinReaction(t *testing.T) {
	cfg := baseConfig()
	cfg.Mode = ModeManualRows
	t.Run("split over two wells", func(t *testing.T) {
		pool := mustPool(t, SourceWell{"B1", "Frag"}, SourceWell{"B2", "Frag"})
		plan, err := Build([]Reaction{{TargetWell: "C1", Parts: []string{"Frag", "Frag"}}}, pool, cfg)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if plan.Dispenses[0].SourceWell != "B1" || plan.Dispenses[1].SourceWell != "B2" {
			t.Fatalf("expected independent draws, got %+v", plan.Dispenses[:2])
		}
	})
	t.Run("single well counts reaction once", func(t *testing.T) {
		pool := mustPool(t, SourceWell{"B1", "Frag"})
		plan, err := Build([]Reaction{{TargetWell: "C1", Parts: []string{"Frag", "Frag"}}}, pool, cfg)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		want := WellSummary{SourceWell: "B1", Reagent: "Frag", ReactionCount: 1, TotalVolume: 1.0}
		if diff := cmp.Diff(want, plan.Summary[1]); diff != "" {
			t.Fatalf("summary mismatch:\n%s", diff)
		}
	})
}

func TestBuild_MissingReagentsReportedTogether(t *testing.T) {
	pool := mustPool(t, SourceWell{"B1", "X"})
	reactions := []Reaction{
		{TargetWell: "C1", Parts: []string{"X", "Zeta"}},
		{TargetWell: "C2", Parts: []string{"Alpha", "Zeta"}},
	}
	_, err := Build(reactions, pool, baseConfig())
	var missing MissingReagentError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingReagentError, got %v", err)
	}
	if diff := cmp.Diff([]string{"Alpha", "Zeta"}, missing.Reagents); diff != "" {
		t.Fatalf("missing mismatch:\n%s", diff)
	}
	if pool.Drawn("B1") != 0 {
		t.Fatalf("no draw may happen before the missing check")
	}
}

func TestBuild_MastermixWellConflict(t *testing.T) {
	pool := mustPool(t, SourceWell{"A1", "Fragment1"})
	_, err := Build([]Reaction{{TargetWell: "C1", Parts: []string{"Fragment1"}}}, pool, baseConfig())
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestBuild_SummaryInPlateOrder(t *testing.T) {
	pool := mustPool(t, SourceWell{"B10", "X"}, SourceWell{"B2", "Y"}, SourceWell{"AA1", "Z"})
	cfg := baseConfig()
	cfg.MastermixWell = "C1"
	plan, err := Build([]Reaction{{TargetWell: "A1", Parts: []string{"X", "Y", "Z"}}}, pool, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	var got []string
	for _, s := range plan.Summary {
		got = append(got, s.SourceWell)
	}
	if diff := cmp.Diff([]string{"C1", "AA1", "B2", "B10"}, got); diff != "" {
		t.Fatalf("summary order mismatch:\n%s", diff)
	}

	pool = mustPool(t, SourceWell{"A2", "X"}, SourceWell{"B1", "Y"})
	cfg.MastermixWell = "H12"
	plan, err = Build([]Reaction{{TargetWell: "A1", Parts: []string{"X", "Y"}}}, pool, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	got = got[:0]
	for _, s := range plan.Summary {
		got = append(got, s.SourceWell)
	}
	if diff := cmp.Diff([]string{"B1", "A2", "H12"}, got); diff != "" {
		t.Fatalf("summary must list columns before rows:\n%s", diff)
	}
}

func TestBuild_RejectsEmptyInput(t *testing.T) {
	pool := mustPool(t)
	if _, err := Build(nil, pool, baseConfig()); err == nil {
		t.Fatalf("expected error for no reactions")
	}
	if _, err := Build([]Reaction{{TargetWell: "A1", Parts: []string{"X"}}}, nil, baseConfig()); err == nil {
		t.Fatalf("expected error for nil pool")
	}
}

func TestBuild_FailureLeavesPoolUntouched(t *testing.T) {
	tests := map[string][]Reaction{
		"missing reagent":    {{TargetWell: "C1", Parts: []string{"X", "Nope"}}},
		"negative mastermix": {{TargetWell: "C1", Parts: []string{"X"}}, {TargetWell: "C2", Parts: slices.Repeat([]string{"X"}, 21)}},
		"no parts":           {{TargetWell: "C1", Parts: []string{"X"}}, {TargetWell: "C2"}},
	}
	for name, reactions := range tests {
		t.Run(name, func(t *testing.T) {
			pool := mustPool(t, SourceWell{"B1", "X"})
			if _, err := Build(reactions, pool, baseConfig()); err == nil {
				t.Fatalf("expected build error")
			}
			if _, ok := pool.Holder("A1"); ok || pool.Has("Mastermix") {
				t.Fatalf("mastermix well registered by a failed build")
			}
			if pool.Drawn("B1") != 0 {
				t.Fatalf("failed build drew %v from B1", pool.Drawn("B1"))
			}
		})
	}
}

func TestPlan_Helpers(t *testing.T) {
	plan := Plan{Reactions: []Reaction{
		{TargetWell: "B1", Parts: []string{"a"}},
		{TargetWell: "A2", Parts: []string{"a", "b", "c"}},
		{TargetWell: "A10", Parts: []string{"a", "b"}},
	}}
	if diff := cmp.Diff([]string{"B1", "A2", "A10"}, plan.TargetWells()); diff != "" {
		t.Fatalf("target wells mismatch:\n%s", diff)
	}
	lo, hi := plan.PartCounts()
	if lo != 1 || hi != 3 {
		t.Fatalf("PartCounts = %d, %d", lo, hi)
	}
}

func TestMastermixVolume(t *testing.T) {
	cfg := baseConfig()
	cfg.TotalReactionVolume = 0.3
	cfg.PartDispenseVolume = 0.1
	mm, err := MastermixVolume(cfg, Reaction{TargetWell: "A1", Parts: []string{"a", "b", "c"}})
	if err != nil {
		t.Fatalf("MastermixVolume: %v", err)
	}
	if mm != 0 {
		t.Fatalf("rounding noise should collapse to zero, got %v", mm)
	}
}
