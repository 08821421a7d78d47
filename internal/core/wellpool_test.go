package core

import (
	"errors"
	"fmt"
	"testing"
)

func mustPool(t *testing.T, wells ...SourceWell) *WellPool {
	t.Helper()
	pool, err := NewWellPool(wells)
	if err != nil {
		t.Fatalf("NewWellPool: %v", err)
	}
	return pool
}

func TestWellPool_DrawAlternatesAndPrefersFirstListed(t *testing.T) {
	pool := mustPool(t, SourceWell{"B2", "X"}, SourceWell{"A1", "X"})
	var got []string
	for i := 0; i < 4; i++ {
		w, err := pool.Draw("X", 1.0)
		if err != nil {
			t.Fatalf("draw %d: %v", i, err)
		}
		got = append(got, w.WellID)
	}
	want := []string{"B2", "A1", "B2", "A1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("draw order = %v, want %v", got, want)
		}
	}
	if pool.Drawn("B2") != 2.0 || pool.Drawn("A1") != 2.0 {
		t.Fatalf("unexpected totals B2=%v A1=%v", pool.Drawn("B2"), pool.Drawn("A1"))
	}
}

func TestWellPool_LeastLoadedByVolume(t *testing.T) {
	pool := mustPool(t, SourceWell{"A1", "X"}, SourceWell{"A2", "X"})
	if _, err := pool.Draw("X", 5); err != nil {
		t.Fatalf("draw: %v", err)
	}
	// A2 stays lightest until it passes the 5 uL already taken from A1.
	for i := 0; i < 4; i++ {
		w, err := pool.Draw("X", 1)
		if err != nil {
			t.Fatalf("draw: %v", err)
		}
		if w.WellID != "A2" {
			t.Fatalf("draw %d went to %s, want A2", i, w.WellID)
		}
	}
}

func TestWellPool_FairnessWithinOneUnit(t *testing.T) {
	const part = 0.5
	for k := 1; k <= 5; k++ {
		for draws := 0; draws <= 17; draws++ {
			wells := make([]SourceWell, k)
			for i := range wells {
				wells[i] = SourceWell{WellID: fmt.Sprintf("C%d", i+1), Reagent: "Frag"}
			}
			pool := mustPool(t, wells...)
			for d := 0; d < draws; d++ {
				if _, err := pool.Draw("Frag", part); err != nil {
					t.Fatalf("draw: %v", err)
				}
			}
			lo, hi := pool.Drawn(wells[0].WellID), pool.Drawn(wells[0].WellID)
			for _, w := range wells[1:] {
				v := pool.Drawn(w.WellID)
				lo, hi = min(lo, v), max(hi, v)
			}
			if hi-lo > part+1e-9 {
				t.Fatalf("k=%d draws=%d spread %v exceeds one unit", k, draws, hi-lo)
			}
		}
	}
}

func TestWellPool_MissingReagent(t *testing.T) {
	pool := mustPool(t, SourceWell{"A1", "X"})
	_, err := pool.Draw("Y", 1)
	var missing MissingReagentError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingReagentError, got %v", err)
	}
	if len(missing.Reagents) != 1 || missing.Reagents[0] != "Y" {
		t.Fatalf("unexpected reagents %v", missing.Reagents)
	}
}

func TestWellPool_RejectsBadWells(t *testing.T) {
	cases := map[string][]SourceWell{
		"duplicate":   {{"A1", "X"}, {"A1", "Y"}},
		"malformed":   {{"1A", "X"}},
		"no reagent":  {{"A1", ""}},
		"lower case":  {{"a1", "X"}},
		"zero column": {{"A0", "X"}},
	}
	for name, wells := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewWellPool(wells)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestWellPool_Register(t *testing.T) {
	pool := mustPool(t, SourceWell{"A1", "Mastermix"}, SourceWell{"A2", "X"})
	if err := pool.Register(SourceWell{"A1", "Mastermix"}); err != nil {
		t.Fatalf("re-register same reagent: %v", err)
	}
	if got := len(pool.Wells("Mastermix")); got != 1 {
		t.Fatalf("expected idempotent register, have %d wells", got)
	}
	if err := pool.Register(SourceWell{"A2", "Mastermix"}); err == nil {
		t.Fatalf("expected conflict for well holding another reagent")
	}
	if err := pool.Register(SourceWell{"H12", "Mastermix"}); err != nil {
		t.Fatalf("register new well: %v", err)
	}
	wells := pool.Wells("Mastermix")
	if len(wells) != 2 || wells[1].WellID != "H12" {
		t.Fatalf("unexpected mastermix wells %v", wells)
	}
	if reagent, ok := pool.Holder("H12"); !ok || reagent != "Mastermix" {
		t.Fatalf("Holder(H12) = %q, %v", reagent, ok)
	}
	if _, ok := pool.Holder("B1"); ok {
		t.Fatalf("B1 holds nothing")
	}
	if err := pool.Register(SourceWell{"ZZZZ1", "Mastermix"}); err == nil {
		t.Fatalf("expected error for malformed well")
	}
}

func TestWellPool_NegativeVolume(t *testing.T) {
	pool := mustPool(t, SourceWell{"A1", "X"})
	if _, err := pool.Draw("X", -1); err == nil {
		t.Fatalf("expected error for negative volume")
	}
	if pool.Drawn("A1") != 0 {
		t.Fatalf("failed draw must not be recorded")
	}
}
