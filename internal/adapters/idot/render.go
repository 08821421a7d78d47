// Package idot renders plans into the nanodispenser's CSV import format and
// the companion per-well summary, and stores both through a blob.Store.
package idot

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"idotplan/internal/core"
)

// SoftwareVersion is the import format version written into the preamble.
const SoftwareVersion = "1.9.0.3"

// rowWidth is the fixed column count of every line in the dispenser file.
const rowWidth = 8

// dispenserOptions are the protocol options the dispenser software reads from line three.
var dispenserOptions = []string{
	"DispenseToWaste=True",
	"DispenseToWasteCycles=3",
	"DispenseToWasteVolume=1e-7",
	"UseDeionisation=True",
	"OptimizationLevel=ReorderAndParallel",
	"WasteErrorHandlingLevel=Ask",
	"SaveLiquids=Never",
}

// RenderDispenses produces the dispenser import file: a four line preamble
// followed by one row per dispense operation in plan order. Zero-volume
// operations are left out because the instrument cannot execute them.
func RenderDispenses(plan core.Plan, exp core.Experiment, now time.Time) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	w.UseCRLF = true

	lines := [][]string{
		{exp.Name, SoftwareVersion, exp.User, now.Format("02.01.2006"), now.Format("15:04:05")},
		{exp.SourcePlateType, "Source Plate 1", "", "0.00008", exp.TargetPlateType, "Target Plate 1", "", "Waste Tube"},
		dispenserOptions,
		{"Source Well", "Target Well", "Volume [uL]", "Liquid Name"},
	}
	for _, line := range lines {
		if err := w.Write(pad(line)); err != nil {
			return nil, err
		}
	}
	for _, op := range plan.Dispenses {
		if op.Volume <= 0 {
			continue
		}
		if err := w.Write(pad([]string{op.SourceWell, op.TargetWell, FormatVolume(op.Volume, 4), op.Reagent})); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("render dispense csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderSummary produces the per-source-well summary: run figures, a blank
// line, then one row per summary entry in plan order.
func RenderSummary(plan core.Plan, cfg core.Config) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	w.UseCRLF = true

	stats := Describe(plan, cfg)
	records := [][]string{
		{"Total reactions", strconv.Itoa(stats.Reactions)},
		{"Parts per reaction", stats.PartsPerReaction},
		{"Mastermix per rxn (uL)", stats.MastermixPerReaction},
		{"Target wells", stats.TargetRange},
		{},
		{"Source Well", "Reagent", "Reactions", "Total Vol (uL)"},
	}
	for _, s := range plan.Summary {
		records = append(records, []string{s.SourceWell, s.Reagent, strconv.Itoa(s.ReactionCount), FormatVolume(s.TotalVolume, 2)})
	}
	if err := w.WriteAll(records); err != nil {
		return nil, fmt.Errorf("render summary csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Stats are the run-level figures shown above the per-well table.
type Stats struct {
	Reactions            int
	PartsPerReaction     string
	MastermixPerReaction string
	TargetRange          string
}

// Describe derives run figures from a plan. Manual plans may mix reaction
// sizes, in which case parts and mastermix are given as "low-high" ranges.
func Describe(plan core.Plan, cfg core.Config) Stats {
	st := Stats{Reactions: len(plan.Reactions)}
	if len(plan.Reactions) == 0 {
		return st
	}
	lo, hi := plan.PartCounts()
	mmAt := func(n int) float64 {
		return math.Max(0, cfg.TotalReactionVolume-float64(n)*cfg.PartDispenseVolume)
	}
	if lo == hi {
		st.PartsPerReaction = strconv.Itoa(lo)
		st.MastermixPerReaction = FormatVolume(mmAt(lo), 4)
	} else {
		st.PartsPerReaction = fmt.Sprintf("%d-%d", lo, hi)
		st.MastermixPerReaction = FormatVolume(mmAt(hi), 4) + "-" + FormatVolume(mmAt(lo), 4)
	}
	targets := plan.TargetWells()
	st.TargetRange = targets[0] + " .. " + targets[len(targets)-1]
	return st
}

// FormatVolume rounds v to the given number of decimal places and always
// keeps a fractional part, so 9 renders as "9.0" and 0.35 as "0.35".
func FormatVolume(v float64, places int) string {
	scale := math.Pow10(places)
	r := math.Round(v*scale) / scale
	if r == 0 {
		r = 0 // drop negative zero
	}
	s := strconv.FormatFloat(r, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func pad(fields []string) []string {
	out := make([]string, rowWidth)
	copy(out, fields)
	return out
}
