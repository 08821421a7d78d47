package core

import (
	"fmt"
	"strings"
)

// Spec is the reaction specification read from the template. It is a closed
// set of variants: CombinatorialSpec, ManualRowsSpec and ManualColumnsSpec.
type Spec interface {
	Mode() Mode
	sealed()
}

// PartGroup is one named column of interchangeable parts in combinatorial mode.
type PartGroup struct {
	Name  string
	Parts []string
}

// CombinatorialSpec builds one reaction per combination of one part from each
// non-empty group, with the common parts appended to every reaction.
type CombinatorialSpec struct {
	Common []string
	Groups []PartGroup
}

// ManualRow is one raw reaction row: a target well followed by part cells,
// which may contain blanks.
type ManualRow struct {
	Target string
	Cells  []string
}

// ManualRowsSpec lists one reaction per row.
type ManualRowsSpec struct {
	Rows []ManualRow
}

// ManualColumn is one raw reaction column: a target well header and the
// cells beneath it, top to bottom.
type ManualColumn struct {
	Target string
	Cells  []string
}

// ManualColumnsSpec lists one reaction per column.
type ManualColumnsSpec struct {
	Columns []ManualColumn
}

func (CombinatorialSpec) Mode() Mode { return ModeCombinatorial }
func (ManualRowsSpec) Mode() Mode    { return ModeManualRows }
func (ManualColumnsSpec) Mode() Mode { return ModeManualColumns }

func (CombinatorialSpec) sealed() {}
func (ManualRowsSpec) sealed()    {}
func (ManualColumnsSpec) sealed() {}

// Expand turns a specification into the ordered reaction list. It is pure:
// identical input always yields identical output.
func Expand(spec Spec, plate Plate) ([]Reaction, error) {
	switch s := spec.(type) {
	case CombinatorialSpec:
		return expandCombinatorial(s, plate)
	case ManualRowsSpec:
		return expandManualRows(s, plate)
	case ManualColumnsSpec:
		return expandManualColumns(s, plate)
	case nil:
		return nil, ConfigError{Field: "mode", Reason: "no reaction specification provided"}
	default:
		return nil, ConfigError{Field: "mode", Reason: fmt.Sprintf("unsupported specification %T", spec)}
	}
}

func expandCombinatorial(spec CombinatorialSpec, plate Plate) ([]Reaction, error) {
	common := nonEmpty(spec.Common)
	groups := make([][]string, 0, len(spec.Groups))
	total := 1
	for _, g := range spec.Groups {
		parts := nonEmpty(g.Parts)
		if len(parts) == 0 {
			continue
		}
		groups = append(groups, parts)
		total *= len(parts)
		if total > plate.Size() {
			return nil, ConfigError{
				Field:  "combinatorial",
				Reason: fmt.Sprintf("combinations exceed the %d wells of a %s plate", plate.Size(), plate.Name),
			}
		}
	}
	if len(groups) == 0 {
		return nil, ConfigError{Field: "combinatorial", Reason: "no part groups provided"}
	}

	targets, err := plate.Wells(total)
	if err != nil {
		return nil, err
	}
	reactions := make([]Reaction, 0, total)
	idx := make([]int, len(groups))
	for n := 0; n < total; n++ {
		parts := make([]string, 0, len(groups)+len(common))
		for gi, g := range groups {
			parts = append(parts, g[idx[gi]])
		}
		parts = append(parts, common...)
		reactions = append(reactions, Reaction{TargetWell: targets[n], Parts: parts})

		// odometer: the last group turns fastest
		for gi := len(groups) - 1; gi >= 0; gi-- {
			idx[gi]++
			if idx[gi] < len(groups[gi]) {
				break
			}
			idx[gi] = 0
		}
	}
	return reactions, nil
}

func expandManualRows(spec ManualRowsSpec, plate Plate) ([]Reaction, error) {
	c := newManualCollector(plate)
	for i, row := range spec.Rows {
		if err := c.add(fmt.Sprintf("manual row %d", i+1), row.Target, nonEmpty(row.Cells)); err != nil {
			return nil, err
		}
	}
	return c.result()
}

func expandManualColumns(spec ManualColumnsSpec, plate Plate) ([]Reaction, error) {
	c := newManualCollector(plate)
	for i, col := range spec.Columns {
		if err := c.add(fmt.Sprintf("manual column %d", i+1), col.Target, leading(col.Cells)); err != nil {
			return nil, err
		}
	}
	return c.result()
}

type manualCollector struct {
	plate     Plate
	seen      map[string]string
	reactions []Reaction
}

func newManualCollector(plate Plate) *manualCollector {
	return &manualCollector{plate: plate, seen: make(map[string]string)}
}

func (c *manualCollector) add(where, rawTarget string, parts []string) error {
	target := NormalizeWell(rawTarget)
	if target == "" {
		if len(parts) == 0 {
			return nil
		}
		return ValidationError{Field: where, Reason: "target well is empty"}
	}
	if _, _, err := ParseWell(target); err != nil {
		return ValidationError{Field: where, Value: target, Reason: "malformed target well"}
	}
	if !c.plate.Contains(target) {
		return ValidationError{Field: where, Value: target, Reason: fmt.Sprintf("target well is not on a %s plate", c.plate.Name)}
	}
	if len(parts) == 0 {
		return nil
	}
	if prev, dup := c.seen[target]; dup {
		return ConfigError{Field: where, Reason: fmt.Sprintf("target well %s already used by %s", target, prev)}
	}
	c.seen[target] = where
	c.reactions = append(c.reactions, Reaction{TargetWell: target, Parts: parts})
	return nil
}

func (c *manualCollector) result() ([]Reaction, error) {
	if len(c.reactions) == 0 {
		return nil, ConfigError{Field: "manual", Reason: "no reactions found in manual specification"}
	}
	return c.reactions, nil
}

// nonEmpty trims every cell and drops blanks.
func nonEmpty(cells []string) []string {
	out := make([]string, 0, len(cells))
	for _, cell := range cells {
		if s := strings.TrimSpace(cell); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// leading trims cells and stops at the first blank one.
func leading(cells []string) []string {
	out := make([]string, 0, len(cells))
	for _, cell := range cells {
		s := strings.TrimSpace(cell)
		if s == "" {
			break
		}
		out = append(out, s)
	}
	return out
}
