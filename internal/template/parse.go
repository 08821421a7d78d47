package template

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"idotplan/internal/core"
)

// Settings keys and their defaults.
const (
	KeyMode               = "Mode"
	KeyTotalVolume        = "Total Reaction Volume (uL)"
	KeyPartVolume         = "Part Dispense Volume (uL)"
	KeyMastermixWell      = "Mastermix Source Well"
	KeyMastermixName      = "Mastermix Name"
	KeyExperimentName     = "Experiment Name"
	KeyUserName           = "User Name"
	KeySourcePlateType    = "Source Plate Type"
	KeyTargetPlateType    = "Target Plate Type"
	KeyDeadVolume         = "Dead Volume (uL)"
	KeySourceWellCapacity = "Source Well Capacity (uL)"
)

var settingDefaults = map[string]string{
	KeyMode:               string(core.ModeCombinatorial),
	KeyTotalVolume:        "10",
	KeyPartVolume:         "0.5",
	KeyMastermixWell:      "A1",
	KeyMastermixName:      "Mastermix",
	KeyExperimentName:     "Nanodispenser_Demo",
	KeyUserName:           "",
	KeySourcePlateType:    "S.100 Plate",
	KeyTargetPlateType:    "MWP 96",
	KeyDeadVolume:         "3",
	KeySourceWellCapacity: "0",
}

// Template is a parsed experiment template.
type Template struct {
	Config      core.Config
	Experiment  core.Experiment
	SourceWells []core.SourceWell
	Spec        core.Spec
}

// Request returns the plan request described by the template.
func (t Template) Request() core.PlanRequest {
	return core.PlanRequest{Config: t.Config, SourceWells: t.SourceWells, Spec: t.Spec}
}

// Parse interprets a workbook. The Settings and Source Plate sheets are
// required, plus the sheet matching the selected mode.
func Parse(wb *Workbook) (Template, error) {
	settingsGrid, ok := wb.Sheet(SheetSettings)
	if !ok {
		return Template{}, missingSheet(SheetSettings, "")
	}
	plateGrid, ok := wb.Sheet(SheetSourcePlate)
	if !ok {
		return Template{}, missingSheet(SheetSourcePlate, "")
	}

	settings := readSettings(settingsGrid)
	cfg, exp, err := buildConfig(settings)
	if err != nil {
		return Template{}, err
	}
	wells, err := readSourcePlate(plateGrid)
	if err != nil {
		return Template{}, err
	}
	spec, err := readSpec(wb, cfg.Mode)
	if err != nil {
		return Template{}, err
	}
	return Template{Config: cfg, Experiment: exp, SourceWells: wells, Spec: spec}, nil
}

func missingSheet(name string, mode core.Mode) error {
	if mode == "" {
		return core.ConfigError{Field: "sheet", Reason: fmt.Sprintf("missing required sheet %q", name)}
	}
	return core.ConfigError{Field: "sheet", Reason: fmt.Sprintf("mode is %q but no %q sheet found", mode, name)}
}

// readSettings collects key/value pairs from the first two columns, skipping
// the header row. Keys compare case-insensitively; the last occurrence wins.
func readSettings(g Grid) map[string]string {
	out := make(map[string]string)
	for r := 1; r < len(g); r++ {
		key := g.Cell(r, 0)
		if key == "" {
			continue
		}
		out[strings.ToLower(key)] = g.Cell(r, 1)
	}
	return out
}

func setting(settings map[string]string, key string) string {
	if v := settings[strings.ToLower(key)]; v != "" {
		return v
	}
	return settingDefaults[key]
}

func volumeSetting(settings map[string]string, key string) (float64, error) {
	raw := setting(settings, key)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, core.ConfigError{Field: key, Reason: fmt.Sprintf("not a number: %q", raw)}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, core.ConfigError{Field: key, Reason: fmt.Sprintf("not a finite number: %q", raw)}
	}
	return v, nil
}

func buildConfig(settings map[string]string) (core.Config, core.Experiment, error) {
	mode, err := core.ParseMode(setting(settings, KeyMode))
	if err != nil {
		return core.Config{}, core.Experiment{}, err
	}
	plateType := setting(settings, KeyTargetPlateType)
	plate, err := core.PlateByType(plateType)
	if err != nil {
		return core.Config{}, core.Experiment{}, err
	}
	cfg := core.Config{
		Mode:          mode,
		MastermixWell: core.NormalizeWell(setting(settings, KeyMastermixWell)),
		MastermixName: strings.TrimSpace(setting(settings, KeyMastermixName)),
		TargetPlate:   plate,
	}
	volumes := []struct {
		key string
		dst *float64
	}{
		{KeyTotalVolume, &cfg.TotalReactionVolume},
		{KeyPartVolume, &cfg.PartDispenseVolume},
		{KeyDeadVolume, &cfg.DeadVolume},
		{KeySourceWellCapacity, &cfg.SourceWellCapacity},
	}
	for _, v := range volumes {
		if *v.dst, err = volumeSetting(settings, v.key); err != nil {
			return core.Config{}, core.Experiment{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return core.Config{}, core.Experiment{}, err
	}
	exp := core.Experiment{
		Name:            setting(settings, KeyExperimentName),
		User:            setting(settings, KeyUserName),
		SourcePlateType: setting(settings, KeySourcePlateType),
		TargetPlateType: plateType,
	}
	return cfg, exp, nil
}

// readSourcePlate reads well/reagent pairs from row 2 on. Rows missing
// either value are skipped; well IDs are upper-cased.
func readSourcePlate(g Grid) ([]core.SourceWell, error) {
	var out []core.SourceWell
	seen := make(map[string]int)
	for r := 1; r < len(g); r++ {
		well := core.NormalizeWell(g.Cell(r, 0))
		reagent := g.Cell(r, 1)
		if well == "" || reagent == "" {
			continue
		}
		if _, _, err := core.ParseWell(well); err != nil {
			return nil, core.ValidationError{
				Field:  fmt.Sprintf("%s row %d", SheetSourcePlate, r+1),
				Value:  well,
				Reason: "expected a row letter followed by a column number",
			}
		}
		if first, dup := seen[well]; dup {
			return nil, core.ValidationError{
				Field:  fmt.Sprintf("%s row %d", SheetSourcePlate, r+1),
				Value:  well,
				Reason: fmt.Sprintf("well already assigned on row %d", first),
			}
		}
		seen[well] = r + 1
		out = append(out, core.SourceWell{WellID: well, Reagent: reagent})
	}
	return out, nil
}

func readSpec(wb *Workbook, mode core.Mode) (core.Spec, error) {
	switch mode {
	case core.ModeCombinatorial:
		g, ok := wb.Sheet(SheetCombinatorial)
		if !ok {
			return nil, missingSheet(SheetCombinatorial, mode)
		}
		return readCombinatorial(g), nil
	case core.ModeManualRows:
		g, ok := wb.Sheet(SheetManualRows)
		if !ok {
			// older templates name the sheet just "Manual"
			if g, ok = wb.Sheet("Manual"); !ok {
				return nil, missingSheet(SheetManualRows, mode)
			}
		}
		return readManualRows(g), nil
	case core.ModeManualColumns:
		g, ok := wb.Sheet(SheetManualColumns)
		if !ok {
			return nil, missingSheet(SheetManualColumns, mode)
		}
		return readManualColumns(g), nil
	default:
		return nil, core.ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
}

// readCombinatorial turns each headed column into a part group. A column
// headed "common" holds the parts added to every reaction.
func readCombinatorial(g Grid) core.CombinatorialSpec {
	var spec core.CombinatorialSpec
	for c := 0; c < g.Width(); c++ {
		header := g.Cell(0, c)
		if header == "" {
			continue
		}
		parts := nonBlank(g.Column(c, 1))
		if strings.EqualFold(header, "common") {
			spec.Common = parts
			continue
		}
		spec.Groups = append(spec.Groups, core.PartGroup{Name: header, Parts: parts})
	}
	return spec
}

func readManualRows(g Grid) core.ManualRowsSpec {
	var spec core.ManualRowsSpec
	for r := 1; r < len(g); r++ {
		cells := make([]string, 0, len(g[r]))
		for c := 1; c < len(g[r]); c++ {
			cells = append(cells, g.Cell(r, c))
		}
		spec.Rows = append(spec.Rows, core.ManualRow{Target: g.Cell(r, 0), Cells: cells})
	}
	return spec
}

func readManualColumns(g Grid) core.ManualColumnsSpec {
	var spec core.ManualColumnsSpec
	for c := 0; c < g.Width(); c++ {
		target := g.Cell(0, c)
		cells := g.Column(c, 1)
		if target == "" && len(nonBlank(cells)) == 0 {
			continue
		}
		spec.Columns = append(spec.Columns, core.ManualColumn{Target: target, Cells: cells})
	}
	return spec
}

func nonBlank(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
