package core

import (
	"fmt"
	"math"
	"strings"
)

// Mode selects how reactions are described in the template.
type Mode string

// Supported reaction specification modes.
const (
	ModeCombinatorial Mode = "combinatorial"
	ModeManualRows    Mode = "manual_rows"
	ModeManualColumns Mode = "manual_columns"
)

// ParseMode normalizes a raw mode string and rejects unknown values.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case ModeCombinatorial, ModeManualRows, ModeManualColumns:
		return m, nil
	default:
		return "", ConfigError{
			Field:  "mode",
			Reason: fmt.Sprintf("unknown mode %q, use %q, %q or %q", raw, ModeCombinatorial, ModeManualRows, ModeManualColumns),
		}
	}
}

// SourceWell is one well of the source plate and the single reagent it holds.
type SourceWell struct {
	WellID  string `json:"well_id"`
	Reagent string `json:"reagent"`
}

// Reaction is the recipe of one target well: the ordered part names drawn into it.
// A part may appear more than once; every occurrence is drawn separately.
type Reaction struct {
	TargetWell string   `json:"target_well"`
	Parts      []string `json:"parts"`
}

// DispenseOp is a single transfer of Volume microliters of Reagent from
// SourceWell into TargetWell.
type DispenseOp struct {
	SourceWell string  `json:"source_well"`
	TargetWell string  `json:"target_well"`
	Reagent    string  `json:"reagent"`
	Volume     float64 `json:"volume_ul"`
}

// WellSummary aggregates all draws from one source well.
type WellSummary struct {
	SourceWell    string  `json:"source_well"`
	Reagent       string  `json:"reagent"`
	ReactionCount int     `json:"reaction_count"`
	TotalVolume   float64 `json:"total_volume_ul"`
}

// Config carries the experiment settings. It is loaded once and only read afterwards.
type Config struct {
	Mode                Mode
	TotalReactionVolume float64
	PartDispenseVolume  float64
	MastermixWell       string
	MastermixName       string
	// TargetPlate bounds target wells and drives plate-order assignment.
	// The zero value means a 96-well plate.
	TargetPlate Plate
	// DeadVolume is the unusable residual volume per source well, reported
	// in the summary notes.
	DeadVolume float64
	// SourceWellCapacity enables the capacity warning when positive.
	SourceWellCapacity float64
}

// Experiment holds descriptive metadata carried into the dispenser file.
type Experiment struct {
	Name            string
	User            string
	SourcePlateType string
	TargetPlateType string
}

// Plate returns the configured target plate, defaulting to 96 wells.
func (c Config) Plate() Plate {
	if c.TargetPlate.Rows <= 0 || c.TargetPlate.Cols <= 0 {
		return PlateMWP96
	}
	return c.TargetPlate
}

// Validate checks the settings that do not depend on the reaction list.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	for _, v := range []struct {
		field string
		value float64
	}{
		{"total reaction volume", c.TotalReactionVolume},
		{"part dispense volume", c.PartDispenseVolume},
		{"dead volume", c.DeadVolume},
		{"source well capacity", c.SourceWellCapacity},
	} {
		if !finite(v.value) {
			return ConfigError{Field: v.field, Reason: "must be a finite number"}
		}
	}
	if c.TotalReactionVolume <= 0 {
		return ConfigError{Field: "total reaction volume", Reason: "must be positive"}
	}
	if c.PartDispenseVolume <= 0 {
		return ConfigError{Field: "part dispense volume", Reason: "must be positive"}
	}
	if strings.TrimSpace(c.MastermixName) == "" {
		return ConfigError{Field: "mastermix name", Reason: "must not be empty"}
	}
	if _, _, err := ParseWell(c.MastermixWell); err != nil {
		return err
	}
	if c.DeadVolume < 0 {
		return ConfigError{Field: "dead volume", Reason: "must not be negative"}
	}
	if c.SourceWellCapacity < 0 {
		return ConfigError{Field: "source well capacity", Reason: "must not be negative"}
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
