package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Plate describes a rectangular microplate. Wells are addressed by a row
// label (A, B, ... Z, AA, AB, ...) followed by a 1-based column number.
type Plate struct {
	Name string
	Rows int
	Cols int
}

// Supported target plate geometries.
var (
	PlateMWP96   = Plate{Name: "MWP 96", Rows: 8, Cols: 12}
	PlateMWP384  = Plate{Name: "MWP 384", Rows: 16, Cols: 24}
	PlateMWP1536 = Plate{Name: "MWP 1536", Rows: 32, Cols: 48}
)

var knownPlates = []Plate{PlateMWP96, PlateMWP384, PlateMWP1536}

// Row labels are capped at three letters (row 18278), well past the 32 rows
// of the largest supported plate, so rowIndex cannot overflow.
var wellPattern = regexp.MustCompile(`^([A-Z]{1,3})([0-9]+)$`)

// PlateByType resolves a target plate type name as written in the settings
// sheet. Matching ignores case and surrounding whitespace; an empty name
// selects the 96-well plate.
func PlateByType(name string) (Plate, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return PlateMWP96, nil
	}
	for _, p := range knownPlates {
		if strings.EqualFold(p.Name, trimmed) {
			return p, nil
		}
	}
	return Plate{}, ConfigError{Field: "target plate type", Reason: fmt.Sprintf("unsupported plate %q", trimmed)}
}

// Size returns the number of wells on the plate.
func (p Plate) Size() int { return p.Rows * p.Cols }

// WellAt returns the well at position i in row-major plate order (A1, A2, ..., B1, ...).
func (p Plate) WellAt(i int) string {
	return rowLabel(i/p.Cols) + strconv.Itoa(i%p.Cols+1)
}

// Wells returns the first n wells in row-major plate order.
func (p Plate) Wells(n int) ([]string, error) {
	if n > p.Size() {
		return nil, ConfigError{
			Field:  "target plate",
			Reason: fmt.Sprintf("need %d target wells but a %s plate only has %d", n, p.Name, p.Size()),
		}
	}
	out := make([]string, n)
	for i := range out {
		out[i] = p.WellAt(i)
	}
	return out, nil
}

// Contains reports whether the well identifier addresses a well on the plate.
func (p Plate) Contains(well string) bool {
	row, col, err := ParseWell(well)
	if err != nil {
		return false
	}
	return row >= 0 && row < p.Rows && col >= 0 && col < p.Cols
}

// NormalizeWell trims and upper-cases a raw well identifier.
func NormalizeWell(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ParseWell splits a well identifier into zero-based row and column indexes.
func ParseWell(well string) (row, col int, err error) {
	m := wellPattern.FindStringSubmatch(well)
	if m == nil {
		return 0, 0, ValidationError{Field: "well", Value: well, Reason: "expected a row letter followed by a column number"}
	}
	n, convErr := strconv.Atoi(m[2])
	if convErr != nil || n < 1 {
		return 0, 0, ValidationError{Field: "well", Value: well, Reason: "column must be a positive number"}
	}
	return rowIndex(m[1]), n - 1, nil
}

// CompareWells orders well identifiers column-major (A1, B1, ..., A2, ...),
// the order the dispenser software lists plate contents in. Malformed
// identifiers sort after valid ones, lexically among themselves.
func CompareWells(a, b string) int {
	ra, ca, errA := ParseWell(a)
	rb, cb, errB := ParseWell(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(a, b)
	case errA != nil:
		return 1
	case errB != nil:
		return -1
	}
	if ca != cb {
		return ca - cb
	}
	return ra - rb
}

func rowLabel(i int) string {
	label := ""
	for i >= 0 {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
	}
	return label
}

func rowIndex(label string) int {
	n := 0
	for _, r := range label {
		n = n*26 + int(r-'A'+1)
	}
	return n - 1
}
