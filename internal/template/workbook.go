// Package template loads experiment templates (.xlsx workbooks or their YAML
// equivalent) into raw cell grids and parses them into plan inputs.
package template

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// Sheet names as they appear in the template workbook.
const (
	SheetSettings      = "Settings"
	SheetSourcePlate   = "Source Plate"
	SheetCombinatorial = "Combinatorial"
	SheetManualRows    = "Manual Rows"
	SheetManualColumns = "Manual Columns"
)

// Grid is a sheet's cell values, row-major. Rows may be ragged; missing cells read as "".
type Grid [][]string

// Cell returns the trimmed value at (row, col), or "" when out of range.
func (g Grid) Cell(row, col int) string {
	if row < 0 || row >= len(g) || col < 0 || col >= len(g[row]) {
		return ""
	}
	return strings.TrimSpace(g[row][col])
}

// Width returns the length of the longest row.
func (g Grid) Width() int {
	w := 0
	for _, r := range g {
		w = max(w, len(r))
	}
	return w
}

// Column returns the trimmed values of column col from row `from` downwards,
// blanks included, so callers can apply their own blank handling.
func (g Grid) Column(col, from int) []string {
	if from >= len(g) {
		return nil
	}
	out := make([]string, 0, len(g)-from)
	for r := from; r < len(g); r++ {
		out = append(out, g.Cell(r, col))
	}
	return out
}

// Workbook is a set of named grids.
type Workbook struct {
	sheets map[string]Grid
	names  []string
}

// NewWorkbook returns an empty workbook.
func NewWorkbook() *Workbook {
	return &Workbook{sheets: make(map[string]Grid)}
}

// SetSheet adds or replaces a sheet.
func (w *Workbook) SetSheet(name string, g Grid) {
	key := sheetKey(name)
	if _, ok := w.sheets[key]; !ok {
		w.names = append(w.names, strings.TrimSpace(name))
	}
	w.sheets[key] = g
}

// Sheet looks a sheet up by name, ignoring case and surrounding whitespace.
func (w *Workbook) Sheet(name string) (Grid, bool) {
	g, ok := w.sheets[sheetKey(name)]
	return g, ok
}

// SheetNames lists the sheets in load order.
func (w *Workbook) SheetNames() []string {
	return append([]string(nil), w.names...)
}

func sheetKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Load reads a template file, choosing the decoder from the extension.
func Load(path string) (*Workbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx", ".xlsm":
		return LoadXLSX(bytes.NewReader(data))
	case ".yaml", ".yml":
		return LoadYAML(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unsupported template format %q (want .xlsx, .yaml or .yml)", ext)
	}
}

// LoadXLSX reads every sheet of an Excel workbook. Cell values are taken as
// displayed, so numeric reagent names such as -1 arrive as text.
func LoadXLSX(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	wb := NewWorkbook()
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", name, err)
		}
		wb.SetSheet(name, Grid(rows))
	}
	return wb, nil
}

// cell is a YAML scalar kept as its literal text.
type cell string

func (c *cell) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a single value", n.Line)
	}
	if n.Tag == "!!null" {
		*c = ""
		return nil
	}
	*c = cell(n.Value)
	return nil
}

type yamlTemplate struct {
	Settings    yaml.Node `yaml:"settings"`
	SourcePlate []struct {
		Well    cell `yaml:"well"`
		Reagent cell `yaml:"reagent"`
	} `yaml:"source_plate"`
	Combinatorial *struct {
		Common []cell `yaml:"common"`
		Groups []struct {
			Name  cell   `yaml:"name"`
			Parts []cell `yaml:"parts"`
		} `yaml:"groups"`
	} `yaml:"combinatorial"`
	ManualRows    []yamlReaction `yaml:"manual_rows"`
	ManualColumns []yamlReaction `yaml:"manual_columns"`
}

type yamlReaction struct {
	Target cell   `yaml:"target"`
	Parts  []cell `yaml:"parts"`
}

// LoadYAML reads the YAML form of a template and lays it out as the grids
// the workbook sheets would hold, so both formats share one parser.
//
//	settings:        {Mode: combinatorial, Total Reaction Volume (uL): 10}
//	source_plate:    [{well: B1, reagent: P1}]
//	combinatorial:   {common: [BB], groups: [{name: Promoter, parts: [P1, P2]}]}
//	manual_rows:     [{target: A1, parts: [X, Y]}]
//	manual_columns:  [{target: A1, parts: [X, Y]}]
func LoadYAML(r io.Reader) (*Workbook, error) {
	var doc yamlTemplate
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode yaml template: %w", err)
	}
	wb := NewWorkbook()

	if doc.Settings.Kind != 0 {
		if doc.Settings.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("line %d: settings must be a mapping", doc.Settings.Line)
		}
		g := Grid{{"Setting", "Value"}}
		for i := 0; i+1 < len(doc.Settings.Content); i += 2 {
			var k, v cell
			if err := doc.Settings.Content[i].Decode(&k); err != nil {
				return nil, err
			}
			if err := doc.Settings.Content[i+1].Decode(&v); err != nil {
				return nil, err
			}
			g = append(g, []string{string(k), string(v)})
		}
		wb.SetSheet(SheetSettings, g)
	}

	if doc.SourcePlate != nil {
		g := Grid{{"Well", "Reagent"}}
		for _, sw := range doc.SourcePlate {
			g = append(g, []string{string(sw.Well), string(sw.Reagent)})
		}
		wb.SetSheet(SheetSourcePlate, g)
	}

	if c := doc.Combinatorial; c != nil {
		var columns [][]string
		var header []string
		if len(c.Common) > 0 {
			header = append(header, "common")
			columns = append(columns, cellStrings(c.Common))
		}
		for i, grp := range c.Groups {
			name := string(grp.Name)
			if name == "" {
				name = fmt.Sprintf("Group %d", i+1)
			}
			header = append(header, name)
			columns = append(columns, cellStrings(grp.Parts))
		}
		wb.SetSheet(SheetCombinatorial, transpose(header, columns))
	}

	if doc.ManualRows != nil {
		g := Grid{{"Target Well", "Parts"}}
		for _, r := range doc.ManualRows {
			g = append(g, append([]string{string(r.Target)}, cellStrings(r.Parts)...))
		}
		wb.SetSheet(SheetManualRows, g)
	}

	if doc.ManualColumns != nil {
		header := make([]string, len(doc.ManualColumns))
		columns := make([][]string, len(doc.ManualColumns))
		for i, r := range doc.ManualColumns {
			header[i] = string(r.Target)
			columns[i] = cellStrings(r.Parts)
		}
		wb.SetSheet(SheetManualColumns, transpose(header, columns))
	}
	return wb, nil
}

func cellStrings(in []cell) []string {
	out := make([]string, len(in))
	for i, c := range in {
		out[i] = string(c)
	}
	return out
}

// transpose lays out columns under a header row.
func transpose(header []string, columns [][]string) Grid {
	height := 0
	for _, c := range columns {
		height = max(height, len(c))
	}
	g := make(Grid, height+1)
	g[0] = header
	for r := 1; r <= height; r++ {
		row := make([]string, len(columns))
		for c, col := range columns {
			if r-1 < len(col) {
				row[c] = col[r-1]
			}
		}
		g[r] = row
	}
	return g
}
