// Package report prints the human-readable run summary shown after a plan is
// written.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"idotplan/internal/adapters/idot"
	"idotplan/internal/core"
)

// Outputs lists where the run's files ended up.
type Outputs struct {
	Dispenses string
	Summary   string
	// DryRun marks outputs that were only rendered in memory.
	DryRun bool
}

// Reporter renders run summaries to a terminal or plain writer. Styling is
// dropped automatically when the writer is not a TTY.
type Reporter struct {
	w     io.Writer
	title lipgloss.Style
	label lipgloss.Style
	box   lipgloss.Style
	warn  lipgloss.Style
	muted lipgloss.Style
	head  lipgloss.Style
	cell  lipgloss.Style
	num   lipgloss.Style
}

// New builds a Reporter writing to w.
func New(w io.Writer) *Reporter {
	r := lipgloss.NewRenderer(w)
	return &Reporter{
		w:     w,
		title: r.NewStyle().Bold(true),
		label: r.NewStyle().Width(22),
		box:   r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
		warn:  r.NewStyle().Foreground(lipgloss.Color("#f59e0b")).Bold(true),
		muted: r.NewStyle().Foreground(lipgloss.Color("#6b7280")),
		head:  r.NewStyle().Bold(true).Padding(0, 1),
		cell:  r.NewStyle().Padding(0, 1),
		num:   r.NewStyle().Padding(0, 1).Align(lipgloss.Right),
	}
}

// Print writes the outputs, run figures, per-well table and rule notes.
func (r *Reporter) Print(plan core.Plan, cfg core.Config, res core.Result, out Outputs) error {
	var sb strings.Builder
	if out.DryRun {
		sb.WriteString(r.muted.Render("dry run: nothing was written") + "\n")
	}
	if out.Dispenses != "" {
		fmt.Fprintf(&sb, "Nanodispenser input CSV written to: %s\n", out.Dispenses)
	}
	if out.Summary != "" {
		fmt.Fprintf(&sb, "Summary written to: %s\n", out.Summary)
	}

	stats := idot.Describe(plan, cfg)
	figures := []string{
		r.title.Render("SUMMARY"),
		r.label.Render("Total reactions:") + strconv.Itoa(stats.Reactions),
		r.label.Render("Parts per reaction:") + stats.PartsPerReaction,
		r.label.Render("Mastermix per rxn:") + stats.MastermixPerReaction + " uL",
		r.label.Render("Target wells:") + stats.TargetRange,
	}
	sb.WriteString(r.box.Render(strings.Join(figures, "\n")) + "\n")
	sb.WriteString(r.wellTable(plan.Summary) + "\n")

	for _, v := range res.Violations {
		switch v.Severity {
		case core.SeverityWarn, core.SeverityBlock:
			sb.WriteString(r.warn.Render("WARNING:") + " " + v.Message + "\n")
		default:
			sb.WriteString(r.muted.Render("NOTE: "+v.Message) + "\n")
		}
	}
	_, err := io.WriteString(r.w, sb.String())
	return err
}

func (r *Reporter) wellTable(summary []core.WellSummary) string {
	rows := make([][]string, 0, len(summary))
	for _, s := range summary {
		rows = append(rows, []string{
			s.SourceWell,
			s.Reagent,
			strconv.Itoa(s.ReactionCount),
			idot.FormatVolume(s.TotalVolume, 1),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Source Well", "Reagent", "Reactions", "Total Vol (uL)").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return r.head
			case col >= 2:
				return r.num
			default:
				return r.cell
			}
		})
	return t.String()
}
