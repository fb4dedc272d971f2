package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/l3aro/go-defuse/pkg/defuse"
	"github.com/l3aro/go-defuse/pkg/fitness"
	"github.com/l3aro/go-defuse/pkg/goal"
	"github.com/l3aro/go-defuse/pkg/trace"
)

// Location columns are truncated so tables fit 80 columns.
const maxLocation = 28

func location(d *defuse.DefUse) string {
	if d == nil {
		return "-"
	}
	s := fmt.Sprintf("%s.%s#%d", d.ClassName(), d.MethodName(), d.InstructionID())
	if len(s) > maxLocation {
		s = "..." + s[len(s)-maxLocation+3:]
	}
	return s
}

func count(n int) string { return humanize.Comma(int64(n)) }

func newTable(s Styles, style func(row, col int) lipgloss.Style) *table.Table {
	return table.New().
		Width(76).
		Border(lipgloss.NormalBorder()).
		BorderStyle(s.Border).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return s.TableHeader
			}
			if style != nil {
				return style(row, col)
			}
			return s.TableCell
		})
}

// WriteGoalsText writes the goals of a session grouped by type.
func WriteGoalsText(w io.Writer, goals []*goal.Goal) error {
	s := DefaultStyles()

	fmt.Fprintln(w, s.Header.Render(fmt.Sprintf("=== %s coverage goal(s) ===", count(len(goals)))))
	if len(goals) == 0 {
		fmt.Fprintln(w, s.Muted.Render("    No goals found."))
		return nil
	}

	byType := goal.CountByType(goals)
	typeRows := make([][]string, 0, len(goal.Types))
	for _, t := range goal.Types {
		typeRows = append(typeRows, []string{t.String(), count(byType[t])})
	}
	fmt.Fprintln(w, newTable(s, nil).Headers("TYPE", "GOALS").Rows(typeRows...))

	rows := make([][]string, 0, len(goals))
	for _, g := range goals {
		rows = append(rows, []string{g.Type.String(), g.Variable, location(g.Definition), location(g.Use)})
	}
	fmt.Fprintln(w, newTable(s, nil).Headers("TYPE", "VARIABLE", "DEFINITION", "USE").Rows(rows...))
	return nil
}

// WriteSuiteText writes a suite result: per type coverage, the summary and
// every goal the suite left uncovered.
func WriteSuiteText(w io.Writer, res *fitness.SuiteResult) error {
	s := DefaultStyles()

	fmt.Fprintln(w, s.Header.Render("=== Def-use coverage ==="))

	typeRows := make([][]string, 0, len(goal.Types))
	for _, t := range goal.Types {
		total, covered := res.TotalByType[t], res.CoveredByType[t]
		typeRows = append(typeRows, []string{t.String(), count(covered), count(total), percent(covered, total)})
	}
	fmt.Fprintln(w, newTable(s, func(row, col int) lipgloss.Style {
		if col == 3 && row >= 0 && row < len(typeRows) {
			t := goal.Types[row]
			return s.StateStyle(res.CoveredByType[t] == res.TotalByType[t])
		}
		return s.TableCell
	}).Headers("TYPE", "COVERED", "TOTAL", "COVERAGE").Rows(typeRows...))

	summary := [][2]string{
		{"Goals", fmt.Sprintf("%s of %s covered", count(res.Covered), count(res.Total))},
		{"Coverage", fmt.Sprintf("%.1f%%", res.Coverage*100)},
		{"Fitness", humanize.FtoaWithDigits(res.Fitness, 4)},
	}
	if res.TimedOut > 0 {
		summary = append(summary, [2]string{"Timed out", count(res.TimedOut) + " test(s) ignored"})
	}
	for _, line := range summary {
		fmt.Fprintf(w, "%s%s\n", s.SummaryLabel.Render(line[0]), s.SummaryValue.Render(line[1]))
	}

	var rows [][]string
	for _, gs := range res.Goals {
		if gs.Covered() {
			continue
		}
		rows = append(rows, []string{
			gs.Goal.Type.String(), gs.Goal.Variable,
			location(gs.Goal.Definition), location(gs.Goal.Use),
			humanize.FtoaWithDigits(gs.Fitness, 3),
		})
	}
	if len(rows) == 0 {
		fmt.Fprintln(w, s.Covered.Render("\nAll goals covered."))
		return nil
	}
	fmt.Fprintln(w, s.SubHeader.Render(fmt.Sprintf("\nUncovered goals (%s):", count(len(rows)))))
	fmt.Fprintln(w, newTable(s, func(row, col int) lipgloss.Style {
		if col == 4 {
			return s.Uncovered
		}
		return s.TableCell
	}).Headers("TYPE", "VARIABLE", "DEFINITION", "USE", "FITNESS").Rows(rows...))
	return nil
}

func percent(covered, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(covered)*100/float64(total))
}

// WriteTimelineText writes the uses of one test's trace with the definition
// active at each of them.
func WriteTimelineText(w io.Writer, testID string, rows []TimelineRow) error {
	s := DefaultStyles()

	fmt.Fprintln(w, s.Header.Render(fmt.Sprintf("=== %s ===", testID)))
	if len(rows) == 0 {
		fmt.Fprintln(w, s.Muted.Render("    No uses recorded."))
		return nil
	}

	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		def := "-"
		if r.ActiveDef != trace.None {
			def = fmt.Sprint(r.ActiveDef)
		}
		g := r.Goal
		if g == "" {
			g = "-"
		}
		cells = append(cells, []string{
			fmt.Sprint(r.Pos), r.Variable, fmt.Sprint(r.Object), fmt.Sprint(r.UseID), def, g,
		})
	}
	fmt.Fprintln(w, newTable(s, func(row, col int) lipgloss.Style {
		if col == 5 && row >= 0 && row < len(rows) {
			return s.StateStyle(rows[row].Goal != "")
		}
		return s.TableCell
	}).Headers("POS", "VARIABLE", "OBJECT", "USE", "ACTIVE DEF", "GOAL").Rows(cells...))
	return nil
}
