package report

import (
	"sort"

	"github.com/l3aro/go-defuse/pkg/goal"
	"github.com/l3aro/go-defuse/pkg/trace"
)

// TimelineRow is one use observed in a trace together with the definition
// that was active when it executed.
type TimelineRow struct {
	Pos       int    `json:"pos"`
	Variable  string `json:"variable"`
	Object    int    `json:"object"`
	UseID     int    `json:"use_id"`
	ActiveDef int    `json:"active_definition"`
	// Goal is the type of the goal the pair covers, empty when the pair is
	// not a goal.
	Goal string `json:"goal,omitempty"`
}

// BuildTimeline lists every use of t in execution order. Pairs are looked
// up in catalog; a use with no active definition covers its parameter goal
// if one exists.
func BuildTimeline(t *trace.Trace, catalog *goal.Catalog) []TimelineRow {
	var rows []TimelineRow
	for _, variable := range t.UseVariables() {
		for _, object := range t.UseObjects(variable) {
			for _, u := range t.UseEvents(variable, object) {
				row := TimelineRow{
					Pos:       u.Pos,
					Variable:  variable,
					Object:    object,
					UseID:     u.ID,
					ActiveDef: trace.ActiveDefinitionIDAt(t, variable, object, u.Pos),
				}
				var g *goal.Goal
				if row.ActiveDef != trace.None {
					g = catalog.Lookup(row.ActiveDef, u.ID)
				} else {
					g = catalog.LookupParameter(u.ID)
				}
				if g != nil {
					row.Goal = g.Type.String()
				}
				rows = append(rows, row)
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Pos != rows[j].Pos {
			return rows[i].Pos < rows[j].Pos
		}
		return rows[i].Object < rows[j].Object
	})
	return rows
}
