// Package report renders coverage goals, suite fitness results and trace
// timelines as JSON and human-readable text.
package report

import (
	"encoding/json"
	"io"

	"github.com/l3aro/go-defuse/pkg/defuse"
	"github.com/l3aro/go-defuse/pkg/fitness"
	"github.com/l3aro/go-defuse/pkg/goal"
)

// JSONReport is the top-level JSON output structure. Score is only set
// when the goals were scored against a test suite.
type JSONReport struct {
	Version string         `json:"version"`
	Session string         `json:"session,omitempty"`
	Total   int            `json:"total"`
	Types   []TypeCoverage `json:"types"`
	Score   *ScoreSummary  `json:"score,omitempty"`
	Goals   []JSONGoal     `json:"goals"`
}

// TypeCoverage counts goals of one type. Covered is only meaningful in
// scored reports.
type TypeCoverage struct {
	Type    goal.Type `json:"type"`
	Total   int       `json:"total"`
	Covered int       `json:"covered"`
}

// ScoreSummary is the suite level outcome of a scored report.
type ScoreSummary struct {
	Fitness  float64 `json:"fitness"`
	Coverage float64 `json:"coverage"`
	Covered  int     `json:"covered"`
	TimedOut int     `json:"timed_out"`
}

// JSONGoal is one goal. Definition is omitted for parameter goals.
type JSONGoal struct {
	Type       goal.Type   `json:"type"`
	Variable   string      `json:"variable"`
	Definition *JSONDefUse `json:"definition,omitempty"`
	Use        JSONDefUse  `json:"use"`
	Fitness    *float64    `json:"fitness,omitempty"`
	TestID     string      `json:"test_id,omitempty"`
}

// JSONDefUse locates a definition or use in the analyzed code.
type JSONDefUse struct {
	ID          int    `json:"id"`
	Class       string `json:"class"`
	Method      string `json:"method"`
	Instruction int    `json:"instruction"`
	Line        int    `json:"line,omitempty"`
}

func newJSONDefUse(d *defuse.DefUse) JSONDefUse {
	return JSONDefUse{
		ID:          d.ID,
		Class:       d.ClassName(),
		Method:      d.MethodName(),
		Instruction: d.InstructionID(),
		Line:        d.Instruction.Line,
	}
}

func newJSONGoal(g *goal.Goal) JSONGoal {
	jg := JSONGoal{Type: g.Type, Variable: g.Variable, Use: newJSONDefUse(g.Use)}
	if g.Definition != nil {
		d := newJSONDefUse(g.Definition)
		jg.Definition = &d
	}
	return jg
}

func typeCoverage(total, covered map[goal.Type]int) []TypeCoverage {
	r := make([]TypeCoverage, 0, len(goal.Types))
	for _, t := range goal.Types {
		r = append(r, TypeCoverage{Type: t, Total: total[t], Covered: covered[t]})
	}
	return r
}

// NewGoalsReport builds an unscored report of goals.
func NewGoalsReport(goals []*goal.Goal, session, version string) JSONReport {
	r := JSONReport{
		Version: version,
		Session: session,
		Total:   len(goals),
		Types:   typeCoverage(goal.CountByType(goals), nil),
		Goals:   make([]JSONGoal, 0, len(goals)),
	}
	for _, g := range goals {
		r.Goals = append(r.Goals, newJSONGoal(g))
	}
	return r
}

// NewSuiteReport builds a scored report from a suite result.
func NewSuiteReport(res *fitness.SuiteResult, session, version string) JSONReport {
	r := JSONReport{
		Version: version,
		Session: session,
		Total:   res.Total,
		Types:   typeCoverage(res.TotalByType, res.CoveredByType),
		Score: &ScoreSummary{
			Fitness:  res.Fitness,
			Coverage: res.Coverage,
			Covered:  res.Covered,
			TimedOut: res.TimedOut,
		},
		Goals: make([]JSONGoal, 0, len(res.Goals)),
	}
	for _, s := range res.Goals {
		jg := newJSONGoal(s.Goal)
		f := s.Fitness
		jg.Fitness = &f
		jg.TestID = s.TestID
		r.Goals = append(r.Goals, jg)
	}
	return r
}

// WriteJSON writes report as formatted JSON to the writer.
func WriteJSON(w io.Writer, report JSONReport) error {
	if report.Goals == nil {
		report.Goals = []JSONGoal{}
	}
	if report.Types == nil {
		report.Types = []TypeCoverage{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
