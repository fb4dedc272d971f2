package fitness

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-defuse/internal/log"
	"github.com/l3aro/go-defuse/pkg/distance"
	"github.com/l3aro/go-defuse/pkg/goal"
	"github.com/l3aro/go-defuse/pkg/trace"
)

// maxGoalFitness is the worst fitness a single goal can have.
const maxGoalFitness = 2.0

// SuiteOptions configures a Suite.
type SuiteOptions struct {
	// Workers bounds the goals evaluated concurrently. Zero uses GOMAXPROCS.
	Workers int
	// Aliases enables runtime detection of aliasing goals before scoring.
	Aliases bool
	// Alternative selects the experimental strategy that only replays
	// tests executing a goal's definition and rewards repeated execution.
	Alternative bool
}

// GoalScore is the best fitness any test reached for one goal.
type GoalScore struct {
	Goal    *goal.Goal `json:"-"`
	Fitness float64    `json:"fitness"`
	// TestID names the first test found covering the goal.
	TestID string `json:"test_id,omitempty"`
}

// Covered reports whether some test covered the goal.
func (s GoalScore) Covered() bool { return s.Fitness == 0 }

// SuiteResult is the outcome of scoring a whole suite.
type SuiteResult struct {
	Fitness       float64
	Coverage      float64
	Total         int
	Covered       int
	TotalByType   map[goal.Type]int
	CoveredByType map[goal.Type]int
	// Goals holds one score per goal in catalog order.
	Goals []GoalScore
	// TimedOut counts the results never replayed because their test
	// timed out.
	TimedOut int
}

// Suite aggregates goal fitness over the results of a test suite. It
// remembers the most goals of each type any scored suite covered.
type Suite struct {
	catalog *goal.Catalog
	calc    *Calculator
	logger  log.Logger
	opts    SuiteOptions

	mu          sync.Mutex
	mostCovered map[goal.Type]int
	everCovered map[*goal.Goal]struct{}
}

// NewSuite creates a suite aggregator over the goals of catalog.
func NewSuite(catalog *goal.Catalog, calc *Calculator, logger log.Logger, opts SuiteOptions) *Suite {
	if logger == nil {
		logger = log.Nop()
	}
	return &Suite{
		catalog:     catalog,
		calc:        calc,
		logger:      logger,
		opts:        opts,
		mostCovered: make(map[goal.Type]int),
		everCovered: make(map[*goal.Goal]struct{}),
	}
}

// Score returns the suite fitness of results: the sum over every goal of the
// best fitness any result reached. Zero means every goal is covered.
func (s *Suite) Score(ctx context.Context, results []*trace.Result) (*SuiteResult, error) {
	if s.opts.Aliases && s.catalog.DetectAliasingGoals(results) {
		s.logger.Debug("new total number of goals", "goals", s.catalog.Len())
		for t, n := range s.catalog.CountByType() {
			s.logger.Info("goals of type", "type", t, "count", n)
		}
	}
	if s.opts.Alternative {
		return s.scoreAlternative(ctx, results)
	}
	return s.scoreDirect(ctx, results)
}

func (s *Suite) scoreDirect(ctx context.Context, results []*trace.Result) (*SuiteResult, error) {
	goals := s.catalog.All()
	scores := make([]GoalScore, len(goals))
	for i, g := range goals {
		scores[i] = GoalScore{Goal: g, Fitness: maxGoalFitness}
	}

	var live []*trace.Result
	timedOut := 0
	for _, res := range results {
		if res == nil {
			continue
		}
		if res.TimedOut {
			timedOut++
			continue
		}
		live = append(live, res)
	}

	covered := s.catalog.CoveredGoals(live)
	pending := make([]int, 0, len(goals))
	for i, g := range goals {
		if _, ok := covered[g]; ok {
			scores[i].Fitness = 0
			scores[i].TestID = coveringTest(live, g, s.catalog)
			continue
		}
		pending = append(pending, i)
	}

	err := s.evaluate(ctx, scores, pending, func(*goal.Goal) []*trace.Result { return live })
	if err != nil {
		return nil, err
	}

	fitness := 0.0
	for _, sc := range scores {
		fitness += sc.Fitness
	}
	r, err := s.finish(goals, scores, fitness)
	if err != nil {
		return nil, err
	}
	r.TimedOut = timedOut
	return r, nil
}

// coveringTest names the first result whose trace covers g on the fast
// path.
func coveringTest(results []*trace.Result, g *goal.Goal, c *goal.Catalog) string {
	for _, res := range results {
		if _, ok := c.CoveredGoalsOf(res.Trace)[g]; ok {
			return res.TestID
		}
	}
	return ""
}

func (s *Suite) scoreAlternative(ctx context.Context, results []*trace.Result) (*SuiteResult, error) {
	goals := s.catalog.All()
	for _, res := range results {
		if res != nil && res.TimedOut {
			fitness := float64(len(goals) * 100)
			s.logger.Debug("test timed out, using maximum suite fitness", "test", res.TestID, "fitness", fitness)
			return &SuiteResult{
				Fitness:       fitness,
				Total:         len(goals),
				TotalByType:   goal.CountByType(goals),
				CoveredByType: make(map[goal.Type]int),
				TimedOut:      1,
			}, nil
		}
	}

	maxDefinitions := make(map[int]int)
	maxMethods := make(map[string]int)
	for _, g := range goals {
		if g.IsParameter() {
			maxMethods[methodKey(g)]++
		} else {
			maxDefinitions[g.Definition.ID]++
		}
	}

	passedDefinitions := make(map[int][]*trace.Result)
	definitionCount := make(map[int]int)
	executedMethods := make(map[string][]*trace.Result)
	methodCount := make(map[string]int)
	for _, res := range results {
		if res == nil || res.Trace == nil {
			continue
		}
		for id, n := range res.Trace.DefinitionExecutionCount() {
			passedDefinitions[id] = append(passedDefinitions[id], res)
			definitionCount[id] += n
		}
		for key, n := range res.Trace.MethodExecutionCount() {
			executedMethods[key] = append(executedMethods[key], res)
			methodCount[key] += n
		}
	}

	scores := make([]GoalScore, len(goals))
	pending := make([]int, len(goals))
	for i, g := range goals {
		scores[i] = GoalScore{Goal: g, Fitness: maxGoalFitness}
		pending[i] = i
	}
	err := s.evaluate(ctx, scores, pending, func(g *goal.Goal) []*trace.Result {
		if g.IsParameter() {
			return executedMethods[methodKey(g)]
		}
		return passedDefinitions[g.Definition.ID]
	})
	if err != nil {
		return nil, err
	}

	fitness := 0.0
	notFullyCovered := make(map[int]bool)
	methodNotFullyCovered := false
	for _, sc := range scores {
		fitness += sc.Fitness
		if sc.Covered() {
			continue
		}
		if sc.Goal.IsParameter() {
			methodNotFullyCovered = true
		} else {
			notFullyCovered[sc.Goal.Definition.ID] = true
		}
	}
	for id, max := range maxDefinitions {
		if n := definitionCount[id]; notFullyCovered[id] && n < max {
			fitness += distance.Normalize(float64(max - n))
		}
	}
	if methodNotFullyCovered {
		for key, max := range maxMethods {
			if n := methodCount[key]; n < max {
				fitness += distance.Normalize(float64(max - n))
			}
		}
	}
	return s.finish(goals, scores, fitness)
}

func methodKey(g *goal.Goal) string {
	return g.Use.ClassName() + "." + g.Use.MethodName()
}

// evaluate lowers scores[i] for every pending index to the best fitness over
// the results candidates returns for its goal, stopping at the first
// covering result.
func (s *Suite) evaluate(ctx context.Context, scores []GoalScore, pending []int, candidates func(*goal.Goal) []*trace.Result) error {
	workers := s.opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, i := range pending {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sc := &scores[i]
			for _, res := range candidates(sc.Goal) {
				if res.TimedOut {
					continue
				}
				f, err := s.calc.Score(sc.Goal, res)
				if err != nil {
					return fmt.Errorf("scoring %v against %s: %w", sc.Goal.Key(), res.TestID, err)
				}
				if f < sc.Fitness {
					sc.Fitness = f
				}
				if sc.Fitness == 0 {
					sc.TestID = res.TestID
					break
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// finish counts covered goals, updates the high-water marks and checks the
// totals against each other.
func (s *Suite) finish(goals []*goal.Goal, scores []GoalScore, fitness float64) (*SuiteResult, error) {
	r := &SuiteResult{
		Fitness:       fitness,
		Total:         len(goals),
		TotalByType:   goal.CountByType(goals),
		CoveredByType: make(map[goal.Type]int),
		Goals:         scores,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range scores {
		if !sc.Covered() {
			continue
		}
		r.Covered++
		r.CoveredByType[sc.Goal.Type]++
		s.everCovered[sc.Goal] = struct{}{}
	}
	for _, t := range goal.Types {
		if s.mostCovered[t] >= r.CoveredByType[t] {
			continue
		}
		s.mostCovered[t] = r.CoveredByType[t]
		if s.mostCovered[t] > r.TotalByType[t] {
			return nil, fmt.Errorf("%w: covered %d of %d goals of type %s",
				ErrInconsistent, s.mostCovered[t], r.TotalByType[t], t)
		}
	}
	if r.Total > 0 {
		r.Coverage = float64(r.Covered) / float64(r.Total)
	} else {
		r.Coverage = 1
	}
	if fitness == 0 && r.Covered < r.Total {
		return nil, fmt.Errorf("%w: fitness 0 with %d of %d goals covered",
			ErrInconsistent, r.Covered, r.Total)
	}
	return r, nil
}

// MostCovered returns the most goals of each type covered by one suite so
// far.
func (s *Suite) MostCovered() map[goal.Type]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := make(map[goal.Type]int, len(s.mostCovered))
	for t, n := range s.mostCovered {
		r[t] = n
	}
	return r
}

// EverCovered reports whether any scored suite covered g.
func (s *Suite) EverCovered(g *goal.Goal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.everCovered[g]
	return ok
}

// Reset forgets the high-water marks.
func (s *Suite) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mostCovered = make(map[goal.Type]int)
	s.everCovered = make(map[*goal.Goal]struct{})
}
