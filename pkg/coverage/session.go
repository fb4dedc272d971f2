// Package coverage ties the def-use analysis together. An AnalysisSession
// owns every piece of state one analysis needs, so independent sessions can
// run side by side.
package coverage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/l3aro/go-defuse/internal/log"
	"github.com/l3aro/go-defuse/pkg/cache"
	"github.com/l3aro/go-defuse/pkg/cfg"
	"github.com/l3aro/go-defuse/pkg/defuse"
	"github.com/l3aro/go-defuse/pkg/dfg"
	"github.com/l3aro/go-defuse/pkg/distance"
	"github.com/l3aro/go-defuse/pkg/fitness"
	"github.com/l3aro/go-defuse/pkg/goal"
	"github.com/l3aro/go-defuse/pkg/purity"
	"github.com/l3aro/go-defuse/pkg/trace"
)

// Options configures an AnalysisSession.
type Options struct {
	Logger log.Logger
	// Purity answers purity questions for standard library methods. Nil
	// means the built-in JDK table.
	Purity purity.Oracle
	// Oracle provides branch distances. Nil means control dependence
	// distances over the session's class graphs.
	Oracle distance.Oracle

	Workers     int
	Aliases     bool
	Alternative bool
	Verify      bool

	// Cache, when set, holds goal keys of previously analyzed models.
	Cache *cache.LRUCache
}

// AnalysisSession holds the registry, goals and class graphs of one
// analysis.
type AnalysisSession struct {
	opts   Options
	logger log.Logger

	reg     *defuse.Registry
	catalog *goal.Catalog
	pool    *cfg.Pool
	purity  *purity.Analyzer
	calc    *fitness.Calculator
	suite   *fitness.Suite

	mu          sync.Mutex
	id          string
	classes     []string
	fingerprint string
	goals       []*goal.Goal
	computed    bool
}

// NewSession creates an empty session.
func NewSession(opts Options) *AnalysisSession {
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	reg := defuse.NewRegistry(defuse.WithLogger(logger))
	pool := cfg.NewPool()
	oracle := opts.Oracle
	if oracle == nil {
		oracle = distance.NewControlDependence(pool)
	}
	s := &AnalysisSession{
		opts:    opts,
		logger:  logger,
		reg:     reg,
		catalog: goal.NewCatalog(reg, logger),
		pool:    pool,
		purity:  purity.NewAnalyzer(pool, opts.Purity),
		id:      uuid.NewString(),
	}
	s.calc = fitness.NewCalculator(oracle, logger, fitness.Options{Verify: opts.Verify})
	s.suite = fitness.NewSuite(s.catalog, s.calc, logger, fitness.SuiteOptions{
		Workers:     opts.Workers,
		Aliases:     opts.Aliases,
		Alternative: opts.Alternative,
	})
	return s
}

// ID returns the session identifier. Persisted goals only restore into the
// session that wrote them.
func (s *AnalysisSession) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Registry returns the session's def-use registry.
func (s *AnalysisSession) Registry() *defuse.Registry { return s.reg }

// Catalog returns the session's goal catalog.
func (s *AnalysisSession) Catalog() *goal.Catalog { return s.catalog }

// Pool returns the session's class graphs.
func (s *AnalysisSession) Pool() *cfg.Pool { return s.pool }

// Suite returns the session's suite aggregator.
func (s *AnalysisSession) Suite() *fitness.Suite { return s.suite }

// Load adds classes under test and registers their definitions, uses and
// field method calls, method by method in instruction order. Loading is
// only possible before goals are computed.
func (s *AnalysisSession) Load(classes ...*cfg.ClassCFG) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.computed {
		return fmt.Errorf("%w: goals already computed, clear the session first", defuse.ErrIllegalState)
	}
	for _, c := range classes {
		if c == nil {
			continue
		}
		s.pool.Register(c)
		if err := s.register(c); err != nil {
			return fmt.Errorf("failed to register %s: %w", c.ClassName, err)
		}
		s.classes = append(s.classes, c.ClassName)
	}
	return nil
}

// LoadDependencies adds class graphs consulted for purity only.
func (s *AnalysisSession) LoadDependencies(classes ...*cfg.ClassCFG) {
	for _, c := range classes {
		if c != nil {
			s.pool.Register(c)
		}
	}
}

// SetFingerprint names the loaded model for the goal cache.
func (s *AnalysisSession) SetFingerprint(fp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprint = fp
}

func (s *AnalysisSession) register(c *cfg.ClassCFG) error {
	for _, m := range c.Methods() {
		for _, in := range m.Instructions() {
			var err error
			switch {
			case in.IsMethodCallOfField():
				_, err = s.reg.RegisterFieldMethodCall(in)
			case in.IsIINC():
				// the increment reads before it writes
				if _, err = s.reg.RegisterUse(in); err == nil {
					_, err = s.reg.RegisterDefinition(in)
				}
			case in.IsDefinition():
				_, err = s.reg.RegisterDefinition(in)
			case in.IsUse():
				_, err = s.reg.RegisterUse(in)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// ComputeGoals enumerates and registers the goals of every loaded class.
// Later calls return the same slice until Clear.
func (s *AnalysisSession) ComputeGoals() ([]*goal.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.computed {
		return s.goals, nil
	}

	enum := dfg.NewEnumerator(s.reg, dfg.WithCategorizer(s.purity), dfg.WithLogger(s.logger))
	if goals, ok := s.restoreCached(enum); ok {
		s.goals, s.computed = goals, true
		return s.goals, nil
	}

	var pairs []dfg.Pair
	for _, name := range s.classes {
		c, _ := s.pool.ClassCFG(name)
		p, err := enum.Enumerate(c)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate %s: %w", name, err)
		}
		pairs = append(pairs, p...)
	}
	// every class's pairs of one type precede the next type
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Type < pairs[j].Type })
	if _, err := dfg.Register(s.catalog, pairs); err != nil {
		return nil, err
	}

	s.goals = s.catalog.All()
	s.computed = true
	if s.opts.Cache != nil && s.fingerprint != "" {
		s.opts.Cache.Set(s.fingerprint, goal.Store("", s.goals))
	}
	s.logCounts()
	return s.goals, nil
}

func (s *AnalysisSession) restoreCached(enum *dfg.Enumerator) ([]*goal.Goal, bool) {
	if s.opts.Cache == nil || s.fingerprint == "" {
		return nil, false
	}
	keys, ok := s.opts.Cache.Get(s.fingerprint)
	if !ok {
		return nil, false
	}
	for _, name := range s.classes {
		if err := enum.Categorize(name); err != nil {
			s.logger.Warn("cannot categorize field method calls", "class", name, "error", err)
			return nil, false
		}
	}
	for i := range keys {
		keys[i].Session = s.id
	}
	goals, err := s.catalog.Restore(s.id, keys)
	if err != nil {
		s.logger.Warn("discarding cached goals", "fingerprint", s.fingerprint, "error", err)
		s.catalog.Clear()
		return nil, false
	}
	s.logger.Debug("restored goals from cache", "fingerprint", s.fingerprint, "goals", len(goals))
	return goals, true
}

func (s *AnalysisSession) logCounts() {
	counts := s.catalog.CountByType()
	for _, t := range goal.Types {
		s.logger.Info("created def-use goals", "type", t, "count", counts[t])
	}
}

// CoverageGoals returns every goal of the session, including aliasing goals
// discovered since ComputeGoals.
func (s *AnalysisSession) CoverageGoals() ([]*goal.Goal, error) {
	if _, err := s.ComputeGoals(); err != nil {
		return nil, err
	}
	return s.catalog.All(), nil
}

// Fitness scores a single result against a single goal.
func (s *AnalysisSession) Fitness(g *goal.Goal, res *trace.Result) (float64, error) {
	return s.calc.Score(g, res)
}

// SuiteFitness scores the results of a whole suite against every goal.
func (s *AnalysisSession) SuiteFitness(ctx context.Context, results []*trace.Result) (*fitness.SuiteResult, error) {
	if _, err := s.ComputeGoals(); err != nil {
		return nil, err
	}
	return s.suite.Score(ctx, results)
}

// DetectAliasingGoals adds goals for values defined and used under
// different names. It does nothing unless aliases are enabled.
func (s *AnalysisSession) DetectAliasingGoals(results []*trace.Result) (bool, error) {
	if !s.opts.Aliases {
		return false, nil
	}
	if _, err := s.ComputeGoals(); err != nil {
		return false, err
	}
	return s.catalog.DetectAliasingGoals(results), nil
}

// Clear forgets every registration, goal and loaded class and starts a new
// session identity.
func (s *AnalysisSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reg.Clear()
	s.catalog.Clear()
	s.suite.Reset()
	s.classes = nil
	s.goals = nil
	s.computed = false
	s.fingerprint = ""
	s.id = uuid.NewString()
}

// Persist writes the keys of every goal to w.
func (s *AnalysisSession) Persist(w io.Writer) error {
	goals, err := s.CoverageGoals()
	if err != nil {
		return err
	}
	return goal.EncodeKeys(w, goal.Store(s.ID(), goals))
}

// Restore reads keys written by Persist of this session and returns their
// goals.
func (s *AnalysisSession) Restore(r io.Reader) ([]*goal.Goal, error) {
	keys, err := goal.DecodeKeys(r)
	if err != nil {
		return nil, err
	}
	return s.catalog.Restore(s.ID(), keys)
}
