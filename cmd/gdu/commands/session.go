package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/l3aro/go-defuse/internal/scanner"
	"github.com/l3aro/go-defuse/pkg/cache"
	"github.com/l3aro/go-defuse/pkg/cfg"
	"github.com/l3aro/go-defuse/pkg/coverage"
	"github.com/l3aro/go-defuse/pkg/model"
	"github.com/l3aro/go-defuse/pkg/purity"
)

// input is the set of classes a command analyzes.
type input struct {
	classes      []*cfg.ClassCFG
	dependencies []*cfg.ClassCFG
	fingerprint  string
}

func isModelFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// javaFiles expands directories to the Java sources below them.
func javaFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		found, err := scanner.Scan(path)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			files = append(files, f.FullPath)
		}
		logger.Debug("scanned for Java sources", "dir", path, "files", len(found))
	}
	return files, nil
}

// loadInput reads a single class model file, or Java sources given as
// files or directories.
func loadInput(paths []string) (*input, error) {
	if len(paths) == 1 && isModelFile(paths[0]) {
		doc, err := model.LoadFile(paths[0])
		if err != nil {
			return nil, err
		}
		classes, err := doc.ClassCFGs()
		if err != nil {
			return nil, err
		}
		deps, err := doc.DependencyCFGs()
		if err != nil {
			return nil, err
		}
		fp, err := doc.Fingerprint()
		if err != nil {
			return nil, err
		}
		return &input{classes: classes, dependencies: deps, fingerprint: fp}, nil
	}

	files, err := javaFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no Java sources found in %s", strings.Join(paths, ", "))
	}

	in := &input{}
	sources := make([]string, 0, len(files))
	for _, path := range files {
		if !strings.EqualFold(filepath.Ext(path), ".java") {
			return nil, fmt.Errorf("unsupported file type: %s (expected a class model or .java files)", path)
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		classes, err := cfg.ParseJava(src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		in.classes = append(in.classes, classes...)
		sources = append(sources, string(src))
	}
	h, err := hashstructure.Hash(sources, hashstructure.FormatV2, nil)
	if err != nil {
		return nil, fmt.Errorf("fingerprinting sources: %w", err)
	}
	in.fingerprint = fmt.Sprintf("%016x", h)
	return in, nil
}

// sessionFlags are the scoring options a command may override.
type sessionFlags struct {
	workers     int
	aliases     bool
	alternative bool
	verify      bool
}

func flagsFromConfig() sessionFlags {
	return sessionFlags{
		workers:     appConfig.Workers,
		aliases:     appConfig.Aliases,
		alternative: appConfig.AlternativeSuiteFitness,
		verify:      appConfig.Verify,
	}
}

// openSession loads in into a new session wired to the configured purity
// table and goal cache. The returned function saves the cache and must be
// called once goals are computed.
func openSession(in *input, flags sessionFlags) (*coverage.AnalysisSession, func(), error) {
	table := purity.JDKTable()
	if appConfig.JDKPureMethods != "" {
		extra, err := purity.LoadTableFile(appConfig.JDKPureMethods)
		if err != nil {
			return nil, nil, err
		}
		table.Merge(extra)
	}

	var goalCache *cache.LRUCache
	if appConfig.CacheEnabled() {
		goalCache = cache.New(cache.Options{
			MaxSize: appConfig.CacheSize,
			OnEvict: func(key string) {
				logger.Debug("evicted cached goals", "fingerprint", key)
			},
		})
		if err := cache.LoadFromDir(goalCache, appConfig.CacheDir); err != nil {
			logger.Warn("ignoring unreadable goal cache", "dir", appConfig.CacheDir, "error", err)
			goalCache.Clear()
		}
	}

	s := coverage.NewSession(coverage.Options{
		Logger:      logger,
		Purity:      table,
		Workers:     flags.workers,
		Aliases:     flags.aliases,
		Alternative: flags.alternative,
		Verify:      flags.verify,
		Cache:       goalCache,
	})
	if err := s.Load(in.classes...); err != nil {
		return nil, nil, err
	}
	s.LoadDependencies(in.dependencies...)
	s.SetFingerprint(in.fingerprint)

	save := func() {
		if goalCache == nil {
			return
		}
		if err := cache.PersistToDir(goalCache, appConfig.CacheDir); err != nil {
			logger.Warn("failed to save goal cache", "dir", appConfig.CacheDir, "error", err)
			return
		}
		st := goalCache.Stats()
		logger.Debug("goal cache saved", "entries", st.Length, "hits", st.HitCount, "misses", st.MissCount)
	}
	return s, save, nil
}
