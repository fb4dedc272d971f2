package healthcheck

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/go-defuse/internal/config"
	"github.com/l3aro/go-defuse/pkg/cache"
	"github.com/l3aro/go-defuse/pkg/cfg"
	"github.com/l3aro/go-defuse/pkg/purity"
)

// ComponentStatus represents the health of one component gdu depends on.
type ComponentStatus struct {
	Name   string
	Detail string
	Status string // "ready", "disabled", "error"
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Parser         ComponentStatus
	Purity         ComponentStatus
	Cache          ComponentStatus
}

// Failed reports whether any component is in error.
func (r *HealthCheckResult) Failed() bool {
	for _, c := range r.Components() {
		if c.Status == "error" {
			return true
		}
	}
	return false
}

// Components lists the checked components in display order.
func (r *HealthCheckResult) Components() []ComponentStatus {
	return []ComponentStatus{r.Parser, r.Purity, r.Cache}
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(c *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if c == nil {
		return nil, fmt.Errorf("config is nil")
	}

	return &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
		Parser:         checkParser(),
		Purity:         checkPurity(c),
		Cache:          checkCache(c),
	}, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".gdu")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

const probeSource = `class Probe { int x; void set(int v) { if (v > 0) x = v; } }`

// checkParser parses a small class to make sure the Java grammar is usable.
func checkParser() ComponentStatus {
	status := ComponentStatus{Name: "Java parser", Detail: "tree-sitter java"}
	classes, err := cfg.ParseJava([]byte(probeSource))
	if err != nil {
		status.Status = "error"
		status.Error = err.Error()
		return status
	}
	if len(classes) != 1 {
		status.Status = "error"
		status.Error = fmt.Sprintf("parsed %d classes from the probe, want 1", len(classes))
		return status
	}
	status.Status = "ready"
	return status
}

// checkPurity loads the built-in pure method table and the configured
// extension file.
func checkPurity(c *config.Config) ComponentStatus {
	table := purity.JDKTable()
	status := ComponentStatus{Name: "Purity table", Status: "ready"}
	if c.JDKPureMethods != "" {
		extra, err := purity.LoadTableFile(c.JDKPureMethods)
		if err != nil {
			status.Status = "error"
			status.Error = err.Error()
			return status
		}
		table.Merge(extra)
		status.Detail = fmt.Sprintf("%d signatures (including %s)", table.Len(), c.JDKPureMethods)
		return status
	}
	status.Detail = fmt.Sprintf("%d built-in signatures", table.Len())
	return status
}

// checkCache verifies the cache directory can be written and the cache file,
// if any, can be read.
func checkCache(c *config.Config) ComponentStatus {
	status := ComponentStatus{Name: "Goal cache", Detail: c.CacheDir}
	if !c.CacheEnabled() {
		status.Status = "disabled"
		return status
	}

	if err := os.MkdirAll(c.CacheDir, 0755); err != nil {
		status.Status = "error"
		status.Error = fmt.Sprintf("cannot create cache directory: %v", err)
		return status
	}
	probe, err := os.CreateTemp(c.CacheDir, ".probe-*")
	if err != nil {
		status.Status = "error"
		status.Error = fmt.Sprintf("cache directory is not writable: %v", err)
		return status
	}
	probe.Close()
	os.Remove(probe.Name())

	lru := cache.New(cache.Options{MaxSize: c.CacheSize})
	if err := cache.LoadFromDir(lru, c.CacheDir); err != nil {
		status.Status = "error"
		status.Error = err.Error()
		return status
	}
	status.Detail = fmt.Sprintf("%s (%d of %d entries)", c.CacheDir, lru.Len(), c.CacheSize)
	status.Status = "ready"
	return status
}
