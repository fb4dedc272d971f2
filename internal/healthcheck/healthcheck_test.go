package healthcheck

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/l3aro/go-defuse/internal/config"
	"github.com/l3aro/go-defuse/pkg/cache"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.CacheDir = filepath.Join(t.TempDir(), "cache")
	return cfg
}

func TestCheckWithNilConfig(t *testing.T) {
	_, err := Check(nil, "", "")
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestCheckDefaultConfig(t *testing.T) {
	result, err := Check(testConfig(t), "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}

	for _, c := range result.Components() {
		if c.Status != "ready" {
			t.Errorf("%s status = %q (%s), want ready", c.Name, c.Status, c.Error)
		}
	}
	if result.Failed() {
		t.Error("Failed() = true, want false")
	}
}

func TestCheckDisabledCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.CacheSize = 0

	result, err := Check(cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Cache.Status != "disabled" {
		t.Errorf("Cache.Status = %q, want %q", result.Cache.Status, "disabled")
	}
	if result.Failed() {
		t.Error("a disabled cache is not a failure")
	}
}

func TestCheckCorruptCache(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.CacheDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg.CacheDir, cache.FileName), []byte("not msgpack"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := Check(cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Cache.Status != "error" {
		t.Errorf("Cache.Status = %q, want %q", result.Cache.Status, "error")
	}
	if !result.Failed() {
		t.Error("Failed() = false, want true")
	}
}

func TestCheckExtraPureMethods(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "pure.yaml")
	if err := os.WriteFile(path, []byte("pure:\n  - com.acme.Money.amount()\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.JDKPureMethods = path

	result, err := Check(cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Purity.Status != "ready" {
		t.Errorf("Purity.Status = %q (%s), want ready", result.Purity.Status, result.Purity.Error)
	}
}

func TestScopeFromPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		path string
		want string
	}{
		{"", ""},
		{filepath.Join(home, ".gdu", "config.yaml"), "global"},
		{".gdu/config.yaml", "project"},
	}
	for _, tt := range tests {
		if got := scopeFromPath(tt.path); got != tt.want {
			t.Errorf("scopeFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
