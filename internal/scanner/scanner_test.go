package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
	return root
}

func paths(files []FileInfo) []string {
	var r []string
	for _, f := range files {
		r = append(r, f.Path)
	}
	return r
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestScannerScan(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/main/java/bank/Account.java":     "class Account {}",
		"src/main/java/bank/Ledger.java":      "class Ledger {}",
		"src/main/resources/app.properties":   "x=1",
		"src/test/java/bank/AccountTest.java": "class AccountTest {}",
		"target/generated/Gen.java":           "class Gen {}",
		".hidden/Secret.java":                 "class Secret {}",
		"README.md":                           "# bank",
	})

	results, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{"src/main/java/bank/Account.java", "src/main/java/bank/Ledger.java"}
	if got := paths(results); !equal(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}
	for _, f := range results {
		if !filepath.IsAbs(f.FullPath) {
			t.Errorf("FullPath %q is not absolute", f.FullPath)
		}
		if f.Size == 0 {
			t.Errorf("Size of %s is 0", f.Path)
		}
	}
}

func TestScannerIncludesTests(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/main/java/A.java": "class A {}",
		"src/test/java/T.java": "class T {}",
	})

	opts := DefaultOptions()
	opts.SkipTests = false
	results, err := New(opts).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 files, got %v", paths(results))
	}
}

func TestScannerWithIgnoreFile(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gduignore":                   "generated/\n*Dto.java\n!KeepDto.java\n",
		"src/Account.java":             "class Account {}",
		"src/AccountDto.java":          "class AccountDto {}",
		"src/KeepDto.java":             "class KeepDto {}",
		"generated/Gen.java":           "class Gen {}",
		"legacy/.gduignore":            "/old/\n",
		"legacy/old/Old.java":          "class Old {}",
		"legacy/current/Current.java":  "class Current {}",
		"other/old/StillIncluded.java": "class StillIncluded {}",
	})

	results, err := Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	want := []string{
		"legacy/current/Current.java",
		"other/old/StillIncluded.java",
		"src/Account.java",
		"src/KeepDto.java",
	}
	if got := paths(results); !equal(got, want) {
		t.Errorf("Scan() = %v, want %v", got, want)
	}
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern, name string
		want          bool
	}{
		{"*.java", "A.java", true},
		{"*.java", "A.kt", false},
		{"src/**/*.java", "src/a/b/C.java", true},
		{"src/**/*.java", "src/C.java", true},
		{"src/*.java", "src/a/C.java", false},
		{"**/gen", "a/b/gen", true},
		{"[AB].java", "B.java", true},
	}
	for _, tt := range tests {
		if got := globMatch(tt.pattern, tt.name); got != tt.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}

func TestScanMissingRoot(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Expected error for missing root, got nil")
	}
}
