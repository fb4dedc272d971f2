// Package scanner finds the Java sources of a project. It skips build and
// VCS directories and honors gitignore-style patterns in .gduignore files.
package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo represents information about a discovered source file.
type FileInfo struct {
	Path     string // Relative path from root, slash separated
	FullPath string // Absolute path
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	DefaultExcludes []string // Directory names never descended into
	IgnoreFileName  string   // Name of the ignore file (default: .gduignore)
	// SkipTests leaves out files under src/test, which hold the suite rather
	// than the classes under test.
	SkipTests bool
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		IgnoreFileName: ".gduignore",
		SkipTests:      true,
		DefaultExcludes: []string{
			".git",
			".hg",
			".svn",
			".idea",
			".gradle",
			"build",
			"target",
			"out",
			"bin",
			"node_modules",
		},
	}
}

// Scanner walks a directory tree for Java sources.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ".gduignore"
	}
	return &Scanner{opts: opts}
}

// Scan recursively scans root and returns its Java sources sorted by path.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	var rules ignoreRules
	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." {
				if s.excluded(d.Name()) || rules.ignored(rel, true) {
					return filepath.SkipDir
				}
				if s.opts.SkipTests && (rel == "src/test" || strings.HasSuffix(rel, "/src/test")) {
					return filepath.SkipDir
				}
			}
			nested, err := loadIgnoreFile(filepath.Join(path, s.opts.IgnoreFileName), rel)
			if err != nil {
				return err
			}
			rules = append(rules, nested...)
			return nil
		}

		if !d.Type().IsRegular() || !strings.EqualFold(filepath.Ext(path), ".java") {
			return nil
		}
		if (s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".")) || rules.ignored(rel, false) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileInfo{Path: rel, FullPath: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (s *Scanner) excluded(name string) bool {
	if s.opts.SkipHidden && strings.HasPrefix(name, ".") {
		return true
	}
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnoreFile reads the patterns of an ignore file found in directory
// base. A missing file yields no patterns.
func loadIgnoreFile(path, base string) (ignoreRules, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var rules ignoreRules
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rules = append(rules, parseIgnoreRule(line, base))
	}
	return rules, sc.Err()
}

// Scan scans root with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
