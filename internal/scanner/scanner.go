// Package scanner discovers Go source files under a directory tree for
// batch graph construction. It honors .opflowignore files with
// gitignore-style patterns and records modification times so cached
// summaries can be invalidated per file.
package scanner

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileInfo describes one discovered Go source file.
type FileInfo struct {
	Path     string // relative to the scan root, forward slashes
	FullPath string // absolute path
	Size     int64
	ModTime  int64 // Unix seconds, used as the cache key component
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // skip dotfiles and dot-directories
	IncludeTests    bool     // include _test.go files
	FollowSymlinks  bool     // follow file symlinks that stay within root
	DefaultExcludes []string // directory names always skipped
	IgnoreFileName  string   // default: .opflowignore
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		IncludeTests:   false,
		FollowSymlinks: false,
		IgnoreFileName: ".opflowignore",
		DefaultExcludes: []string{
			"vendor",
			"testdata",
			"node_modules",
			".git",
			"dist",
			"build",
			"bin",
		},
	}
}

// Scanner walks a directory tree collecting Go source files.
type Scanner struct {
	opts Options
	root string
}

// New creates a Scanner with the given options.
func New(opts Options) *Scanner {
	return &Scanner{opts: opts}
}

// Scan recursively walks root and returns the Go files that survive the
// ignore rules, in walk order.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	s.root = absRoot

	patterns, err := s.loadIgnorePatterns(absRoot)
	if err != nil {
		return nil, fmt.Errorf("loading ignore patterns: %w", err)
	}

	var files []FileInfo

	err = filepath.Walk(absRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil || relPath == "." {
			return nil
		}
		relPath = filepath.ToSlash(relPath)

		if s.opts.SkipHidden && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if s.isDefaultExcluded(info.Name()) {
				return filepath.SkipDir
			}
			// Nested ignore files extend the pattern list for the
			// remainder of the walk.
			if nested, err := s.loadIgnorePatterns(path); err == nil {
				patterns = append(patterns, nested...)
			}
			return nil
		}

		if !s.isGoSource(info.Name()) {
			return nil
		}
		if matchesIgnorePatterns(relPath, patterns) {
			return nil
		}

		if info.Mode()&os.ModeSymlink != 0 {
			resolved, ok := s.resolveSymlink(path, absRoot)
			if !ok {
				return nil
			}
			info = resolved
		}

		files = append(files, FileInfo{
			Path:     relPath,
			FullPath: path,
			Size:     info.Size(),
			ModTime:  info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return files, nil
}

// isGoSource reports whether name is a Go file the batch should lower.
// Files the go toolchain itself ignores (leading _ or .) are excluded.
func (s *Scanner) isGoSource(name string) bool {
	if !strings.HasSuffix(name, ".go") {
		return false
	}
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return false
	}
	if !s.opts.IncludeTests && strings.HasSuffix(name, "_test.go") {
		return false
	}
	return true
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// resolveSymlink follows a file symlink when the options allow it and the
// target stays inside root. Directory symlinks are never followed.
func (s *Scanner) resolveSymlink(path, root string) (os.FileInfo, bool) {
	if !s.opts.FollowSymlinks {
		return nil, false
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, false
	}
	realAbs, err := filepath.Abs(real)
	if err != nil {
		return nil, false
	}
	if realAbs != root && !strings.HasPrefix(realAbs, root+string(filepath.Separator)) {
		return nil, false
	}
	target, err := os.Stat(real)
	if err != nil || target.IsDir() {
		return nil, false
	}
	return target, true
}

// loadIgnorePatterns reads the ignore file in dir, if present.
func (s *Scanner) loadIgnorePatterns(dir string) ([]IgnorePattern, error) {
	file, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var patterns []IgnorePattern
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, ParseIgnorePattern(line))
	}
	return patterns, sc.Err()
}

// matchesIgnorePatterns applies patterns in order; a later negation
// pattern can un-ignore a path matched by an earlier one.
func matchesIgnorePatterns(relPath string, patterns []IgnorePattern) bool {
	ignored := false
	for _, p := range patterns {
		if p.Match(relPath) {
			ignored = !p.IsNegation()
		}
	}
	return ignored
}

// Scan walks root with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}
