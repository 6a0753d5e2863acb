package scanner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		fullPath := filepath.Join(root, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file: %v", err)
		}
	}
}

func TestScannerScan(t *testing.T) {
	tmpDir := t.TempDir()

	writeTree(t, tmpDir, map[string]string{
		"main.go":                 "package main",
		"internal/helper.go":      "package internal",
		"internal/helper_test.go": "package internal",
		"README.md":               "# Test",
		"script.py":               "print('hello')",
		"_ignored.go":             "package main",
		".hidden/file.go":         "package hidden",
		"vendor/dep/dep.go":       "package dep",
		"testdata/fixture.go":     "package fixture",
		".git/config":             "[core]",
	})

	results, err := New(DefaultOptions()).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	foundFiles := make(map[string]bool)
	for _, f := range results {
		foundFiles[f.Path] = true
		if f.ModTime == 0 {
			t.Errorf("Expected %s to carry a modification time", f.Path)
		}
		if f.FullPath != filepath.Join(tmpDir, filepath.FromSlash(f.Path)) {
			t.Errorf("FullPath mismatch for %s: %s", f.Path, f.FullPath)
		}
	}

	for _, expected := range []string{"main.go", "internal/helper.go"} {
		if !foundFiles[expected] {
			t.Errorf("Expected to find %s, but it wasn't found", expected)
		}
	}

	excluded := []string{
		"README.md",
		"script.py",
		"_ignored.go",
		"internal/helper_test.go",
		".hidden/file.go",
		"vendor/dep/dep.go",
		"testdata/fixture.go",
		".git/config",
	}
	for _, path := range excluded {
		if foundFiles[path] {
			t.Errorf("Expected %s to be excluded, but it was found", path)
		}
	}
}

func TestScannerIncludeTests(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"main.go":      "package main",
		"main_test.go": "package main",
	})

	opts := DefaultOptions()
	opts.IncludeTests = true
	results, err := New(opts).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	found := make(map[string]bool)
	for _, f := range results {
		found[f.Path] = true
	}
	if !found["main_test.go"] {
		t.Error("Expected main_test.go when IncludeTests=true")
	}
}

func TestScannerWithIgnoreFile(t *testing.T) {
	tmpDir := t.TempDir()

	ignoreContent := `# generated code
*_gen.go
# build output
out/
# one specific file
legacy.go
!keep_gen.go
`
	writeTree(t, tmpDir, map[string]string{
		".opflowignore":  ignoreContent,
		"app.go":         "package app",
		"app_gen.go":     "package app",
		"keep_gen.go":    "package app",
		"legacy.go":      "package app",
		"out/built.go":   "package out",
		"public/site.go": "package public",
	})

	results, err := New(DefaultOptions()).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	found := make(map[string]bool)
	for _, f := range results {
		found[f.Path] = true
	}

	for _, expected := range []string{"app.go", "public/site.go", "keep_gen.go"} {
		if !found[expected] {
			t.Errorf("Expected to find %s", expected)
		}
	}
	for _, ignored := range []string{"app_gen.go", "out/built.go", "legacy.go"} {
		if found[ignored] {
			t.Errorf("Expected %s to be ignored", ignored)
		}
	}
}

func TestScannerNestedIgnoreFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"top.go":            "package top",
		"sub/.opflowignore": "local.go\n",
		"sub/local.go":      "package sub",
		"sub/kept.go":       "package sub",
	})

	results, err := New(DefaultOptions()).Scan(tmpDir)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	found := make(map[string]bool)
	for _, f := range results {
		found[f.Path] = true
	}
	if !found["top.go"] || !found["sub/kept.go"] {
		t.Error("Expected files outside the nested ignore rules to survive")
	}
	if found["sub/local.go"] {
		t.Error("Expected sub/local.go to be ignored by the nested ignore file")
	}
}

func TestIgnorePattern(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		match   bool
	}{
		// Simple patterns
		{"*_gen.go", "api_gen.go", true},
		{"*_gen.go", "dir/api_gen.go", true},
		{"*_gen.go", "api.go", false},
		{"out/", "out/file.go", true},
		{"out/", "other/out/file.go", true},
		{"out/", "output.go", false},

		// Anchored patterns
		{"/out/", "out/file.go", true},
		{"/out/", "src/out/file.go", false},
		{"/main.go", "main.go", true},
		{"/main.go", "cmd/main.go", false},

		// Glob patterns
		{"src/*.go", "src/app.go", true},
		{"src/*.go", "src/deep/app.go", false},
		{"file?.go", "file1.go", true},
		{"file?.go", "file12.go", false},

		// Double asterisk
		{"**/mocks/**", "mocks/m.go", true},
		{"**/mocks/**", "src/mocks/m.go", true},
		{"**/mocks/**", "src/deep/mocks/m.go", true},
		{"**/mocks/**", "mocking/m.go", false},

		// Negation patterns still match; the caller inverts the effect
		{"!*_gen.go", "api_gen.go", true},
	}

	for _, tt := range tests {
		pattern := ParseIgnorePattern(tt.pattern)
		if got := pattern.Match(tt.path); got != tt.match {
			t.Errorf("Pattern %q matching %q: got %v, want %v", tt.pattern, tt.path, got, tt.match)
		}
	}
}

func TestIgnorePatternNegationFlag(t *testing.T) {
	if !ParseIgnorePattern("!keep.go").IsNegation() {
		t.Error("Expected !keep.go to be a negation pattern")
	}
	if ParseIgnorePattern("drop.go").IsNegation() {
		t.Error("Expected drop.go not to be a negation pattern")
	}
}
