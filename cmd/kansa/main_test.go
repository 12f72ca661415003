package main

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/hyperjump/kansa/internal/fileid"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after file are moved first",
			args:     []string{"note.txt", "-mode", "hybrid"},
			expected: []string{"-mode", "hybrid", "note.txt"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-mode", "hybrid", "note.txt"},
			expected: []string{"-mode", "hybrid", "note.txt"},
		},
		{
			name:     "stdin marker is positional",
			args:     []string{"-", "-output", "json"},
			expected: []string{"-output", "json", "-"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"maintenance", "therapy", "-limit", "5"},
			expected: []string{"-limit", "5", "maintenance", "therapy"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"maintenance"}, "maintenance"},
		{"multiple words", []string{"skilled", "need"}, "skilled need"},
		{"quoted phrase", []string{"plan of care"}, "plan of care"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args); got != tt.expected {
				t.Errorf("buildQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

type fakeExtractor struct {
	text string
	err  error
}

func (f fakeExtractor) Extract(string) (string, error) { return f.text, f.err }

func TestReadDocument(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		doc, err := readDocument(fakeExtractor{text: "Pt ambulated 50 ft."}, nil, "/inbox/note.txt", "pt", "progress_note")
		if err != nil {
			t.Fatal(err)
		}
		if doc.ID != fileid.DocumentID("/inbox/note.txt") || doc.Text != "Pt ambulated 50 ft." {
			t.Errorf("unexpected document: %+v", doc)
		}
		if doc.Discipline != "pt" || doc.DocumentType != "progress_note" {
			t.Errorf("discipline/type not carried: %+v", doc)
		}
	})

	t.Run("stdin", func(t *testing.T) {
		doc, err := readDocument(fakeExtractor{}, strings.NewReader("Continue current program."), "-", "", "")
		if err != nil {
			t.Fatal(err)
		}
		if doc.Text != "Continue current program." || !strings.HasPrefix(doc.ID, "stdin:") {
			t.Errorf("unexpected document: %+v", doc)
		}
	})

	t.Run("extract error", func(t *testing.T) {
		boom := errors.New("unsupported")
		_, err := readDocument(fakeExtractor{err: boom}, nil, "scan.png", "", "")
		if !errors.Is(err, boom) {
			t.Errorf("err = %v, want wrapped %v", err, boom)
		}
	})
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
analysis:
  mode: rules
storage:
  database_path: "./test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
analysis:
  mode: hybrid
generation:
  max_iterations: 4
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Analysis.Mode != "hybrid" || cfg.Generation.MaxIterations != 4 {
		t.Errorf("unexpected config: %+v %+v", cfg.Analysis, cfg.Generation)
	}
}

func TestLoadConfig_rejectsInvalidMode(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("analysis:\n  mode: magic\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := loadConfig(configPath); err == nil {
		t.Fatal("expected an error for an unknown mode")
	}
}
