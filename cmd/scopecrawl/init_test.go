package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/scopecrawl/internal/config"
	"github.com/nao1215/scopecrawl/internal/scope"
)

func runInit(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	cmd := NewInitCmd()
	cmd.SetOut(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunInitCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates config file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "nested", ".scopecrawl")
		out, err := runInit(t, "-o", path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, path) {
			t.Errorf("expected output to name the file, got %q", out)
		}

		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("failed to stat config file: %v", err)
		}
		if info.Mode().Perm() != 0600 {
			t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
		}
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), ".scopecrawl")
		if err := os.WriteFile(path, []byte("keep"), 0600); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}

		if _, err := runInit(t, "-o", path); err == nil {
			t.Fatal("expected error for existing file")
		}
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		if string(content) != "keep" {
			t.Error("expected existing file to be untouched")
		}

		if _, err := runInit(t, "-o", path, "-f"); err != nil {
			t.Fatalf("unexpected error with force: %v", err)
		}
		content, err = os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		if string(content) == "keep" {
			t.Error("expected file to be overwritten with force")
		}
	})
}

func TestConfigTemplate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".scopecrawl")
	if _, err := runInit(t, "-o", path); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}

	f, err := config.LoadConfigFile(path)
	if err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if f.Workers != config.DefaultWorkers {
		t.Errorf("expected workers %d, got %d", config.DefaultWorkers, f.Workers)
	}
	if f.Timeout != config.DefaultTimeout {
		t.Errorf("expected timeout %v, got %v", config.DefaultTimeout, f.Timeout)
	}
	if !f.Verbosity.IsValid() {
		t.Errorf("expected valid verbosity, got %q", f.Verbosity)
	}

	sc, err := scope.New(f.Scope)
	if err != nil {
		t.Fatalf("template scope does not compile: %v", err)
	}
	if !sc.InScope("https://app.example.com/dashboard") {
		t.Error("expected example application in scope")
	}
	if sc.InScope("https://app.example.com/logout") {
		t.Error("expected logout excluded")
	}

	cfg := config.NewConfig()
	cfg.ApplyFile(f)
	cfg.Seeds = []string{"https://app.example.com/"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("template config does not validate: %v", err)
	}
}
