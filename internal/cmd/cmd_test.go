package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/hotswap/internal/build"
	"github.com/Iron-Ham/hotswap/internal/config"
	"github.com/Iron-Ham/hotswap/internal/errors"
	"github.com/Iron-Ham/hotswap/internal/logging"
	"github.com/Iron-Ham/hotswap/internal/testutil"
	"github.com/Iron-Ham/hotswap/internal/watcher"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// isolateConfig points the config directory at a fresh temp dir.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	return filepath.Join(dir, "hotswap")
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "hotswap" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "hotswap")
	}

	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"run", "fingerprint", "config"} {
		if !slices.Contains(names, want) {
			t.Errorf("expected subcommand %q not found in %v", want, names)
		}
	}
}

func TestRunCommand_RequiresLibraryPath(t *testing.T) {
	isolateConfig(t)

	_, err := executeCommand(rootCmd, "run")
	if err == nil {
		t.Fatal("run without a library path should fail")
	}
	if !strings.Contains(err.Error(), "library.path") {
		t.Errorf("error = %v, want it to name library.path", err)
	}
}

func TestFingerprintCommand(t *testing.T) {
	isolateConfig(t)
	dir := testutil.SetupTree(t, map[string]string{
		"main.go":      "package main\n",
		"pkg/util.go":  "package pkg\n",
		".git/HEAD":    "ref: refs/heads/main\n",
		"notes.txt~":   "backup",
		"pkg/data.bin": "0123456789",
	})

	output, err := executeCommand(rootCmd, "fingerprint", dir)
	if err != nil {
		t.Fatalf("fingerprint error = %v", err)
	}

	want, err := watcher.Fingerprint(afero.NewOsFs(), dir, watcher.Options{})
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if got := strings.TrimSpace(output); got != fmt.Sprint(want) {
		t.Errorf("fingerprint output = %q, want %d", got, want)
	}
}

func TestFingerprintCommand_MissingDir(t *testing.T) {
	isolateConfig(t)

	if _, err := executeCommand(rootCmd, "fingerprint", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("fingerprint of a missing directory should fail")
	}
}

func TestConfigInit(t *testing.T) {
	configDir := isolateConfig(t)

	output, err := executeCommand(rootCmd, "config", "init")
	if err != nil {
		t.Fatalf("config init error = %v", err)
	}
	configFile := filepath.Join(configDir, "config.yaml")
	if !strings.Contains(output, configFile) {
		t.Errorf("output = %q, want it to mention %s", output, configFile)
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config file is not valid YAML: %v", err)
	}
	defaults := config.Default()
	if cfg.Watch.IntervalMs != defaults.Watch.IntervalMs {
		t.Errorf("watch.interval_ms = %d, want %d", cfg.Watch.IntervalMs, defaults.Watch.IntervalMs)
	}
	if !slices.Equal(cfg.Build.Command, defaults.Build.Command) {
		t.Errorf("build.command = %v, want %v", cfg.Build.Command, defaults.Build.Command)
	}
	if cfg.Metrics.Addr != defaults.Metrics.Addr {
		t.Errorf("metrics.addr = %q, want %q", cfg.Metrics.Addr, defaults.Metrics.Addr)
	}

	if _, err := executeCommand(rootCmd, "config", "init"); err == nil {
		t.Error("second config init should refuse to overwrite")
	}
}

func TestConfigShowAndPath(t *testing.T) {
	configDir := isolateConfig(t)

	output, err := executeCommand(rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	for _, want := range []string{"# Config file:", "interval_ms:", "size_threshold_bytes:", "remove_retries:"} {
		if !strings.Contains(output, want) {
			t.Errorf("config show output missing %q:\n%s", want, output)
		}
	}

	output, err = executeCommand(rootCmd, "config", "path")
	if err != nil {
		t.Fatalf("config path error = %v", err)
	}
	if !strings.Contains(output, filepath.Join(configDir, "config.yaml")) {
		t.Errorf("config path output = %q, want it to list %s", output, configDir)
	}
}

func TestArtifactIgnore(t *testing.T) {
	root := filepath.FromSlash("/work/app")

	tests := []struct {
		name     string
		artifact string
		excluded []string
		kept     []string
	}{
		{
			name:     "artifact under root",
			artifact: filepath.FromSlash("/work/app/out/app.so"),
			excluded: []string{"out/app.so", "out/app.so.0", "out/app.so.12"},
			kept:     []string{"out/main.go", "app.so"},
		},
		{
			name:     "meta characters",
			artifact: filepath.FromSlash("/work/app/app[1].so"),
			excluded: []string{"app[1].so", "app[1].so.3"},
			kept:     []string{"app1.so"},
		},
		{
			name:     "artifact outside root",
			artifact: filepath.FromSlash("/tmp/app.so"),
			kept:     []string{"app.so", "app.so.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filter, err := watcher.NewFilter(artifactIgnore(root, tt.artifact))
			if err != nil {
				t.Fatalf("NewFilter() error = %v", err)
			}
			for _, rel := range tt.excluded {
				if !filter.Excluded(rel, false) {
					t.Errorf("Excluded(%q) = false, want true", rel)
				}
			}
			for _, rel := range tt.kept {
				if filter.Excluded(rel, false) {
					t.Errorf("Excluded(%q) = true, want false", rel)
				}
			}
		})
	}

	if got := artifactIgnore(root, filepath.FromSlash("/work/other/app.so")); got != nil {
		t.Errorf("artifactIgnore for a sibling dir = %v, want nil", got)
	}
}

func TestStageIgnore(t *testing.T) {
	root := filepath.FromSlash("/work/app")

	filter, err := watcher.NewFilter(stageIgnore(root, filepath.FromSlash("/work/app/plugin")))
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	if !filter.Excluded("plugin/_hotswap", true) {
		t.Error("staging directory under the build dir should be excluded")
	}
	if filter.Excluded("plugin/main.go", false) || filter.Excluded("_hotswap", true) {
		t.Error("only the build dir's staging directory should be excluded")
	}

	if got := stageIgnore(root, root); len(got) != 1 || got[0] != build.StageDir {
		t.Errorf("stageIgnore(root, root) = %v, want [%s]", got, build.StageDir)
	}
	if got := stageIgnore(root, filepath.FromSlash("/elsewhere")); got != nil {
		t.Errorf("stageIgnore outside root = %v, want nil", got)
	}
}

func TestDiagnose(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		prefix string
		code   int
	}{
		{
			name:   "invalid config",
			err:    config.ValidationErrors{{Field: "library.path", Message: "is required"}},
			prefix: "Configuration error:",
			code:   ExitConfiguration,
		},
		{
			name:   "missing symbol",
			err:    errors.NewLibraryError("lookup", errors.ErrSymbolNotFound).WithSymbol("HotMain"),
			prefix: "Configuration error:",
			code:   ExitConfiguration,
		},
		{
			name:   "invariant",
			err:    errors.NewInvariantError("double take", errors.ErrStateCheckedOut),
			prefix: "Internal error",
			code:   ExitInvariant,
		},
		{
			name:   "plain",
			err:    errors.New("unknown flag"),
			prefix: "Error:",
			code:   ExitError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, code := Diagnose(tt.err)
			if code != tt.code {
				t.Errorf("code = %d, want %d", code, tt.code)
			}
			if !strings.HasPrefix(msg, tt.prefix) || !strings.Contains(msg, tt.err.Error()) {
				t.Errorf("message = %q, want prefix %q and the error text", msg, tt.prefix)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Enabled = false
	logger, err := newLogger(cfg)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	_ = logger.Close()

	cfg.Logging.Enabled = true
	cfg.Logging.Dir = t.TempDir()
	logger, err = newLogger(cfg)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	logger.Info("hello")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Logging.Dir, logging.LogFileName)); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}
