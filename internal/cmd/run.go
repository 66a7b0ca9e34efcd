package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/hotswap/internal/build"
	"github.com/Iron-Ham/hotswap/internal/config"
	"github.com/Iron-Ham/hotswap/internal/console"
	"github.com/Iron-Ham/hotswap/internal/custodian"
	"github.com/Iron-Ham/hotswap/internal/errors"
	"github.com/Iron-Ham/hotswap/internal/event"
	"github.com/Iron-Ham/hotswap/internal/library"
	"github.com/Iron-Ham/hotswap/internal/logging"
	"github.com/Iron-Ham/hotswap/internal/metrics"
	"github.com/Iron-Ham/hotswap/internal/reload"
	"github.com/Iron-Ham/hotswap/internal/shutdown"
	"github.com/Iron-Ham/hotswap/internal/watcher"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [-- build command...]",
	Short: "Build the plugin, run it and reload it on every change",
	Long: `Run builds the plugin once, loads it and calls HotInit, then runs HotMain
on a worker goroutine. Whenever the watched tree changes the plugin is
rebuilt and the running state moves into the new code.

Anything after -- replaces build.command for this run. Each argument is a
template over {{.Generation}}, {{.Artifact}}, {{.Dir}} and {{.Package}}.

With build.stage on (the default) every generation is compiled from a copy
of the package at _hotswap/gen<N> under the build directory. Types carried
in the state must be declared in a package other than main.

Examples:
  hotswap run --lib ./out/app.so
  hotswap run --root ./app --lib /tmp/app.so -- make plugin PKG={{.Package}} OUT={{.Artifact}}`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()
	flags.String("root", "", "directory tree to watch (default \".\")")
	flags.String("lib", "", "artifact path the build writes (required)")
	flags.Bool("notify", false, "skip tree walks until fsnotify reports a change")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("metrics", false, "serve /metrics, /live and /ready")
	flags.String("metrics-addr", "", "metrics listen address")

	_ = viper.BindPFlag("watch.root", flags.Lookup("root"))
	_ = viper.BindPFlag("library.path", flags.Lookup("lib"))
	_ = viper.BindPFlag("watch.notify", flags.Lookup("notify"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("metrics.enabled", flags.Lookup("metrics"))
	_ = viper.BindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Build.Command = args
	}
	if errs := cfg.ValidateForRun(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	root, err := filepath.Abs(cfg.Watch.Root)
	if err != nil {
		return errors.Wrap(err, "resolve watch root")
	}
	artifact, err := filepath.Abs(cfg.Library.Path)
	if err != nil {
		return errors.Wrap(err, "resolve library path")
	}
	buildDir, err := filepath.Abs(cfg.BuildDir())
	if err != nil {
		return errors.Wrap(err, "resolve build dir")
	}

	ignore := append(cfg.Watch.Ignore, artifactIgnore(root, artifact)...)
	if cfg.Build.Stage {
		ignore = append(ignore, stageIgnore(root, buildDir)...)
	}
	detector, err := watcher.New(root, watcher.Options{
		SizeThreshold: cfg.Watch.SizeThresholdBytes,
		Ignore:        ignore,
		Workers:       cfg.Watch.HashWorkers,
		Notify:        cfg.Watch.Notify,
	}, logger)
	if err != nil {
		return err
	}
	defer detector.Close()

	buildOpts := []build.Option{
		build.WithOutput(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		build.WithLogger(logger),
	}
	if cfg.Build.Stage {
		buildOpts = append(buildOpts, build.WithStaging())
	}
	builder, err := build.NewCommandBuilder(cfg.Build.Command, buildOpts...)
	if err != nil {
		return err
	}

	store := library.NewStore(artifact, library.PluginLoader{}, library.StoreOptions{
		Logger:        logger,
		RemoveRetries: cfg.Library.RemoveRetries,
	})

	bus := event.NewBus(logger)
	console.New(cmd.OutOrStdout(), console.Options{
		ClearScreen: cfg.Console.ClearScreen,
		Color:       cfg.Console.Color,
	}).Subscribe(bus)

	ctrl, err := reload.New(reload.Config{
		Interval: cfg.Watch.Interval(),
		BuildDir: buildDir,
	}, reload.Dependencies{
		Detector: detector,
		Builder:  builder,
		Store:    store,
		Invoker:  library.NewInvoker(custodian.New()).WithLogger(logger),
		Shutdown: shutdown.New(logger),
		Bus:      bus,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		m := metrics.New(logger)
		m.Subscribe(bus)
		srv := metrics.NewServer(cfg.Metrics.Addr, m, workerReady(ctrl), logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	logger.Info("starting", "root", root, "artifact", artifact, "build", strings.Join(cfg.Build.Command, " "))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctrl.Run(ctx)
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	if cfg.Logging.Dir == "" {
		return logging.NewLogger("", cfg.Logging.Level)
	}
	return logging.NewLoggerWithRotation(cfg.Logging.Dir, cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}

// artifactIgnore keeps the artifact and its generation copies out of the
// fingerprint when they live under the watched root. Otherwise every build
// would look like a source change.
func artifactIgnore(root, artifact string) []string {
	rel, ok := relativeTo(root, artifact)
	if !ok {
		return nil
	}
	return []string{glob.QuoteMeta(rel) + "*"}
}

// stageIgnore keeps the per-generation package copies out of the fingerprint.
func stageIgnore(root, buildDir string) []string {
	rel, ok := relativeTo(root, filepath.Join(buildDir, build.StageDir))
	if !ok {
		return nil
	}
	return []string{glob.QuoteMeta(rel)}
}

// relativeTo returns p relative to root, slash separated, when p is inside root.
func relativeTo(root, p string) (string, bool) {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func workerReady(ctrl *reload.Controller) func() error {
	return func() error {
		if !ctrl.WorkerRunning() {
			return fmt.Errorf("no worker running (state %s)", ctrl.State())
		}
		return nil
	}
}
