package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mohammed-a-khan/ptf/packages/browser"
	"github.com/mohammed-a-khan/ptf/packages/core/config"
	"github.com/mohammed-a-khan/ptf/packages/core/registry"
	"github.com/mohammed-a-khan/ptf/packages/core/results"
	"github.com/mohammed-a-khan/ptf/packages/core/runner"
	"github.com/mohammed-a-khan/ptf/packages/export/metrics"
	"github.com/mohammed-a-khan/ptf/packages/gherkin"
	"github.com/mohammed-a-khan/ptf/packages/history"
	"github.com/mohammed-a-khan/ptf/packages/notify"
	"github.com/mohammed-a-khan/ptf/packages/orchestrator"
	"github.com/mohammed-a-khan/ptf/packages/report"
	"github.com/mohammed-a-khan/ptf/packages/steps"
)

// WatchDebounceDelay coalesces filesystem event bursts before a re-run.
const WatchDebounceDelay = 300 * time.Millisecond

var (
	runConfigPath string
	runEnv        string
	runParallel   bool
	runWorkers    int
	runBrowser    string
	runHeaded     bool
	runTags       []string
	runGrep       string
	runTimeout    time.Duration
	runRetries    int
	runReporters  []string
	runOutput     string
	runNoColor    bool
	runDryRun     bool
	runWatch      bool
	runUnits      []string
	runFeatures   string

	runNotifyOn     string
	runSlackWebhook string
	runTeamsWebhook string

	runMetricsFormat string
	runMetricsPort   int
	runMetricsFile   string

	runHistoryDB string
	runNoHistory bool
)

var runCmd = &cobra.Command{
	Use:   "run [path patterns...]",
	Short: "Run registered test suites",
	Long: `Run executes the registered test units, sequentially by default or
distributed across worker subprocesses with --parallel. Positional arguments
filter by suite path, e.g. "Login/**" or "**/checkout*".`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runMain(cmd, args))
	},
}

func runMain(cmd *cobra.Command, args []string) int {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		logrus.WithError(err).Error("loading configuration")
		return ExitConfigError
	}
	applyRunFlags(cmd, cfg)

	if err := loadFeatures(runFeatures); err != nil {
		logrus.WithError(err).Error("loading feature files")
		return ExitConfigError
	}
	// Worker subprocesses inherit the environment, so they discover the
	// same feature files the orchestrator registered.
	if runFeatures != "" {
		os.Setenv("PTF_FEATURES", runFeatures)
	}

	filter := runner.Filter{Tags: cfg.Tags, Grep: cfg.Grep, Paths: args}
	if len(runTags) > 0 {
		filter.Tags = runTags
	}
	if runGrep != "" {
		filter.Grep = runGrep
	}

	units := runUnits
	if len(units) == 0 {
		units = registry.Units()
	}
	if len(units) == 0 {
		logrus.Error("no test suites registered")
		return ExitConfigError
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runWatch {
		return watchLoop(ctx, cfg, filter, units)
	}
	return executeRun(ctx, cfg, filter, units)
}

// applyRunFlags overlays explicitly set flags onto the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if runEnv != "" {
		cfg.Environment = runEnv
	}
	if runBrowser != "" {
		cfg.Browser = runBrowser
	}
	if runHeaded {
		cfg.Headless = config.Bool(false)
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = runWorkers
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = config.Duration(runTimeout)
	}
	if cmd.Flags().Changed("retries") {
		cfg.Retries = runRetries
	}
	if len(runReporters) > 0 {
		cfg.Reporters = runReporters
	}
	if runOutput != "" {
		cfg.ResultsDir = runOutput
	}
	if runNoColor {
		cfg.NoColor = config.Bool(true)
	}
	if runNotifyOn != "" {
		cfg.Notify.On = runNotifyOn
	}
	if runSlackWebhook != "" {
		cfg.Notify.SlackWebhook = runSlackWebhook
	}
	if runTeamsWebhook != "" {
		cfg.Notify.TeamsWebhook = runTeamsWebhook
	}
	if runMetricsFormat != "" {
		cfg.Metrics.Format = runMetricsFormat
	}
	if cmd.Flags().Changed("metrics-port") {
		cfg.Metrics.Port = runMetricsPort
	}
	if runMetricsFile != "" {
		cfg.Metrics.File = runMetricsFile
	}
	if runHistoryDB != "" {
		cfg.HistoryDB = runHistoryDB
	}
}

func executeRun(ctx context.Context, cfg *config.Config, filter runner.Filter, units []string) int {
	var (
		run *results.RunResult
		err error
	)
	if runParallel {
		orch, oerr := orchestrator.New(orchestrator.Options{Config: cfg, Filter: filter})
		if oerr != nil {
			logrus.WithError(oerr).Error("starting orchestrator")
			return ExitConfigError
		}
		run, err = orch.Run(ctx, units)
	} else {
		r := runner.New(runner.Options{
			Config:  cfg,
			Backend: newBackend(cfg),
			Filter:  filter,
		})
		run, err = r.Run(ctx, units)
	}
	if err != nil {
		logrus.WithError(err).Error("run failed")
		return ExitConfigError
	}

	if werr := report.WriteAll(cfg.GetReporters(), cfg.GetResultsDir(), cfg.GetNoColor(), run); werr != nil {
		logrus.WithError(werr).Warn("writing reports")
	}

	recovered := archiveRun(cfg, run)
	notifyRun(cfg, run, recovered)
	exportMetrics(cfg, run)

	if run.Summary.Failures() > 0 || run.Incomplete {
		return ExitTestFailure
	}
	return ExitSuccess
}

// newBackend builds the browser backend for the in-process runner. Dry runs
// use the fake backend so suites execute without a browser install.
func newBackend(cfg *config.Config) browser.Backend {
	if runDryRun {
		return browser.NewFake(cfg.GetResultsDir(), 0)
	}
	return browser.NewPlaywright(browser.Options{
		Browser:     cfg.GetBrowser(),
		Headless:    cfg.GetHeadless(),
		ResultsDir:  cfg.GetResultsDir(),
		RecordVideo: cfg.GetRecordVideo(),
		RecordHAR:   cfg.GetRecordHAR(),
		RecordTrace: cfg.GetRecordTrace(),
		BaseURL:     cfg.BaseURL,
	})
}

// archiveRun records the run in the history database and reports whether it
// recovered a previously failing environment.
func archiveRun(cfg *config.Config, run *results.RunResult) bool {
	if runNoHistory {
		return false
	}
	path := cfg.HistoryDB
	if path == "" {
		path = filepath.Join(cfg.GetResultsDir(), "history.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logrus.WithError(err).Warn("creating history directory")
		return false
	}
	store, err := history.Open(path)
	if err != nil {
		logrus.WithError(err).Warn("opening history database")
		return false
	}
	defer store.Close()

	recovered, err := store.Recovered(run)
	if err != nil {
		logrus.WithError(err).Debug("checking recovery state")
	}
	if err := store.Record(run); err != nil {
		logrus.WithError(err).Warn("recording run history")
	}
	return recovered
}

func notifyRun(cfg *config.Config, run *results.RunResult, recovered bool) {
	if cfg.Notify.SlackWebhook == "" && cfg.Notify.TeamsWebhook == "" {
		return
	}
	on := notify.NotifyOn(cfg.Notify.On)
	if on == "" {
		on = notify.NotifyFailure
	}
	mgr := notify.NewManager(on)
	if cfg.Notify.SlackWebhook != "" {
		var opts []notify.SlackOption
		if cfg.Notify.SlackChannel != "" {
			opts = append(opts, notify.WithSlackChannel(cfg.Notify.SlackChannel))
		}
		mgr.AddNotifier(notify.NewSlackNotifier(cfg.Notify.SlackWebhook, opts...))
	}
	if cfg.Notify.TeamsWebhook != "" {
		mgr.AddNotifier(notify.NewTeamsNotifier(cfg.Notify.TeamsWebhook))
	}
	if err := mgr.Notify(notify.Summarize(run, recovered)); err != nil {
		logrus.WithError(err).Warn("sending notifications")
	}
}

func exportMetrics(cfg *config.Config, run *results.RunResult) {
	if cfg.Metrics.Format == "" {
		return
	}
	var exporters []metrics.Exporter
	switch cfg.Metrics.Format {
	case "json":
		path := cfg.Metrics.File
		if path == "" {
			path = filepath.Join(cfg.GetResultsDir(), "metrics.json")
		}
		exporters = append(exporters, metrics.NewJSONExporter(path))
	case "prometheus":
		var opts []metrics.PrometheusOption
		if cfg.Metrics.Port > 0 {
			opts = append(opts, metrics.WithPrometheusHTTP(cfg.Metrics.Port))
		}
		if cfg.Metrics.File != "" {
			opts = append(opts, metrics.WithPrometheusTextfile(cfg.Metrics.File))
		}
		exporters = append(exporters, metrics.NewPrometheusExporter(opts...))
	default:
		logrus.Warnf("unknown metrics format %q", cfg.Metrics.Format)
		return
	}
	if err := metrics.ExportAll(metrics.FromRun(run), exporters...); err != nil {
		logrus.WithError(err).Warn("exporting metrics")
	}
}

// watchLoop re-runs the suites whenever source inputs change. Events burst
// during saves, so a debounce timer coalesces them.
func watchLoop(ctx context.Context, cfg *config.Config, filter runner.Filter, units []string) int {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logrus.WithError(err).Error("creating file watcher")
		return ExitConfigError
	}
	defer watcher.Close()

	roots := []string{"."}
	if runFeatures != "" {
		roots = append(roots, runFeatures)
	}
	for _, root := range roots {
		if err := watchTree(watcher, root); err != nil {
			logrus.WithError(err).WithField("path", root).Warn("watching directory")
		}
	}

	code := executeRun(ctx, cfg, filter, units)
	fmt.Fprintln(os.Stderr, "\nWatching for changes... (ctrl-c to quit)")

	var debounce *time.Timer
	rerun := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return code
		case event, ok := <-watcher.Events:
			if !ok {
				return code
			}
			if !watchRelevant(event) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case rerun <- struct{}{}:
				default:
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return code
			}
			logrus.WithError(err).Warn("watch error")
		case <-rerun:
			fmt.Fprintln(os.Stderr, "\nChange detected, re-running...")
			if runFeatures != "" {
				if err := loadFeatures(runFeatures); err != nil {
					logrus.WithError(err).Error("reloading feature files")
					code = ExitConfigError
					continue
				}
			}
			code = executeRun(ctx, cfg, filter, units)
			fmt.Fprintln(os.Stderr, "\nWatching for changes... (ctrl-c to quit)")
		}
	}
}

// watchTree registers root and its subdirectories, skipping artifacts and
// hidden directories.
func watchTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		name := d.Name()
		// The results dir must never be watched: reporters write .json into
		// it, which would retrigger the run.
		if path != root && (strings.HasPrefix(name, ".") || name == "node_modules" || name == config.DefaultResultsDir || name == "results") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

func watchRelevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	switch filepath.Ext(event.Name) {
	case ".feature", ".yaml", ".yml", ".csv", ".tsv", ".json", ".xlsx":
		return true
	}
	return false
}

// loadFeatures parses every .feature file under root and registers each as a
// unit bound to the shared step registry.
func loadFeatures(root string) error {
	if root == "" {
		return nil
	}
	features, err := gherkin.Discover(root)
	if err != nil {
		return err
	}
	for _, f := range features {
		gherkin.RegisterFeature(f, steps.Default())
	}
	return nil
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", getEnvString("PTF_CONFIG", ""), "Config file path (default: search for ptf.yaml)")
	runCmd.Flags().StringVar(&runEnv, "env", getEnvString("PTF_ENV", ""), "Environment name recorded with results")
	runCmd.Flags().BoolVarP(&runParallel, "parallel", "p", getEnvBool("PTF_PARALLEL", false), "Distribute tests across worker subprocesses")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", getEnvInt("PTF_WORKERS", 0), "Worker count for parallel runs")
	runCmd.Flags().StringVar(&runBrowser, "browser", getEnvString("PTF_BROWSER", ""), "Browser engine (chromium, firefox, webkit)")
	runCmd.Flags().BoolVar(&runHeaded, "headed", getEnvBool("PTF_HEADED", false), "Run with a visible browser window")
	runCmd.Flags().StringSliceVarP(&runTags, "tags", "t", nil, "Run only tests carrying any of these tags")
	runCmd.Flags().StringVarP(&runGrep, "grep", "g", getEnvString("PTF_GREP", ""), "Run only tests whose name matches (supports * wildcards)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "Per-test timeout override")
	runCmd.Flags().IntVar(&runRetries, "retries", 0, "Retry count for failing tests")
	runCmd.Flags().StringSliceVarP(&runReporters, "reporter", "r", nil, "Reporters to run (console, json, junit, html)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", getEnvString("PTF_RESULTS_DIR", ""), "Results directory")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", getEnvBool("NO_COLOR", false), "Disable colored output")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Execute suites against a fake browser backend")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Watch for file changes and re-run")
	runCmd.Flags().StringSliceVar(&runUnits, "unit", nil, "Run only the named suite units")
	runCmd.Flags().StringVar(&runFeatures, "features", getEnvString("PTF_FEATURES", ""), "Directory of .feature files to register")

	runCmd.Flags().StringVar(&runNotifyOn, "notify-on", getEnvString("PTF_NOTIFY_ON", ""), "When to notify (always, failure, success, recovery)")
	runCmd.Flags().StringVar(&runSlackWebhook, "slack-webhook", getEnvString("PTF_SLACK_WEBHOOK", ""), "Slack webhook URL for run notifications")
	runCmd.Flags().StringVar(&runTeamsWebhook, "teams-webhook", getEnvString("PTF_TEAMS_WEBHOOK", ""), "Microsoft Teams webhook URL for run notifications")

	runCmd.Flags().StringVar(&runMetricsFormat, "metrics-format", getEnvString("PTF_METRICS_FORMAT", ""), "Metrics export format (prometheus, json)")
	runCmd.Flags().IntVar(&runMetricsPort, "metrics-port", getEnvInt("PTF_METRICS_PORT", 0), "Serve Prometheus metrics on this port after the run")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", getEnvString("PTF_METRICS_FILE", ""), "Write metrics to this file")

	runCmd.Flags().StringVar(&runHistoryDB, "history-db", getEnvString("PTF_HISTORY_DB", ""), "History database path")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Skip recording this run in the history database")
}
