// Package commands implements CLI command handlers for gstats.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/deeprave/gstats/internal/filestate"
	"github.com/deeprave/gstats/internal/report"
	"github.com/deeprave/gstats/internal/scan"
	"github.com/deeprave/gstats/internal/scheduler"
	"github.com/deeprave/gstats/pkg/config"
	"github.com/deeprave/gstats/pkg/observability"
	"github.com/deeprave/gstats/pkg/persist"
	"github.com/deeprave/gstats/pkg/version"
)

// shutdownTimeout bounds the consumer idle handshake and telemetry flush
// on exit.
const shutdownTimeout = 5 * time.Second

// ScanCommand holds configuration and dependencies for the scan command.
type ScanCommand struct {
	configPath string
	path       string

	limit       int
	firstParent bool
	noHeadSeed  bool
	units       []string

	maxTasks  int
	threshold string

	exportFormat   string
	exportPath     string
	exportCompress bool

	otlpEndpoint string
	noColor      bool

	verbose *bool
	quiet   *bool
}

// NewScanCommand creates the scan command. The verbose and quiet pointers
// are bound to the root command's persistent flags.
func NewScanCommand(verbose, quiet *bool) *cobra.Command {
	sc := &ScanCommand{verbose: verbose, quiet: quiet}

	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Walk the commit history and report statistics",
		Long:  "Walk the repository's commit history newest-first and report per-file and per-contributor statistics.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  sc.run,
	}

	cmd.Flags().StringVarP(&sc.configPath, "config", "c", "", "Config file path (default: ./gstats.toml)")
	cmd.Flags().IntVar(&sc.limit, "limit", 0, "Limit number of commits to scan (0 = no limit)")
	cmd.Flags().BoolVar(&sc.firstParent, "first-parent", false, "Follow only first parent of merge commits")
	cmd.Flags().BoolVar(&sc.noHeadSeed, "no-head-seed", false, "Skip seeding file states from the HEAD tree")
	cmd.Flags().StringSliceVarP(&sc.units, "units", "u", nil, "Scan units to run (file-history, contributors)")
	cmd.Flags().IntVar(&sc.maxTasks, "max-tasks", 0, "Max concurrent scan tasks (0 = config default)")
	cmd.Flags().StringVar(&sc.threshold, "pressure-threshold", "", "Scheduler pressure threshold: normal, moderate, high, critical")
	cmd.Flags().StringVar(&sc.exportFormat, "export", "", "Export snapshot format: none, json, gob")
	cmd.Flags().StringVar(&sc.exportPath, "export-path", "", "Export snapshot path without extension")
	cmd.Flags().BoolVar(&sc.exportCompress, "export-compress", false, "Compress the exported snapshot with LZ4")
	cmd.Flags().StringVar(&sc.otlpEndpoint, "otlp-endpoint", "", "OTLP gRPC collector endpoint (empty = telemetry off)")
	cmd.Flags().BoolVar(&sc.noColor, "no-color", false, "Disable colored output")

	return cmd
}

// run executes the scan command.
func (sc *ScanCommand) run(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		sc.path = args[0]
	}

	if sc.path == "" {
		sc.path = "."
	}

	cfg, err := config.LoadConfig(sc.configPath)
	if err != nil {
		return err
	}

	sc.applyFlags(cmd, cfg)

	providers, err := observability.Init(sc.observabilityConfig(cfg))
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if shutdownErr := providers.Shutdown(shutdownCtx); shutdownErr != nil {
			providers.Logger.Warn("telemetry shutdown failed", "error", shutdownErr)
		}
	}()

	sched, err := buildScheduler(cfg, providers.Logger)
	if err != nil {
		return err
	}

	_, err = observability.NewTaskMetrics(providers.Meter, func() observability.TaskSnapshot {
		stats := sched.SnapshotStats()

		return observability.TaskSnapshot{
			Active:    int64(stats.Active),
			Pending:   int64(stats.Pending),
			Completed: int64(stats.Completed),
			Cancelled: int64(stats.Cancelled),
			Failed:    int64(stats.Failed),
		}
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return sc.scan(ctx, cfg, sched, providers)
}

// scan wires units into the orchestrator, consumes its output, and renders
// the final report.
func (sc *ScanCommand) scan(
	ctx context.Context,
	cfg *config.Config,
	sched *scheduler.Scheduler,
	providers observability.Providers,
) error {
	history, contributors := buildUnits(cfg, sc.path)

	orch := scan.NewOrchestrator(sc.path, sched,
		scan.WithLogger(providers.Logger),
		scan.WithTracer(providers.Tracer),
	)

	defer func() {
		_ = orch.Close()
	}()

	for _, unit := range activeUnits(history, contributors) {
		orch.RegisterUnit(unit)
	}

	go sc.reportEvents(orch.Events(), providers.Logger)

	start := time.Now()

	messages, err := orch.Scan(ctx)
	if err != nil {
		return err
	}

	commitsByUnit := make(map[string]int)

	for msg := range messages {
		commitsByUnit[msg.Unit]++
	}

	if shutdownErr := orch.GracefulShutdown(shutdownTimeout); shutdownErr != nil {
		providers.Logger.Warn("graceful shutdown incomplete", "error", shutdownErr)
	}

	commits := commitsByUnit[scan.HistoryUnitName]
	if commits == 0 {
		commits = commitsByUnit[scan.ContributorUnitName]
	}

	var recon *filestate.Reconstructor
	if history != nil {
		recon = history.Reconstructor()
	}

	sc.render(orch.Warnings(), commits, time.Since(start), contributors, recon)

	return sc.export(cfg, commits, orch.Warnings(), contributors, recon, providers.Logger)
}

// render prints the result tables unless quiet mode is on.
func (sc *ScanCommand) render(
	warnings []string,
	commits int,
	elapsed time.Duration,
	contributors *scan.ContributorUnit,
	recon *filestate.Reconstructor,
) {
	if sc.quiet != nil && *sc.quiet {
		return
	}

	r := report.NewRenderer(os.Stdout, sc.noColor)

	if contributors != nil {
		r.RenderContributors(contributors.Stats())
	}

	if recon != nil {
		r.RenderLifecycle(recon.AnalyzeLifecycle())
		r.RenderLanguages(report.LanguageRollup(recon.AllFileStates()))
	}

	r.RenderSummary(commits, warnings, elapsed)
}

// export writes the snapshot file when an export format is configured.
func (sc *ScanCommand) export(
	cfg *config.Config,
	commits int,
	warnings []string,
	contributors *scan.ContributorUnit,
	recon *filestate.Reconstructor,
	logger *slog.Logger,
) error {
	if strings.EqualFold(cfg.Export.Format, "none") {
		return nil
	}

	var stats []scan.ContributorStats
	if contributors != nil {
		stats = contributors.Stats()
	}

	codec, err := buildCodec(cfg.Export)
	if err != nil {
		return err
	}

	dir := filepath.Dir(cfg.Export.Path)
	base := filepath.Base(cfg.Export.Path)

	if dir != "." {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			return fmt.Errorf("create export directory: %w", mkErr)
		}
	}

	persister := persist.NewPersister[report.Snapshot](base, codec)

	err = persister.Save(dir, func() *report.Snapshot {
		return report.BuildSnapshot(sc.path, commits, warnings, stats, recon)
	})
	if err != nil {
		return err
	}

	logger.Info("snapshot exported", "path", filepath.Join(dir, base+codec.Extension()))

	return nil
}

// reportEvents logs lifecycle events from the orchestrator.
func (sc *ScanCommand) reportEvents(events <-chan scan.Event, logger *slog.Logger) {
	verbose := sc.verbose != nil && *sc.verbose

	for event := range events {
		switch event.Kind {
		case scan.EventStarted:
			logger.Info("scan started")
		case scan.EventProgress:
			if verbose {
				logger.Info("scan progress",
					"elapsed", event.Elapsed.Round(time.Millisecond),
					"estimate", fmt.Sprintf("%.0f%%", event.Estimate*100),
					"data_ready", event.DataReady)
			}
		case scan.EventCompleted:
			logger.Info("scan completed",
				"duration", event.Duration.Round(time.Millisecond),
				"warnings", len(event.Warnings))
		}
	}
}

// applyFlags overlays explicitly set flags onto the loaded config.
func (sc *ScanCommand) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("limit") {
		cfg.Scan.MaxCommits = sc.limit
	}

	if flags.Changed("first-parent") {
		cfg.Scan.FirstParent = sc.firstParent
	}

	if flags.Changed("no-head-seed") {
		cfg.Scan.SeedFromHead = !sc.noHeadSeed
	}

	if flags.Changed("units") {
		cfg.Scan.Units = sc.units
	}

	if flags.Changed("max-tasks") {
		cfg.Scheduler.MaxTotalTasks = sc.maxTasks
	}

	if flags.Changed("pressure-threshold") {
		cfg.Scheduler.PressureThreshold = sc.threshold
	}

	if flags.Changed("export") {
		cfg.Export.Format = sc.exportFormat
	}

	if flags.Changed("export-path") {
		cfg.Export.Path = sc.exportPath
	}

	if flags.Changed("export-compress") {
		cfg.Export.Compress = sc.exportCompress
	}

	if flags.Changed("otlp-endpoint") {
		cfg.Telemetry.Enabled = sc.otlpEndpoint != ""
		cfg.Telemetry.Endpoint = sc.otlpEndpoint
	}
}

// observabilityConfig maps CLI and file config onto the observability layer.
func (sc *ScanCommand) observabilityConfig(cfg *config.Config) observability.Config {
	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.LogJSON = strings.EqualFold(cfg.Logging.Format, "json")

	if cfg.Telemetry.Enabled {
		obsCfg.OTLPEndpoint = cfg.Telemetry.Endpoint
		obsCfg.OTLPInsecure = true

		if cfg.Telemetry.ServiceName != "" {
			obsCfg.ServiceName = cfg.Telemetry.ServiceName
		}
	}

	obsCfg.LogLevel = logLevel(cfg.Logging.Level)

	if sc.verbose != nil && *sc.verbose {
		obsCfg.LogLevel = slog.LevelDebug
	}

	if sc.quiet != nil && *sc.quiet {
		obsCfg.LogLevel = slog.LevelError
	}

	return obsCfg
}

// logLevel maps a config level name to an slog level.
func logLevel(name string) slog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildScheduler maps scheduler config onto resource constraints.
func buildScheduler(cfg *config.Config, logger *slog.Logger) (*scheduler.Scheduler, error) {
	threshold, err := scheduler.ParsePressureLevel(cfg.Scheduler.PressureThreshold)
	if err != nil {
		return nil, err
	}

	backoff, err := time.ParseDuration(cfg.Scheduler.Backoff)
	if err != nil {
		return nil, fmt.Errorf("parse scheduler backoff: %w", err)
	}

	return scheduler.New(scheduler.ResourceConstraints{
		MaxTotalTasks:           cfg.Scheduler.MaxTotalTasks,
		MemoryPressureThreshold: threshold,
		BackoffDuration:         backoff,
	}, logger), nil
}

// buildUnits constructs the configured scan units. Either may be nil.
func buildUnits(cfg *config.Config, path string) (*scan.HistoryUnit, *scan.ContributorUnit) {
	var (
		history      *scan.HistoryUnit
		contributors *scan.ContributorUnit
	)

	for _, name := range cfg.Scan.Units {
		switch strings.ToLower(name) {
		case scan.HistoryUnitName:
			history = scan.NewHistoryUnit(scan.HistoryConfig{
				RepoPath:     path,
				MaxCommits:   cfg.Scan.MaxCommits,
				FirstParent:  cfg.Scan.FirstParent,
				SeedFromHead: cfg.Scan.SeedFromHead,
			})
		case scan.ContributorUnitName:
			contributors = scan.NewContributorUnit(scan.ContributorConfig{
				RepoPath:    path,
				MaxCommits:  cfg.Scan.MaxCommits,
				FirstParent: cfg.Scan.FirstParent,
			})
		}
	}

	return history, contributors
}

// activeUnits collects the non-nil units in registration order.
func activeUnits(history *scan.HistoryUnit, contributors *scan.ContributorUnit) []scan.Unit {
	var units []scan.Unit

	if history != nil {
		units = append(units, history)
	}

	if contributors != nil {
		units = append(units, contributors)
	}

	return units
}

// buildCodec maps export config onto a persist codec.
func buildCodec(cfg config.ExportConfig) (persist.Codec, error) {
	var codec persist.Codec

	switch strings.ToLower(cfg.Format) {
	case "json":
		codec = persist.NewJSONCodec()
	case "gob":
		codec = persist.NewGobCodec()
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidExport, cfg.Format)
	}

	if cfg.Compress {
		codec = persist.NewLZ4Codec(codec)
	}

	return codec, nil
}
