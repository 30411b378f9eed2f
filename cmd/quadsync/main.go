package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/clariah/quadsync/internal/metrics"
	"github.com/clariah/quadsync/internal/orchestrator"
	"github.com/clariah/quadsync/internal/pathutil"
	"github.com/clariah/quadsync/internal/planner"
	"github.com/clariah/quadsync/internal/recoverylog"
	"github.com/clariah/quadsync/internal/syncerr"
	"github.com/clariah/quadsync/internal/version"
	"github.com/clariah/quadsync/internal/watch"
)

var red = color.New(color.FgHiRed, color.Bold).SprintFunc()

var rootCmd = &cobra.Command{
	Use:     "quadsync",
	Short:   "Publish RDF change files as a ResourceSync-compatible resource dump",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd)
	},
	RunE: runRoot,
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().String("source_dir", "", "Directory the upstream producer writes rdfpatch- files into (required)")
	rootCmd.Flags().String("sink_dir", "", "Directory quadsync publishes archives and metadata into (required)")
	rootCmd.Flags().String("publish_url", "", "Public URL prefix the sink directory is served under (required)")
	rootCmd.Flags().String("builder_class", "zip", "Archive writer implementation")
	rootCmd.Flags().Int("max_files_compressed", 50000, "Maximum number of files per sealed archive")
	rootCmd.Flags().String("write_separate_manifest", "y", "Write a manifest_*.xml sidecar alongside each archive (y/n)")
	rootCmd.Flags().String("move_resources", "n", "Move sealed source files into the sink instead of deleting them (y/n)")
	rootCmd.Flags().Bool("watch", false, "Re-run whenever source_dir changes, instead of exiting after one pass")
	rootCmd.Flags().String("metrics_addr", "", "If set, expose Prometheus metrics on this address (e.g. :9090) while running")
	rootCmd.Flags().String("recovery_log", "", "If set, append a diagnostic record of each run to this SQLite file")

	rootCmd.MarkFlagRequired("source_dir")
	rootCmd.MarkFlagRequired("sink_dir")
	rootCmd.MarkFlagRequired("publish_url")
}

func main() {
	stdoutHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(stdoutHandler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error(red("fatal"), "error", err)
		os.Exit(1)
	}
}

func bindFlags(cmd *cobra.Command) error {
	viper.BindPFlag("source_dir", cmd.Flags().Lookup("source_dir"))
	viper.BindPFlag("sink_dir", cmd.Flags().Lookup("sink_dir"))
	viper.BindPFlag("publish_url", cmd.Flags().Lookup("publish_url"))
	viper.BindPFlag("builder_class", cmd.Flags().Lookup("builder_class"))
	viper.BindPFlag("max_files_compressed", cmd.Flags().Lookup("max_files_compressed"))
	viper.BindPFlag("write_separate_manifest", cmd.Flags().Lookup("write_separate_manifest"))
	viper.BindPFlag("move_resources", cmd.Flags().Lookup("move_resources"))
	viper.BindPFlag("watch", cmd.Flags().Lookup("watch"))
	viper.BindPFlag("metrics_addr", cmd.Flags().Lookup("metrics_addr"))
	viper.BindPFlag("recovery_log", cmd.Flags().Lookup("recovery_log"))

	viper.SetEnvPrefix("QUADSYNC")
	viper.AutomaticEnv()
	return nil
}

func runRoot(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	sourceDir, err := pathutil.ResolvePath(viper.GetString("source_dir"))
	if err != nil {
		return syncerr.New(syncerr.ConfigInvalid, "source_dir", err)
	}
	sinkDir, err := pathutil.ResolvePath(viper.GetString("sink_dir"))
	if err != nil {
		return syncerr.New(syncerr.ConfigInvalid, "sink_dir", err)
	}
	publishURL := viper.GetString("publish_url")
	if publishURL == "" {
		return syncerr.New(syncerr.ConfigInvalid, "publish_url is required", nil)
	}
	if !strings.HasSuffix(publishURL, "/") {
		publishURL += "/"
	}

	builderClass := viper.GetString("builder_class")
	if builderClass != "zip" {
		return syncerr.New(syncerr.ConfigInvalid, "unsupported builder_class "+builderClass+" (only \"zip\" is built in)", nil)
	}

	maxBatchSize := viper.GetInt("max_files_compressed")
	if err := planner.ValidateMaxBatchSize(maxBatchSize); err != nil {
		return err
	}

	writeSeparateManifest, err := parseYesNo(viper.GetString("write_separate_manifest"))
	if err != nil {
		return syncerr.New(syncerr.ConfigInvalid, "write_separate_manifest", err)
	}
	moveResources, err := parseYesNo(viper.GetString("move_resources"))
	if err != nil {
		return syncerr.New(syncerr.ConfigInvalid, "move_resources", err)
	}

	opts := orchestrator.Options{
		MaxBatchSize:          maxBatchSize,
		WriteSeparateManifest: writeSeparateManifest,
		MoveResources:         moveResources,
	}

	var collectors *metrics.Collectors
	if addr := viper.GetString("metrics_addr"); addr != "" {
		collectors = metrics.New()
		go func() {
			if err := collectors.Serve(cmd.Context(), addr); err != nil {
				slog.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	var ledger *recoverylog.Ledger
	if path := viper.GetString("recovery_log"); path != "" {
		l, err := recoverylog.Open(path)
		if err != nil {
			slog.Warn("recovery log unavailable; continuing without it", "error", err)
		} else {
			ledger = l
			defer ledger.Close()
		}
	}

	run := func() error {
		return runOnce(sourceDir, sinkDir, publishURL, opts, collectors, ledger)
	}

	if !viper.GetBool("watch") {
		return run()
	}

	return runWatching(cmd.Context(), sourceDir, run)
}

func runOnce(sourceDir, sinkDir, publishURL string, opts orchestrator.Options, collectors *metrics.Collectors, ledger *recoverylog.Ledger) error {
	started := nowFunc()
	summary, err := orchestrator.Run(sourceDir, sinkDir, publishURL, opts, started.UTC().Format("2006-01-02T15:04:05Z"))
	finished := nowFunc()

	if collectors != nil {
		collectors.RunsTotal.Inc()
		collectors.LastRunDuration.Observe(finished.Sub(started).Seconds())
		collectors.SealedTotal.Add(float64(summary.SealedCount))
		collectors.GraphsProcessed.Set(float64(summary.GraphsProcessed))
		if err != nil {
			collectors.RunErrorsTotal.Inc()
		}
	}

	if ledger != nil {
		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		if recErr := ledger.Record(recoverylog.RunRecord{
			StartedAt: started, FinishedAt: finished,
			SealedCount: summary.SealedCount, OpenTailDelta: summary.OpenTailDelta,
			GraphsProcessed: summary.GraphsProcessed, Aborted: summary.Aborted, Error: errMsg,
		}); recErr != nil {
			slog.Warn("recovery log write failed", "error", recErr)
		}
	}

	if err != nil {
		return err
	}

	switch {
	case summary.Aborted:
		// handshake.Verify already logged the reason; nothing more to say.
	case summary.SealedCount == 0 && summary.OpenTailDelta == 0:
		slog.Info("No changes")
	default:
		total := summary.SealedCount + summary.OpenTailDelta
		slog.Info(fmt.Sprintf("Published %s resources under Resource Sync Framework in %s", humanize.Comma(int64(total)), sinkDir))
	}

	return nil
}

func runWatching(ctx context.Context, sourceDir string, run func() error) error {
	w := watch.New(sourceDir)
	if err := w.Start(ctx); err != nil {
		return syncerr.New(syncerr.IOError, "start watcher", err)
	}
	defer w.Stop()

	if err := run(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.Triggered():
			if err := run(); err != nil {
				slog.Error("run failed", "error", err)
			}
		}
	}
}

func parseYesNo(v string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "y", "yes", "true":
		return true, nil
	case "n", "no", "false", "":
		return false, nil
	default:
		return false, errors.New("expected y or n, got " + v)
	}
}

// nowFunc is a seam so tests could stub the clock; production always uses
// the real one.
var nowFunc = func() time.Time { return time.Now() }
