// Command run_harvest drives the harvester, the local scanner, and the
// ingestion pipeline against a distillation store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/brunobiangulo/distill"
	"github.com/brunobiangulo/distill/harvest"
	"github.com/spf13/cobra"
)

var (
	configPath string
	target     int
	source     string
	scanPath   string
	fresh      bool
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	root := &cobra.Command{
		Use:   "run_harvest",
		Short: "Drive the Harvester and Local Scanner against the distillation store",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config JSON")

	harvestCmd := &cobra.Command{
		Use:   "harvest",
		Short: "Harvest one remote source up to a target record count",
		RunE:  runHarvestCmd,
	}
	harvestCmd.Flags().IntVar(&target, "target", 1000, "stop after this many records have been fetched")
	harvestCmd.Flags().StringVar(&source, "source", "openalex", "source: openalex, crossref, or wikipedia:<lang>")
	harvestCmd.Flags().BoolVar(&fresh, "fresh", false, "ignore any persisted progress and start over")

	localCmd := &cobra.Command{
		Use:   "local",
		Short: "Scan a local directory tree into the distillation store",
		RunE:  runLocalCmd,
	}
	localCmd.Flags().StringVar(&scanPath, "path", ".", "directory to scan")
	localCmd.Flags().BoolVar(&fresh, "fresh", false, "ignore any persisted scan progress and start over")

	allCmd := &cobra.Command{
		Use:   "all",
		Short: "Harvest every remote source, then scan a local directory",
		RunE:  runAllCmd,
	}
	allCmd.Flags().IntVar(&target, "target", 1000, "per-source target record count")
	allCmd.Flags().StringVar(&scanPath, "path", ".", "directory to scan after remote harvesting")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Print a summary of every source's persisted harvest progress",
		RunE:  runStatusCmd,
	}

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume every paused or running source from its persisted progress",
		RunE:  runResumeCmd,
	}
	resumeCmd.Flags().IntVar(&target, "target", 1000, "per-source target record count")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the full extraction/distillation pipeline over a directory tree",
		RunE:  runIngestCmd,
	}
	ingestCmd.Flags().StringVar(&scanPath, "path", ".", "directory to ingest")

	root.AddCommand(harvestCmd, localCmd, allCmd, statusCmd, resumeCmd, ingestCmd)

	if err := root.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps a cobra run's terminal error to a process exit code:
// 130 for a user interrupt (SIGINT), 1 for any other failure.
func exitCodeFor(err error) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}

// loadConfig reads configPath if set, else returns built-in defaults, and
// points the default logger at both stdout and the dated harvest log
// file under <data_dir>/logs.
func loadConfig() (distill.Config, error) {
	cfg := distill.DefaultConfig()
	if configPath != "" {
		f, err := os.Open(configPath)
		if err != nil {
			return cfg, fmt.Errorf("opening config: %w", err)
		}
		defer f.Close()
		if err := distill.DecodeConfig(f, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}
	setupLogging(cfg)
	return cfg, nil
}

// setupLogging fans slog out to stdout plus logs/harvest_YYYYMMDD.log,
// single-line JSON in both. A missing logs directory is not fatal; the
// stdout handler alone is kept.
func setupLogging(cfg distill.Config) {
	out := io.Writer(os.Stdout)
	logPath := filepath.Join(cfg.ResolveLogsDir(), "harvest_"+time.Now().Format("20060102")+".log")
	if err := os.MkdirAll(cfg.ResolveLogsDir(), 0o755); err == nil {
		if f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = io.MultiWriter(os.Stdout, f)
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo})))
}

// cancelOnSignal wires SIGINT/SIGTERM to ctx cancellation: the first
// signal requests a clean stop between batches; a second signal forces
// immediate exit.
func cancelOnSignal() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Warn("signal received, stopping after the current batch (press again to force)")
		cancel()
		<-sigCh
		slog.Error("second signal received, aborting immediately")
		os.Exit(130)
	}()
	return ctx, cancel
}

func resolveAdapter(app *distill.App, name string) (harvest.Adapter, error) {
	switch {
	case name == "openalex":
		return harvest.NewOpenAlexAdapter(app.Config.Harvest.Mailto), nil
	case name == "crossref":
		return harvest.NewCrossrefAdapter(app.Config.Harvest.Mailto), nil
	case len(name) > 10 && name[:10] == "wikipedia:":
		return harvest.NewWikipediaAdapter(name[10:]), nil
	case name == "wikipedia":
		return harvest.NewWikipediaAdapter("en"), nil
	default:
		return nil, fmt.Errorf("unknown source %q (want openalex, crossref, or wikipedia:<lang>)", name)
	}
}

func runHarvestCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := cancelOnSignal()
	defer cancel()

	app, err := distill.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	adapter, err := resolveAdapter(app, source)
	if err != nil {
		return err
	}

	progress, err := app.Harvest.Harvest(ctx, adapter, target, !fresh)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	printProgress(progress)
	return nil
}

func runLocalCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := cancelOnSignal()
	defer cancel()

	app, err := distill.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	progress, err := app.Scanner.Scan(ctx, scanPath, !fresh)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	printProgress(progress)
	return nil
}

func runAllCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := cancelOnSignal()
	defer cancel()

	app, err := distill.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	for _, name := range []string{"openalex", "crossref", "wikipedia:en"} {
		adapter, err := resolveAdapter(app, name)
		if err != nil {
			return err
		}
		progress, err := app.Harvest.Harvest(ctx, adapter, target, true)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("harvest failed, continuing with remaining sources", "source", name, "error", err)
			continue
		}
		printProgress(progress)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	progress, err := app.Scanner.Scan(ctx, scanPath, true)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	printProgress(progress)
	return nil
}

func runIngestCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := cancelOnSignal()
	defer cancel()

	app, err := distill.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	docs, err := app.Ingest.IngestDir(ctx, scanPath, nil)
	if err != nil {
		return err
	}
	var distilled, failed int
	for _, d := range docs {
		if d.Status == "distilled" {
			distilled++
			continue
		}
		failed++
		slog.Warn("ingest failed", "path", d.Path, "error", d.Error)
	}
	fmt.Printf("ingested %d files: %d distilled, %d errors\n", len(docs), distilled, failed)
	return nil
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	state, err := harvest.OpenState(cfg.ResolveHarvestStatePath())
	if err != nil {
		return err
	}
	all, err := state.AllProgress(context.Background())
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("no harvest progress recorded yet")
		return nil
	}
	for _, p := range all {
		printProgress(p)
	}
	return nil
}

func runResumeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := cancelOnSignal()
	defer cancel()

	app, err := distill.NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	all, err := app.HarvestState.AllProgress(ctx)
	if err != nil {
		return err
	}
	for _, p := range all {
		if p.Status != harvest.StatusRunning && p.Status != harvest.StatusPaused {
			continue
		}
		if p.Source == "local_scan" {
			progress, err := app.Scanner.Scan(ctx, scanPath, true)
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("resume scan failed", "error", err)
				continue
			}
			printProgress(progress)
			continue
		}
		adapter, err := resolveAdapter(app, p.Source)
		if err != nil {
			slog.Warn("resume: skipping unresolvable source", "source", p.Source, "error", err)
			continue
		}
		progress, err := app.Harvest.Harvest(ctx, adapter, target, true)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("resume harvest failed", "source", p.Source, "error", err)
			continue
		}
		printProgress(progress)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func printProgress(p harvest.Progress) {
	fmt.Printf("%-20s status=%-10s fetched=%-8d inserted=%-8d target=%-8d cursor=%q\n",
		p.Source, p.Status, p.TotalFetched, p.TotalInserted, p.Target, p.Cursor)
	if speed := p.Speed(); speed > 0 {
		fmt.Printf("%-20s speed=%.1f rec/s eta=%s\n", "", speed, p.ETA().Round(time.Second))
	}
	if p.LastError != "" {
		fmt.Printf("%-20s last_error=%s\n", "", p.LastError)
	}
}
