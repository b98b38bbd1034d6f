package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/orthofit/internal/approx"
	"github.com/sawpanic/orthofit/internal/config"
	"github.com/sawpanic/orthofit/internal/driver"
	"github.com/sawpanic/orthofit/internal/httpapi"
	olog "github.com/sawpanic/orthofit/internal/log"
	"github.com/sawpanic/orthofit/internal/metrics"
	"github.com/sawpanic/orthofit/internal/sink"
	"github.com/sawpanic/orthofit/internal/volume"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Approximate every point of the configured region",
		Long: `Walks the region in row batches, approximates every point against the
configured basis fields and writes the coefficient grid to the enabled sinks.
Flags override values from --config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return fail(err, "Failed to load config")
			}
			level, format := logSettings(cmd.Flags(), root, cfg)
			if err := olog.Setup(os.Stderr, level, format); err != nil {
				return err
			}
			if err := applyRunFlags(cmd.Flags(), cfg); err != nil {
				return err
			}
			if err := cfg.Prepare(); err != nil {
				return fail(err, "Invalid config")
			}
			runID, _ := cmd.Flags().GetString("run-id")
			if runID == "" {
				runID = uuid.NewString()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			summary, err := execute(ctx, cfg, runID)
			if err != nil {
				return fail(err, "Run failed")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d points, %d skipped, %d degenerate in %s\n",
				summary.RunID, summary.Stats.Points, summary.Stats.Skipped,
				summary.Stats.DegeneratePoints, summary.Duration.Round(time.Millisecond))
			return nil
		},
	}

	f := cmd.Flags()
	f.String("root", "", "Dataset root folder")
	f.String("bathymetry", "", "Bathymetry case")
	f.String("wave", "", "Wave case (signal file name)")
	f.String("basis", "", "Basis case (folder of basis fields)")
	f.StringSlice("basis-fields", nil, "Basis field names in order")
	f.String("zones", "", "Zones file with {\"all\": [width, height]}")
	f.Int("start-row", 0, "First row to process")
	f.Int("row-limit", 0, "Exclusive last row (0 = height / row_fraction)")
	f.Int("column-limit", 0, "Columns per row (0 = width / column_fraction)")
	f.Int("batch-size", 0, "Rows per batch")
	f.Int("workers", 0, "Concurrent row workers (0 = NumCPU)")
	f.Float64("tolerance", 0, "Relative degeneracy tolerance")
	f.String("output", "", "JSON output path")
	f.String("csv", "", "CSV output path")
	f.String("listen", "", "Monitor server address, e.g. :9090")
	f.String("run-id", "", "Run ID (default: random UUID)")
	return cmd
}

// logSettings returns the log level and format for a run: explicit flags
// win, then the config file and ORTHOFIT_LOG_* environment.
func logSettings(fs *pflag.FlagSet, root *rootOptions, cfg *config.Config) (level, format string) {
	level, format = root.logLevel, root.logFormat
	if !fs.Changed("log-level") && cfg.Log.Level != "" {
		level = cfg.Log.Level
	}
	if !fs.Changed("log-format") && cfg.Log.Format != "" {
		format = cfg.Log.Format
	}
	return level, format
}

// applyRunFlags copies explicitly set flags over cfg.
func applyRunFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "root":
			cfg.Dataset.Root, err = fs.GetString(f.Name)
		case "bathymetry":
			cfg.Dataset.Bathymetry, err = fs.GetString(f.Name)
		case "wave":
			cfg.Dataset.Wave, err = fs.GetString(f.Name)
		case "basis":
			cfg.Dataset.Basis, err = fs.GetString(f.Name)
		case "basis-fields":
			cfg.Dataset.BasisFields, err = fs.GetStringSlice(f.Name)
		case "zones":
			cfg.Area.ZonesFile, err = fs.GetString(f.Name)
		case "start-row":
			cfg.Region.StartRow, err = fs.GetInt(f.Name)
		case "row-limit":
			cfg.Region.RowLimit, err = fs.GetInt(f.Name)
		case "column-limit":
			cfg.Region.ColumnLimit, err = fs.GetInt(f.Name)
		case "batch-size":
			cfg.Region.BatchSize, err = fs.GetInt(f.Name)
		case "workers":
			cfg.Sweep.Workers, err = fs.GetInt(f.Name)
		case "tolerance":
			cfg.Engine.Tolerance, err = fs.GetFloat64(f.Name)
		case "output":
			cfg.Output.JSON.Path, err = fs.GetString(f.Name)
			cfg.Output.JSON.Enabled = true
		case "csv":
			cfg.Output.CSV.Path, err = fs.GetString(f.Name)
		case "listen":
			cfg.Metrics.Listen, err = fs.GetString(f.Name)
		}
	})
	return err
}

// execute wires the data source, engine, sinks and monitor for one run.
func execute(ctx context.Context, cfg *config.Config, runID string) (*driver.Summary, error) {
	reg := metrics.New()
	monitor := httpapi.NewMonitor()

	if cfg.Metrics.Listen != "" {
		srv := httpapi.NewServer(cfg.Metrics.Listen, reg, monitor)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("Monitor server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	opts := driver.Options{
		StartRow:  cfg.Region.StartRow,
		RowLimit:  cfg.RowLimit(),
		Height:    cfg.Area.Height,
		BatchSize: cfg.Region.BatchSize,
		Columns:   cfg.ColumnLimit(),
		Workers:   cfg.Sweep.Workers,
		RunID:     runID,
	}
	start, end := opts.Range()

	out, err := buildSinks(ctx, cfg, reg, start)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	source := &volume.CubeSource{
		SignalPath: cfg.Dataset.SignalPath(),
		BasisPaths: cfg.Dataset.BasisPaths(),
	}
	engine := approx.NewEngine(
		approx.WithTolerance(approx.Tolerance(cfg.Engine.Tolerance)),
		approx.WithReconstructionError(cfg.Engine.ReconstructionError),
	)

	d := &driver.Driver{
		Source:    source,
		Engine:    engine,
		Sink:      out,
		Metrics:   reg,
		Observers: []driver.Observer{monitor},
		Options:   opts,
	}

	log.Info().
		Str("run_id", runID).
		Str("signal", source.SignalPath).
		Int("basis_fields", len(source.BasisPaths)).
		Int("start_row", start).
		Int("row_limit", end).
		Int("columns", d.Options.Columns).
		Float64("tolerance", float64(engine.Tolerance())).
		Msg("Starting run")

	monitor.Begin(runID, end-start)
	summary, err := d.Run(ctx)
	monitor.End(err)
	return summary, err
}

// buildSinks opens every enabled sink. startRow is the first row of the run.
func buildSinks(ctx context.Context, cfg *config.Config, reg *metrics.Registry, startRow int) (*sink.Multi, error) {
	out := &sink.Multi{Metrics: reg}

	if jc := cfg.Output.JSON; jc.Enabled {
		js := &sink.JSONSink{
			Path:              cfg.JSONPath(),
			Indent:            jc.Indent,
			IncludeError:      jc.IncludeError,
			IncludeDegenerate: jc.IncludeDegenerate,
		}
		if jc.RunRows {
			js.RowOrigin = startRow
		}
		out.Sinks = append(out.Sinks, js)
	}
	if cfg.Output.CSV.Path != "" {
		out.Sinks = append(out.Sinks, &sink.CSVSink{Path: cfg.Output.CSV.Path})
	}
	if rc := cfg.Output.Redis; rc.Enabled {
		client, err := sink.DialRedis(ctx, rc.Addr, rc.Password, rc.DB)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.Sinks = append(out.Sinks, sink.NewRedisSink(client, sink.RedisOptions{
			KeyPrefix:     rc.KeyPrefix,
			TTL:           rc.TTL,
			RowsPerSecond: rc.RowsPerSecond,
			Burst:         rc.Burst,
		}))
	}
	if pc := cfg.Output.Postgres; pc.Enabled {
		db, err := sink.OpenPostgres(ctx, pc)
		if err != nil {
			out.Close()
			return nil, err
		}
		pg, err := sink.NewPostgresSink(db, pc.Table, pc.QueryTimeout)
		if err != nil {
			db.Close()
			out.Close()
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			out.Close()
			return nil, err
		}
		out.Sinks = append(out.Sinks, pg)
	}
	return out, nil
}
