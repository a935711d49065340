package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"obd-diagnostics/internal/api"
	"obd-diagnostics/internal/config"
	"obd-diagnostics/internal/db"
	"obd-diagnostics/internal/diagnostics"
	"obd-diagnostics/internal/export"
	"obd-diagnostics/internal/logging"
	"obd-diagnostics/internal/models"
	"obd-diagnostics/internal/parser"
	"obd-diagnostics/internal/refranges"
	"obd-diagnostics/internal/watch"
)

var (
	configPath string
	rangesPath string
	dbPath     string
	logLevel   string
	tankL      float64
	model      string
	fuel       string
	format     string
	sheet      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "obd-diag",
		Short: "OBD trip diagnostics - sensor statistics and health verdicts",
		Long: `A CLI tool for analyzing OBD trip exports (CSV/XLSX/JSON).
Resolves sensor columns, computes robust statistics and derived metrics
(fuel consumption, cylinder balance, closed-loop share) and evaluates them
against reference ranges per vehicle model and fuel type.`,
		SilenceUsage: true,
	}

	// Global flags
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to YAML engine configuration")
	pf.StringVar(&rangesPath, "ranges", "", "Path to YAML/JSON reference-range table")
	pf.StringVar(&dbPath, "db", "", "Path to SQLite reference-range database (overrides --ranges)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.Float64Var(&tankL, "tank", 0, "Tank capacity in litres (overrides config and range profile)")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(rangesCmd())
	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(registryCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func vehicleFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&model, "model", "m", "", "Vehicle model")
	cmd.Flags().StringVarP(&fuel, "fuel", "F", "", "Fuel type")
	cmd.MarkFlagRequired("model")
	cmd.MarkFlagRequired("fuel")
}

func parseFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&format, "format", "f", "", "Input format (csv, xlsx, json); detected when empty")
	cmd.Flags().StringVar(&sheet, "sheet", "", "XLSX sheet name (first sheet when empty)")
}

// loadConfig reads the config file and applies flag overrides
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

type app struct {
	cfg    config.Config
	logger *zap.Logger
	engine *diagnostics.Engine
	ranges api.RangeSource
	close  func()
}

// setup builds config, logger, engine and range source shared by commands
func setup(jsonLogs bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	logger, err := logging.New(cfg.Log.Level, jsonLogs || cfg.Log.JSON)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		engine: diagnostics.NewEngine(cfg, diagnostics.WithLogger(logger), diagnostics.WithTankCapacity(tankL)),
		close:  func() { logger.Sync() },
	}

	switch {
	case dbPath != "":
		database, err := db.New(dbPath)
		if err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		a.ranges = database
		a.close = func() {
			database.Close()
			logger.Sync()
		}
	case rangesPath != "":
		table, err := refranges.LoadFile(rangesPath)
		if err != nil {
			return nil, fmt.Errorf("ranges error: %w", err)
		}
		a.ranges = api.TableSource{Table: table}
	default:
		logger.Warn("no reference ranges configured; range checks will report no_reference")
		a.ranges = api.TableSource{Table: refranges.New()}
	}
	return a, nil
}

// analyzeFile loads one export and runs the engine on it
func (a *app) analyzeFile(path string, v models.Vehicle) (*models.Dataset, *models.DiagnosticReport, error) {
	p := parser.NewParser(format, parser.WithSheet(sheet), parser.WithLogger(a.logger))
	ds, err := p.ParseFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	table, err := a.ranges.RangeTable(v)
	if err != nil {
		return nil, nil, fmt.Errorf("ranges: %w", err)
	}
	return ds, a.engine.Analyze(ds, v, table), nil
}

// analyzeCmd prints the diagnostic report of one trip
func analyzeCmd() *cobra.Command {
	var asJSON bool
	var output string

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Analyze a trip export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.close()

			start := time.Now()
			_, report, err := a.analyzeFile(args[0], models.Vehicle{Model: model, Fuel: fuel})
			if err != nil {
				return err
			}

			if output != "" {
				if err := export.WriteReportFile(output, report); err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "Report written to %s\n", output)
			}
			if asJSON {
				return export.WriteJSON(os.Stdout, report)
			}
			renderReport(os.Stdout, report, time.Since(start))
			return nil
		},
	}

	vehicleFlags(cmd)
	parseFlags(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also write the JSON report to this file")
	return cmd
}

// exportCmd writes the sanitized trip table and the report to disk
func exportCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export sanitized series as Parquet and the report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.close()

			ds, report, err := a.analyzeFile(args[0], models.Vehicle{Model: model, Fuel: fuel})
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = filepath.Dir(args[0])
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			base := filepath.Join(outDir, strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0])))

			series := a.engine.SanitizeAll(ds)
			seriesData, err := export.MarshalSeriesParquet(series, ds.Len())
			if err != nil {
				return fmt.Errorf("encode series: %w", err)
			}
			if err := export.WriteParquetFile(base+".series.parquet", seriesData); err != nil {
				return err
			}

			entryData, err := export.MarshalEntriesParquet(report)
			if err != nil {
				return fmt.Errorf("encode entries: %w", err)
			}
			if err := export.WriteParquetFile(base+".entries.parquet", entryData); err != nil {
				return err
			}

			if err := export.WriteReportFile(base+".report.json", report); err != nil {
				return err
			}

			fmt.Printf("✓ %s.series.parquet  (%d series, %s rows, %s)\n",
				base, len(series), humanize.Comma(int64(ds.Len())), humanize.Bytes(uint64(len(seriesData))))
			fmt.Printf("✓ %s.entries.parquet (%d entries, %s)\n",
				base, len(report.Entries), humanize.Bytes(uint64(len(entryData))))
			fmt.Printf("✓ %s.report.json     (status: %s)\n", base, report.Status)
			return nil
		},
	}

	vehicleFlags(cmd)
	parseFlags(cmd)
	cmd.Flags().StringVarP(&outDir, "out-dir", "o", "", "Output directory (defaults to the input's directory)")
	return cmd
}

// rangesCmd manages the SQLite reference-range store
func rangesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ranges",
		Short: "Reference-range database commands",
	}

	openDB := func() (*db.Database, error) {
		if dbPath == "" {
			return nil, fmt.Errorf("--db is required")
		}
		database, err := db.New(dbPath)
		if err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		return database, nil
	}

	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a YAML/JSON range table into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := refranges.LoadFile(args[0])
			if err != nil {
				return err
			}
			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			start := time.Now()
			count, err := database.ImportTable(table)
			if err != nil {
				return fmt.Errorf("import error: %w", err)
			}
			fmt.Printf("✓ Imported %s references for %d profiles in %v\n",
				humanize.Comma(count), len(table.Vehicles()), time.Since(start))
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored vehicle profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			profiles, err := database.ListProfiles()
			if err != nil {
				return fmt.Errorf("error listing profiles: %w", err)
			}
			if len(profiles) == 0 {
				fmt.Println("No profiles found. Use 'obd-diag ranges import' to load a range table.")
				return nil
			}

			fmt.Printf("%-20s %-12s %-10s %s\n", "Model", "Fuel", "Params", "Updated")
			fmt.Println(strings.Repeat("-", 60))
			for _, p := range profiles {
				fmt.Printf("%-20s %-12s %-10d %s\n", p.Model, p.Fuel, p.Parameters, humanize.Time(p.UpdatedAt))
			}

			stats, err := database.GetStats()
			if err == nil {
				fmt.Printf("\n%v profiles, %v references (%v scalar thresholds)\n",
					stats["profiles"], stats["reference_ranges"], stats["scalar_thresholds"])
			}
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one vehicle profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			n, err := database.DeleteProfile(models.Vehicle{Model: model, Fuel: fuel})
			if err != nil {
				return err
			}
			fmt.Printf("✓ Deleted %s/%s (%d references)\n", model, fuel, n)
			return nil
		},
	}
	vehicleFlags(deleteCmd)

	cmd.AddCommand(importCmd, listCmd, deleteCmd)
	return cmd
}

// serverCmd starts the REST API server
func serverCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(true)
			if err != nil {
				return err
			}
			defer a.close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			server := api.NewServer(a.engine, a.ranges, a.logger, a.cfg.Server.MaxUploadMB)
			srv := &http.Server{
				Addr:              addr,
				Handler:           server.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			a.logger.Info("listening",
				zap.String("addr", addr),
				zap.Strings("endpoints", []string{
					"GET  /health",
					"GET  /api/v1/registry",
					"GET  /api/v1/ranges",
					"POST /api/v1/analyze?model=&fuel=",
				}))

			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (defaults to config server.addr)")
	return cmd
}

// watchCmd analyzes each export dropped into a folder
func watchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Analyze new trip exports in a folder, writing <name>.report.json",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(false)
			if err != nil {
				return err
			}
			defer a.close()

			m, err := watch.NewMonitor(args[0], debounce, a.logger)
			if err != nil {
				return fmt.Errorf("watch %s: %w", args[0], err)
			}
			defer m.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			v := models.Vehicle{Model: model, Fuel: fuel}
			a.logger.Info("watching", zap.String("dir", args[0]))
			return m.Watch(ctx, func(path string) error {
				_, report, err := a.analyzeFile(path, v)
				if err != nil {
					return err
				}
				out := watch.ReportPath(path)
				if err := export.WriteReportFile(out, report); err != nil {
					return err
				}
				a.logger.Info("report written",
					zap.String("report", out),
					zap.String("status", string(report.Status)),
					zap.Int("alerts", report.AlertCount),
					zap.Int("errors", report.ErrorCount))
				return nil
			})
		},
	}

	vehicleFlags(cmd)
	parseFlags(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before a changed file is analyzed")
	return cmd
}

// registryCmd lists the logical parameters the engine reports on
func registryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "registry",
		Short: "List the monitored sensor parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := diagnostics.DefaultRegistry()
			fmt.Printf("%-16s %-12s %-12s %-8s %s\n", "Name", "Group", "Kind", "Unit", "Aliases")
			fmt.Println(strings.Repeat("-", 72))
			for _, p := range reg.Parameters() {
				fmt.Printf("%-16s %-12s %-12s %-8s %s\n", p.Name, p.Group, p.Kind, p.Unit, strings.Join(p.Candidates(), ", "))
			}
			fmt.Printf("\n%d parameters\n", reg.Len())
			return nil
		},
	}
}
