package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"turnstile-analytics/internal/analytics/application"
	analyticscsv "turnstile-analytics/internal/analytics/infrastructure/csvfile"
	analyticsrepo "turnstile-analytics/internal/analytics/infrastructure/postgres"
	analyticsinterfaces "turnstile-analytics/internal/analytics/interfaces"
	"turnstile-analytics/internal/config"
	masterdata "turnstile-analytics/internal/masterdata/domain"
	masterdatacsv "turnstile-analytics/internal/masterdata/infrastructure/csvfile"
	masterdatarepo "turnstile-analytics/internal/masterdata/infrastructure/postgres"
	"turnstile-analytics/internal/observability/metrics"
	telemetrycsv "turnstile-analytics/internal/telemetry/infrastructure/csvfile"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}
	if cfg.ShowVersion {
		fmt.Printf("version: %s, commit: %s, date: %s\n", version, commit, date)
		return nil
	}

	log := newLogger(cfg.Verbose)
	metrics.Init(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts, err := cfg.Options()
	if err != nil {
		return err
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("db open error: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("db ping error: %w", err)
		}
	}

	audits, err := telemetrycsv.NewAuditReader(log).ReadAudits(ctx, cfg.Audits)
	if err != nil {
		return err
	}
	refs, err := loadReferences(ctx, cfg, db, log)
	if err != nil {
		return err
	}

	pipeline, err := application.NewFeaturePipeline(opts, log)
	if err != nil {
		return err
	}
	var serviceOpts []application.RunServiceOption
	if db != nil {
		serviceOpts = append(serviceOpts,
			application.WithFeatureSink(analyticsrepo.NewFeatureRepository(db)),
			application.WithRunLedger(analyticsrepo.NewRunRepository(db, "")),
		)
	}
	service, err := application.NewRunService(pipeline, log, serviceOpts...)
	if err != nil {
		return err
	}

	result, runID, err := service.Execute(ctx, audits, refs...)
	if err == nil {
		err = writeOutputs(ctx, cfg, result, runID, log)
	}
	if cfg.MetricsTextfile != "" {
		if merr := metrics.WriteTextfile(cfg.MetricsTextfile); merr != nil {
			err = errors.Join(err, merr)
		}
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	log.Info("run completed", "run_id", runID, "rows", result.Table.Len(), "duration", result.Duration())
	return nil
}

// loadReferences returns the stations table before the coordinates table so
// station attributes take precedence when both supply a field.
func loadReferences(ctx context.Context, cfg config.Config, db *sql.DB, log *slog.Logger) ([]*masterdata.ReferenceTable, error) {
	reader := masterdatacsv.NewReferenceReader(log)
	var repo *masterdatarepo.ReferenceRepository
	if db != nil {
		repo = masterdatarepo.NewReferenceRepository(db)
	}

	sources := []struct {
		role masterdata.Role
		path string
		read func(context.Context, string) (*masterdata.ReferenceTable, error)
	}{
		{masterdata.RoleStations, cfg.Stations, reader.ReadStations},
		{masterdata.RoleCoordinates, cfg.Coordinates, reader.ReadCoordinates},
	}

	var refs []*masterdata.ReferenceTable
	for _, src := range sources {
		switch {
		case src.path != "":
			table, err := src.read(ctx, src.path)
			if err != nil {
				return nil, err
			}
			if cfg.SaveReferences && repo != nil {
				if err := repo.Save(ctx, table); err != nil {
					return nil, fmt.Errorf("save %s references: %w", src.role, err)
				}
				log.Info("references saved", "role", src.role, "rows", table.Len())
			}
			refs = append(refs, table)
		case cfg.LoadReferences && repo != nil:
			table, err := repo.Load(ctx, src.role)
			if err != nil {
				return nil, fmt.Errorf("load %s references: %w", src.role, err)
			}
			if table.Len() == 0 {
				log.Warn("no stored references", "role", src.role)
				continue
			}
			refs = append(refs, table)
		}
	}
	return refs, nil
}

func writeOutputs(ctx context.Context, cfg config.Config, result *application.Result, runID string, log *slog.Logger) error {
	started := time.Now()
	err := analyticscsv.WriteFile(ctx, cfg.Out, result.Table)
	metrics.ObserveExport("csv", metrics.Result(err), time.Since(started))
	if err != nil {
		return err
	}
	log.Info("enriched table written", "path", cfg.Out, "rows", result.Table.Len())

	if cfg.Report == "" && cfg.ReportPDF == "" {
		return nil
	}
	report, err := analyticsinterfaces.BuildReport(result.Table, runID, result.FinishedAt, cfg.ReportTopN, cfg.ReportWindow)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	exports := []struct {
		format string
		path   string
		build  func(*analyticsinterfaces.Report) ([]byte, error)
	}{
		{"xlsx", cfg.Report, analyticsinterfaces.BuildReportXLSX},
		{"pdf", cfg.ReportPDF, analyticsinterfaces.BuildReportPDF},
	}
	for _, exp := range exports {
		if exp.path == "" {
			continue
		}
		started := time.Now()
		data, err := exp.build(report)
		if err == nil {
			err = os.WriteFile(exp.path, data, 0o644)
		}
		metrics.ObserveExport(exp.format, metrics.Result(err), time.Since(started))
		if err != nil {
			return fmt.Errorf("write %s report: %w", exp.format, err)
		}
		log.Info("report written", "format", exp.format, "path", exp.path)
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(formatRFC3339Millis(a.Value.Time()))
			}
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	base := t.Format("2006-01-02T15:04:05")
	ms := t.Nanosecond() / 1_000_000
	return fmt.Sprintf("%s.%03dZ", base, ms)
}
