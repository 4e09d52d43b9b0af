package integration_test

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"turnstile-analytics/internal/analytics/application"
	"turnstile-analytics/internal/analytics/domain/features"
	analyticscsv "turnstile-analytics/internal/analytics/infrastructure/csvfile"
	analyticsrepo "turnstile-analytics/internal/analytics/infrastructure/postgres"
	masterdatacsv "turnstile-analytics/internal/masterdata/infrastructure/csvfile"
	"turnstile-analytics/internal/tabular"
	telemetry "turnstile-analytics/internal/telemetry/domain"
	telemetrycsv "turnstile-analytics/internal/telemetry/infrastructure/csvfile"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const auditsCSV = `C/A,UNIT,SCP,STATION,LINENAME,DIVISION,DATE,TIME,DESC,ENTRIES,EXITS
A002,R051,02-00-00,59 ST,NQR456W,BMT,01/05/2013,00:00:00,REGULAR,1000,500
A002,R051,02-00-00,59 ST,NQR456W,BMT,01/05/2013,04:00:00,REGULAR,1050,520
A002,R051,02-00-00,59 ST,NQR456W,BMT,01/05/2013,08:00:00,REGULAR,980,540
R999,R999,00-00-00,NOWHERE,1,IRT,01/05/2013,00:00:00,REGULAR,10,10
`

const stationsCSV = `Booth,Remote,Station,Line Name,Division
A002,R051,59 ST,NQR456W,BMT
`

const coordinatesCSV = `Remote,Booth,Station,Lat,Lon
R051,A002,59 ST,40.762796,-73.967686
`

func writeFixture(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestPipelineEndToEnd_CSV(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	audits, err := telemetrycsv.NewAuditReader(nil).ReadAudits(ctx, writeFixture(t, dir, "turnstile_130105.csv", auditsCSV))
	if err != nil {
		t.Fatalf("read audits: %v", err)
	}
	refReader := masterdatacsv.NewReferenceReader(nil)
	stations, err := refReader.ReadStations(ctx, writeFixture(t, dir, "stations.csv", stationsCSV))
	if err != nil {
		t.Fatalf("read stations: %v", err)
	}
	coords, err := refReader.ReadCoordinates(ctx, writeFixture(t, dir, "coordinates.csv", coordinatesCSV))
	if err != nil {
		t.Fatalf("read coordinates: %v", err)
	}

	opts := features.DefaultOptions()
	opts.Workers = 2
	pipeline, err := application.NewFeaturePipeline(opts, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	result, err := pipeline.Run(ctx, audits, stations, coords)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := result.Table.Quality.UnmatchedReferences; got != 2 {
		t.Fatalf("expected 2 unmatched reference rows, got %d", got)
	}
	if got := result.Table.Quality.InvalidDeltas; got != 1 {
		t.Fatalf("expected 1 invalid delta, got %d", got)
	}

	out := filepath.Join(dir, "enriched.csv")
	if err := analyticscsv.WriteFile(ctx, out, result.Table); err != nil {
		t.Fatalf("write enriched: %v", err)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("open enriched: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse enriched: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("expected header and 4 rows, got %d", len(records))
	}
	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	for _, name := range []string{"STATION", "LINENAME", "DIVISION"} {
		if _, ok := col[name]; !ok {
			t.Fatalf("input column %s dropped from header %v", name, records[0])
		}
	}
	want := []struct {
		entries, exits, busyness, station, lat, rawStation, rawLine string
	}{
		{"", "", "", "59 ST", "40.762796", "59 ST", "NQR456W"},
		{"50", "20", "70", "59 ST", "40.762796", "59 ST", "NQR456W"},
		{"", "20", "", "59 ST", "40.762796", "59 ST", "NQR456W"},
		{"", "", "", "", "", "NOWHERE", "1"},
	}
	for i, w := range want {
		row := records[i+1]
		if row[col[features.ColumnEntriesDiff]] != w.entries ||
			row[col[features.ColumnExitsDiff]] != w.exits ||
			row[col[features.ColumnBusyness]] != w.busyness ||
			row[col[features.ColumnStation]] != w.station ||
			row[col[features.ColumnLat]] != w.lat ||
			row[col["STATION"]] != w.rawStation ||
			row[col["LINENAME"]] != w.rawLine {
			t.Fatalf("row %d mismatch: %v", i, row)
		}
	}
}

func TestFeatureSinkPostgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "turnstile_features") || !tableExists(db, "pipeline_runs") {
		t.Skip("turnstile_features or pipeline_runs missing; run migrations")
	}

	ctx := context.Background()
	audits := syntheticAudits(50, 24*30)

	opts := features.DefaultOptions()
	opts.Workers = 4
	pipeline, err := application.NewFeaturePipeline(opts, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	service, err := application.NewRunService(pipeline, nil,
		application.WithFeatureSink(analyticsrepo.NewFeatureRepository(db)),
		application.WithRunLedger(analyticsrepo.NewRunRepository(db, "")),
	)
	if err != nil {
		t.Fatalf("new run service: %v", err)
	}

	started := time.Now()
	result, runID, err := service.Execute(ctx, audits)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	elapsed := time.Since(started)
	defer func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM turnstile_features WHERE run_id = $1`, runID)
		_, _ = db.ExecContext(ctx, `DELETE FROM pipeline_runs WHERE id = $1`, runID)
	}()

	var stored int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM turnstile_features WHERE run_id = $1`, runID).Scan(&stored); err != nil {
		t.Fatalf("count features: %v", err)
	}
	if stored != result.Table.Len() {
		t.Fatalf("expected %d stored rows, got %d", result.Table.Len(), stored)
	}

	var status string
	if err := db.QueryRowContext(ctx, `SELECT status FROM pipeline_runs WHERE id = $1`, runID).Scan(&status); err != nil {
		t.Fatalf("load run: %v", err)
	}
	if status != string(features.RunSucceeded) {
		t.Fatalf("expected succeeded run, got %s", status)
	}

	t.Logf("perf run rows=%d groups=%d elapsed=%s", result.Table.Len(), result.Table.Quality.Groups, elapsed)
}

func syntheticAudits(devices, audits int) *telemetry.AuditTable {
	table := &telemetry.AuditTable{
		Name: "synthetic",
		Columns: []string{
			telemetry.ColumnControlArea, telemetry.ColumnRemoteUnit, telemetry.ColumnSCP,
			telemetry.ColumnDate, telemetry.ColumnTime, telemetry.ColumnEntries, telemetry.ColumnExits,
		},
	}
	start := time.Date(2019, 9, 1, 0, 0, 0, 0, time.UTC)
	for a := 0; a < audits; a++ {
		ts := start.Add(time.Duration(a) * 4 * time.Hour)
		for d := 0; d < devices; d++ {
			table.Records = append(table.Records, telemetry.AuditRecord{
				Row: len(table.Records),
				Device: telemetry.DeviceKey{
					ControlArea:            "A002",
					RemoteUnit:             "R051",
					SubunitChannelPosition: fmt.Sprintf("02-00-%02d", d),
				},
				Date:    ts.Format("01/02/2006"),
				Time:    ts.Format("15:04:05"),
				Entries: tabular.KnownCount(int64(1000 + a*(d+1))),
				Exits:   tabular.KnownCount(int64(500 + a)),
			})
		}
	}
	return table
}

func tableExists(db *sql.DB, name string) bool {
	var exists bool
	err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, name).Scan(&exists)
	return err == nil && exists
}
