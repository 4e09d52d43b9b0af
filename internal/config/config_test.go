package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"turnstile-analytics/internal/analytics/domain/features"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		envConfigPath, "TURNSTILE_AUDITS", "TURNSTILE_STATIONS", "TURNSTILE_COORDINATES",
		"TURNSTILE_OUT", "TURNSTILE_REPORT", "TURNSTILE_REPORT_PDF", "DATABASE_URL",
		"TURNSTILE_METRICS_TEXTFILE", "TURNSTILE_PARSE_MODE", "TURNSTILE_TIMEZONE",
		"TURNSTILE_UPPER_BOUND", "TURNSTILE_WORKERS", "TURNSTILE_MAX_AUDIT_GAP", "TURNSTILE_VERBOSE",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFlags(t *testing.T) {
	clearEnv(t)
	cfg, err := Load([]string{
		"--env-file", "",
		"--audits", "audits.csv", "--out", "enriched.csv",
		"--stations", "stations.csv", "--workers", "4", "--parse-mode", "lenient",
		"--time-parts=false",
	})
	require.NoError(t, err)
	require.Equal(t, "audits.csv", cfg.Audits)
	require.Equal(t, "stations.csv", cfg.Stations)
	require.Equal(t, 4, cfg.Pipeline.Workers)
	require.Equal(t, "lenient", cfg.Pipeline.ParseMode)
	require.False(t, cfg.Pipeline.ExtractTimeParts)
	require.True(t, cfg.Pipeline.ExtractDateParts)
	require.Equal(t, features.DefaultUpperBound, cfg.Pipeline.UpperBound)
	require.Equal(t, defaultTopN, cfg.ReportTopN)
	require.Equal(t, defaultWindow, cfg.ReportWindow)
}

func TestLoadPrecedence(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "turnstile.yaml", `
audits: file-audits.csv
out: file-out.csv
pipeline:
  upper_bound: 5000
  workers: 2
  max_audit_gap: 12h
  timezone: America/New_York
`)
	t.Setenv(envConfigPath, path)
	t.Setenv("TURNSTILE_WORKERS", "3")

	cfg, err := Load([]string{"--env-file", "", "--out", "flag-out.csv"})
	require.NoError(t, err)
	require.Equal(t, "file-audits.csv", cfg.Audits)
	require.Equal(t, "flag-out.csv", cfg.Out)
	require.Equal(t, int64(5000), cfg.Pipeline.UpperBound)
	require.Equal(t, 3, cfg.Pipeline.Workers)
	require.Equal(t, 12*time.Hour, cfg.Pipeline.MaxAuditGap)
	require.Equal(t, features.DefaultDateLayouts, cfg.Pipeline.DateLayouts)

	opts, err := cfg.Options()
	require.NoError(t, err)
	require.Equal(t, "America/New_York", opts.Location.String())
	require.Equal(t, int64(5000), opts.UpperBound)
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	require.NoError(t, os.Unsetenv("TURNSTILE_AUDITS"))
	require.NoError(t, os.Unsetenv("TURNSTILE_OUT"))
	envFile := writeFile(t, "test.env", "TURNSTILE_AUDITS=env-audits.csv\nTURNSTILE_OUT=env-out.csv\n")
	t.Cleanup(func() {
		_ = os.Unsetenv("TURNSTILE_AUDITS")
		_ = os.Unsetenv("TURNSTILE_OUT")
	})

	cfg, err := Load([]string{"--env-file", envFile})
	require.NoError(t, err)
	require.Equal(t, "env-audits.csv", cfg.Audits)
	require.Equal(t, "env-out.csv", cfg.Out)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		file string
	}{
		{name: "missing audits", args: []string{"--out", "o.csv"}},
		{name: "bad parse mode", args: []string{"--audits", "a.csv", "--out", "o.csv", "--parse-mode", "loose"}},
		{name: "zero bound", args: []string{"--audits", "a.csv", "--out", "o.csv", "--upper-bound", "0"}},
		{name: "bad timezone", args: []string{"--audits", "a.csv", "--out", "o.csv", "--timezone", "Mars/Olympus"}},
		{name: "bad env int", env: map[string]string{"TURNSTILE_WORKERS": "many"}, args: []string{"--audits", "a.csv", "--out", "o.csv"}},
		{name: "unknown yaml field", file: "audits: a.csv\nout: o.csv\nbogus: true\n"},
		{name: "zero report window", args: []string{"--audits", "a.csv", "--out", "o.csv", "--report-window", "0"}},
		{name: "references without database", args: []string{"--audits", "a.csv", "--out", "o.csv", "--db-references"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			args := append([]string{"--env-file", ""}, tt.args...)
			if tt.file != "" {
				args = append(args, "--config", writeFile(t, "c.yaml", tt.file))
			}
			_, err := Load(args)
			require.Error(t, err)
		})
	}
}

func TestLoadVersionSkipsValidation(t *testing.T) {
	clearEnv(t)
	cfg, err := Load([]string{"--env-file", "", "--version"})
	require.NoError(t, err)
	require.True(t, cfg.ShowVersion)
}
