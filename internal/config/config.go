package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"turnstile-analytics/internal/analytics/domain/features"
)

const (
	envConfigPath = "TURNSTILE_CONFIG"
	defaultEnv    = ".env"
	defaultTopN   = 10
	defaultWindow = 7
)

// Config is the resolved configuration of one CLI run.
type Config struct {
	ShowVersion bool `yaml:"-"`
	Verbose     bool `yaml:"verbose"`

	Audits      string `yaml:"audits" validate:"required"`
	Stations    string `yaml:"stations"`
	Coordinates string `yaml:"coordinates"`
	Out         string `yaml:"out" validate:"required"`
	Report      string `yaml:"report"`
	ReportPDF   string `yaml:"report_pdf"`
	ReportTopN  int    `yaml:"report_top_n" validate:"gte=0"`
	// ReportWindow is the rolling mean length in days on the daily sheet.
	ReportWindow int `yaml:"report_window" validate:"gte=1"`

	DatabaseURL string `yaml:"database_url"`
	// LoadReferences reads reference tables from the database instead of
	// CSV files when no CSV path is given for a role.
	LoadReferences bool `yaml:"load_references"`
	// SaveReferences upserts the CSV reference tables into the database.
	SaveReferences  bool   `yaml:"save_references"`
	MetricsTextfile string `yaml:"metrics_textfile"`

	Pipeline Pipeline `yaml:"pipeline"`
}

// Pipeline mirrors features.Options in a file-friendly shape.
type Pipeline struct {
	UpperBound       int64         `yaml:"upper_bound" validate:"gt=0"`
	ExtractDateParts bool          `yaml:"extract_date_parts"`
	ExtractTimeParts bool          `yaml:"extract_time_parts"`
	ComputeTimeDelta bool          `yaml:"compute_time_delta"`
	ParseMode        string        `yaml:"parse_mode" validate:"oneof=strict lenient"`
	MaxAuditGap      time.Duration `yaml:"max_audit_gap" validate:"gte=0"`
	Workers          int           `yaml:"workers" validate:"gte=0,lte=256"`
	DateLayouts      []string      `yaml:"date_layouts" validate:"min=1,dive,required"`
	TimeLayout       string        `yaml:"time_layout" validate:"required"`
	Timezone         string        `yaml:"timezone" validate:"required"`
}

// Default returns the configuration used before any source is applied.
func Default() Config {
	opts := features.DefaultOptions()
	return Config{
		ReportTopN:   defaultTopN,
		ReportWindow: defaultWindow,
		Pipeline: Pipeline{
			UpperBound:       opts.UpperBound,
			ExtractDateParts: opts.ExtractDateParts,
			ExtractTimeParts: opts.ExtractTimeParts,
			ComputeTimeDelta: opts.ComputeTimeDelta,
			ParseMode:        string(opts.ParseMode),
			MaxAuditGap:      opts.MaxAuditGap,
			Workers:          opts.Workers,
			DateLayouts:      opts.DateLayouts,
			TimeLayout:       opts.TimeLayout,
			Timezone:         "UTC",
		},
	}
}

// Load resolves the configuration from defaults, an optional YAML file, the
// environment (including a .env file) and command line args, in that order.
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("turnstile-analytics", flag.ContinueOnError)
	var (
		configPath string
		envFile    string
		fl         Config
	)
	fs.StringVar(&configPath, "config", "", "YAML config file (env: "+envConfigPath+")")
	fs.StringVar(&envFile, "env-file", defaultEnv, "dotenv file loaded into the environment when present")
	fs.BoolVar(&fl.ShowVersion, "version", false, "show version and exit")
	fs.BoolVarP(&fl.Verbose, "verbose", "v", false, "verbose mode - show debug logs")
	fs.StringVar(&fl.Audits, "audits", "", "audit table CSV (env: TURNSTILE_AUDITS)")
	fs.StringVar(&fl.Stations, "stations", "", "stations reference CSV (env: TURNSTILE_STATIONS)")
	fs.StringVar(&fl.Coordinates, "coords", "", "coordinates reference CSV (env: TURNSTILE_COORDINATES)")
	fs.StringVar(&fl.Out, "out", "", "enriched CSV output path (env: TURNSTILE_OUT)")
	fs.StringVar(&fl.Report, "report", "", "XLSX report output path (env: TURNSTILE_REPORT)")
	fs.StringVar(&fl.ReportPDF, "report-pdf", "", "PDF report output path (env: TURNSTILE_REPORT_PDF)")
	fs.IntVar(&fl.ReportTopN, "report-top", defaultTopN, "stations listed in report growth and hourly tables")
	fs.IntVar(&fl.ReportWindow, "report-window", defaultWindow, "days in the report rolling mean")
	fs.StringVar(&fl.DatabaseURL, "database-url", "", "Postgres URL for the feature sink and run ledger (env: DATABASE_URL)")
	fs.BoolVar(&fl.LoadReferences, "db-references", false, "load reference tables from the database when no CSV is given")
	fs.BoolVar(&fl.SaveReferences, "save-references", false, "upsert CSV reference tables into the database")
	fs.StringVar(&fl.MetricsTextfile, "metrics-textfile", "", "write metrics in textfile format to this path (env: TURNSTILE_METRICS_TEXTFILE)")
	fs.Int64Var(&fl.Pipeline.UpperBound, "upper-bound", 0, "exclusive ceiling for a valid counter delta")
	fs.BoolVar(&fl.Pipeline.ExtractDateParts, "date-parts", true, "derive year, month, week and weekday")
	fs.BoolVar(&fl.Pipeline.ExtractTimeParts, "time-parts", true, "derive hour and minute")
	fs.BoolVar(&fl.Pipeline.ComputeTimeDelta, "time-delta", true, "derive the interval to the previous audit")
	fs.StringVar(&fl.Pipeline.ParseMode, "parse-mode", "", "timestamp failure handling: strict or lenient")
	fs.DurationVar(&fl.Pipeline.MaxAuditGap, "max-audit-gap", 0, "interval above which an audit gap is irregular")
	fs.IntVar(&fl.Pipeline.Workers, "workers", 0, "reconciliation workers")
	fs.StringVar(&fl.Pipeline.Timezone, "timezone", "", "IANA zone the audit timestamps are recorded in")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}

	if configPath == "" {
		configPath = os.Getenv(envConfigPath)
	}
	if configPath != "" {
		if err := loadFile(configPath, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	applyFlags(fs, fl, &cfg)

	if cfg.ShowVersion {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Audits, "TURNSTILE_AUDITS")
	setString(&cfg.Stations, "TURNSTILE_STATIONS")
	setString(&cfg.Coordinates, "TURNSTILE_COORDINATES")
	setString(&cfg.Out, "TURNSTILE_OUT")
	setString(&cfg.Report, "TURNSTILE_REPORT")
	setString(&cfg.ReportPDF, "TURNSTILE_REPORT_PDF")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.MetricsTextfile, "TURNSTILE_METRICS_TEXTFILE")
	setString(&cfg.Pipeline.ParseMode, "TURNSTILE_PARSE_MODE")
	setString(&cfg.Pipeline.Timezone, "TURNSTILE_TIMEZONE")

	if v, ok := lookup("TURNSTILE_UPPER_BOUND"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid TURNSTILE_UPPER_BOUND=%q: %w", v, err)
		}
		cfg.Pipeline.UpperBound = n
	}
	if v, ok := lookup("TURNSTILE_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid TURNSTILE_WORKERS=%q: %w", v, err)
		}
		cfg.Pipeline.Workers = n
	}
	if v, ok := lookup("TURNSTILE_MAX_AUDIT_GAP"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid TURNSTILE_MAX_AUDIT_GAP=%q: %w", v, err)
		}
		cfg.Pipeline.MaxAuditGap = d
	}
	if v, ok := lookup("TURNSTILE_VERBOSE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid TURNSTILE_VERBOSE=%q: %w", v, err)
		}
		cfg.Verbose = b
	}
	return nil
}

func applyFlags(fs *flag.FlagSet, fl Config, cfg *Config) {
	if fs.Changed("version") {
		cfg.ShowVersion = fl.ShowVersion
	}
	if fs.Changed("verbose") {
		cfg.Verbose = fl.Verbose
	}
	strs := map[string]struct {
		dst *string
		src string
	}{
		"audits":           {&cfg.Audits, fl.Audits},
		"stations":         {&cfg.Stations, fl.Stations},
		"coords":           {&cfg.Coordinates, fl.Coordinates},
		"out":              {&cfg.Out, fl.Out},
		"report":           {&cfg.Report, fl.Report},
		"report-pdf":       {&cfg.ReportPDF, fl.ReportPDF},
		"database-url":     {&cfg.DatabaseURL, fl.DatabaseURL},
		"metrics-textfile": {&cfg.MetricsTextfile, fl.MetricsTextfile},
		"parse-mode":       {&cfg.Pipeline.ParseMode, fl.Pipeline.ParseMode},
		"timezone":         {&cfg.Pipeline.Timezone, fl.Pipeline.Timezone},
	}
	for name, s := range strs {
		if fs.Changed(name) {
			*s.dst = s.src
		}
	}
	if fs.Changed("report-top") {
		cfg.ReportTopN = fl.ReportTopN
	}
	if fs.Changed("report-window") {
		cfg.ReportWindow = fl.ReportWindow
	}
	if fs.Changed("db-references") {
		cfg.LoadReferences = fl.LoadReferences
	}
	if fs.Changed("save-references") {
		cfg.SaveReferences = fl.SaveReferences
	}
	if fs.Changed("upper-bound") {
		cfg.Pipeline.UpperBound = fl.Pipeline.UpperBound
	}
	if fs.Changed("date-parts") {
		cfg.Pipeline.ExtractDateParts = fl.Pipeline.ExtractDateParts
	}
	if fs.Changed("time-parts") {
		cfg.Pipeline.ExtractTimeParts = fl.Pipeline.ExtractTimeParts
	}
	if fs.Changed("time-delta") {
		cfg.Pipeline.ComputeTimeDelta = fl.Pipeline.ComputeTimeDelta
	}
	if fs.Changed("max-audit-gap") {
		cfg.Pipeline.MaxAuditGap = fl.Pipeline.MaxAuditGap
	}
	if fs.Changed("workers") {
		cfg.Pipeline.Workers = fl.Pipeline.Workers
	}
}

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := time.LoadLocation(c.Pipeline.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Pipeline.Timezone, err)
	}
	if (c.LoadReferences || c.SaveReferences) && c.DatabaseURL == "" {
		return errors.New("config: reference database access requires a database url")
	}
	return nil
}

// Options converts the pipeline section into feature options.
func (c Config) Options() (features.Options, error) {
	loc, err := time.LoadLocation(c.Pipeline.Timezone)
	if err != nil {
		return features.Options{}, fmt.Errorf("config: timezone %q: %w", c.Pipeline.Timezone, err)
	}
	opts := features.Options{
		UpperBound:       c.Pipeline.UpperBound,
		ExtractDateParts: c.Pipeline.ExtractDateParts,
		ExtractTimeParts: c.Pipeline.ExtractTimeParts,
		ComputeTimeDelta: c.Pipeline.ComputeTimeDelta,
		ParseMode:        features.ParseMode(c.Pipeline.ParseMode),
		MaxAuditGap:      c.Pipeline.MaxAuditGap,
		Workers:          c.Pipeline.Workers,
		DateLayouts:      append([]string(nil), c.Pipeline.DateLayouts...),
		TimeLayout:       c.Pipeline.TimeLayout,
		Location:         loc,
	}
	if err := opts.Validate(); err != nil {
		return features.Options{}, err
	}
	return opts, nil
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
