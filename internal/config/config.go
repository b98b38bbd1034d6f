// Package config loads the orthofit run configuration from YAML with
// environment overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full run configuration.
type Config struct {
	Dataset DatasetConfig `yaml:"dataset"`
	Area    AreaConfig    `yaml:"area"`
	Region  RegionConfig  `yaml:"region"`
	Engine  EngineConfig  `yaml:"engine"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Output  OutputConfig  `yaml:"output"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// DatasetConfig locates the signal and basis fields:
// <root>/<bathymetry>/<wave>.cube and <root>/<bathymetry>/<basis>/<field>.cube.
type DatasetConfig struct {
	Root        string   `yaml:"root"`
	Bathymetry  string   `yaml:"bathymetry"`
	Wave        string   `yaml:"wave"`
	Basis       string   `yaml:"basis"`
	BasisFields []string `yaml:"basis_fields"`
}

// AreaConfig bounds the valid grid. Width and Height win over ZonesFile.
type AreaConfig struct {
	ZonesFile string `yaml:"zones_file"`
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
}

// RegionConfig selects the rows and columns to process.
type RegionConfig struct {
	StartRow  int `yaml:"start_row"`
	BatchSize int `yaml:"batch_size"`
	// RowLimit and ColumnLimit are exclusive upper bounds; 0 derives them
	// from the area divided by RowFraction / ColumnFraction.
	RowLimit       int `yaml:"row_limit"`
	ColumnLimit    int `yaml:"column_limit"`
	RowFraction    int `yaml:"row_fraction"`
	ColumnFraction int `yaml:"column_fraction"`
}

// EngineConfig configures the approximation engine.
type EngineConfig struct {
	Tolerance           float64 `yaml:"tolerance"`
	ReconstructionError bool    `yaml:"reconstruction_error"`
}

// SweepConfig configures the row scheduler.
type SweepConfig struct {
	Workers int `yaml:"workers"`
}

// OutputConfig lists the result sinks.
type OutputConfig struct {
	JSON     JSONOutput     `yaml:"json"`
	CSV      CSVOutput      `yaml:"csv"`
	Redis    RedisOutput    `yaml:"redis"`
	Postgres PostgresOutput `yaml:"postgres"`
}

// JSONOutput configures the "[row,col]" keyed JSON document. Rows are
// absolute grid rows unless RunRows keys them from 0 at the start row.
type JSONOutput struct {
	Enabled           bool   `yaml:"enabled"`
	Path              string `yaml:"path"`
	Indent            int    `yaml:"indent"`
	IncludeError      bool   `yaml:"include_error"`
	IncludeDegenerate bool   `yaml:"include_degenerate"`
	RunRows           bool   `yaml:"run_rows"`
}

// CSVOutput writes one line per grid row when Path is set.
type CSVOutput struct {
	Path string `yaml:"path"`
}

// RedisOutput stores the grid in a Redis hash per run.
type RedisOutput struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
	// RowsPerSecond paces row writes; 0 disables pacing.
	RowsPerSecond float64 `yaml:"rows_per_second"`
	Burst         int     `yaml:"burst"`
}

// PostgresOutput upserts one table row per grid point.
type PostgresOutput struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Table           string        `yaml:"table"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// MetricsConfig enables the monitor server when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig configures zerolog.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // auto|console|json
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Bathymetry: "y_200_2000",
			Wave:       "gaus_single_2_h",
			Basis:      "basis_6",
		},
		Region: RegionConfig{
			StartRow:       75,
			BatchSize:      8,
			RowFraction:    4,
			ColumnFraction: 4,
		},
		Engine: EngineConfig{
			Tolerance:           1e-12,
			ReconstructionError: true,
		},
		Output: OutputConfig{
			JSON: JSONOutput{Enabled: true, Indent: 4},
			Redis: RedisOutput{
				KeyPrefix: "orthofit:",
				Burst:     1,
			},
			Postgres: PostgresOutput{
				Table:           "approx_coefficients",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 30 * time.Minute,
				QueryTimeout:    30 * time.Second,
			},
		},
		Log: LogConfig{Level: "info", Format: "auto"},
	}
}

// Load reads the YAML file at path over the defaults and applies ORTHOFIT_*
// environment overrides. An empty path loads defaults only. The result is
// not validated; call Prepare once flags have been applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORTHOFIT_ROOT"); v != "" {
		cfg.Dataset.Root = v
	}
	if v := os.Getenv("ORTHOFIT_ZONES_FILE"); v != "" {
		cfg.Area.ZonesFile = v
	}
	if v := os.Getenv("ORTHOFIT_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Region.BatchSize = n
		}
	}
	if v := os.Getenv("ORTHOFIT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sweep.Workers = n
		}
	}
	if v := os.Getenv("ORTHOFIT_REDIS_ADDR"); v != "" {
		cfg.Output.Redis.Addr = v
		cfg.Output.Redis.Enabled = true
	}
	if v := os.Getenv("ORTHOFIT_PG_DSN"); v != "" {
		cfg.Output.Postgres.DSN = v
		cfg.Output.Postgres.Enabled = true
	}
	if v := os.Getenv("ORTHOFIT_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("ORTHOFIT_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("ORTHOFIT_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
}

// Save writes cfg as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// zones is the area descriptor file: {"all": [width, height], ...}.
type zones struct {
	All []int `json:"all"`
}

// LoadZones reads width and height from the "all" entry of a zones file.
func LoadZones(path string) (width, height int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read zones file %s: %w", path, err)
	}
	var z zones
	if err := json.Unmarshal(data, &z); err != nil {
		return 0, 0, fmt.Errorf("failed to parse zones file %s: %w", path, err)
	}
	if len(z.All) < 2 {
		return 0, 0, fmt.Errorf("zones file %s: \"all\" must hold [width, height]", path)
	}
	return z.All[0], z.All[1], nil
}

// Prepare resolves the area from the zones file when no explicit size is
// set, then validates.
func (c *Config) Prepare() error {
	if (c.Area.Width == 0 || c.Area.Height == 0) && c.Area.ZonesFile != "" {
		w, h, err := LoadZones(c.Area.ZonesFile)
		if err != nil {
			return err
		}
		if c.Area.Width == 0 {
			c.Area.Width = w
		}
		if c.Area.Height == 0 {
			c.Area.Height = h
		}
	}
	return c.Validate()
}

// Validate checks the configuration for values that cannot produce a run.
func (c *Config) Validate() error {
	if c.Dataset.Root == "" {
		return fmt.Errorf("dataset.root is required")
	}
	if c.Dataset.Wave == "" {
		return fmt.Errorf("dataset.wave is required")
	}
	if len(c.Dataset.BasisFields) == 0 {
		return fmt.Errorf("dataset.basis_fields must list at least one field")
	}
	if c.Area.Width <= 0 || c.Area.Height <= 0 {
		return fmt.Errorf("area width and height must be positive (got %dx%d)", c.Area.Width, c.Area.Height)
	}
	if c.Region.BatchSize <= 0 {
		return fmt.Errorf("region.batch_size must be positive")
	}
	if c.Region.StartRow < 0 {
		return fmt.Errorf("region.start_row cannot be negative")
	}
	if c.Region.RowLimit < 0 || c.Region.ColumnLimit < 0 {
		return fmt.Errorf("region limits cannot be negative")
	}
	if c.Engine.Tolerance < 0 {
		return fmt.Errorf("engine.tolerance cannot be negative")
	}
	if c.Output.JSON.Indent < 0 {
		return fmt.Errorf("output.json.indent cannot be negative")
	}
	if c.Output.Redis.Enabled && c.Output.Redis.Addr == "" {
		return fmt.Errorf("output.redis.addr is required when redis output is enabled")
	}
	if c.Output.Postgres.Enabled {
		if c.Output.Postgres.DSN == "" {
			return fmt.Errorf("output.postgres.dsn is required when postgres output is enabled")
		}
		if c.Output.Postgres.MaxIdleConns > c.Output.Postgres.MaxOpenConns {
			return fmt.Errorf("output.postgres.max_idle_conns cannot exceed max_open_conns")
		}
	}
	if !c.Output.JSON.Enabled && c.Output.CSV.Path == "" && !c.Output.Redis.Enabled && !c.Output.Postgres.Enabled {
		return fmt.Errorf("no output enabled")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "auto", "console", "json":
	default:
		return fmt.Errorf("log.format must be auto, console or json")
	}
	return nil
}

// SignalPath returns the path of the signal (wave) cube.
func (d DatasetConfig) SignalPath() string {
	return filepath.Join(d.Root, d.Bathymetry, withExt(d.Wave))
}

// BasisPaths returns the basis cube paths in basis order.
func (d DatasetConfig) BasisPaths() []string {
	paths := make([]string, len(d.BasisFields))
	for i, f := range d.BasisFields {
		paths[i] = filepath.Join(d.Root, d.Bathymetry, d.Basis, withExt(f))
	}
	return paths
}

func withExt(name string) string {
	if filepath.Ext(name) == "" {
		return name + ".cube"
	}
	return name
}

// RowLimit returns the exclusive last row to process.
func (c *Config) RowLimit() int {
	return limit(c.Region.RowLimit, c.Area.Height, c.Region.RowFraction)
}

// ColumnLimit returns the number of columns to process per row.
func (c *Config) ColumnLimit() int {
	return limit(c.Region.ColumnLimit, c.Area.Width, c.Region.ColumnFraction)
}

func limit(explicit, size, fraction int) int {
	if explicit > 0 {
		return min(explicit, size)
	}
	if fraction > 1 {
		return size / fraction
	}
	return size
}

// JSONPath returns the JSON output path, defaulting to
// case_statistics_hd_y_<basis><bathymetry>_o.json.
func (c *Config) JSONPath() string {
	if c.Output.JSON.Path != "" {
		return c.Output.JSON.Path
	}
	return "case_statistics_hd_y_" + c.Dataset.Basis + c.Dataset.Bathymetry + "_o.json"
}
