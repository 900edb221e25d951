package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Inputs   InputsConfig   `yaml:"inputs" mapstructure:"inputs"`
	Build    BuildConfig    `yaml:"build" mapstructure:"build"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Census   CensusConfig   `yaml:"census" mapstructure:"census"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Ledger   LedgerConfig   `yaml:"ledger" mapstructure:"ledger"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
	Neo4j    Neo4jConfig    `yaml:"neo4j" mapstructure:"neo4j"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// InputsConfig locates the raw flow and reference tables.
// Gazetteer and Population are keyed by granularity name (county, town, tract).
type InputsConfig struct {
	CountyFlows  string            `yaml:"county_flows" mapstructure:"county_flows"`
	TownFlows    string            `yaml:"town_flows" mapstructure:"town_flows"`
	Gazetteer    map[string]string `yaml:"gazetteer" mapstructure:"gazetteer"`
	Population   map[string]string `yaml:"population" mapstructure:"population"`
	LODESDir     string            `yaml:"lodes_dir" mapstructure:"lodes_dir"`
	LODESYear    int               `yaml:"lodes_year" mapstructure:"lodes_year"`
	LODESJobType string            `yaml:"lodes_job_type" mapstructure:"lodes_job_type"`
	Encoding     string            `yaml:"encoding" mapstructure:"encoding"`
}

// BuildConfig holds the default build parameters.
type BuildConfig struct {
	States        string `yaml:"states" mapstructure:"states"`
	MinWeight     int64  `yaml:"min_weight" mapstructure:"min_weight"`
	DropSelfLoops bool   `yaml:"drop_self_loops" mapstructure:"drop_self_loops"`
	Concurrency   int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// OutputConfig configures where artifacts are written.
type OutputConfig struct {
	Dir       string `yaml:"dir" mapstructure:"dir"`
	Name      string `yaml:"name" mapstructure:"name"` // optional subfolder of Dir
	GraphML   bool   `yaml:"graphml" mapstructure:"graphml"`
	EdgeTable bool   `yaml:"edge_table" mapstructure:"edge_table"`
}

// CensusConfig configures the ACS population client.
type CensusConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Year        int     `yaml:"year" mapstructure:"year"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Concurrency int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	OutputDir   string  `yaml:"output_dir" mapstructure:"output_dir"`
}

// FetchConfig configures downloads of the raw input tables.
type FetchConfig struct {
	LODESBaseURL     string  `yaml:"lodes_base_url" mapstructure:"lodes_base_url"`
	GazetteerBaseURL string  `yaml:"gazetteer_base_url" mapstructure:"gazetteer_base_url"`
	FlowsBaseURL     string  `yaml:"flows_base_url" mapstructure:"flows_base_url"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// LedgerConfig configures the SQLite build ledger.
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig configures the optional Postgres sink.
type PostgresConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
}

// Neo4jConfig configures the optional Neo4j sink.
type Neo4jConfig struct {
	URI       string `yaml:"uri" mapstructure:"uri"`
	Username  string `yaml:"username" mapstructure:"username"`
	Password  string `yaml:"password" mapstructure:"password"`
	Database  string `yaml:"database" mapstructure:"database"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COMMUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("inputs.county_flows", "data/raw/table1.xlsx")
	v.SetDefault("inputs.town_flows", "data/raw/table3.xlsx")
	v.SetDefault("inputs.gazetteer", map[string]string{
		"county": "data/raw/2019_Gaz_counties_national.txt",
		"town":   "data/raw/2019_Gaz_cousubs_national.txt",
		"tract":  "data/raw/2019_Gaz_tracts_national.txt",
	})
	v.SetDefault("inputs.population", map[string]string{
		"county": "data/derived/population/county_population.tsv",
		"town":   "data/derived/population/town_population.tsv",
		"tract":  "data/derived/population/tract_population.tsv",
	})
	v.SetDefault("inputs.lodes_dir", "data/raw/LODES7")
	v.SetDefault("inputs.lodes_year", 2016)
	v.SetDefault("inputs.lodes_job_type", "JT00")
	v.SetDefault("inputs.encoding", "latin1")
	v.SetDefault("build.states", "all")
	v.SetDefault("build.min_weight", 0)
	v.SetDefault("build.drop_self_loops", false)
	v.SetDefault("build.concurrency", 4)
	v.SetDefault("output.dir", "data/derived")
	v.SetDefault("output.name", "")
	v.SetDefault("output.graphml", true)
	v.SetDefault("output.edge_table", true)
	v.SetDefault("census.key", "")
	v.SetDefault("census.base_url", "https://api.census.gov/data")
	v.SetDefault("census.year", 2018)
	v.SetDefault("census.rate_limit", 5.0)
	v.SetDefault("census.timeout_secs", 60)
	v.SetDefault("census.concurrency", 4)
	v.SetDefault("census.max_attempts", 3)
	v.SetDefault("census.output_dir", "data/derived/population")
	v.SetDefault("fetch.lodes_base_url", "https://lehd.ces.census.gov/data/lodes/LODES7")
	v.SetDefault("fetch.gazetteer_base_url", "https://www2.census.gov/geo/docs/maps-data/data/gazetteer/2019_Gazetteer")
	v.SetDefault("fetch.flows_base_url", "https://www2.census.gov/programs-surveys/demo/tables/metro-micro/2015/commuting-flows-2015")
	v.SetDefault("fetch.rate_limit", 4.0)
	v.SetDefault("fetch.timeout_secs", 600)
	v.SetDefault("fetch.concurrency", 4)
	v.SetDefault("fetch.max_attempts", 4)
	v.SetDefault("ledger.enabled", true)
	v.SetDefault("ledger.path", "data/derived/commuter.db")
	v.SetDefault("postgres.database_url", "")
	v.SetDefault("postgres.schema", "commuter")
	v.SetDefault("neo4j.uri", "")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("neo4j.batch_size", 1000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// OutputDir returns the directory artifacts are written to.
func (o OutputConfig) OutputDir() string {
	if o.Name == "" {
		return o.Dir
	}
	return filepath.Join(o.Dir, o.Name)
}

// Validate checks the settings the given command mode needs.
// Modes: build, population, fetch, runs.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Build.Concurrency < 1 || c.Build.Concurrency > 64 {
		errs = append(errs, "build.concurrency must be between 1 and 64")
	}
	if c.Build.MinWeight < 0 {
		errs = append(errs, "build.min_weight must be >= 0")
	}

	switch mode {
	case "build":
		if c.Output.Dir == "" {
			errs = append(errs, "output.dir is required")
		}
		if c.Inputs.LODESYear <= 0 {
			errs = append(errs, "inputs.lodes_year must be > 0")
		}
	case "population":
		if c.Census.BaseURL == "" {
			errs = append(errs, "census.base_url is required")
		}
		if c.Census.Year <= 0 {
			errs = append(errs, "census.year must be > 0")
		}
		if c.Census.RateLimit <= 0 {
			errs = append(errs, "census.rate_limit must be > 0")
		}
		if c.Census.OutputDir == "" {
			errs = append(errs, "census.output_dir is required")
		}
	case "fetch":
		if c.Fetch.RateLimit <= 0 {
			errs = append(errs, "fetch.rate_limit must be > 0")
		}
		if c.Fetch.Concurrency < 1 {
			errs = append(errs, "fetch.concurrency must be >= 1")
		}
	case "runs":
		if c.Ledger.Path == "" {
			errs = append(errs, "ledger.path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
