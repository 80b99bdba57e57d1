package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides, e.g.
	// ARCHIVOOR_DATABASE_DRIVER=postgres.
	EnvPrefix = "ARCHIVOOR"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultDatabaseDriver is the default database driver.
	DefaultDatabaseDriver = "sqlite"

	// DefaultSQLitePath is the default SQLite database file.
	DefaultSQLitePath = "test_results.db"

	// DefaultRootDir is the default test output directory.
	DefaultRootDir = "output"

	// DefaultSourceType is the default artefact source backend.
	DefaultSourceType = "local"

	// DefaultHashAlgorithm is the default content hash algorithm.
	DefaultHashAlgorithm = "sha256"

	// DefaultHashConcurrency is the number of files hashed in parallel.
	DefaultHashConcurrency = 4
)

// Config is the root configuration for archivoor.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	Import   ImportConfig   `yaml:"import" mapstructure:"import"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
	MySQL    MySQLConfig          `yaml:"mysql,omitempty" mapstructure:"mysql"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// MySQLConfig contains MySQL connection settings.
type MySQLConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// ImportConfig contains settings for the artefact importer.
type ImportConfig struct {
	RootDir string       `yaml:"root_dir" mapstructure:"root_dir"`
	Full    bool         `yaml:"full" mapstructure:"full"`
	Source  SourceConfig `yaml:"source" mapstructure:"source"`
	Hash    HashConfig   `yaml:"hash" mapstructure:"hash"`
	// Interval enables periodic incremental imports, e.g. "5m". Empty
	// disables them.
	Interval string `yaml:"interval,omitempty" mapstructure:"interval"`
}

// SourceConfig selects where test output is read from. The local backend
// walks ImportConfig.RootDir; the S3 backend treats RootDir as a key prefix
// inside the configured bucket.
type SourceConfig struct {
	Type string          `yaml:"type" mapstructure:"type"`
	S3   *S3SourceConfig `yaml:"s3,omitempty" mapstructure:"s3"`
}

// S3SourceConfig contains S3 settings for reading test output.
type S3SourceConfig struct {
	EndpointURL     string `yaml:"endpoint_url,omitempty" mapstructure:"endpoint_url"`
	Region          string `yaml:"region,omitempty" mapstructure:"region"`
	Bucket          string `yaml:"bucket" mapstructure:"bucket"`
	AccessKeyID     string `yaml:"access_key_id,omitempty" mapstructure:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty" mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style" mapstructure:"force_path_style"`
}

// HashConfig controls artefact content hashing.
type HashConfig struct {
	Algorithm   string `yaml:"algorithm" mapstructure:"algorithm"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// Load reads configuration from an optional YAML file and applies
// environment overrides. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	registerDefaults(v)

	if path != "" {
		v.SetConfigFile(path)

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// registerDefaults makes every key known to viper so AutomaticEnv can
// override keys that are absent from the config file.
func registerDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("database.driver", DefaultDatabaseDriver)
	v.SetDefault("database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "archivoor")
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.mysql.host", "localhost")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.user", "")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "archivoor")

	v.SetDefault("import.root_dir", DefaultRootDir)
	v.SetDefault("import.full", false)
	v.SetDefault("import.source.type", DefaultSourceType)
	v.SetDefault("import.hash.algorithm", DefaultHashAlgorithm)
	v.SetDefault("import.hash.concurrency", DefaultHashConcurrency)
	v.SetDefault("import.interval", "")

	v.SetDefault("api.listen", DefaultAPIListen)
	v.SetDefault("api.cors_origins", []string{})
	v.SetDefault("api.rate_limit.enabled", false)
	v.SetDefault("api.rate_limit.requests_per_minute", DefaultRequestsPerMinute)
	v.SetDefault("api.pagination.default_limit", DefaultPageLimit)
	v.SetDefault("api.pagination.max_limit", DefaultMaxPageLimit)
}

// applyDefaults fills values that an explicit empty string in the config
// file would otherwise leave unset.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}

	if c.Database.Driver == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = DefaultSQLitePath
	}

	if c.Import.Source.Type == "" {
		c.Import.Source.Type = DefaultSourceType
	}

	if c.Import.Hash.Algorithm == "" {
		c.Import.Hash.Algorithm = DefaultHashAlgorithm
	}

	if c.Import.Hash.Concurrency <= 0 {
		c.Import.Hash.Concurrency = DefaultHashConcurrency
	}

	c.API.applyDefaults()
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := c.Import.Validate(); err != nil {
		return fmt.Errorf("import: %w", err)
	}

	return nil
}

// Validate checks the database settings for the selected driver.
func (d *DatabaseConfig) Validate() error {
	switch d.Driver {
	case "sqlite":
		if d.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required")
		}
	case "postgres":
		if d.Postgres.Host == "" || d.Postgres.Database == "" {
			return fmt.Errorf("postgres.host and postgres.database are required")
		}
	case "mysql":
		if d.MySQL.Host == "" || d.MySQL.Database == "" {
			return fmt.Errorf("mysql.host and mysql.database are required")
		}
	default:
		return fmt.Errorf("unsupported driver %q", d.Driver)
	}

	return nil
}

// validHashAlgorithms lists the supported content hash algorithms.
var validHashAlgorithms = map[string]struct{}{
	"sha256":  {},
	"blake2b": {},
}

// Validate checks the import settings.
func (i *ImportConfig) Validate() error {
	if _, ok := validHashAlgorithms[i.Hash.Algorithm]; !ok {
		return fmt.Errorf("unsupported hash algorithm %q", i.Hash.Algorithm)
	}

	if _, err := i.ScheduleInterval(); err != nil {
		return err
	}

	switch i.Source.Type {
	case "local":
	case "s3":
		if i.Source.S3 == nil || i.Source.S3.Bucket == "" {
			return fmt.Errorf("source.s3.bucket is required for source type s3")
		}
	default:
		return fmt.Errorf("unsupported source type %q", i.Source.Type)
	}

	return nil
}

// ScheduleInterval parses Interval. A zero duration means periodic
// imports are disabled.
func (i *ImportConfig) ScheduleInterval() (time.Duration, error) {
	if i.Interval == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(i.Interval)
	if err != nil {
		return 0, fmt.Errorf("parsing interval: %w", err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive")
	}

	return d, nil
}
