package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// DatabaseConfig holds the connection parameters for the database that gets
// dumped. They are passed explicitly into the dump executor; business logic
// never reads them from ambient state.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`

	// DumpBinary is the mysqldump-compatible tool invoked for backups.
	DumpBinary         string `mapstructure:"dump_binary"`
	DumpTimeoutSeconds int    `mapstructure:"dump_timeout_seconds"`
}

// S3Config holds the remote object store settings.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"` // optional, for S3-compatible stores
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`

	// UploadTimeoutSeconds bounds a single archive upload. A stalled
	// network call must not hold a record in processing indefinitely.
	UploadTimeoutSeconds int `mapstructure:"upload_timeout_seconds"`
}

type Config struct {
	// Required fields
	BackupDir    string `mapstructure:"backup_dir"`  // serving directory for the local disk
	StagingDir   string `mapstructure:"staging_dir"` // dump output and remote upload staging
	JWTSecretKey string `mapstructure:"jwt_secret_key"`

	Database DatabaseConfig `mapstructure:"database"`
	S3       S3Config       `mapstructure:"s3"`

	// Default storage disk for backups created without an explicit choice
	DefaultDisk string `mapstructure:"default_disk"`

	// Optional API settings
	APIHost string `mapstructure:"api_host"`
	APIPort int    `mapstructure:"api_port"`

	// Optional SSL settings
	SSLCert string `mapstructure:"ssl_cert"`
	SSLKey  string `mapstructure:"ssl_key"`

	// Optional CORS settings
	CORSOrigins []string `mapstructure:"cors_origins"`

	// Optional logging settings
	LogLevel string `mapstructure:"log_level"`

	// Optional JWT settings
	JWTAlgorithm string `mapstructure:"jwt_algorithm"`

	// Default retention horizon for the cleanup CLI
	RetentionDays int `mapstructure:"retention_days"`

	// Static paths
	ConfigPath string
	DBPath     string `mapstructure:"db_path"`
}

const (
	DefaultConfigPath    = "/etc/respaldo/config.yml"
	DefaultDBPath        = "/var/lib/respaldo/db.sqlite3"
	DefaultAPIHost       = "0.0.0.0"
	DefaultAPIPort       = 8440
	DefaultLogLevel      = "info"
	DefaultJWTAlgorithm  = "HS256"
	DefaultDumpBinary    = "mysqldump"
	DefaultDumpTimeout   = 1800
	DefaultUploadTimeout = 600
	DefaultRetention     = 30
	DefaultDisk          = "local"
)

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// Set defaults
	viper.SetDefault("api_host", DefaultAPIHost)
	viper.SetDefault("api_port", DefaultAPIPort)
	viper.SetDefault("log_level", DefaultLogLevel)
	viper.SetDefault("jwt_algorithm", DefaultJWTAlgorithm)
	viper.SetDefault("db_path", DefaultDBPath)
	viper.SetDefault("default_disk", DefaultDisk)
	viper.SetDefault("retention_days", DefaultRetention)
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.dump_binary", DefaultDumpBinary)
	viper.SetDefault("database.dump_timeout_seconds", DefaultDumpTimeout)
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("s3.upload_timeout_seconds", DefaultUploadTimeout)

	// Allow environment variable overrides
	viper.AutomaticEnv()
	viper.SetEnvPrefix("RESPALDO")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.ConfigPath = configPath

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return fmt.Errorf("backup_dir is required")
	}

	if c.StagingDir == "" {
		return fmt.Errorf("staging_dir is required")
	}

	if c.JWTSecretKey == "" {
		return fmt.Errorf("jwt_secret_key is required")
	}

	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}

	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.DefaultDisk != "local" && c.DefaultDisk != "remote" {
		return fmt.Errorf("default_disk must be 'local' or 'remote'")
	}

	if c.DefaultDisk == "remote" && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when default_disk is 'remote'")
	}

	if c.RetentionDays < 1 || c.RetentionDays > 365 {
		return fmt.Errorf("retention_days must be between 1 and 365")
	}

	// Validate backup directory exists
	if _, err := os.Stat(c.BackupDir); os.IsNotExist(err) {
		return fmt.Errorf("backup_dir does not exist: %s", c.BackupDir)
	}

	// Validate SSL config if provided
	if c.SSLCert != "" || c.SSLKey != "" {
		if c.SSLCert == "" || c.SSLKey == "" {
			return fmt.Errorf("both ssl_cert and ssl_key must be provided")
		}
		if _, err := os.Stat(c.SSLCert); os.IsNotExist(err) {
			return fmt.Errorf("ssl_cert file does not exist: %s", c.SSLCert)
		}
		if _, err := os.Stat(c.SSLKey); os.IsNotExist(err) {
			return fmt.Errorf("ssl_key file does not exist: %s", c.SSLKey)
		}
	}

	return nil
}

func (c *Config) IsDevMode() bool {
	return os.Getenv("RESPALDO_DEV_MODE") == "1"
}
