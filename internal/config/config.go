package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// EthereumConfig holds chain RPC configuration
type EthereumConfig struct {
	RPCURL string `mapstructure:"rpc_url"`
}

// ContractsConfig holds the addresses of the two indexed contracts
type ContractsConfig struct {
	ArtAddress         string `mapstructure:"art_address"`
	MarketplaceAddress string `mapstructure:"marketplace_address"`
}

// SyncerConfig holds event sync engine configuration
type SyncerConfig struct {
	GenesisBlock uint64        `mapstructure:"genesis_block"`
	MaxRange     uint64        `mapstructure:"max_range"`
	Interval     time.Duration `mapstructure:"interval"`
}

// MarketplaceConfig holds marketplace listing sync configuration
type MarketplaceConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	Interval   time.Duration `mapstructure:"interval"`
}

// RenderConfig holds render queue configuration
type RenderConfig struct {
	BatchSize  int           `mapstructure:"batch_size"`
	BatchDelay time.Duration `mapstructure:"batch_delay"`
	OutputDir  string        `mapstructure:"output_dir"`
	Width      int           `mapstructure:"width"`
	Interval   time.Duration `mapstructure:"interval"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// IndexerConfig holds configuration for the indexer binary
type IndexerConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Ethereum    EthereumConfig    `mapstructure:"ethereum"`
	Contracts   ContractsConfig   `mapstructure:"contracts"`
	Syncer      SyncerConfig      `mapstructure:"syncer"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Server      ServerConfig      `mapstructure:"server"`
}

// RenderWorkerConfig holds configuration for the render worker binary
type RenderWorkerConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig  `mapstructure:"database"`
	Ethereum   EthereumConfig  `mapstructure:"ethereum"`
	Contracts  ContractsConfig `mapstructure:"contracts"`
	Render     RenderConfig    `mapstructure:"render"`
}

// LoadIndexerConfig loads configuration for the indexer binary
func LoadIndexerConfig(configFile string, envPath string) (*IndexerConfig, error) {
	v := configureViper("indexer", configFile, envPath)

	// Set defaults
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream_name", "GLYPH_EVENTS")
	v.SetDefault("syncer.max_range", 500000)
	v.SetDefault("syncer.interval", "15s")
	v.SetDefault("marketplace.batch_size", 5)
	v.SetDefault("marketplace.batch_delay", "500ms")
	v.SetDefault("marketplace.interval", "2m")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config IndexerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadRenderWorkerConfig loads configuration for the render worker binary
func LoadRenderWorkerConfig(configFile string, envPath string) (*RenderWorkerConfig, error) {
	v := configureViper("render-worker", configFile, envPath)

	// Set defaults
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("render.batch_size", 5)
	v.SetDefault("render.batch_delay", "1s")
	v.SetDefault("render.output_dir", "previews")
	v.SetDefault("render.width", 1200)
	v.SetDefault("render.interval", "30s")

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var config RenderWorkerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Database.Host == "" {
		return nil, errors.New("database.host is required")
	}

	return &config, nil
}

func (c *IndexerConfig) validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.Contracts.ArtAddress == "" {
		return errors.New("contracts.art_address is required")
	}
	if c.Contracts.MarketplaceAddress == "" {
		return errors.New("contracts.marketplace_address is required")
	}

	return nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	return nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("GLYPH_INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables.
// This is required for viper to map env vars to config struct fields when no config file exists.
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Ethereum
		"ethereum.rpc_url",
		// Contracts
		"contracts.art_address",
		"contracts.marketplace_address",
		// Syncer
		"syncer.genesis_block",
		"syncer.max_range",
		"syncer.interval",
		// Marketplace
		"marketplace.batch_size",
		"marketplace.batch_delay",
		"marketplace.interval",
		// Render
		"render.batch_size",
		"render.batch_delay",
		"render.output_dir",
		"render.width",
		"render.interval",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
