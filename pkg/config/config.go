package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm/logger"
)

// Store drivers
// DefaultJWTSigningKey is the development signing key; production refuses it
const DefaultJWTSigningKey = "defaultsecretkey"

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// DBConfig holds PostgreSQL configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
}

// GetDSN returns the PostgreSQL connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MongoConfig holds MongoDB configuration
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// RedisConfig holds the QR cache connection. An empty URL keeps QR codes in memory.
type RedisConfig struct {
	URL string
}

// KafkaConfig holds the operation-log event stream. No brokers means events are only logged.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            string
	Env             string
	GRPCPort        string
	ShutdownTimeout time.Duration
	AllowOrigins    []string
}

// StoreConfig selects the persistence driver
type StoreConfig struct {
	Driver string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SigningKey      string
	ExpirationHours int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Prefix string
}

// GatewayConfig holds the Microsoft Graph (Intune) application credentials
type GatewayConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
	Timeout      time.Duration
}

// ProviderConfig holds one carrier's endpoint and credentials
type ProviderConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	APIKey   string `yaml:"api_key"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ProvidersConfig holds carrier settings keyed by provider name (MPT, ATOM, OOREDOO, MYTEL)
type ProvidersConfig struct {
	File    string
	Timeout time.Duration
	Entries map[string]ProviderConfig
}

// LifecycleConfig holds engine tunables
type LifecycleConfig struct {
	LeaseDuration time.Duration
}

// QRConfig holds QR code settings
type QRConfig struct {
	TTL time.Duration
}

// Config holds all configuration
type Config struct {
	ServiceName string
	Server      ServerConfig
	Store       StoreConfig
	Mongo       MongoConfig
	DB          DBConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	JWT         JWTConfig
	Log         LogConfig
	Metrics     MetricsConfig
	Gateway     GatewayConfig
	Providers   ProvidersConfig
	Lifecycle   LifecycleConfig
	QR          QRConfig
}

var providerNames = []string{"MPT", "ATOM", "OOREDOO", "MYTEL"}

// Load loads configuration from environment variables, an optional .env file and
// an optional providers YAML file
func Load(serviceName string) (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// Not returning error as .env file is optional
		fmt.Fprintln(os.Stderr, "Warning: .env file not found, using environment variables")
	}

	config := &Config{
		ServiceName: serviceName,
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("APP_ENV", "development"),
			GRPCPort:        getEnv("GRPC_PORT", ""),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowOrigins:    getEnvAsList("CORS_ALLOW_ORIGINS", []string{"*"}),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("STORE_DRIVER", StoreMongo)),
		},
		Mongo: MongoConfig{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "esim_manager"),
			ConnectTimeout: getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
		},
		DB: DBConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "password"),
			DBName:          getEnv("DB_NAME", "esim_manager"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 1*time.Hour),
			LogLevel:        getEnvAsLogLevel("DB_LOG_LEVEL", logger.Warn),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC_OPERATION_LOG", "esim.operation_log"),
		},
		JWT: JWTConfig{
			SigningKey:      getEnv("JWT_SIGNING_KEY", DefaultJWTSigningKey),
			ExpirationHours: getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Metrics: MetricsConfig{
			Prefix: getEnv("METRICS_PREFIX", "esim"),
		},
		Gateway: GatewayConfig{
			TenantID:     getEnv("AZURE_TENANT_ID", ""),
			ClientID:     getEnv("AZURE_CLIENT_ID", ""),
			ClientSecret: getEnv("AZURE_CLIENT_SECRET", ""),
			BaseURL:      getEnv("GRAPH_BASE_URL", "https://graph.microsoft.com/beta"),
			TokenURL:     getEnv("AZURE_TOKEN_URL", ""),
			Timeout:      getEnvAsDuration("GRAPH_TIMEOUT", 60*time.Second),
		},
		Providers: ProvidersConfig{
			File:    getEnv("PROVIDERS_CONFIG", ""),
			Timeout: getEnvAsDuration("PROVIDER_TIMEOUT", 30*time.Second),
			Entries: map[string]ProviderConfig{},
		},
		Lifecycle: LifecycleConfig{
			LeaseDuration: getEnvAsDuration("DEPLOY_LEASE_DURATION", 2*time.Minute),
		},
		QR: QRConfig{
			TTL: getEnvAsDuration("QR_TTL", 24*time.Hour),
		},
	}

	if config.Providers.File != "" {
		entries, err := LoadProviders(config.Providers.File)
		if err != nil {
			return nil, err
		}
		config.Providers.Entries = entries
	}
	for _, name := range providerNames {
		config.Providers.Entries[name] = overlayProviderEnv(name, config.Providers.Entries[name])
	}

	switch config.Store.Driver {
	case StoreMongo, StorePostgres, StoreMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", config.Store.Driver)
	}

	if config.Server.Env == "production" {
		key := strings.TrimSpace(config.JWT.SigningKey)
		if key == "" || key == DefaultJWTSigningKey {
			return nil, fmt.Errorf("JWT_SIGNING_KEY must be set to a non-default value in production")
		}
	}

	return config, nil
}

type providersFile struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// LoadProviders reads carrier endpoints and credentials from a YAML file:
//
//	providers:
//	  MPT:
//	    endpoint: https://api.mpt.com.mm/esim
//	    token: ...
func LoadProviders(path string) (map[string]ProviderConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers config: %w", err)
	}
	var f providersFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse providers config: %w", err)
	}
	entries := make(map[string]ProviderConfig, len(f.Providers))
	for name, entry := range f.Providers {
		entries[strings.ToUpper(strings.TrimSpace(name))] = entry
	}
	return entries, nil
}

// overlayProviderEnv lets <NAME>_API_ENDPOINT style variables win over the file
func overlayProviderEnv(name string, base ProviderConfig) ProviderConfig {
	base.Endpoint = getEnv(name+"_API_ENDPOINT", base.Endpoint)
	base.Token = getEnv(name+"_API_TOKEN", base.Token)
	base.APIKey = getEnv(name+"_API_KEY", base.APIKey)
	base.Username = getEnv(name+"_USERNAME", base.Username)
	base.Password = getEnv(name+"_PASSWORD", base.Password)
	return base
}

// LogConfig returns the configuration as a zap logger-friendly format
func (c *Config) LogConfig() []zap.Field {
	configured := make([]string, 0, len(providerNames))
	for _, name := range providerNames {
		if c.Providers.Entries[name].Endpoint != "" {
			configured = append(configured, name)
		}
	}
	return []zap.Field{
		zap.String("service", c.ServiceName),
		zap.String("environment", c.Server.Env),
		zap.String("server_port", c.Server.Port),
		zap.String("grpc_port", c.Server.GRPCPort),
		zap.String("store_driver", c.Store.Driver),
		zap.String("mongo_uri", maskDSN(c.Mongo.URI)),
		zap.String("mongo_database", c.Mongo.Database),
		zap.String("db_host", c.DB.Host),
		zap.String("db_port", c.DB.Port),
		zap.String("db_user", c.DB.User),
		zap.String("db_name", c.DB.DBName),
		zap.Bool("redis_enabled", c.Redis.URL != ""),
		zap.Strings("kafka_brokers", c.Kafka.Brokers),
		zap.String("graph_base_url", c.Gateway.BaseURL),
		zap.Bool("graph_configured", c.Gateway.ClientID != ""),
		zap.Strings("providers_with_endpoint_override", configured),
		zap.Duration("qr_ttl", c.QR.TTL),
	}
}

// maskDSN hides credentials embedded in a connection URI
func maskDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return dsn
	}
	return dsn[:scheme+3] + "***MASKED***" + dsn[at:]
}

// Helper function to get environment variables with defaults
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as integers
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get environment variables as durations
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// Helper function to get comma separated environment variables
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

// Helper function to get environment variables as log levels
func getEnvAsLogLevel(key string, defaultValue logger.LogLevel) logger.LogLevel {
	valueStr := getEnv(key, "")
	switch valueStr {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return defaultValue
	}
}
