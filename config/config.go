package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	MQBackendRabbitMQ = "rabbitmq"
	MQBackendPubSub   = "pubsub"

	StorageBackendMinio = "minio"
	StorageBackendGCS   = "gcs"
)

type Config struct {
	Env        string
	ServerPort int
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
	Log        LogConfig
	Database   DatabaseConfig
	MQ         MQConfig
	Storage    StorageConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	Driver     string
	URL        string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	UseSSL     bool
	SQLitePath string
}

// MQConfig selects the broker used for task events. An empty Backend
// disables publishing.
type MQConfig struct {
	Backend  string
	Channel  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

// StorageConfig selects the object store used for task exports. An empty
// Backend disables exports.
type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() Config {
	env := getEnv("ENV", "")
	if env == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Driver:     strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
		URL:        getEnv("DATABASE_URL", ""),
		Host:       getEnv("DB_HOST", "localhost"),
		Port:       getEnvInt("DB_PORT", 5432),
		User:       getEnv("DB_USER", "tasktrack"),
		Password:   getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "tasktrack_db"),
		UseSSL:     getEnvBool("DB_SSL", false),
		SQLitePath: getEnv("SQLITE_PATH", "tasktrack.db"),
	}

	mqConfig := MQConfig{
		Backend: strings.ToLower(getEnv("MQ_BACKEND", "")),
		Channel: getEnv("MQ_TASK_CHANNEL", "task-events"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 0),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	storageConfig := StorageConfig{
		Backend: strings.ToLower(getEnv("STORAGE_BACKEND", "")),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "tasktrack-exports"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
	}

	port := getEnvInt("SERVER_PORT", 0)
	if port == 0 {
		port = getEnvInt("PORT", 8080)
	}

	return Config{
		Env:        env,
		ServerPort: port,
		JWTSecret:  strings.TrimSpace(getEnv("JWT_SECRET", "")),
		TokenTTL:   getEnvDuration("TOKEN_TTL", 8*time.Hour),
		BcryptCost: getEnvInt("BCRYPT_COST", 0),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Database: dbConfig,
		MQ:       mqConfig,
		Storage:  storageConfig,
	}
}

// Validate reports configuration the server must refuse to start with.
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	switch c.MQ.Backend {
	case "", MQBackendRabbitMQ, MQBackendPubSub:
	default:
		return fmt.Errorf("unsupported MQ_BACKEND %q", c.MQ.Backend)
	}
	switch c.Storage.Backend {
	case "", StorageBackendMinio, StorageBackendGCS:
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(valueStr)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(strings.TrimSpace(valueStr))
	if err != nil {
		return defaultValue
	}
	return value
}
