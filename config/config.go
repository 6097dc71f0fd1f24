// Package config loads the service settings from an optional .env file, an
// optional YAML file and the environment, in that order of precedence
// (environment wins).
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/replenish/features"
	"github.com/YuminosukeSato/replenish/forecast"
	"github.com/YuminosukeSato/replenish/pkg/errors"
	"github.com/YuminosukeSato/replenish/predictions"
)

// FileEnv names the variable holding the YAML config path.
const FileEnv = "REPLENISH_CONFIG"

// Config is the complete process configuration.
type Config struct {
	Server   ServerConfig           `yaml:"server"`
	Database DatabaseConfig         `yaml:"database"`
	Sales    SalesConfig            `yaml:"sales"`
	Model    ModelConfig            `yaml:"model"`
	Redis    RedisConfig            `yaml:"redis"`
	Log      LogConfig              `yaml:"log"`
	Forecast forecast.ServiceConfig `yaml:"forecast"`
	Training forecast.TrainerConfig `yaml:"training"`
	Features features.Config        `yaml:"features"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port string `yaml:"port"`
	// AllowOrigins lists the CORS origins. Empty allows all.
	AllowOrigins []string `yaml:"allow_origins"`
}

// DatabaseConfig selects the prediction database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// SalesConfig points at the upstream sales API.
type SalesConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// RateLimit is requests per second. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// ModelConfig locates the model artifact.
type ModelConfig struct {
	Path string `yaml:"path"`
	// GCSBucket switches the artifact store to Cloud Storage.
	GCSBucket string `yaml:"gcs_bucket"`
	GCSPrefix string `yaml:"gcs_prefix"`
}

// RedisConfig configures model-update notifications.
type RedisConfig struct {
	// Addr enables model-update notifications when set.
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8000"},
		Database: DatabaseConfig{
			Driver: predictions.DriverPostgres,
			DSN:    "host=localhost user=postgres dbname=demand_forecast sslmode=disable",
		},
		Sales: SalesConfig{
			BaseURL:   "http://localhost:3000/api",
			RateBurst: 1,
		},
		Model: ModelConfig{
			Path:      "./models/demand_model.gob",
			GCSPrefix: "models",
		},
		Redis:    RedisConfig{Channel: "replenish:model-updated"},
		Log:      LogConfig{Level: "info"},
		Forecast: forecast.DefaultServiceConfig(),
		Training: forecast.DefaultTrainerConfig(),
		Features: features.DefaultConfig(),
	}
}

// Load reads .env if present, then the YAML file named by REPLENISH_CONFIG,
// then environment overrides, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to read .env")
	}

	cfg := Default()
	if path := os.Getenv(FileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := os.Getenv("CORS_ALLOW_ORIGINS"); origins != "" {
		c.Server.AllowOrigins = splitList(origins)
	}

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)

	c.Sales.BaseURL = getEnv("SALES_API_BASE_URL", c.Sales.BaseURL)
	c.Sales.APIKey = getEnv("API_KEY", c.Sales.APIKey)
	c.Sales.RateLimit = getEnvAsFloat("SALES_API_RATE_LIMIT", c.Sales.RateLimit)
	c.Sales.RateBurst = getEnvAsInt("SALES_API_RATE_BURST", c.Sales.RateBurst)

	c.Model.Path = getEnv("MODEL_PATH", c.Model.Path)
	c.Model.GCSBucket = getEnv("MODEL_GCS_BUCKET", c.Model.GCSBucket)
	c.Model.GCSPrefix = getEnv("MODEL_GCS_PREFIX", c.Model.GCSPrefix)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvAsInt("REDIS_DB", c.Redis.DB)
	c.Redis.Channel = getEnv("REDIS_CHANNEL", c.Redis.Channel)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Forecast.HistoricalMonths = getEnvAsInt("HISTORICAL_MONTHS", c.Forecast.HistoricalMonths)
	c.Forecast.ForecastHorizon = getEnvAsInt("FORECAST_HORIZON", c.Forecast.ForecastHorizon)
	c.Forecast.TrainStores = getEnvAsInt("TRAIN_STORES", c.Forecast.TrainStores)
	c.Forecast.TrainProductsPerStore = getEnvAsInt("TRAIN_PRODUCTS_PER_STORE", c.Forecast.TrainProductsPerStore)
	c.Forecast.TrainLookbackDays = getEnvAsInt("TRAIN_LOOKBACK_DAYS", c.Forecast.TrainLookbackDays)
	c.Forecast.TrainConcurrency = getEnvAsInt("TRAIN_CONCURRENCY", c.Forecast.TrainConcurrency)
	c.Forecast.TrainParallelThreshold = getEnvAsInt("TRAIN_PARALLEL_THRESHOLD", c.Forecast.TrainParallelThreshold)

	c.Training.NEstimators = getEnvAsInt("MODEL_N_ESTIMATORS", c.Training.NEstimators)
	c.Training.MaxDepth = getEnvAsInt("MODEL_MAX_DEPTH", c.Training.MaxDepth)
	c.Training.LearningRate = getEnvAsFloat("MODEL_LEARNING_RATE", c.Training.LearningRate)
	c.Training.Seed = getEnvAsInt("MODEL_SEED", c.Training.Seed)

	c.Features.SmallDatasetThreshold = getEnvAsInt("SMALL_DATASET_THRESHOLD", c.Features.SmallDatasetThreshold)
	c.Features.LowDataThreshold = getEnvAsInt("LOW_DATA_THRESHOLD", c.Features.LowDataThreshold)
	if policy := os.Getenv("SMALL_ROLLING_POLICY"); policy != "" {
		c.Features.SmallRolling = features.RollingPolicy(policy)
	}
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.NewValidationError("server.port", "must not be empty", c.Server.Port)
	}
	switch c.Database.Driver {
	case predictions.DriverPostgres, predictions.DriverSQLite:
	default:
		return errors.NewValidationError("database.driver", "must be postgres or sqlite", c.Database.Driver)
	}
	if c.Sales.RateLimit < 0 {
		return errors.NewValidationError("sales.rate_limit", "must be non-negative", c.Sales.RateLimit)
	}
	if c.Model.Path == "" && c.Model.GCSBucket == "" {
		return errors.NewValidationError("model.path", "a path or a GCS bucket is required", c.Model.Path)
	}
	if c.Forecast.HistoricalMonths < 1 || c.Forecast.HistoricalMonths > 60 {
		return errors.NewValidationError("forecast.historical_months", "must be within [1, 60]", c.Forecast.HistoricalMonths)
	}
	if c.Forecast.ForecastHorizon < 1 {
		return errors.NewValidationError("forecast.forecast_horizon", "must be positive", c.Forecast.ForecastHorizon)
	}
	if c.Forecast.TrainConcurrency < 1 {
		return errors.NewValidationError("forecast.train_concurrency", "must be positive", c.Forecast.TrainConcurrency)
	}
	if c.Forecast.TrainParallelThreshold < 0 {
		return errors.NewValidationError("forecast.train_parallel_threshold", "must be non-negative", c.Forecast.TrainParallelThreshold)
	}
	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		return errors.NewValidationError("training.test_size", "must be within (0, 1)", c.Training.TestSize)
	}
	return c.Features.Validate()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
