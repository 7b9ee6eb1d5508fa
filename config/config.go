package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration parameters read from environment variables.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Collector configuration
	EnabledCollectors string `envconfig:"ENABLED_COLLECTORS" default:"govapi,library,repository"`
	CronSchedule      string `envconfig:"CRON_SCHEDULE" default:"0 3 * * *"`
	DiscoverySchedule string `envconfig:"DISCOVERY_CRON_SCHEDULE" default:"0 5 * * 0"`

	// Run executor tuning
	FetchTimeoutSeconds int `envconfig:"FETCH_TIMEOUT_SECONDS" default:"60"`
	TargetDelayMillis   int `envconfig:"TARGET_DELAY_MILLIS" default:"1500"`
	RunErrorCap         int `envconfig:"RUN_ERROR_CAP" default:"20"`
	DispatchRetries     int `envconfig:"DISPATCH_RETRIES" default:"3"`

	// Activity log history per collector
	LogHistorySize int `envconfig:"LOG_HISTORY_SIZE" default:"200"`

	// Governmental postgraduate API
	GovAPIBaseURL  string `envconfig:"GOVAPI_BASE_URL" default:"https://dadosabertos.capes.gov.br/api/v1"`
	GovAPIKey      string `envconfig:"GOVAPI_KEY"`
	GovAPIPrograms string `envconfig:"GOVAPI_PROGRAMS" default:"51001012004P0"`

	// Digital thesis library (HTML)
	LibraryBaseURL  string `envconfig:"LIBRARY_BASE_URL" default:"https://bdtd.ibict.br"`
	LibrarySubjects string `envconfig:"LIBRARY_SUBJECTS" default:"computer science"`

	// Institutional repository
	RepositoryBaseURL     string `envconfig:"REPOSITORY_BASE_URL" default:"https://repositorio.ufms.br/api"`
	RepositoryCollections string `envconfig:"REPOSITORY_COLLECTIONS" default:"theses,dissertations"`

	// AI-assisted discovery agent (Gemini)
	DiscoveryAPIKey    string `envconfig:"DISCOVERY_API_KEY"`
	DiscoveryModel     string `envconfig:"DISCOVERY_MODEL" default:"gemini-2.0-flash"`
	DiscoveryBatchSize int    `envconfig:"DISCOVERY_BATCH_SIZE" default:"25"`
}

// DSN returns the data source name for the PostgreSQL connection.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// FetchTimeout returns the per-target fetch timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// TargetDelay returns the fixed inter-target delay as a duration.
func (c *Config) TargetDelay() time.Duration {
	return time.Duration(c.TargetDelayMillis) * time.Millisecond
}

// Load reads the configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
