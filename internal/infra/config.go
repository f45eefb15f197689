package infra

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Driver names accepted by JOB_STORE_DRIVER, QUEUE_DRIVER and ARTIFACT_DRIVER.
const (
	DriverPostgres   = "postgres"
	DriverFirestore  = "firestore"
	DriverPubSub     = "pubsub"
	DriverMemory     = "memory"
	DriverFilesystem = "filesystem"
	DriverGCS        = "gcs"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string
	Port   string

	GeminiAPIKey     string
	GeminiBaseURL    string
	GeminiModel      string
	GeminiImageModel string
	ImagenModel      string
	VeoModel         string
	VideoResolution  string

	GCloudProject     string
	QueueTopic        string
	QueueSubscription string
	JobCollection     string
	VideoBucket       string
	DailyCardBucket   string
	DatabaseURL       string

	JobStoreDriver string
	QueueDriver    string
	ArtifactDriver string
	StoragePath    string
	StorageBaseURL string

	WorkerConcurrency      int
	QueuePollInterval      time.Duration
	QueueVisibilityTimeout time.Duration
	RenderPollInterval     time.Duration
	RenderMaxWait          time.Duration
	StatusWatchInterval    time.Duration
	StatusWatchGrace       time.Duration

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadDotenv reads .env and .env.local when present. Variables already set
// in the environment win, and missing files are not an error.
func LoadDotenv() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv: getEnv("APP_ENV", "development"),
		Port:   port,

		GeminiAPIKey:     strings.TrimSpace(getEnv("GEMINI_API_KEY", os.Getenv("API_KEY"))),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		ImagenModel:      getEnv("IMAGEN_MODEL", "imagen-4.0-generate-001"),
		VeoModel:         getEnv("VEO_MODEL", "veo-3.1-fast-generate-preview"),
		VideoResolution:  getEnv("VIDEO_RESOLUTION", "720p"),

		GCloudProject:     os.Getenv("GCLOUD_PROJECT"),
		QueueTopic:        getEnv("QUEUE_TOPIC", "video-requests"),
		QueueSubscription: getEnv("QUEUE_SUBSCRIPTION", "video-requests-sub"),
		JobCollection:     getEnv("JOB_COLLECTION", "video-jobs"),
		VideoBucket:       os.Getenv("GCS_BUCKET_VIDEOS"),
		DailyCardBucket:   os.Getenv("GCS_BUCKET_DAILY_CARD"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),

		JobStoreDriver: strings.ToLower(getEnv("JOB_STORE_DRIVER", DriverPostgres)),
		QueueDriver:    strings.ToLower(getEnv("QUEUE_DRIVER", DriverPostgres)),
		ArtifactDriver: strings.ToLower(getEnv("ARTIFACT_DRIVER", DriverFilesystem)),
		StoragePath:    getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", fmt.Sprintf("http://localhost:%s/static", port)),

		WorkerConcurrency:      getEnvInt("WORKER_CONCURRENCY", 1),
		QueuePollInterval:      time.Second * time.Duration(getEnvInt("QUEUE_POLL_INTERVAL_SECONDS", 2)),
		QueueVisibilityTimeout: time.Second * time.Duration(getEnvInt("QUEUE_VISIBILITY_TIMEOUT_SECONDS", 300)),
		RenderPollInterval:     time.Second * time.Duration(getEnvInt("RENDER_POLL_INTERVAL_SECONDS", 10)),
		RenderMaxWait:          time.Minute * time.Duration(getEnvInt("RENDER_MAX_WAIT_MINUTES", 30)),
		StatusWatchInterval:    time.Second * time.Duration(getEnvInt("STATUS_WATCH_INTERVAL_SECONDS", 2)),
		StatusWatchGrace:       time.Second * time.Duration(getEnvInt("STATUS_WATCH_GRACE_SECONDS", 30)),

		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.RenderMaxWait < 0 {
		cfg.RenderMaxWait = 0
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.JobStoreDriver {
	case DriverPostgres, DriverFirestore, DriverMemory:
	default:
		return fmt.Errorf("JOB_STORE_DRIVER %q is not supported", c.JobStoreDriver)
	}
	switch c.QueueDriver {
	case DriverPostgres, DriverPubSub, DriverMemory:
	default:
		return fmt.Errorf("QUEUE_DRIVER %q is not supported", c.QueueDriver)
	}
	switch c.ArtifactDriver {
	case DriverFilesystem, DriverGCS:
	default:
		return fmt.Errorf("ARTIFACT_DRIVER %q is not supported", c.ArtifactDriver)
	}

	if c.usesDriver(DriverPostgres) && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if (c.JobStoreDriver == DriverFirestore || c.QueueDriver == DriverPubSub || c.ArtifactDriver == DriverGCS) && c.GCloudProject == "" {
		return fmt.Errorf("GCLOUD_PROJECT is required")
	}
	if c.ArtifactDriver == DriverGCS && c.VideoBucket == "" {
		return fmt.Errorf("GCS_BUCKET_VIDEOS is required")
	}
	if strings.TrimSpace(c.JobCollection) == "" {
		return fmt.Errorf("JOB_COLLECTION is required")
	}
	if strings.TrimSpace(c.QueueTopic) == "" {
		return fmt.Errorf("QUEUE_TOPIC is required")
	}
	if c.ArtifactDriver == DriverFilesystem {
		if _, err := url.Parse(c.StorageBaseURL); err != nil {
			return fmt.Errorf("STORAGE_BASE_URL is invalid: %w", err)
		}
	}
	return nil
}

func (c *Config) usesDriver(name string) bool {
	return c.JobStoreDriver == name || c.QueueDriver == name
}

// UsesPostgres reports whether any component needs the database pool.
func (c *Config) UsesPostgres() bool {
	return c.usesDriver(DriverPostgres)
}

// RequireGeminiKey is called by processes that cannot run without the AI credential.
func (c *Config) RequireGeminiKey() error {
	if strings.TrimSpace(c.GeminiAPIKey) == "" {
		return fmt.Errorf("GEMINI_API_KEY (or API_KEY) is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
