// Package config reads process configuration from the environment, after
// loading a .env file when one is present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SnapshotMemory   = "memory"
	SnapshotPostgres = "postgres"
	SnapshotS3       = "s3"
)

type Config struct {
	Env      string
	Port     string
	Client   ClientConfig
	Snapshot SnapshotConfig
	Gemini   GeminiConfig
}

// ClientConfig is what the analyst CLI needs to reach the backend. The
// backend validates incoming requests against the same APIKey.
type ClientConfig struct {
	BaseURL       string
	APIKey        string
	FallbackAfter time.Duration
	HTTPTimeout   time.Duration
}

type SnapshotConfig struct {
	Backend     string
	PostgresDSN string
	S3          S3Config
	CacheSize   int
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Durable reports whether saved snapshots outlive the process.
func (c SnapshotConfig) Durable() bool {
	return c.Backend == SnapshotPostgres || c.Backend == SnapshotS3
}

func (c S3Config) Complete() bool {
	return c.Endpoint != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

func (c GeminiConfig) Enabled() bool { return c.APIKey != "" }

// Load reads .env (if any) and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	env := firstNonEmpty(strings.TrimSpace(os.Getenv("APP_ENV")), "local")

	port := strings.TrimSpace(os.Getenv("PORT"))
	switch {
	case port == "":
		port = ":8000"
	case !strings.HasPrefix(port, ":") && !strings.Contains(port, ":"):
		port = ":" + port
	}

	backend := strings.ToLower(firstNonEmpty(strings.TrimSpace(os.Getenv("SNAPSHOT_BACKEND")), SnapshotMemory))
	switch backend {
	case SnapshotMemory, SnapshotPostgres, SnapshotS3:
	default:
		return nil, fmt.Errorf("config: unknown SNAPSHOT_BACKEND %q", backend)
	}

	cfg := &Config{
		Env:  env,
		Port: port,
		Client: ClientConfig{
			BaseURL:       strings.TrimRight(firstNonEmpty(strings.TrimSpace(os.Getenv("API_BASE_URL")), "http://localhost:8000"), "/"),
			APIKey:        strings.TrimSpace(os.Getenv("API_KEY")),
			FallbackAfter: millis("FALLBACK_TIMEOUT_MS", 5000),
			HTTPTimeout:   millis("HTTP_TIMEOUT_MS", 120000),
		},
		Snapshot: SnapshotConfig{
			Backend:     backend,
			PostgresDSN: firstNonEmpty(strings.TrimSpace(os.Getenv("SNAPSHOT_PG_DSN")), strings.TrimSpace(os.Getenv("DATABASE_URL"))),
			S3:          loadS3Config(env),
			CacheSize:   intEnv("SNAPSHOT_CACHE_SIZE", 256),
		},
		Gemini: GeminiConfig{
			APIKey: firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_API_KEY")), strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))),
			Model:  firstNonEmpty(strings.TrimSpace(os.Getenv("GEMINI_MODEL")), "gemini-2.5-flash"),
		},
	}
	if backend == SnapshotPostgres && cfg.Snapshot.PostgresDSN == "" {
		return nil, fmt.Errorf("config: SNAPSHOT_PG_DSN is required for the postgres snapshot backend")
	}
	return cfg, nil
}

func loadS3Config(env string) S3Config {
	local := strings.EqualFold(env, "local")
	endpoint := strings.TrimSpace(os.Getenv("SNAPSHOT_S3_ENDPOINT"))
	if endpoint == "" && local {
		endpoint = "localhost:9000"
	}
	return S3Config{
		Endpoint:  endpoint,
		Region:    firstNonEmpty(strings.TrimSpace(os.Getenv("SNAPSHOT_S3_REGION")), "us-east-1"),
		AccessKey: firstNonEmpty(strings.TrimSpace(os.Getenv("SNAPSHOT_S3_ACCESS_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_USER"))),
		SecretKey: firstNonEmpty(strings.TrimSpace(os.Getenv("SNAPSHOT_S3_SECRET_KEY")), strings.TrimSpace(os.Getenv("MINIO_ROOT_PASSWORD"))),
		Bucket:    firstNonEmpty(strings.TrimSpace(os.Getenv("SNAPSHOT_S3_BUCKET")), "vcanalyst-snapshots"),
		UseSSL:    boolEnv("SNAPSHOT_S3_USE_SSL", !local),
	}
}

func millis(key string, def int) time.Duration {
	return time.Duration(intEnv(key, def)) * time.Millisecond
}

func intEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func boolEnv(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
