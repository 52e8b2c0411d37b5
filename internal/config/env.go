package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL  string
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string
	AIAPIKey     string
	EmbedModel   string
	EmbedDim     int
	GenModel     string
	Port         string

	// Crawler settings.
	SourcesFile    string
	OutputDir      string
	ChunkSize      int
	ChunkOverlap   int
	MaxPagesPerPDF int

	// Request settings.
	RequestTimeout time.Duration
	RequestDelay   time.Duration
	UserAgent      string

	// Embedding batch settings.
	EmbedBatchSize   int
	EmbedTokenBudget int

	// Upload settings.
	UploadBatchSize    int
	ImportPollInterval time.Duration
	ImportPollTimeout  time.Duration
}

// LoadConfig loads the environment variables and returns config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", "ragcrawler-staging"),
		AIAPIKey:     getEnv("GEMINI_API_KEY", ""),
		EmbedModel:   getEnv("EMBED_MODEL", "text-embedding-005"),
		EmbedDim:     getEnvInt("EMBED_DIM", 768),
		GenModel:     getEnv("GEN_MODEL", "gemini-1.5-flash"),
		Port:         getEnv("PORT", "8080"),

		SourcesFile:    getEnv("SOURCES_FILE", "resources/sources.json"),
		OutputDir:      getEnv("OUTPUT_DIR", "output"),
		ChunkSize:      getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 200),
		MaxPagesPerPDF: getEnvInt("MAX_PAGES_PER_PDF", 1000),

		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RequestDelay:   getEnvDuration("REQUEST_DELAY", time.Second),
		UserAgent:      getEnv("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"),

		EmbedBatchSize:   getEnvInt("EMBED_BATCH_SIZE", 100),
		EmbedTokenBudget: getEnvInt("EMBED_TOKEN_BUDGET", 18000),

		UploadBatchSize:    getEnvInt("UPLOAD_BATCH_SIZE", 100),
		ImportPollInterval: getEnvDuration("IMPORT_POLL_INTERVAL", 5*time.Second),
		ImportPollTimeout:  getEnvDuration("IMPORT_POLL_TIMEOUT", 10*time.Minute),
	}

	return cfg
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

// getEnvDuration accepts either a Go duration string ("30s") or a bare
// number of seconds ("30"), matching the original deployment's env files.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
	return def
}
