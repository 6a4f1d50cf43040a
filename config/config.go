package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"policylens/types"
)

// Config carries everything the process reads from the environment. It is
// loaded once in main and passed down; nothing mutates it at runtime.
type Config struct {
	Mode string // "dev" or "prod", selects the log encoder

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers    []string
	ExtractionTopic string
	ConsumerGroup   string

	CohereAPIKey    string
	ExtractionModel string

	// Optional raw-document archive. Disabled when Bucket is empty.
	S3Bucket       string
	S3Region       string
	S3Prefix       string
	S3UsePathStyle bool

	APIAddr string

	FetchConcurrency int
	PerSourceDelay   time.Duration
	MaxFetchAttempts int

	ScheduleInterval time.Duration

	Targets []types.Target
}

// DefaultTargets is the built-in source list, mirroring the feeds and pages
// the service was stood up for. TARGET_FILTER narrows a run to one source.
var DefaultTargets = []types.Target{
	{Name: "bbc_news", SourceType: types.SourceRSS, URL: "https://feeds.bbci.co.uk/news/technology/rss.xml", Country: "GB", MaxItems: 25},
	{Name: "mit_tech_review", SourceType: types.SourceRSS, URL: "https://www.technologyreview.com/feed/", Country: "US", MaxItems: 25},
	{Name: "oecd_ai", SourceType: types.SourceHTML, URL: "https://oecd.ai/en/policy-areas", Country: "", MaxItems: 50},
	{Name: "stanford_hai", SourceType: types.SourceHTML, URL: "https://hai.stanford.edu/news", Country: "US", MaxItems: 30},
}

// Load reads configuration from the environment, consulting .env first
// (missing .env is not an error). It fails only on values that make the
// process unable to start.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dsn := getEnv("POSTGRES_URL", "")
	if dsn == "" {
		return nil, fmt.Errorf("POSTGRES_URL is required")
	}

	cfg := &Config{
		Mode:        getEnv("APP_MODE", "dev"),
		PostgresDSN: dsn,

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASS", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		KafkaBrokers:    splitList(getEnv("KAFKA_BROKERS", "localhost:9092")),
		ExtractionTopic: getEnv("EXTRACTION_TOPIC", "policylens.extraction"),
		ConsumerGroup:   getEnv("EXTRACTION_GROUP", "policylens-extractors"),

		CohereAPIKey:    getEnv("COHERE_API_KEY", ""),
		ExtractionModel: getEnv("EXTRACTION_MODEL", "command-r-08-2024"),

		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3Region:       getEnv("S3_REGION", ""),
		S3Prefix:       normalizePrefix(getEnv("S3_PREFIX", "")),
		S3UsePathStyle: strings.EqualFold(getEnv("S3_USE_PATH_STYLE", ""), "true"),

		APIAddr: ":" + getEnv("PORT", "8080"),

		FetchConcurrency: getEnvInt("FETCH_CONCURRENCY", GlobalFetchConcurrency),
		PerSourceDelay:   getEnvDuration("PER_SOURCE_DELAY", PerSourceDelay),
		MaxFetchAttempts: getEnvInt("MAX_FETCH_ATTEMPTS", MaxFetchAttempts),

		ScheduleInterval: getEnvDuration("SCHEDULE_INTERVAL", 6*time.Hour),

		Targets: filterTargets(DefaultTargets, getEnv("TARGET_FILTER", "")),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

func filterTargets(all []types.Target, filter string) []types.Target {
	if filter == "" {
		return all
	}
	var out []types.Target
	for _, t := range all {
		if t.Name == filter {
			out = append(out, t)
		}
	}
	return out
}
