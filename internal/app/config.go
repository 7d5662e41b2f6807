package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr           string
	MongoURI           string
	MongoDatabase      string
	LogLevel           string
	LogFormat          string
	DataDir            string
	APIToken           string
	TorrentPort        int
	NoUpload           bool
	ReadinessTimeout   time.Duration
	MetadataTimeout    time.Duration
	IdleTimeout        time.Duration // 0 = idle eviction disabled
	MaxSessions        int           // 0 = unlimited
	ReadaheadBytes     int64
	ResumeMinRatio     float64
	ResumeMaxRatio     float64
	CORSAllowedOrigins []string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		MongoURI:           getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getEnv("MONGO_DB", "streamgate"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		DataDir:            getEnv("DATA_DIR", "data"),
		APIToken:           strings.TrimSpace(os.Getenv("API_TOKEN")),
		TorrentPort:        int(getEnvInt64("TORRENT_PORT", 0)),
		NoUpload:           getEnvBool("TORRENT_NO_UPLOAD", false),
		ReadinessTimeout:   time.Duration(getEnvInt64("READY_TIMEOUT_SECONDS", 25)) * time.Second,
		MetadataTimeout:    time.Duration(getEnvInt64("METADATA_TIMEOUT_SECONDS", 600)) * time.Second,
		IdleTimeout:        time.Duration(getEnvInt64("SESSION_IDLE_TIMEOUT_SECONDS", 0)) * time.Second,
		MaxSessions:        int(getEnvInt64("MAX_SESSIONS", 0)),
		ReadaheadBytes:     getEnvInt64("STREAM_READAHEAD_BYTES", 0),
		ResumeMinRatio:     getEnvFloat("RESUME_MIN_RATIO", 0.02),
		ResumeMaxRatio:     getEnvFloat("RESUME_MAX_RATIO", 0.95),
		CORSAllowedOrigins: parseCommaSeparated(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseCommaSeparated(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
