package config

import (
	"os"
	"strings"
)

type Config struct {
	Address        string
	DataDir        string
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string

	// Offsite snapshot storage (S3-compatible); disabled when no
	// credentials are configured
	OffsiteEndpoint  string
	OffsiteBucket    string
	OffsiteKeyID     string
	OffsiteKeySecret string
}

func Load() Config {
	return Config{
		Address:        getEnv("SNAPVAULT_ADDR", ":4000"),
		DataDir:        getEnv("SNAPVAULT_DATA_DIR", "./data"),
		AllowedOrigins: splitAndClean(os.Getenv("SNAPVAULT_ALLOWED_ORIGINS")),
		LogLevel:       getEnv("SNAPVAULT_LOG_LEVEL", "info"),
		LogFormat:      getEnv("SNAPVAULT_LOG_FORMAT", "json"),

		OffsiteEndpoint:  os.Getenv("SNAPVAULT_OFFSITE_ENDPOINT"),
		OffsiteBucket:    getEnv("SNAPVAULT_OFFSITE_BUCKET", "snapvault-snapshots"),
		OffsiteKeyID:     os.Getenv("SNAPVAULT_OFFSITE_KEY_ID"),
		OffsiteKeySecret: os.Getenv("SNAPVAULT_OFFSITE_KEY_SECRET"),
	}
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func splitAndClean(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
