// Package config loads the server configuration from the environment, with a
// .env file overlay for development.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config is the full server configuration. Key material lives on disk under
// KeyDir and is loaded once at startup.
type Config struct {
	Host string
	Port string

	DatabaseURI      string
	DatabaseUsername string
	DatabasePassword string

	BasePath string
	BaseURL  string

	APNSKeyID  string
	APNSTeamID string

	KeyDir      string
	EvidenceDir string
}

// Load reads .env when present and resolves every variable with its default.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Host:             getenv("HOST", "127.0.0.1"),
		Port:             getenv("PORT", "8000"),
		DatabaseURI:      getenv("DATABASE_URI", "mongodb://localhost:27017"),
		DatabaseUsername: os.Getenv("DATABASE_USERNAME"),
		DatabasePassword: os.Getenv("DATABASE_PASSWORD"),
		BasePath:         os.Getenv("BASE_PATH"),
		BaseURL:          getenv("BASE_URL", "http://localhost:8000"),
		APNSKeyID:        os.Getenv("APNS_KEY"),
		APNSTeamID:       os.Getenv("APNS_TEAM"),
		KeyDir:           getenv("KEY_DIR", "./keys"),
		EvidenceDir:      getenv("EVIDENCE_DIR", "./evidence"),
	}
}

// Addr is the host:port bind address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
