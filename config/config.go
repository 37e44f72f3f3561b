package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cvreview/pkg/logger"

	"github.com/joho/godotenv"
)

type Database struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	SSLMode  string
}

// DSN is the lib/pq connection URL.
func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type Config struct {
	Addr       string
	Database   Database
	JWTSecret  string
	SessionTTL time.Duration
	CORSOrigin string

	// Google OAuth
	GoogleClientID     string
	GoogleClientSecret string
	RedirectURI        string
	BaseDomain         string

	OpenAIKey   string
	OpenAIModel string

	// Client side
	ReviewAPIURL    string
	ReviewUserID    string
	ReviewWorkspace string
	AutosaveDelay   time.Duration
}

// Load reads the environment, after merging a .env file if one exists.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	return Config{
		Addr: getenv("API_ADDR", ":8080"),
		Database: Database{
			User:     getenv("user", "postgres"),
			Password: getenv("password", ""),
			Host:     getenv("host", "localhost"),
			Port:     getenv("port", "5432"),
			Name:     getenv("dbname", "postgres"),
			SSLMode:  getenv("sslmode", "require"),
		},
		JWTSecret:          getenv("JWT_SECRET", "cvreview-dev-secret"),
		SessionTTL:         time.Duration(getenvInt("SESSION_TTL_SECONDS", 86400)) * time.Second,
		CORSOrigin:         getenv("CORS_ORIGIN", "*"),
		GoogleClientID:     getenv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getenv("GOOGLE_CLIENT_SECRET", ""),
		RedirectURI:        getenv("REDIRECT_URI", "http://localhost:8080/auth/callback"),
		BaseDomain:         getenv("BASE_DOMAIN", "http://localhost:3000"),
		OpenAIKey:          getenv("OPENAI_API_KEY", ""),
		OpenAIModel:        getenv("OPENAI_MODEL", "gpt-4o"),
		ReviewAPIURL:       getenv("REVIEW_API_URL", "http://localhost:8080"),
		ReviewUserID:       getenv("REVIEW_USER_ID", ""),
		ReviewWorkspace:    getenv("REVIEW_WORKSPACE", ""),
		AutosaveDelay:      time.Duration(getenvInt("AUTOSAVE_DELAY_MS", 1000)) * time.Millisecond,
	}
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := getenv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logger.Sugar.Warnf("Ignoring invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return parsed
}
