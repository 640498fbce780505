package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the full service configuration. Every key can come from an
// optional config.yaml in the working directory or an environment variable of
// the same name; env wins.
type Config struct {
	Env  string
	Port string

	DBHost string
	DBPort string
	DBName string
	DBUser string
	DBPass string

	RedisAddr string

	ScraperBaseURL string
	ScraperAPIKey  string

	EmailServiceURL string

	ExportDir string

	LogLevel string
	LogFile  string
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "places_db")
	v.SetDefault("DB_USER", "places_user")
	v.SetDefault("DB_PASS", "places")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("SCRAPER_BASE_URL", "https://scraper.tech/api")
	v.SetDefault("SCRAPER_API_KEY", "")
	v.SetDefault("EMAIL_SERVICE_URL", "http://localhost:8000")
	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	return &Config{
		Env:             v.GetString("APP_ENV"),
		Port:            v.GetString("PORT"),
		DBHost:          v.GetString("DB_HOST"),
		DBPort:          v.GetString("DB_PORT"),
		DBName:          v.GetString("DB_NAME"),
		DBUser:          v.GetString("DB_USER"),
		DBPass:          v.GetString("DB_PASS"),
		RedisAddr:       v.GetString("REDIS_ADDR"),
		ScraperBaseURL:  v.GetString("SCRAPER_BASE_URL"),
		ScraperAPIKey:   v.GetString("SCRAPER_API_KEY"),
		EmailServiceURL: v.GetString("EMAIL_SERVICE_URL"),
		ExportDir:       v.GetString("EXPORT_DIR"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFile:         v.GetString("LOG_FILE"),
	}, nil
}

// PostgresURL builds the connection string for lib/pq.
func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName)
}

// Development reports whether error messages may be surfaced unredacted.
func (c *Config) Development() bool {
	return c.Env != "production"
}
