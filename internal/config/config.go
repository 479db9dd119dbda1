package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all job settings, populated from environment variables.
type Config struct {
	// Mailbox.
	MailHost     string
	MailPort     string
	MailUsername string
	MailPassword string
	MailTLS      bool
	MailFolder   string
	MailFrom     string

	// Output directories, all under InputDataDir.
	InputDataDir      string
	EnergyHistoryDir  string
	WeatherDir        string
	WeatherStagingDir string

	// Weather service.
	WeatherBaseURL  string
	WeatherUsername string
	WeatherPassword string
	WeatherTimeout  time.Duration // 0 disables the client timeout
	WeatherLocation *time.Location

	MessageDelay    time.Duration
	LogLevel        string
	LogFormat       string
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// Conversion notifications, disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	weatherTimeout, err := parseDuration("WEATHER_TIMEOUT", "0s")
	if err != nil {
		return nil, err
	}

	messageDelay, err := parseDuration("MESSAGE_DELAY", "5s")
	if err != nil {
		return nil, err
	}

	tz := sharedcfg.EnvOrDefault("WEATHER_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid WEATHER_TIMEZONE %q: %w", tz, err)
	}

	mailTLS, err := strconv.ParseBool(sharedcfg.EnvOrDefault("MAIL_TLS", "true"))
	if err != nil {
		return nil, errors.New("invalid MAIL_TLS")
	}

	dataDir := os.Getenv("INPUT_DATA_DIR")

	cfg := &Config{
		MailHost:     os.Getenv("MAIL_HOST"),
		MailPort:     sharedcfg.EnvOrDefault("MAIL_PORT", "993"),
		MailUsername: os.Getenv("MAIL_USERNAME"),
		MailPassword: os.Getenv("MAIL_PASSWORD"),
		MailTLS:      mailTLS,
		MailFolder:   sharedcfg.EnvOrDefault("MAIL_FOLDER", "INBOX"),
		MailFrom:     os.Getenv("MAIL_FROM"),

		InputDataDir:      dataDir,
		EnergyHistoryDir:  filepath.Join(dataDir, "energyHistory"),
		WeatherDir:        filepath.Join(dataDir, "weather"),
		WeatherStagingDir: filepath.Join(dataDir, "weather_temp"),

		WeatherBaseURL:  strings.TrimRight(os.Getenv("WEATHER_BASE_URL"), "/"),
		WeatherUsername: os.Getenv("WEATHER_USERNAME"),
		WeatherPassword: os.Getenv("WEATHER_PASSWORD"),
		WeatherTimeout:  weatherTimeout,
		WeatherLocation: loc,

		MessageDelay:    messageDelay,
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers: sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "converted-attachments"),
	}

	required := []struct{ name, value string }{
		{"MAIL_HOST", cfg.MailHost},
		{"MAIL_USERNAME", cfg.MailUsername},
		{"MAIL_PASSWORD", cfg.MailPassword},
		{"MAIL_FROM", cfg.MailFrom},
		{"INPUT_DATA_DIR", cfg.InputDataDir},
		{"WEATHER_BASE_URL", cfg.WeatherBaseURL},
	}
	for _, r := range required {
		if r.value == "" {
			return nil, fmt.Errorf("%s is required", r.name)
		}
	}

	return cfg, nil
}

// NotificationsEnabled reports whether converted files are announced on Kafka.
func (c *Config) NotificationsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// parseDuration reads a non-negative duration; zero is allowed.
func parseDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return d, nil
}
