// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Shell       ShellConfig
	Webhook     WebhookConfig
	Chat        ChatConfig
	Retry       RetryConfig

	VAPIDPublicKey string
}

// ShellConfig controls the offline app shell cache.
type ShellConfig struct {
	CacheName string
	// Origin is the base URL the shell is fetched from. Empty serves the
	// embedded build.
	Origin string
}

// WebhookConfig holds the outbound webhook endpoints. Empty means simulated.
type WebhookConfig struct {
	MessageEndpoint string
	TaskEndpoint    string
	PushEndpoint    string
	UserID          string
}

// ChatConfig controls chat pacing and content.
type ChatConfig struct {
	TypingDelay   time.Duration
	ToastDuration time.Duration
	Greeting      string
	RoutinePath   string
}

// RetryConfig controls retries of shell installs that hit a busy database.
type RetryConfig struct {
	InstallMaxRetries     int
	InstallRetryBaseDelay time.Duration
}

// Load reads configuration from environment variables, then applies
// command-line overrides from args (without the program name).
func Load(args []string) (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/aria.db"),
		Shell: ShellConfig{
			CacheName: getEnv("CACHE_NAME", "aria-pwa-v1"),
			Origin:    getEnv("SHELL_ORIGIN", ""),
		},
		Webhook: WebhookConfig{
			MessageEndpoint: getEnv("ARIA_MESSAGE_ENDPOINT", ""),
			TaskEndpoint:    getEnv("ARIA_TASK_ENDPOINT", ""),
			PushEndpoint:    getEnv("ARIA_PUSH_ENDPOINT", ""),
			UserID:          getEnv("ARIA_USER_ID", "priya"),
		},
		Chat: ChatConfig{
			TypingDelay:   getEnvDuration("TYPING_DELAY", 300*time.Millisecond),
			ToastDuration: getEnvDuration("TOAST_DURATION", 2*time.Second),
			Greeting:      getEnv("ARIA_GREETING", "Good morning! Here's your routine for today."),
			RoutinePath:   getEnv("ROUTINE_PATH", ""),
		},
		Retry: RetryConfig{
			InstallMaxRetries:     getEnvInt("INSTALL_MAX_RETRIES", 3),
			InstallRetryBaseDelay: getEnvDuration("INSTALL_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
		VAPIDPublicKey: getEnv("VAPID_PUBLIC_KEY", ""),
	}

	fs := pflag.NewFlagSet("aria", pflag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite cache database path")
	fs.StringVar(&cfg.Chat.RoutinePath, "routine", cfg.Chat.RoutinePath, "routine YAML file")
	fs.StringVar(&cfg.Shell.CacheName, "cache-name", cfg.Shell.CacheName, "app shell cache generation name")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH cannot be empty")
	}
	if c.Shell.CacheName == "" {
		return errors.New("CACHE_NAME cannot be empty")
	}
	if c.Retry.InstallMaxRetries <= 0 {
		return errors.New("INSTALL_MAX_RETRIES must be > 0")
	}
	if c.Chat.TypingDelay < 0 || c.Chat.ToastDuration <= 0 {
		return errors.New("TYPING_DELAY must be >= 0 and TOAST_DURATION > 0")
	}

	endpoints := []struct{ name, value string }{
		{"SHELL_ORIGIN", c.Shell.Origin},
		{"ARIA_MESSAGE_ENDPOINT", c.Webhook.MessageEndpoint},
		{"ARIA_TASK_ENDPOINT", c.Webhook.TaskEndpoint},
		{"ARIA_PUSH_ENDPOINT", c.Webhook.PushEndpoint},
	}
	for _, e := range endpoints {
		if e.value == "" {
			continue
		}
		if err := validateURL(e.value); err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
