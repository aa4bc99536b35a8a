package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "CACHE_NAME", "ARIA_USER_ID", "TYPING_DELAY", "TOAST_DURATION",
		"ARIA_MESSAGE_ENDPOINT", "ARIA_TASK_ENDPOINT", "ARIA_PUSH_ENDPOINT", "SHELL_ORIGIN", "INSTALL_MAX_RETRIES", "FRONTEND_URL"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Shell.CacheName != "aria-pwa-v1" {
		t.Errorf("CacheName = %q, want aria-pwa-v1", cfg.Shell.CacheName)
	}
	if cfg.Webhook.UserID != "priya" {
		t.Errorf("UserID = %q, want priya", cfg.Webhook.UserID)
	}
	if cfg.Chat.TypingDelay != 300*time.Millisecond {
		t.Errorf("TypingDelay = %v, want 300ms", cfg.Chat.TypingDelay)
	}
	if cfg.Chat.ToastDuration != 2*time.Second {
		t.Errorf("ToastDuration = %v, want 2s", cfg.Chat.ToastDuration)
	}
	if !cfg.IsDevelopment() {
		t.Error("empty FRONTEND_URL should be development")
	}
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CACHE_NAME", "aria-pwa-v2")
	t.Setenv("TYPING_DELAY", "1s")
	t.Setenv("ARIA_TASK_ENDPOINT", "https://hooks.example/task")

	cfg, err := Load([]string{"--port", "9100", "--routine", "/etc/aria/routine.yaml"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("Port = %q, flag should win over env", cfg.Port)
	}
	if cfg.Shell.CacheName != "aria-pwa-v2" {
		t.Errorf("CacheName = %q", cfg.Shell.CacheName)
	}
	if cfg.Chat.TypingDelay != time.Second {
		t.Errorf("TypingDelay = %v", cfg.Chat.TypingDelay)
	}
	if cfg.Chat.RoutinePath != "/etc/aria/routine.yaml" {
		t.Errorf("RoutinePath = %q", cfg.Chat.RoutinePath)
	}
	if cfg.Webhook.TaskEndpoint != "https://hooks.example/task" {
		t.Errorf("TaskEndpoint = %q", cfg.Webhook.TaskEndpoint)
	}
}

func TestLoad_UnknownFlag(t *testing.T) {
	if _, err := Load([]string{"--nope"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:   "8080",
			DBPath: "./data/aria.db",
			Shell:  ShellConfig{CacheName: "aria-pwa-v1"},
			Chat:   ChatConfig{TypingDelay: 300 * time.Millisecond, ToastDuration: 2 * time.Second},
			Retry:  RetryConfig{InstallMaxRetries: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"empty port", func(c *Config) { c.Port = "" }, true},
		{"empty db", func(c *Config) { c.DBPath = "" }, true},
		{"empty cache name", func(c *Config) { c.Shell.CacheName = "" }, true},
		{"zero retries", func(c *Config) { c.Retry.InstallMaxRetries = 0 }, true},
		{"zero toast", func(c *Config) { c.Chat.ToastDuration = 0 }, true},
		{"https endpoint", func(c *Config) { c.Webhook.MessageEndpoint = "https://hooks.example/message" }, false},
		{"invalid endpoint", func(c *Config) { c.Webhook.MessageEndpoint = "not a url" }, true},
		{"ftp endpoint", func(c *Config) { c.Webhook.PushEndpoint = "ftp://hooks.example/push" }, true},
		{"hostless origin", func(c *Config) { c.Shell.Origin = "http://" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRoutine(t *testing.T) {
	groups, err := LoadRoutine("")
	if err != nil {
		t.Fatalf("LoadRoutine(\"\") error = %v", err)
	}
	if len(groups) != len(DefaultRoutine()) {
		t.Errorf("expected default routine, got %d groups", len(groups))
	}

	path := filepath.Join(t.TempDir(), "routine.yaml")
	doc := `groups:
  - id: morning
    title: Morning
    tasks:
      - id: 11
        title: Meds
      - title: Stretch
        completed: true
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	groups, err = LoadRoutine(path)
	if err != nil {
		t.Fatalf("LoadRoutine() error = %v", err)
	}
	if len(groups) != 1 || len(groups[0].Tasks) != 2 {
		t.Fatalf("unexpected routine %+v", groups)
	}
	if groups[0].Tasks[0].ID != 11 || groups[0].Tasks[1].ID != 0 || !groups[0].Tasks[1].Completed {
		t.Errorf("unexpected tasks %+v", groups[0].Tasks)
	}
	if groups[0].Badge() != "1 of 2" {
		t.Errorf("Badge() = %q", groups[0].Badge())
	}

	if _, err := LoadRoutine(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseRoutine_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":     ``,
		"no groups": `groups: []`,
		"no id":     "groups:\n  - title: Morning\n",
		"duplicate": "groups:\n  - id: a\n  - id: a\n",
		"negative":  "groups:\n  - id: a\n    tasks:\n      - id: -1\n        title: x\n",
		"bad yaml":  "groups: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseRoutine([]byte(doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
