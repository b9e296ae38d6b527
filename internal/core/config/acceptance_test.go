package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestConfigPrecedence covers secret handling and source precedence.
func TestConfigPrecedence(t *testing.T) {
	t.Run("SB_HMAC_SECRET accessible via HMACSecrets", func(t *testing.T) {
		t.Setenv("SB_HMAC_SECRET", "0123456789abcdef0123456789abcdef:dGVzdHNlY3JldDEyMzQ1Njc4OTBhYmNkZWZnaGlqa2xtbm9w")

		secrets, err := HMACSecrets()
		if err != nil {
			t.Fatalf("HMACSecrets() error = %v, want nil", err)
		}
		if _, ok := secrets["0123456789abcdef0123456789abcdef"]; !ok {
			t.Fatal("secret not accessible")
		}

		// The same env var must not trip the config file check.
		if _, err := LoadConfig(""); err != nil {
			t.Fatalf("LoadConfig() error = %v, want nil", err)
		}
	})

	t.Run("config file with hmac_secret rejected with clear error", func(t *testing.T) {
		path := writeConfig(t, `server:
  host: "localhost"
  port: 8080
hmac_secret: "should_be_rejected"
`)

		_, err := LoadConfig(path)
		if err == nil {
			t.Fatal("expected error for secret in config file")
		}
		if err.Error() != "HMAC secrets not allowed in config files (use SB_HMAC_SECRET environment variable)" {
			t.Fatalf("wrong error message: %v", err)
		}
	})

	t.Run("config file with platform token rejected", func(t *testing.T) {
		path := writeConfig(t, `platform:
  client_id: "abc"
  token: "oauth:nope"
`)

		if _, err := LoadConfig(path); err == nil {
			t.Fatal("expected error for platform token in config file")
		}
	})

	t.Run("config file values load", func(t *testing.T) {
		path := writeConfig(t, `bot:
  bot_name: sogebot
  broadcaster: streamer
  owners: [alice, bob]
engine:
  executor_workers: 8
bus:
  nats_url: nats://localhost:4222
`)

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v, want nil", err)
		}
		if cfg.Bot.Name != "sogebot" || cfg.Bot.Broadcaster != "streamer" {
			t.Errorf("bot = %+v", cfg.Bot)
		}
		if len(cfg.Bot.Owners) != 2 {
			t.Errorf("owners = %v, want 2 entries", cfg.Bot.Owners)
		}
		if cfg.Engine.ExecutorWorkers != 8 {
			t.Errorf("executor_workers = %d, want 8", cfg.Engine.ExecutorWorkers)
		}
		if cfg.NATSURL != "nats://localhost:4222" {
			t.Errorf("nats url = %q", cfg.NATSURL)
		}
	})

	t.Run("environment overrides config file", func(t *testing.T) {
		t.Setenv("SB_SERVER_PORT", "8080")
		path := writeConfig(t, `server:
  port: 9090
`)

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v, want nil", err)
		}
		if cfg.Server.Port != 8080 {
			t.Fatalf("environment should override config file, expected 8080, got %d", cfg.Server.Port)
		}
	})
}
