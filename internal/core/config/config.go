// Package config provides configuration management for the sogeBot event engine.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// ServerConfig holds configuration for the gRPC admin API.
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

// BotConfig names the accounts with special capabilities.
type BotConfig struct {
	Name        string
	Broadcaster string
	Owners      []string
}

// EngineConfig tunes the decay scheduler and the operation executor.
type EngineConfig struct {
	DecayPeriod     time.Duration
	ExecutorWorkers int
	ExecutorQueue   int
}

// PlatformConfig configures the streaming platform API client.
type PlatformConfig struct {
	BaseURL           string
	ClientID          string
	Token             string
	RequestsPerSecond float64
}

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig
	DatabaseURL  string
	Bot          BotConfig
	Engine       EngineConfig
	Platform     PlatformConfig
	NATSURL      string
	MainCurrency string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			RequestTimeout: 30 * time.Second,
		},
		DatabaseURL: "sqlite://./data/sogebot.db",
		Engine: EngineConfig{
			DecayPeriod:     time.Second,
			ExecutorWorkers: 4,
			ExecutorQueue:   256,
		},
		Platform: PlatformConfig{
			BaseURL:           "https://api.twitch.tv/helix",
			RequestsPerSecond: 10,
		},
		MainCurrency: "USD",
	}
}

// HMACSecrets extracts HMAC secrets from environment variables.
// Supports SB_HMAC_SECRET (single) and SB_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are 32 hex chars matching the API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check SB_HMAC_SECRET and SB_HMAC_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
		return nil
	}

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("SB_HMAC_SECRET"); val != "" {
		if err := add("SB_HMAC_SECRET", val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets keep old and new keys valid during rotation.
	for i := 1; ; i++ {
		key := fmt.Sprintf("SB_HMAC_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecret decodes a base64-encoded HMAC secret.
func ParseHMACSecret(envValue string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envValue))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 lowercase hex chars.
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = ParseHMACSecret(parts[1])
	if err != nil {
		return "", nil, err
	}
	return secretID, secret, nil
}
