package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// Precedence: environment > config file > defaults. Callers bind CLI flags on top.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("database.url", d.DatabaseURL)
	v.SetDefault("bot.bot_name", "")
	v.SetDefault("bot.broadcaster", "")
	v.SetDefault("bot.owners", []string{})
	v.SetDefault("engine.decay_period", d.Engine.DecayPeriod.String())
	v.SetDefault("engine.executor_workers", d.Engine.ExecutorWorkers)
	v.SetDefault("engine.executor_queue", d.Engine.ExecutorQueue)
	v.SetDefault("platform.base_url", d.Platform.BaseURL)
	v.SetDefault("platform.client_id", "")
	v.SetDefault("platform.token", "")
	v.SetDefault("platform.rate", d.Platform.RequestsPerSecond)
	v.SetDefault("bus.nats_url", "")
	v.SetDefault("main_currency", d.MainCurrency)

	// Bind environment variables with SB_ prefix
	v.SetEnvPrefix("SB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("bot.bot_name", "SB_BOT_NAME"); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets are environment-only.
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		DatabaseURL: v.GetString("database.url"),
		Bot: BotConfig{
			Name:        v.GetString("bot.bot_name"),
			Broadcaster: v.GetString("bot.broadcaster"),
			Owners:      splitList(v.GetStringSlice("bot.owners")),
		},
		Engine: EngineConfig{
			DecayPeriod:     v.GetDuration("engine.decay_period"),
			ExecutorWorkers: v.GetInt("engine.executor_workers"),
			ExecutorQueue:   v.GetInt("engine.executor_queue"),
		},
		Platform: PlatformConfig{
			BaseURL:           v.GetString("platform.base_url"),
			ClientID:          v.GetString("platform.client_id"),
			Token:             v.GetString("platform.token"),
			RequestsPerSecond: v.GetFloat64("platform.rate"),
		},
		NATSURL:      v.GetString("bus.nats_url"),
		MainCurrency: strings.ToUpper(strings.TrimSpace(v.GetString("main_currency"))),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// splitList accepts both list values and comma separated strings ("a,b").
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig checks port range and positive engine and platform limits.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database.url is required")
	}
	if cfg.Engine.DecayPeriod <= 0 {
		return fmt.Errorf("decay_period must be positive, got %v", cfg.Engine.DecayPeriod)
	}
	if cfg.Engine.ExecutorWorkers <= 0 {
		return fmt.Errorf("executor_workers must be positive, got %d", cfg.Engine.ExecutorWorkers)
	}
	if cfg.Engine.ExecutorQueue <= 0 {
		return fmt.Errorf("executor_queue must be positive, got %d", cfg.Engine.ExecutorQueue)
	}
	if cfg.Platform.RequestsPerSecond <= 0 {
		return fmt.Errorf("platform rate must be positive, got %v", cfg.Platform.RequestsPerSecond)
	}
	if len(cfg.MainCurrency) != 3 {
		return fmt.Errorf("main_currency must be a 3 letter code, got %q", cfg.MainCurrency)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
// Only the config file is inspected; SB_* environment values are allowed.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("server.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use SB_HMAC_SECRET environment variable)")
	}
	if v.InConfig("platform.token") {
		return fmt.Errorf("platform token not allowed in config files (use SB_PLATFORM_TOKEN environment variable)")
	}
	return nil
}
