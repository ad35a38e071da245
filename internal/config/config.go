// Package config loads the service configuration from defaults, an optional
// file and KESTREL_* environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
// Nested keys join with underscores: KESTREL_SERVER_PORT, KESTREL_ENGINE_FRAUD_VPNWEIGHT.
const EnvPrefix = "KESTREL"

// Load builds the configuration. path may be empty.
// The tier (file or KESTREL_TIER) selects the base defaults; the file and
// the environment then override individual keys.
func Load(path string) (*domain.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	base := domain.DefaultConfig()
	if domain.Tier(strings.ToLower(v.GetString("tier"))) == domain.TierPro {
		base = domain.ProConfig()
	}
	registerDefaults(v, "", reflect.ValueOf(*base))

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Tier = domain.Tier(strings.ToLower(string(cfg.Tier)))

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerDefaults walks the config struct so viper knows every key.
// AutomaticEnv only resolves keys viper has seen.
func registerDefaults(v *viper.Viper, prefix string, val reflect.Value) {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("mapstructure")
		if name == "" || name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}

		fv := val.Field(i)
		if fv.Kind() == reflect.Struct {
			registerDefaults(v, key, fv)
			continue
		}
		v.SetDefault(key, fv.Interface())
	}
}

// Validate checks the parts of the configuration a process cannot start without.
func Validate(cfg *domain.Config) error {
	switch cfg.Tier {
	case domain.TierCommunity, domain.TierPro:
	default:
		return domain.NewConfigurationError("tier", "unknown tier %q", cfg.Tier)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return domain.NewConfigurationError("server", "port %d out of range", cfg.Server.Port)
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return domain.NewConfigurationError("server", "maxBodyBytes must be positive")
	}
	if _, err := parseLevel(cfg.Logging.Level); err != nil {
		return err
	}
	return cfg.Engine.Validate()
}

// NewLogger builds the process logger. Format "text" selects the text
// handler; anything else logs JSON.
func NewLogger(cfg domain.LoggingConfig, w io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, domain.NewConfigurationError("logging", "unknown level %q", s)
}
