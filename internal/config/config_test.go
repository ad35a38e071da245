package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}

		want := domain.DefaultConfig()
		if cfg.Tier != domain.TierCommunity {
			t.Errorf("expected community tier, got %s", cfg.Tier)
		}
		if cfg.Server.Port != want.Server.Port {
			t.Errorf("expected port %d, got %d", want.Server.Port, cfg.Server.Port)
		}
		if cfg.Repository.Driver != "sqlite" || cfg.EventBus.Type != "channel" {
			t.Errorf("unexpected community backends: %s / %s", cfg.Repository.Driver, cfg.EventBus.Type)
		}
		if cfg.Cache.SessionTTL != 30*time.Minute {
			t.Errorf("expected session TTL 30m, got %s", cfg.Cache.SessionTTL)
		}
		if cfg.Engine.Fraud.HighRiskScore != 60 || cfg.Engine.Fraud.FraudulentScore != 70 {
			t.Errorf("unexpected fraud cutoffs: %+v", cfg.Engine.Fraud)
		}
		if cfg.Engine.Collection.Recovery.MaxProbability != 0.95 {
			t.Errorf("expected nested recovery defaults, got %+v", cfg.Engine.Collection.Recovery)
		}
	})

	t.Run("ProTierFromEnv", func(t *testing.T) {
		t.Setenv("KESTREL_TIER", "pro")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Tier != domain.TierPro {
			t.Errorf("expected pro tier, got %s", cfg.Tier)
		}
		if cfg.Repository.Driver != "postgres" || cfg.Cache.Type != "redis" || cfg.EventBus.Type != "nats" {
			t.Errorf("unexpected pro backends: %s / %s / %s", cfg.Repository.Driver, cfg.Cache.Type, cfg.EventBus.Type)
		}
		if cfg.EventBus.NATSQueueGroup != "kestrel" {
			t.Errorf("expected queue group 'kestrel', got %q", cfg.EventBus.NATSQueueGroup)
		}
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("KESTREL_SERVER_PORT", "9090")
		t.Setenv("KESTREL_ENGINE_FRAUD_VPNWEIGHT", "25")
		t.Setenv("KESTREL_CACHE_SESSIONTTL", "10m")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Engine.Fraud.VPNWeight != 25 {
			t.Errorf("expected VPN weight 25, got %d", cfg.Engine.Fraud.VPNWeight)
		}
		if cfg.Cache.SessionTTL != 10*time.Minute {
			t.Errorf("expected session TTL 10m, got %s", cfg.Cache.SessionTTL)
		}
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "kestrel.yaml")
		content := `
server:
  port: 7070
engine:
  fraud:
    highValueThreshold: 50000
    customRules:
      - id: velocity
        name: Burst of checks
        expression: "velocity_count > 5"
        weight: 30
logging:
  level: debug
  format: text
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Errorf("expected port 7070, got %d", cfg.Server.Port)
		}
		if cfg.Engine.Fraud.HighValueThreshold != 50000 {
			t.Errorf("expected threshold 50000, got %v", cfg.Engine.Fraud.HighValueThreshold)
		}
		if cfg.Engine.Fraud.VPNWeight != 15 {
			t.Errorf("expected untouched VPN weight 15, got %d", cfg.Engine.Fraud.VPNWeight)
		}
		if len(cfg.Engine.Fraud.CustomRules) != 1 || cfg.Engine.Fraud.CustomRules[0].Weight != 30 {
			t.Errorf("expected one custom rule, got %+v", cfg.Engine.Fraud.CustomRules)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("InvalidEngine", func(t *testing.T) {
		t.Setenv("KESTREL_ENGINE_FRAUD_HIGHRISKSCORE", "10")

		_, err := Load("")
		if !errors.Is(err, domain.ErrConfiguration) {
			t.Fatalf("expected configuration error, got %v", err)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.Config)
	}{
		{"UnknownTier", func(c *domain.Config) { c.Tier = "enterprise" }},
		{"BadPort", func(c *domain.Config) { c.Server.Port = 0 }},
		{"NoBodyLimit", func(c *domain.Config) { c.Server.MaxBodyBytes = 0 }},
		{"BadLogLevel", func(c *domain.Config) { c.Logging.Level = "loud" }},
		{"BadEngine", func(c *domain.Config) { c.Engine.Behavior.MinElapsedMs = 0 }},
	}

	if err := Validate(domain.DefaultConfig()); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}
	if err := Validate(domain.ProConfig()); err != nil {
		t.Fatalf("pro config must be valid: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	NewLogger(domain.LoggingConfig{Level: "warn", Format: "json"}, &buf).Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info must be filtered at warn level, got %q", buf.String())
	}

	NewLogger(domain.LoggingConfig{Level: "debug", Format: "json"}, &buf).Debug("shown", "case_id", "c-1")
	if !strings.Contains(buf.String(), `"case_id":"c-1"`) {
		t.Errorf("expected JSON record, got %q", buf.String())
	}

	buf.Reset()
	NewLogger(domain.LoggingConfig{Level: "info", Format: "text"}, &buf).Info("shown")
	if !strings.Contains(buf.String(), "msg=shown") {
		t.Errorf("expected text record, got %q", buf.String())
	}
}
