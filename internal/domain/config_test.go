package domain

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Tier != TierCommunity {
			t.Errorf("expected community tier, got %s", cfg.Tier)
		}
		if cfg.Server.Port != 8080 {
			t.Errorf("expected port 8080, got %d", cfg.Server.Port)
		}
		if cfg.Bulk.MaxRows != 10000 {
			t.Errorf("expected 10000 max rows, got %d", cfg.Bulk.MaxRows)
		}
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("KESTREL_SERVER_PORT", "9090")
		t.Setenv("KESTREL_SCORING_SEED", "42")
		t.Setenv("KESTREL_TRAINING_EPOCHS", "7")
		t.Setenv("KESTREL_TRAINING_EPOCH_DELAY", "250ms")
		t.Setenv("KESTREL_DEBUG", "true")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Scoring.Seed != 42 {
			t.Errorf("expected seed 42, got %d", cfg.Scoring.Seed)
		}
		if cfg.Training.Epochs != 7 || cfg.Training.EpochDelay != 250*time.Millisecond {
			t.Errorf("unexpected training config: %+v", cfg.Training)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug level, got %s", cfg.Logging.Level)
		}
	})

	t.Run("ProTier", func(t *testing.T) {
		t.Setenv("KESTREL_TIER", "pro")

		cfg, err := LoadConfig()
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Repository.Driver != "postgres" {
			t.Errorf("expected postgres driver, got %s", cfg.Repository.Driver)
		}
		if cfg.Cache.Type != "redis" || !cfg.Cache.EnableTwoPhase {
			t.Errorf("unexpected cache config: %+v", cfg.Cache)
		}
		if cfg.EventBus.Type != "nats" {
			t.Errorf("expected nats bus, got %s", cfg.EventBus.Type)
		}
	})

	t.Run("InvalidValue", func(t *testing.T) {
		t.Setenv("KESTREL_SERVER_PORT", "not-a-port")

		if _, err := LoadConfig(); err == nil {
			t.Error("expected error for invalid port")
		}
	})
}

func TestScoringDomainValid(t *testing.T) {
	for _, d := range Domains() {
		if !d.Valid() {
			t.Errorf("expected %s to be valid", d)
		}
	}
	if ScoringDomain("fraud").Valid() {
		t.Error("expected unknown domain to be invalid")
	}
}
