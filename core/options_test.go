package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingRawLoader struct{}

func (failingRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return nil, errors.New("config source unavailable")
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}
	if cfg.Message.Prefix != DefaultMessagePrefix {
		t.Fatalf("expected default prefix, got %q", cfg.Message.Prefix)
	}
	if err := cfg.RequireCompany(); err == nil {
		t.Fatalf("expected missing company error")
	}
}

func TestConfigValidate_RejectsInvalidPublisher(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Publisher.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected max attempts error")
	}
	cfg = DefaultConfig()
	cfg.Publisher.InitialBackoff = time.Minute
	cfg.Publisher.MaxBackoff = time.Second
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected backoff ordering error")
	}
}

func TestResolveConfig_RuntimeOverridesDefaults(t *testing.T) {
	cfg, err := ResolveConfig(context.Background(), nil, nil, Config{
		CompanyStaticID: "requester",
		Publisher:       PublisherConfig{MaxAttempts: 5},
	})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.CompanyStaticID != "requester" {
		t.Fatalf("expected runtime company id, got %q", cfg.CompanyStaticID)
	}
	if cfg.ServiceName != "rfp" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.Publisher.MaxAttempts != 5 {
		t.Fatalf("expected runtime max attempts, got %d", cfg.Publisher.MaxAttempts)
	}
	if cfg.Message.Prefix != DefaultMessagePrefix {
		t.Fatalf("expected default prefix, got %q", cfg.Message.Prefix)
	}
}

func TestCfgxConfigProvider_LoadsRawValues(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"service_name":      "rfp-bank",
		"company_static_id": "bank1",
	}})
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "rfp-bank" || cfg.CompanyStaticID != "bank1" {
		t.Fatalf("unexpected loaded config: %+v", cfg)
	}
}

func TestCfgxConfigProvider_PropagatesLoaderErrors(t *testing.T) {
	provider := NewCfgxConfigProvider(failingRawLoader{})
	if _, err := provider.Load(context.Background(), DefaultConfig()); err == nil {
		t.Fatalf("expected loader error")
	}
}
