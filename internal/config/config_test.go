package config

import "testing"

func TestNewDefaults(t *testing.T) {
	cfg, err := New(nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("expected default port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.CacheSize != DefaultCacheSize {
		t.Errorf("expected default cache size %d, got %d", DefaultCacheSize, cfg.CacheSize)
	}
}

func TestNewPortOnly(t *testing.T) {
	cfg, err := New([]string{"9001"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 9001 {
		t.Errorf("expected port 9001, got %d", cfg.Port)
	}
	if cfg.CacheSize != DefaultCacheSize {
		t.Errorf("expected default cache size, got %d", cfg.CacheSize)
	}
}

func TestNewPortAndCacheSize(t *testing.T) {
	cfg, err := New([]string{"9001", "50"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 9001 || cfg.CacheSize != 50 {
		t.Errorf("expected {9001 50}, got %+v", cfg)
	}
}

func TestNewTooManyArgs(t *testing.T) {
	_, err := New([]string{"1", "2", "3"})
	if err == nil {
		t.Fatal("expected ErrUsage, got nil")
	}
}

func TestNewNonIntegerArg(t *testing.T) {
	_, err := New([]string{"not-a-port"})
	if err == nil {
		t.Fatal("expected ErrUsage, got nil")
	}
}

func TestGetAfterNew(t *testing.T) {
	if _, err := New([]string{"7777"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Get().Port; got != 7777 {
		t.Errorf("expected 7777, got %d", got)
	}
}
