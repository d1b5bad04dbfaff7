package config

import "testing"

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("", Config{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.MaxSessions != 100 {
		t.Fatalf("expected default maxSessions 100, got %d", cfg.Session.MaxSessions)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("expected default logging level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("HARVEST_SESSION_MAX_SESSIONS", "42")
	cfg, err := Load("", Config{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.MaxSessions != 42 {
		t.Fatalf("expected env override to 42, got %d", cfg.Session.MaxSessions)
	}
}

func TestLoadOverridesWinOverEnv(t *testing.T) {
	t.Setenv("HARVEST_SESSION_MAX_SESSIONS", "42")
	cfg, err := Load("", Config{Session: SessionConfig{MaxSessions: 7}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.MaxSessions != 7 {
		t.Fatalf("expected explicit override to win, got %d", cfg.Session.MaxSessions)
	}
}

func TestLoadRejectsOutOfRangeValues(t *testing.T) {
	_, err := Load("", Config{Session: SessionConfig{MaxSessions: 5000}})
	if err == nil {
		t.Fatal("expected validation error for out-of-range maxSessions")
	}
}

func TestInitializeTwiceFails(t *testing.T) {
	resetForTest()
	defer resetForTest()
	if _, err := Initialize("", Config{}); err != nil {
		t.Fatalf("first Initialize: %v", err)
	}
	if _, err := Initialize("", Config{}); err == nil {
		t.Fatal("expected AlreadyInitialized on second Initialize")
	}
}
