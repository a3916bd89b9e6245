package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Domain != DefaultDomain {
		t.Errorf("Domain = %s, want %s", cfg.Domain, DefaultDomain)
	}
	if cfg.MaxParticipants != DefaultMaxParticipants {
		t.Errorf("MaxParticipants = %d, want %d", cfg.MaxParticipants, DefaultMaxParticipants)
	}
	if cfg.MaxRetryAttempts != DefaultMaxRetryAttempts {
		t.Errorf("MaxRetryAttempts = %d, want %d", cfg.MaxRetryAttempts, DefaultMaxRetryAttempts)
	}
	if cfg.RetryBaseDelay != DefaultRetryBaseDelay {
		t.Errorf("RetryBaseDelay = %v, want %v", cfg.RetryBaseDelay, DefaultRetryBaseDelay)
	}
	if cfg.WebSocketURL != "wss://"+DefaultDomain+"/ws" {
		t.Errorf("WebSocketURL = %s", cfg.WebSocketURL)
	}
	if cfg.APIBaseURL != "https://"+DefaultDomain {
		t.Errorf("APIBaseURL = %s", cfg.APIBaseURL)
	}
}

func TestLoadFlagBeatsEnv(t *testing.T) {
	t.Setenv("DOMAIN", "env.example.org")

	cfg, err := Load(Options{Domain: "flag.example.org"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Domain != "flag.example.org" {
		t.Errorf("Domain = %s, want the flag value", cfg.Domain)
	}
}

func TestLoadEnvBeatsDefault(t *testing.T) {
	t.Setenv("DOMAIN", "env.example.org")
	t.Setenv("MAX_PARTICIPANTS", "4")
	t.Setenv("RETRY_BASE_DELAY_MS", "500")

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Domain != "env.example.org" {
		t.Errorf("Domain = %s, want env.example.org", cfg.Domain)
	}
	if cfg.MaxParticipants != 4 {
		t.Errorf("MaxParticipants = %d, want 4", cfg.MaxParticipants)
	}
	if cfg.RetryBaseDelay != 500*time.Millisecond {
		t.Errorf("RetryBaseDelay = %v, want 500ms", cfg.RetryBaseDelay)
	}
}

func TestLoadInsecureSchemes(t *testing.T) {
	cfg, err := Load(Options{Insecure: true})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WebSocketURL != "ws://"+DefaultDomain+"/ws" {
		t.Errorf("WebSocketURL = %s, want ws scheme", cfg.WebSocketURL)
	}
	if cfg.APIBaseURL != "http://"+DefaultDomain {
		t.Errorf("APIBaseURL = %s, want http scheme", cfg.APIBaseURL)
	}
}

func TestLoadRejectsTinyRooms(t *testing.T) {
	if _, err := Load(Options{MaxParticipants: 1}); err == nil {
		t.Fatal("Load accepted a 1-participant room limit")
	}
}

func TestTURNServersOnlyWhenConfigured(t *testing.T) {
	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GetTURNServers() != nil {
		t.Fatal("TURN servers present without configuration")
	}

	cfg, err = Load(Options{TURNServer: "turn:turn.example.org", TURNUser: "u", TURNPass: "p"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := cfg.GetTURNServers(); len(got) != 3 {
		t.Fatalf("TURN servers = %v, want udp, tcp and tls variants", got)
	}
	user, pass := cfg.GetTURNCredentials()
	if user != "u" || pass != "p" {
		t.Errorf("credentials = (%s, %s), want (u, p)", user, pass)
	}
}
