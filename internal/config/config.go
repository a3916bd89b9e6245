package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Default configuration values
const (
	DefaultDomain   = "localhost:8080"
	DefaultListen   = ":8080"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultTURN     = "" // optional, empty by default
	DefaultTURNUser = ""
	DefaultTURNPass = ""

	// Call engine defaults
	DefaultMaxParticipants    = 6
	DefaultMaxRetryAttempts   = 3
	DefaultRetryBaseDelay     = 3000 * time.Millisecond
	DefaultNegotiationTimeout = 30 * time.Second
)

// Config holds application configuration for both the signaling server
// and the carecall client.
type Config struct {
	// Domain is the signaling server domain as seen by clients
	Domain string

	// ListenAddr is the address the signaling server binds to
	ListenAddr string

	// WebSocketURL and APIBaseURL are constructed from the domain
	WebSocketURL string
	APIBaseURL   string

	// MongoURI enables room/user persistence when non-empty
	MongoURI string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// Call engine knobs
	MaxParticipants    int
	MaxRetryAttempts   int
	RetryBaseDelay     time.Duration
	NegotiationTimeout time.Duration

	// Insecure selects ws:// and http:// instead of wss:// and https://
	Insecure bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	Domain          string
	ListenAddr      string
	MongoURI        string
	STUNServer      string
	TURNServer      string
	TURNUser        string
	TURNPass        string
	ForceRelay      bool
	MaxParticipants int
	Insecure        bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := firstOf(opts.Domain, os.Getenv("DOMAIN"), DefaultDomain)
	listen := firstOf(opts.ListenAddr, os.Getenv("LISTEN_ADDR"), DefaultListen)
	mongoURI := firstOf(opts.MongoURI, os.Getenv("MONGO_URI"), "")
	stunServer := firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN)
	turnServer := firstOf(opts.TURNServer, os.Getenv("TURN_SERVER"), DefaultTURN)
	turnUser := firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME"), DefaultTURNUser)
	turnPass := firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD"), DefaultTURNPass)

	insecure := opts.Insecure
	if !insecure {
		insecure = os.Getenv("INSECURE_WS") == "1" || os.Getenv("INSECURE_WS") == "true"
	}

	maxParticipants := opts.MaxParticipants
	if maxParticipants == 0 {
		maxParticipants = intFromEnv("MAX_PARTICIPANTS", DefaultMaxParticipants)
	}
	if maxParticipants < 2 {
		return nil, fmt.Errorf("max participants must be at least 2, got %d", maxParticipants)
	}

	maxRetries := intFromEnv("MAX_RETRY_ATTEMPTS", DefaultMaxRetryAttempts)
	retryBase := durationFromEnv("RETRY_BASE_DELAY_MS", DefaultRetryBaseDelay)
	negotiationTimeout := durationFromEnv("NEGOTIATION_TIMEOUT_MS", DefaultNegotiationTimeout)

	wsScheme, httpScheme := "wss", "https"
	if insecure {
		wsScheme, httpScheme = "ws", "http"
	}

	return &Config{
		Domain:             domain,
		ListenAddr:         listen,
		WebSocketURL:       fmt.Sprintf("%s://%s/ws", wsScheme, domain),
		APIBaseURL:         fmt.Sprintf("%s://%s", httpScheme, domain),
		MongoURI:           mongoURI,
		STUNServer:         stunServer,
		TURNServer:         turnServer,
		TURNUser:           turnUser,
		TURNPass:           turnPass,
		ForceRelay:         opts.ForceRelay,
		MaxParticipants:    maxParticipants,
		MaxRetryAttempts:   maxRetries,
		RetryBaseDelay:     retryBase,
		NegotiationTimeout: negotiationTimeout,
		Insecure:           insecure,
	}, nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intFromEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Millisecond
		}
	}
	return def
}
