package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// Secret for signing live attach tokens. Required unless auth is disabled.
	AttachTokenSecret string

	// Empty means the in-memory store; anything else is a postgres URL.
	DatabaseURL string

	// Transcription provider (OpenAI-compatible speech endpoint).
	STTAPIKey       string
	STTBaseURL      string
	STTModel        string
	STTDiarizeModel string

	// Gemini, for suggestion and summary generation.
	GeminiAPIKey    string
	SuggestionModel string
	SummaryModel    string

	// Master key for decrypting per-tenant provider keys (base64, 32 bytes).
	TenantKeyMasterKey string

	// Live audio plumbing.
	MaxAudioFrameBytes      int
	StreamingTickInterval   time.Duration
	StreamingFlushInterval  time.Duration
	SuggestionInterval      time.Duration
	SuggestionWindow        time.Duration
	SuggestionMinWords      int
	WatchdogTickInterval    time.Duration
	SilenceTimeout          time.Duration
	RecordingStatusInterval time.Duration

	// WebSocket timeouts.
	LiveWSPingInterval time.Duration
	LiveWSWriteTimeout time.Duration
	LiveWSReadTimeout  time.Duration

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                    envOr("DECKROOM_ADDR", ":8080"),
		AuthMode:                AuthMode(envOr("DECKROOM_AUTH_MODE", string(AuthModeRequired))),
		APIKeys:                 make(map[string]struct{}),
		AttachTokenSecret:       strings.TrimSpace(os.Getenv("DECKROOM_ATTACH_TOKEN_SECRET")),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DECKROOM_DATABASE_URL")),
		STTAPIKey:               strings.TrimSpace(os.Getenv("DECKROOM_STT_API_KEY")),
		STTBaseURL:              envOr("DECKROOM_STT_BASE_URL", "https://api.openai.com/v1"),
		STTModel:                envOr("DECKROOM_STT_MODEL", "whisper-1"),
		STTDiarizeModel:         envOr("DECKROOM_STT_DIARIZE_MODEL", "whisper-1"),
		GeminiAPIKey:            strings.TrimSpace(os.Getenv("DECKROOM_GEMINI_API_KEY")),
		SuggestionModel:         envOr("DECKROOM_SUGGESTION_MODEL", "gemini-2.0-flash"),
		SummaryModel:            envOr("DECKROOM_SUMMARY_MODEL", "gemini-2.0-flash"),
		TenantKeyMasterKey:      strings.TrimSpace(os.Getenv("DECKROOM_TENANT_KEY_MASTER_KEY")),
		MaxAudioFrameBytes:      envIntOr("DECKROOM_MAX_AUDIO_FRAME_BYTES", 1<<20),
		StreamingTickInterval:   envDurationOr("DECKROOM_STREAMING_TICK_INTERVAL", time.Second),
		StreamingFlushInterval:  envDurationOr("DECKROOM_STREAMING_FLUSH_INTERVAL", 5*time.Second),
		SuggestionInterval:      envDurationOr("DECKROOM_SUGGESTION_INTERVAL", 60*time.Second),
		SuggestionWindow:        envDurationOr("DECKROOM_SUGGESTION_WINDOW", 3*time.Minute),
		SuggestionMinWords:      envIntOr("DECKROOM_SUGGESTION_MIN_WORDS", 50),
		WatchdogTickInterval:    envDurationOr("DECKROOM_WATCHDOG_TICK_INTERVAL", 30*time.Second),
		SilenceTimeout:          envDurationOr("DECKROOM_SILENCE_TIMEOUT", 4*time.Minute),
		RecordingStatusInterval: envDurationOr("DECKROOM_RECORDING_STATUS_INTERVAL", 5*time.Second),
		LiveWSPingInterval:      envDurationOr("DECKROOM_LIVE_WS_PING_INTERVAL", 20*time.Second),
		LiveWSWriteTimeout:      envDurationOr("DECKROOM_LIVE_WS_WRITE_TIMEOUT", 5*time.Second),
		LiveWSReadTimeout:       envDurationOr("DECKROOM_LIVE_WS_READ_TIMEOUT", 0),
		CORSAllowedOrigins:      make(map[string]struct{}),
		ReadHeaderTimeout:       envDurationOr("DECKROOM_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:     envDurationOr("DECKROOM_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("DECKROOM_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("DECKROOM_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}

	for _, origin := range splitCSV(os.Getenv("DECKROOM_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("DECKROOM_API_KEYS must be set when DECKROOM_AUTH_MODE=required")
	}
	if cfg.AuthMode != AuthModeDisabled && cfg.AttachTokenSecret == "" {
		return Config{}, fmt.Errorf("DECKROOM_ATTACH_TOKEN_SECRET must be set unless auth is disabled")
	}
	if cfg.STTAPIKey == "" && cfg.TenantKeyMasterKey == "" {
		return Config{}, fmt.Errorf("DECKROOM_STT_API_KEY or DECKROOM_TENANT_KEY_MASTER_KEY must be set")
	}
	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("DECKROOM_GEMINI_API_KEY must be set")
	}
	if cfg.MaxAudioFrameBytes <= 0 {
		return Config{}, fmt.Errorf("DECKROOM_MAX_AUDIO_FRAME_BYTES must be > 0")
	}
	if cfg.StreamingTickInterval <= 0 {
		return Config{}, fmt.Errorf("DECKROOM_STREAMING_TICK_INTERVAL must be > 0")
	}
	if cfg.StreamingFlushInterval <= 0 {
		return Config{}, fmt.Errorf("DECKROOM_STREAMING_FLUSH_INTERVAL must be > 0")
	}
	if cfg.SuggestionInterval <= 0 {
		return Config{}, fmt.Errorf("DECKROOM_SUGGESTION_INTERVAL must be > 0")
	}
	if cfg.SuggestionWindow <= 0 {
		return Config{}, fmt.Errorf("DECKROOM_SUGGESTION_WINDOW must be > 0")
	}
	if cfg.SuggestionMinWords < 0 {
		return Config{}, fmt.Errorf("DECKROOM_SUGGESTION_MIN_WORDS must be >= 0")
	}
	if cfg.WatchdogTickInterval <= 0 {
		return Config{}, fmt.Errorf("DECKROOM_WATCHDOG_TICK_INTERVAL must be > 0")
	}
	if cfg.SilenceTimeout <= 0 {
		return Config{}, fmt.Errorf("DECKROOM_SILENCE_TIMEOUT must be > 0")
	}
	if cfg.RecordingStatusInterval <= 0 {
		return Config{}, fmt.Errorf("DECKROOM_RECORDING_STATUS_INTERVAL must be > 0")
	}
	if cfg.LiveWSPingInterval <= 0 {
		return Config{}, fmt.Errorf("DECKROOM_LIVE_WS_PING_INTERVAL must be > 0")
	}
	if cfg.LiveWSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("DECKROOM_LIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.LiveWSReadTimeout < 0 {
		return Config{}, fmt.Errorf("DECKROOM_LIVE_WS_READ_TIMEOUT must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("DECKROOM_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("DECKROOM_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
