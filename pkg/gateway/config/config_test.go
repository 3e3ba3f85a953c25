package config

import (
	"strings"
	"testing"
	"time"
)

var gatewayEnvKeys = []string{
	"DECKROOM_ADDR",
	"DECKROOM_AUTH_MODE",
	"DECKROOM_API_KEYS",
	"DECKROOM_ATTACH_TOKEN_SECRET",
	"DECKROOM_DATABASE_URL",
	"DECKROOM_STT_API_KEY",
	"DECKROOM_STT_BASE_URL",
	"DECKROOM_STT_MODEL",
	"DECKROOM_STT_DIARIZE_MODEL",
	"DECKROOM_GEMINI_API_KEY",
	"DECKROOM_SUGGESTION_MODEL",
	"DECKROOM_SUMMARY_MODEL",
	"DECKROOM_TENANT_KEY_MASTER_KEY",
	"DECKROOM_MAX_AUDIO_FRAME_BYTES",
	"DECKROOM_STREAMING_TICK_INTERVAL",
	"DECKROOM_STREAMING_FLUSH_INTERVAL",
	"DECKROOM_SUGGESTION_INTERVAL",
	"DECKROOM_SUGGESTION_WINDOW",
	"DECKROOM_SUGGESTION_MIN_WORDS",
	"DECKROOM_WATCHDOG_TICK_INTERVAL",
	"DECKROOM_SILENCE_TIMEOUT",
	"DECKROOM_RECORDING_STATUS_INTERVAL",
	"DECKROOM_LIVE_WS_PING_INTERVAL",
	"DECKROOM_LIVE_WS_WRITE_TIMEOUT",
	"DECKROOM_LIVE_WS_READ_TIMEOUT",
	"DECKROOM_CORS_ORIGINS",
	"DECKROOM_READ_HEADER_TIMEOUT",
	"DECKROOM_SHUTDOWN_GRACE_PERIOD",
}

func clearGatewayEnv(t *testing.T) {
	t.Helper()
	for _, key := range gatewayEnvKeys {
		t.Setenv(key, "")
	}
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DECKROOM_API_KEYS", "dk_test")
	t.Setenv("DECKROOM_ATTACH_TOKEN_SECRET", "secret")
	t.Setenv("DECKROOM_STT_API_KEY", "sk-test")
	t.Setenv("DECKROOM_GEMINI_API_KEY", "gk-test")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.AuthMode != AuthModeRequired {
		t.Fatalf("AuthMode = %q, want %q", cfg.AuthMode, AuthModeRequired)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty (memory store)", cfg.DatabaseURL)
	}
	if cfg.STTBaseURL != "https://api.openai.com/v1" {
		t.Fatalf("STTBaseURL = %q", cfg.STTBaseURL)
	}
	if cfg.STTModel != "whisper-1" {
		t.Fatalf("STTModel = %q", cfg.STTModel)
	}
	if cfg.MaxAudioFrameBytes != 1<<20 {
		t.Fatalf("MaxAudioFrameBytes = %d, want 1 MiB", cfg.MaxAudioFrameBytes)
	}
	if cfg.StreamingTickInterval != time.Second {
		t.Fatalf("StreamingTickInterval = %v, want 1s", cfg.StreamingTickInterval)
	}
	if cfg.StreamingFlushInterval != 5*time.Second {
		t.Fatalf("StreamingFlushInterval = %v, want 5s", cfg.StreamingFlushInterval)
	}
	if cfg.SuggestionInterval != 60*time.Second {
		t.Fatalf("SuggestionInterval = %v, want 60s", cfg.SuggestionInterval)
	}
	if cfg.SuggestionWindow != 3*time.Minute {
		t.Fatalf("SuggestionWindow = %v, want 3m", cfg.SuggestionWindow)
	}
	if cfg.SuggestionMinWords != 50 {
		t.Fatalf("SuggestionMinWords = %d, want 50", cfg.SuggestionMinWords)
	}
	if cfg.WatchdogTickInterval != 30*time.Second {
		t.Fatalf("WatchdogTickInterval = %v, want 30s", cfg.WatchdogTickInterval)
	}
	if cfg.SilenceTimeout != 4*time.Minute {
		t.Fatalf("SilenceTimeout = %v, want 4m", cfg.SilenceTimeout)
	}
	if cfg.RecordingStatusInterval != 5*time.Second {
		t.Fatalf("RecordingStatusInterval = %v, want 5s", cfg.RecordingStatusInterval)
	}
	if cfg.LiveWSPingInterval != 20*time.Second {
		t.Fatalf("LiveWSPingInterval = %v, want 20s", cfg.LiveWSPingInterval)
	}
	if cfg.LiveWSWriteTimeout != 5*time.Second {
		t.Fatalf("LiveWSWriteTimeout = %v, want 5s", cfg.LiveWSWriteTimeout)
	}
	if cfg.LiveWSReadTimeout != 0 {
		t.Fatalf("LiveWSReadTimeout = %v, want 0", cfg.LiveWSReadTimeout)
	}
	if cfg.ShutdownGracePeriod != 30*time.Second {
		t.Fatalf("ShutdownGracePeriod = %v, want 30s", cfg.ShutdownGracePeriod)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearGatewayEnv(t)
	setRequiredEnv(t)
	t.Setenv("DECKROOM_ADDR", ":9090")
	t.Setenv("DECKROOM_AUTH_MODE", "optional")
	t.Setenv("DECKROOM_DATABASE_URL", "postgres://localhost/deckroom")
	t.Setenv("DECKROOM_STT_BASE_URL", "https://stt.example/v1")
	t.Setenv("DECKROOM_STT_DIARIZE_MODEL", "whisper-diarize")
	t.Setenv("DECKROOM_MAX_AUDIO_FRAME_BYTES", "4096")
	t.Setenv("DECKROOM_SUGGESTION_INTERVAL", "90s")
	t.Setenv("DECKROOM_SUGGESTION_MIN_WORDS", "25")
	t.Setenv("DECKROOM_SILENCE_TIMEOUT", "2m")
	t.Setenv("DECKROOM_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Addr != ":9090" || cfg.AuthMode != AuthModeOptional {
		t.Fatalf("Addr/AuthMode = %q/%q", cfg.Addr, cfg.AuthMode)
	}
	if cfg.DatabaseURL != "postgres://localhost/deckroom" {
		t.Fatalf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.STTBaseURL != "https://stt.example/v1" || cfg.STTDiarizeModel != "whisper-diarize" {
		t.Fatalf("STT config mismatch: %q/%q", cfg.STTBaseURL, cfg.STTDiarizeModel)
	}
	if cfg.MaxAudioFrameBytes != 4096 {
		t.Fatalf("MaxAudioFrameBytes = %d", cfg.MaxAudioFrameBytes)
	}
	if cfg.SuggestionInterval != 90*time.Second || cfg.SuggestionMinWords != 25 {
		t.Fatalf("suggestion gate mismatch: %v/%d", cfg.SuggestionInterval, cfg.SuggestionMinWords)
	}
	if cfg.SilenceTimeout != 2*time.Minute {
		t.Fatalf("SilenceTimeout = %v", cfg.SilenceTimeout)
	}
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("CORSAllowedOrigins len=%d, want 2", len(cfg.CORSAllowedOrigins))
	}
}

func TestLoadFromEnv_RequiredAuthNeedsAPIKeys(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("DECKROOM_AUTH_MODE", "required")
	t.Setenv("DECKROOM_STT_API_KEY", "sk-test")
	t.Setenv("DECKROOM_GEMINI_API_KEY", "gk-test")

	_, err := LoadFromEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "DECKROOM_API_KEYS") {
		t.Fatalf("error = %v, expected DECKROOM_API_KEYS in message", err)
	}
}

func TestLoadFromEnv_NeedsSomeProviderKey(t *testing.T) {
	clearGatewayEnv(t)
	t.Setenv("DECKROOM_AUTH_MODE", "disabled")
	t.Setenv("DECKROOM_GEMINI_API_KEY", "gk-test")

	_, err := LoadFromEnv()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "DECKROOM_STT_API_KEY") {
		t.Fatalf("error = %v", err)
	}

	// A tenant master key alone is enough: per-tenant keys can cover STT.
	t.Setenv("DECKROOM_TENANT_KEY_MASTER_KEY", "bWFzdGVyLWtleS1tYXN0ZXIta2V5LW1hc3Rlci1rZXk=")
	if _, err := LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
}

func TestLoadFromEnv_InvalidBounds(t *testing.T) {
	cases := []struct {
		name      string
		env       map[string]string
		errSubstr string
	}{
		{
			name:      "invalid auth mode",
			env:       map[string]string{"DECKROOM_AUTH_MODE": "sometimes"},
			errSubstr: "DECKROOM_AUTH_MODE",
		},
		{
			name:      "invalid silence timeout",
			env:       map[string]string{"DECKROOM_SILENCE_TIMEOUT": "0s"},
			errSubstr: "DECKROOM_SILENCE_TIMEOUT",
		},
		{
			name:      "invalid flush interval",
			env:       map[string]string{"DECKROOM_STREAMING_FLUSH_INTERVAL": "0s"},
			errSubstr: "DECKROOM_STREAMING_FLUSH_INTERVAL",
		},
		{
			name:      "invalid shutdown grace period",
			env:       map[string]string{"DECKROOM_SHUTDOWN_GRACE_PERIOD": "0s"},
			errSubstr: "DECKROOM_SHUTDOWN_GRACE_PERIOD",
		},
		{
			name:      "invalid frame cap",
			env:       map[string]string{"DECKROOM_MAX_AUDIO_FRAME_BYTES": "-1"},
			errSubstr: "DECKROOM_MAX_AUDIO_FRAME_BYTES",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearGatewayEnv(t)
			setRequiredEnv(t)
			for key, value := range tc.env {
				t.Setenv(key, value)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.errSubstr) {
				t.Fatalf("error = %v, expected substring %q", err, tc.errSubstr)
			}
		})
	}
}
