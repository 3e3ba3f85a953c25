package handlers

import (
	"net/http"

	"github.com/deckroom/deckroom/pkg/gateway/config"
	"github.com/deckroom/deckroom/pkg/gateway/lifecycle"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config    config.Config
	Lifecycle *lifecycle.Lifecycle
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK       bool     `json:"ok"`
		AuthMode string   `json:"auth_mode"`
		Draining bool     `json:"draining"`
		Issues   []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}
	if h.Config.AuthMode != config.AuthModeDisabled && h.Config.AttachTokenSecret == "" {
		issues = append(issues, "attach token secret missing")
	}
	if h.Config.STTAPIKey == "" && h.Config.TenantKeyMasterKey == "" {
		issues = append(issues, "no transcription provider key source configured")
	}
	if h.Config.MaxAudioFrameBytes <= 0 {
		issues = append(issues, "max_audio_frame_bytes must be > 0")
	}
	if h.Config.StreamingTickInterval <= 0 || h.Config.StreamingFlushInterval <= 0 {
		issues = append(issues, "streaming intervals must be > 0")
	}
	if h.Config.SuggestionInterval <= 0 || h.Config.SuggestionWindow <= 0 {
		issues = append(issues, "suggestion intervals must be > 0")
	}
	if h.Config.WatchdogTickInterval <= 0 || h.Config.SilenceTimeout <= 0 {
		issues = append(issues, "watchdog intervals must be > 0")
	}
	if h.Config.RecordingStatusInterval <= 0 {
		issues = append(issues, "recording status interval must be > 0")
	}
	if h.Config.LiveWSPingInterval <= 0 || h.Config.LiveWSWriteTimeout <= 0 {
		issues = append(issues, "websocket timeouts must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ShutdownGracePeriod <= 0 {
		issues = append(issues, "server timeouts must be > 0")
	}

	draining := h.Lifecycle != nil && h.Lifecycle.IsDraining()

	ok := len(issues) == 0 && !draining
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, readyResp{
		OK:       ok,
		AuthMode: string(h.Config.AuthMode),
		Draining: draining,
		Issues:   issues,
	})
}
