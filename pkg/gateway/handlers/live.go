package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/deckroom/deckroom/pkg/core"
	"github.com/deckroom/deckroom/pkg/core/suggest"
	"github.com/deckroom/deckroom/pkg/core/summarize"
	"github.com/deckroom/deckroom/pkg/core/transcribe"
	"github.com/deckroom/deckroom/pkg/gateway/config"
	"github.com/deckroom/deckroom/pkg/gateway/keys"
	"github.com/deckroom/deckroom/pkg/gateway/lifecycle"
	"github.com/deckroom/deckroom/pkg/gateway/live/protocol"
	"github.com/deckroom/deckroom/pkg/gateway/live/session"
	"github.com/deckroom/deckroom/pkg/gateway/live/sessions"
	"github.com/deckroom/deckroom/pkg/gateway/mw"
	"github.com/deckroom/deckroom/pkg/store"
)

// STTFactory builds the transcription provider for a resolved API key.
// Overridden in tests.
type STTFactory func(apiKey string) transcribe.Provider

// LiveHandler upgrades /v1/live to a WebSocket and runs the message loop:
// join, audio frames (JSON-base64 or raw binary), and pings. The socket is a
// view onto a registry entry; disconnects detach the sender and nothing else.
type LiveHandler struct {
	Config       config.Config
	Logger       *slog.Logger
	Store        *store.Store
	Registry     *sessions.Registry
	AttachTokens *keys.AttachToken
	Vault        *keys.Vault
	Lifecycle    *lifecycle.Lifecycle
	Suggester    suggest.Generator
	Summarizer   summarize.Generator

	NewSTT STTFactory
}

func (h LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrInvalidRequest,
			Message: "method not allowed",
			Code:    "method_not_allowed",
		}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, reqID, &core.Error{
			Type:    core.ErrAPI,
			Message: "gateway is draining",
			Code:    "draining",
		}, http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		coreErr := core.NewPermissionError("origin is not allowed")
		coreErr.Param = "Origin"
		writeCoreErrorJSON(w, reqID, coreErr, http.StatusForbidden)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Base64 roughly 4/3-expands the raw frame; leave headroom for the JSON
	// envelope around it.
	if h.Config.MaxAudioFrameBytes > 0 {
		conn.SetReadLimit(int64(h.Config.MaxAudioFrameBytes) * 2)
	}

	sender := session.NewWSSender(conn, h.Config.LiveWSWriteTimeout)
	defer sender.Close()

	readTimeout := h.Config.LiveWSReadTimeout
	extendRead := func() {
		if readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
	}
	conn.SetPongHandler(func(string) error {
		extendRead()
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(h.Config.LiveWSPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				if err := sender.Ping(); err != nil {
					return
				}
			}
		}
	}()

	ctx := r.Context()
	var o *session.Orchestrator
	for {
		extendRead()
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if o != nil {
				o.Detach(sender)
			}
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			// Raw PCM path. Frames before a join have no session to land in.
			if o != nil {
				o.HandleFrame(ctx, data)
			}
		case websocket.TextMessage:
			decoded, err := protocol.DecodeClientMessage(data)
			if err != nil {
				var de *protocol.DecodeError
				if errors.As(err, &de) {
					h.sendError(sender, de.Code, de.Error())
				} else {
					h.sendError(sender, "bad_request", "invalid frame")
				}
				continue
			}
			switch msg := decoded.(type) {
			case protocol.ClientJoinSession:
				if o != nil && o.SessionID() != msg.SessionID {
					h.sendError(sender, protocol.CodeInvalidSession, "connection already joined another session")
					continue
				}
				if joined := h.join(ctx, sender, msg); joined != nil {
					o = joined
				}
			case protocol.ClientAudioChunk:
				if o == nil || o.SessionID() != msg.SessionID {
					h.sendError(sender, protocol.CodeInvalidSession, "join the session before sending audio")
					continue
				}
				o.HandleFrame(ctx, msg.AudioData)
			case protocol.ClientPing:
				_ = sender.Send(protocol.ServerPong{
					Type:      protocol.TypePong,
					Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
				})
			}
		}
	}
}

// join verifies the attach token, loads the session, and binds the socket to
// its registry entry, creating the orchestrator on first join.
func (h LiveHandler) join(ctx context.Context, sender session.Sender, msg protocol.ClientJoinSession) *session.Orchestrator {
	if h.AttachTokens != nil {
		tokSession, tokTenant, err := h.AttachTokens.Verify(msg.AttachToken)
		if err != nil || tokSession != msg.SessionID {
			h.sendError(sender, protocol.CodeInvalidSession, "invalid attach token")
			return nil
		}
		sess, err := h.Store.Sessions.Get(ctx, msg.SessionID)
		if err != nil {
			h.sendJoinLoadError(sender, err)
			return nil
		}
		if sess.TenantID != tokTenant {
			h.sendError(sender, protocol.CodeInvalidSession, "invalid attach token")
			return nil
		}
		return h.attach(ctx, sender, sess)
	}

	sess, err := h.Store.Sessions.Get(ctx, msg.SessionID)
	if err != nil {
		h.sendJoinLoadError(sender, err)
		return nil
	}
	return h.attach(ctx, sender, sess)
}

func (h LiveHandler) attach(ctx context.Context, sender session.Sender, sess *store.Session) *session.Orchestrator {
	if sess.Status != store.SessionActive {
		h.sendError(sender, protocol.CodeSessionInactive, "session has ended")
		return nil
	}

	o, created, err := h.Registry.GetOrCreate(sess.ID, func() (*session.Orchestrator, error) {
		return h.buildOrchestrator(ctx, sess)
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("live: build orchestrator", "session_id", sess.ID, "error", err)
		}
		h.sendError(sender, protocol.CodeJoinError, "failed to initialize live session")
		return nil
	}
	if err := o.Attach(ctx, sender); err != nil {
		if errors.Is(err, core.ErrSessionInactive) {
			h.sendError(sender, protocol.CodeSessionInactive, "session has ended")
		} else {
			h.sendError(sender, protocol.CodeJoinError, "failed to join session")
		}
		return nil
	}
	if h.Logger != nil {
		h.Logger.Info("live: joined", "session_id", sess.ID, "created", created)
	}
	return o
}

func (h LiveHandler) buildOrchestrator(ctx context.Context, sess *store.Session) (*session.Orchestrator, error) {
	provider := h.sttProvider(ctx, sess.TenantID)
	return session.New(sess, session.Dependencies{
		Store:      h.Store,
		Streaming:  provider,
		Complete:   provider,
		Suggester:  h.Suggester,
		Summarizer: h.Summarizer,
		Logger:     h.Logger,
		Config: session.Config{
			STTModel:                h.Config.STTModel,
			DiarizeModel:            h.Config.STTDiarizeModel,
			StreamingTickInterval:   h.Config.StreamingTickInterval,
			StreamingFlushInterval:  h.Config.StreamingFlushInterval,
			SuggestionInterval:      h.Config.SuggestionInterval,
			SuggestionWindow:        h.Config.SuggestionWindow,
			SuggestionMinWords:      h.Config.SuggestionMinWords,
			WatchdogTickInterval:    h.Config.WatchdogTickInterval,
			SilenceTimeout:          h.Config.SilenceTimeout,
			RecordingStatusInterval: h.Config.RecordingStatusInterval,
		},
		OnRemove: h.Registry.Remove,
	})
}

// sttProvider resolves the transcription key for a tenant: the tenant's
// vaulted key when one is stored, otherwise the process-wide key. A nil
// return means no key source; the orchestrator reports it on first audio.
func (h LiveHandler) sttProvider(ctx context.Context, tenantID string) transcribe.Provider {
	key := h.Config.STTAPIKey
	if h.Vault != nil && tenantID != "" {
		org, err := h.Store.Organizations.Get(ctx, tenantID)
		switch {
		case err == nil && len(org.ProviderKeyCiphertext) > 0:
			decrypted, err := h.Vault.Decrypt(tenantID, org.ProviderKeyCiphertext)
			if err != nil {
				if h.Logger != nil {
					h.Logger.Warn("live: decrypt tenant provider key", "tenant_id", tenantID, "error", err)
				}
			} else {
				key = decrypted
			}
		case err != nil && !errors.Is(err, store.ErrNotFound):
			if h.Logger != nil {
				h.Logger.Warn("live: load organization", "tenant_id", tenantID, "error", err)
			}
		}
	}
	if key == "" {
		return nil
	}
	if h.NewSTT != nil {
		return h.NewSTT(key)
	}
	return transcribe.NewOpenAI(key).
		WithBaseURL(h.Config.STTBaseURL).
		WithModels(h.Config.STTModel, h.Config.STTDiarizeModel)
}

func (h LiveHandler) sendJoinLoadError(sender session.Sender, err error) {
	if errors.Is(err, store.ErrNotFound) {
		h.sendError(sender, protocol.CodeSessionNotFound, "session not found")
		return
	}
	h.sendError(sender, protocol.CodeJoinError, "failed to load session")
}

func (h LiveHandler) sendError(sender session.Sender, code, message string) {
	_ = sender.Send(protocol.ServerError{
		Type:    protocol.TypeError,
		Code:    code,
		Message: message,
	})
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}
