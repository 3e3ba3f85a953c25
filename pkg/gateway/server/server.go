// Package server wires configuration, storage, and the live registry into
// the HTTP mux and middleware chain.
package server

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/deckroom/deckroom/pkg/core/suggest"
	"github.com/deckroom/deckroom/pkg/core/summarize"
	"github.com/deckroom/deckroom/pkg/gateway/config"
	"github.com/deckroom/deckroom/pkg/gateway/handlers"
	"github.com/deckroom/deckroom/pkg/gateway/keys"
	"github.com/deckroom/deckroom/pkg/gateway/lifecycle"
	"github.com/deckroom/deckroom/pkg/gateway/live/sessions"
	"github.com/deckroom/deckroom/pkg/gateway/mw"
	"github.com/deckroom/deckroom/pkg/store"
)

// Dependencies carries what main constructs: the storage bundle and the
// generation backends.
type Dependencies struct {
	Store      *store.Store
	Suggester  suggest.Generator
	Summarizer summarize.Generator
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	store     *store.Store
	registry  *sessions.Registry
	lifecycle *lifecycle.Lifecycle

	attachTokens *keys.AttachToken
	vault        *keys.Vault

	suggester  suggest.Generator
	summarizer summarize.Generator
}

func New(cfg config.Config, logger *slog.Logger, deps Dependencies) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	s := &Server{
		cfg:        cfg,
		logger:     logger,
		mux:        http.NewServeMux(),
		store:      deps.Store,
		registry:   sessions.NewRegistry(),
		lifecycle:  &lifecycle.Lifecycle{},
		suggester:  deps.Suggester,
		summarizer: deps.Summarizer,
	}

	if cfg.AttachTokenSecret != "" {
		s.attachTokens = keys.NewAttachToken(cfg.AttachTokenSecret)
	}
	if cfg.TenantKeyMasterKey != "" {
		master, err := base64.StdEncoding.DecodeString(cfg.TenantKeyMasterKey)
		if err != nil {
			return nil, fmt.Errorf("decode tenant master key: %w", err)
		}
		vault, err := keys.NewVault(master)
		if err != nil {
			return nil, fmt.Errorf("build key vault: %w", err)
		}
		s.vault = vault
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})

	ctrl := handlers.SessionsHandler{
		Config:       s.cfg,
		Logger:       s.logger,
		Store:        s.store,
		Registry:     s.registry,
		AttachTokens: s.attachTokens,
	}
	s.mux.HandleFunc("POST /v1/sessions", ctrl.Create)
	s.mux.HandleFunc("POST /v1/sessions/{id}/stop", ctrl.Stop)
	s.mux.HandleFunc("GET /v1/sessions/{id}", ctrl.Get)
	s.mux.HandleFunc("GET /v1/sessions/{id}/transcript", ctrl.Transcript)
	s.mux.HandleFunc("POST /v1/sessions/{id}/questions/{qid}/answered", ctrl.MarkAnswered)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}/questions/{qid}", ctrl.DeleteQuestion)

	s.mux.Handle("GET /v1/live", handlers.LiveHandler{
		Config:       s.cfg,
		Logger:       s.logger,
		Store:        s.store,
		Registry:     s.registry,
		AttachTokens: s.attachTokens,
		Vault:        s.vault,
		Lifecycle:    s.lifecycle,
		Suggester:    s.suggester,
		Summarizer:   s.summarizer,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// Registry exposes the live session registry for shutdown draining.
func (s *Server) Registry() *sessions.Registry { return s.registry }

// Lifecycle exposes the draining flag for shutdown.
func (s *Server) Lifecycle() *lifecycle.Lifecycle { return s.lifecycle }

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
