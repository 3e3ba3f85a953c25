package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/deckroom/deckroom/pkg/gateway/config"
	"github.com/deckroom/deckroom/pkg/store"
	"github.com/deckroom/deckroom/pkg/store/memory"
)

func TestRunMain_ReturnsNonZeroWhenConfigLoadFails(t *testing.T) {
	t.Parallel()

	var stderr bytes.Buffer
	exitCode := runMain(context.Background(), &stderr, serverDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{}, errors.New("boom")
		},
		openStore: func(context.Context, config.Config) (*store.Store, func(), error) {
			t.Fatalf("openStore should not be called when config load fails")
			return nil, nil, nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {},
		signalStop:   func(c chan<- os.Signal) {},
	})

	if exitCode != 1 {
		t.Fatalf("exitCode=%d, want 1", exitCode)
	}
	if stderr.String() == "" {
		t.Fatalf("expected stderr output for startup error")
	}
}

func TestBuildHTTPServer_UsesConfiguredAddress(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Addr:              "127.0.0.1:9999",
		ReadHeaderTimeout: 2 * time.Second,
	}

	srv := buildHTTPServer(cfg, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	if srv.Addr != cfg.Addr {
		t.Fatalf("Addr=%q, want %q", srv.Addr, cfg.Addr)
	}
	if srv.ReadHeaderTimeout != cfg.ReadHeaderTimeout {
		t.Fatalf("ReadHeaderTimeout=%v, want %v", srv.ReadHeaderTimeout, cfg.ReadHeaderTimeout)
	}
}

func TestRunServer_ShutsDownOnSignal(t *testing.T) {
	t.Parallel()

	var sigCh chan<- os.Signal
	notified := make(chan struct{})

	deps := serverDeps{
		loadConfig: func() (config.Config, error) {
			return config.Config{
				Addr:                    "127.0.0.1:0",
				AuthMode:                config.AuthModeDisabled,
				GeminiAPIKey:            "test-key",
				STTAPIKey:               "stt-key",
				MaxAudioFrameBytes:      1 << 20,
				StreamingTickInterval:   time.Second,
				StreamingFlushInterval:  5 * time.Second,
				SuggestionInterval:      time.Minute,
				SuggestionWindow:        3 * time.Minute,
				SuggestionMinWords:      50,
				WatchdogTickInterval:    30 * time.Second,
				SilenceTimeout:          4 * time.Minute,
				RecordingStatusInterval: 5 * time.Second,
				LiveWSPingInterval:      20 * time.Second,
				LiveWSWriteTimeout:      5 * time.Second,
				ReadHeaderTimeout:       10 * time.Second,
				ShutdownGracePeriod:     5 * time.Second,
			}, nil
		},
		openStore: func(context.Context, config.Config) (*store.Store, func(), error) {
			return memory.New().Bundle(), func() {}, nil
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			sigCh = c
			close(notified)
		},
		signalStop: func(chan<- os.Signal) {},
	}

	done := make(chan error, 1)
	go func() {
		done <- runServer(context.Background(), nil, deps)
	}()

	select {
	case <-notified:
	case <-time.After(5 * time.Second):
		t.Fatalf("signalNotify never called")
	}
	sigCh <- os.Interrupt

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServer: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("runServer did not shut down")
	}
}

func TestStoreKind(t *testing.T) {
	t.Parallel()
	if storeKind(config.Config{}) != "memory" {
		t.Fatalf("empty url should select memory")
	}
	if storeKind(config.Config{DatabaseURL: "postgres://x"}) != "postgres" {
		t.Fatalf("url should select postgres")
	}
}
