// Package sessions holds the process-wide session registry. Entries carry
// orchestrators and are the authoritative lifecycle anchor: sockets attach
// and detach, entries survive until finalization removes them.
package sessions

import (
	"context"
	"sync"

	"github.com/deckroom/deckroom/pkg/gateway/live/session"
)

type Registry struct {
	mu      sync.RWMutex
	entries map[string]*session.Orchestrator
	wg      sync.WaitGroup
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*session.Orchestrator)}
}

// GetOrCreate returns the orchestrator for a session, building one under the
// registry lock when none exists. Idempotent under reconnect: an existing
// entry is returned untouched, so cumulative PCM and sub-tasks survive.
func (r *Registry) GetOrCreate(sessionID string, build func() (*session.Orchestrator, error)) (*session.Orchestrator, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.entries[sessionID]; ok {
		return o, false, nil
	}
	o, err := build()
	if err != nil {
		return nil, false, err
	}
	r.entries[sessionID] = o
	r.wg.Add(1)
	return o, true, nil
}

func (r *Registry) Get(sessionID string) (*session.Orchestrator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.entries[sessionID]
	return o, ok
}

// Remove drops an entry. Safe to call for ids that were already removed.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	_, ok := r.entries[sessionID]
	delete(r.entries, sessionID)
	r.mu.Unlock()
	if ok {
		r.wg.Done()
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// StopAll ends every live session, used on graceful shutdown. Each stop is
// idempotent; finalizations run concurrently and remove their own entries.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	all := make([]*session.Orchestrator, 0, len(r.entries))
	for _, o := range r.entries {
		all = append(all, o)
	}
	r.mu.RUnlock()

	for _, o := range all {
		_, _ = o.Stop(ctx)
	}
}

// Wait blocks until every entry has been removed or the context expires.
// Returns false on timeout.
func (r *Registry) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
