package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/DRONA-VOCAB/LTFS-Conversational-Flow/pkg/Logger"
)

// Registry is the single owner of live sessions. Components reference
// sessions by id through it and never hold one past a stage invocation.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *Logger.Logger
}

func NewRegistry(logger *Logger.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Create registers a new session. Creating an id that already exists is
// an error so duplicate start frames cannot clobber live state.
func (r *Registry) Create(id string, kind TransportKind) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, fmt.Errorf("session %s already exists", id)
	}
	s := newSession(id, kind, time.Now())
	r.sessions[id] = s
	r.logger.Infof("session created id=%s transport=%s", id, kind)
	return s, nil
}

// Get looks up a live session.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove cancels any in-flight work and releases the session.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	s.Cancel()
	r.logger.Infof("session released id=%s", id)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the ids of all live sessions.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// StartJanitor evicts sessions idle past ttl until ctx is done. onEvict
// runs after the session has been removed so transports can close their
// side.
func (r *Registry) StartJanitor(ctx context.Context, interval, ttl time.Duration, onEvict func(*Session)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.evictIdle(ttl, onEvict)
			}
		}
	}()
}

func (r *Registry) evictIdle(ttl time.Duration, onEvict func(*Session)) {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		r.logger.Warnf("session %s idle past %s, evicting", s.ID, ttl)
		s.Cancel()
		if onEvict != nil {
			onEvict(s)
		}
	}
}
