package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var ErrSessionNotFound = errors.New("session not found")

// DefaultIdleTTL is how long an untouched session is kept.
const DefaultIdleTTL = 30 * time.Minute

// Store keeps sessions in memory, keyed by ID.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*Session
	extractor Extractor
	opts      Options
	ttl       time.Duration
}

// NewStore creates an empty store. A ttl of zero uses DefaultIdleTTL.
func NewStore(ex Extractor, opts Options, ttl time.Duration) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Store{
		sessions:  make(map[string]*Session),
		extractor: ex,
		opts:      opts,
		ttl:       ttl,
	}
}

// Create starts a new session with the default selections.
func (st *Store) Create() *Session {
	s := New(uuid.New().String(), st.extractor, st.opts)

	st.mu.Lock()
	st.sessions[s.ID] = s
	st.mu.Unlock()

	log.Debug().Str("session", s.ID).Msg("session created")
	return s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes a session and cancels its extraction in flight.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

// Len is the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep drops sessions idle for longer than the TTL. Sessions with an
// extraction in flight are kept. It returns the number removed.
func (st *Store) Sweep() int {
	cutoff := st.opts.Now().Add(-st.ttl)

	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		updated, loading := s.idleSince()
		if loading || !updated.Before(cutoff) {
			continue
		}
		delete(st.sessions, id)
		expired = append(expired, s)
	}
	st.mu.Unlock()

	for _, s := range expired {
		s.Close()
		log.Info().Str("session", s.ID).Msg("session expired")
	}
	return len(expired)
}

// Run sweeps expired sessions until ctx is done.
func (st *Store) Run(ctx context.Context) {
	interval := st.ttl / 2
	if interval <= 0 {
		interval = st.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.Sweep()
		}
	}
}
