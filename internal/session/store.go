package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"streamgate/internal/metrics"
)

const (
	// DefaultTTL is how long an unconsumed session survives. The sweep is a
	// backstop against clients that prepare a session but never open the
	// stream; consumed sessions are deleted on the spot.
	DefaultTTL = 10 * time.Minute

	// DefaultSweepInterval is how often expired sessions are collected.
	DefaultSweepInterval = 5 * time.Minute
)

// Store is a concurrency-safe, in-memory session map with time-based expiry.
// Sessions are ephemeral and single-process; there is no persistence.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]Session
	ttl       time.Duration
	logger    *zap.Logger
	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewStore creates a store and starts its background sweep. Non-positive ttl
// or interval fall back to the defaults. Call Close on shutdown.
func NewStore(ttl, sweepInterval time.Duration, logger *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Store{
		sessions:  make(map[string]Session),
		ttl:       ttl,
		logger:    logger.Named("sessions"),
		stopSweep: make(chan struct{}),
	}

	go s.sweep(sweepInterval)

	return s
}

// Create normalizes the request, records it under a fresh unguessable id and
// returns that id.
func (s *Store) Create(model string, messages []Message) string {
	model, messages = normalize(model, messages)

	sess := Session{
		ID:        uuid.NewString(),
		Model:     model,
		Messages:  messages,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	metrics.SessionsCreatedTotal.Inc()
	s.logger.Debug("session created",
		zap.String("session_id", sess.ID),
		zap.String("model", sess.Model),
		zap.Int("message_count", len(sess.Messages)),
	)

	return sess.ID
}

// Get returns the session for id, if present and not past its TTL. An expired
// entry found here is removed eagerly rather than waiting for the sweep.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return Session{}, false
	}

	if time.Since(sess.CreatedAt) > s.ttl {
		s.Delete(id)
		return Session{}, false
	}

	return sess, true
}

// Consume atomically looks up and removes the session for id: lookup and
// delete happen under one critical section, so of any number of concurrent
// stream attempts on the same id exactly one gets the session. Expired
// entries are removed but not returned.
func (s *Store) Consume(id string) (Session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if !ok {
		return Session{}, false
	}
	if time.Since(sess.CreatedAt) > s.ttl {
		return Session{}, false
	}
	return sess, true
}

// Delete removes the session for id. Deleting an absent id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Len returns the number of live entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// sweep periodically drops sessions past their TTL. Expiry candidates are
// collected under a read lock and removed one at a time so request handling
// never waits on a long-held write lock.
func (s *Store) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-s.ttl)

			s.mu.RLock()
			var expired []string
			for id, sess := range s.sessions {
				if sess.CreatedAt.Before(cutoff) {
					expired = append(expired, id)
				}
			}
			s.mu.RUnlock()

			for _, id := range expired {
				s.Delete(id)
			}

			if len(expired) > 0 {
				metrics.SessionsExpiredTotal.Add(float64(len(expired)))
				s.logger.Info("swept expired sessions",
					zap.Int("expired", len(expired)),
				)
			}
		case <-s.stopSweep:
			return
		}
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (s *Store) Close() error {
	s.sweepOnce.Do(func() {
		close(s.stopSweep)
	})
	return nil
}
