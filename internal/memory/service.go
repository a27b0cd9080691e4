// Package memory keeps per-session conversation state. Each session admits
// one in-flight query at a time through a Lease; all mutation goes through
// Lease.Commit so a turn is applied whole or not at all.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type session struct {
	// token has capacity one; holding a value means a query is in flight.
	token      chan struct{}
	conv       Conversation
	lastActive time.Time
}

type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Acquire waits until sessionID has no query in flight and returns a lease
// on it, creating the session on first use.
func (s *Store) Acquire(ctx context.Context, sessionID string) (*Lease, error) {
	for {
		s.mu.Lock()
		sess, ok := s.sessions[sessionID]
		if !ok {
			now := s.now()
			sess = &session{
				token:      make(chan struct{}, 1),
				conv:       Conversation{SessionID: sessionID, UpdatedAt: now},
				lastActive: now,
			}
			s.sessions[sessionID] = sess
		}
		s.mu.Unlock()

		select {
		case sess.token <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		s.mu.RLock()
		current := s.sessions[sessionID]
		s.mu.RUnlock()
		if current == sess {
			return &Lease{store: s, sess: sess}, nil
		}
		// Evicted while we waited; try again on the fresh session.
		<-sess.token
	}
}

// Snapshot returns a copy of the session's conversation without taking a
// lease.
func (s *Store) Snapshot(sessionID string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return Conversation{}, false
	}
	return sess.conv.clone(), true
}

// Reset clears a session's turns and vessel mentions. It waits for any
// in-flight query on the session to finish.
func (s *Store) Reset(ctx context.Context, sessionID string) error {
	lease, err := s.Acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer lease.Release()

	s.mu.Lock()
	defer s.mu.Unlock()
	lease.sess.conv = Conversation{SessionID: sessionID, UpdatedAt: s.now()}
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the TTL. Sessions with a query
// in flight are never dropped.
func (s *Store) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	evicted := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastActive) <= s.ttl {
			continue
		}
		select {
		case sess.token <- struct{}{}:
			delete(s.sessions, id)
			// Wake anyone queued on the old token; they will see it is gone.
			<-sess.token
			evicted++
		default:
		}
	}
	return evicted
}

func (s *Store) RunSweeper(ctx context.Context, every time.Duration, logger *slog.Logger) {
	if every <= 0 || s.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 && logger != nil {
				logger.Info("idle sessions evicted", "count", n, "remaining", s.Len())
			}
		}
	}
}

// Lease is exclusive access to one session for the duration of a query.
type Lease struct {
	store    *Store
	sess     *session
	once     sync.Once
	released bool
}

func (l *Lease) SessionID() string { return l.sess.conv.SessionID }

func (l *Lease) Conversation() Conversation {
	l.store.mu.RLock()
	defer l.store.mu.RUnlock()
	return l.sess.conv.clone()
}

// Commit appends the update's turns and, if it mentions vessels, replaces
// the last-mentioned set. Commit after Release is a no-op.
func (l *Lease) Commit(u Update) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	if l.released {
		return
	}
	now := l.store.now()
	l.sess.conv.Turns = append(l.sess.conv.Turns, u.Turns...)
	if len(u.Mentioned) > 0 {
		l.sess.conv.LastVessels = append(l.sess.conv.LastVessels[:0:0], u.Mentioned...)
	}
	l.sess.conv.UpdatedAt = now
	l.sess.lastActive = now
}

func (l *Lease) Release() {
	l.once.Do(func() {
		l.store.mu.Lock()
		l.released = true
		l.sess.lastActive = l.store.now()
		l.store.mu.Unlock()
		<-l.sess.token
	})
}
