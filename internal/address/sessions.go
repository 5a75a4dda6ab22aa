package address

import (
	"context"
	"sync"
	"time"
)

// Sessions keeps one Lookup per client session, so concurrent users never
// supersede each other's queries. Sessions idle for longer than idle are dropped.
type Sessions struct {
	provider Provider
	minChars int
	idle     time.Duration
	now      func() time.Time

	mu        sync.Mutex
	lookups   map[string]*session
	lastPrune time.Time
}

type session struct {
	lookup   *Lookup
	lastUsed time.Time
}

func NewSessions(provider Provider, minChars int, idle time.Duration) *Sessions {
	return &Sessions{
		provider: provider,
		minChars: minChars,
		idle:     idle,
		now:      time.Now,
		lookups:  make(map[string]*session),
	}
}

// Suggest runs query in the session identified by key.
func (s *Sessions) Suggest(ctx context.Context, key, query string) ([]Suggestion, error) {
	return s.get(key).Suggest(ctx, query)
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lookups)
}

func (s *Sessions) get(key string) *Lookup {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastPrune) >= s.idle {
		for k, sess := range s.lookups {
			if now.Sub(sess.lastUsed) >= s.idle {
				delete(s.lookups, k)
			}
		}
		s.lastPrune = now
	}

	sess, ok := s.lookups[key]
	if !ok {
		sess = &session{lookup: NewLookup(s.provider, s.minChars)}
		s.lookups[key] = sess
	}
	sess.lastUsed = now
	return sess.lookup
}
