package core

// scheduler.go expires abandoned import sessions.
//
// Sessions keep their parsed rows in memory until closed. Browsers often
// leave without closing, so a background janitor drops sessions that have
// been idle longer than the configured TTL. Sessions with a running commit
// are never expired.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultJanitorInterval is how often the janitor looks for idle sessions.
const DefaultJanitorInterval = 5 * time.Minute

// StartSessionJanitor runs until ctx is cancelled. It sweeps immediately on
// start, then every interval.
func (s *Service) StartSessionJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultJanitorInterval
	}
	slog.Info("session janitor started",
		"interval", interval.String(),
		"session_ttl", s.opts.SessionTTL.String(),
	)

	s.ExpireIdleSessions(time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session janitor stopped")
			return
		case now := <-ticker.C:
			s.ExpireIdleSessions(now)
		}
	}
}

// ExpireIdleSessions closes every session idle since before now minus the
// TTL and returns how many were removed.
func (s *Service) ExpireIdleSessions(now time.Time) int {
	cutoff := now.Add(-s.opts.SessionTTL)

	s.mu.Lock()
	var expired []string
	for id, hs := range s.sessions {
		hs.mu.Lock()
		idle := hs.cancel == nil && hs.lastUsed.Before(cutoff)
		hs.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		slog.Debug("import session expired", "session_id", id)
	}
	if len(expired) > 0 {
		slog.Info("expired idle import sessions", "count", len(expired))
	}
	return len(expired)
}
