package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ProfileStore loads the profile of a session subject.
type ProfileStore interface {
	Get(ctx context.Context, subject string) (*Profile, error)
}

// Observer is invoked once for every gate the tracker creates.
type Observer func(sessionID string, g *Gate)

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	Profiles ProfileStore
	Logger   *slog.Logger
	Clock    clockwork.Clock
	// ProfileTTL bounds how long an authorized profile is trusted before it
	// is read again.
	ProfileTTL time.Duration
	// IdleTTL evicts gates of sessions that have not been seen for this long.
	IdleTTL   time.Duration
	Observers []Observer
}

type trackedGate struct {
	gate     *Gate
	loadedAt time.Time
	seenAt   time.Time
}

// Tracker keeps one Gate per signed-in console session and feeds it from the
// cookie session and the profile store.
type Tracker struct {
	profiles   ProfileStore
	logger     *slog.Logger
	clock      clockwork.Clock
	profileTTL time.Duration
	idleTTL    time.Duration
	observers  []Observer

	mu      sync.Mutex
	entries map[string]*trackedGate
}

// NewTracker constructs a Tracker.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.ProfileTTL <= 0 {
		cfg.ProfileTTL = time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	return &Tracker{
		profiles:   cfg.Profiles,
		logger:     cfg.Logger,
		clock:      cfg.Clock,
		profileTTL: cfg.ProfileTTL,
		idleTTL:    cfg.IdleTTL,
		observers:  cfg.Observers,
		entries:    make(map[string]*trackedGate),
	}
}

// Resolve brings the gate of sessionID up to date and returns it. An empty
// subject means the cookie session is not signed in.
func (t *Tracker) Resolve(ctx context.Context, sessionID, subject string) *Gate {
	if subject == "" || sessionID == "" {
		t.SignOut(sessionID)
		g := New()
		g.SetSession(nil)
		return g
	}

	entry := t.entry(sessionID)
	entry.gate.SetSession(&Session{ID: sessionID, Subject: subject})
	if !t.tracking(sessionID, entry) {
		// Signed out while resolving; the forgotten gate must stay closed.
		entry.gate.SignOut()
		return entry.gate
	}

	now := t.clock.Now()
	switch entry.gate.State() {
	case Unauthorized:
		// Terminal for this session until sign-out.
		return entry.gate
	case Authorized:
		if now.Sub(t.loadedAt(entry)) < t.profileTTL {
			return entry.gate
		}
	}

	profile, err := t.profiles.Get(ctx, subject)
	switch {
	case errors.Is(err, ErrProfileNotFound):
		entry.gate.SetProfile(nil)
	case err != nil:
		t.logger.Warn("gate load profile", slog.String("subject", subject), slog.Any("error", err))
		entry.gate.FailProfile(err)
	default:
		entry.gate.SetProfile(profile)
	}

	t.mu.Lock()
	entry.loadedAt = now
	t.mu.Unlock()
	return entry.gate
}

// SignOut moves the gate of sessionID to Unauthenticated and forgets it.
func (t *Tracker) SignOut(sessionID string) {
	if sessionID == "" {
		return
	}
	t.mu.Lock()
	entry, ok := t.entries[sessionID]
	delete(t.entries, sessionID)
	t.mu.Unlock()
	if ok {
		entry.gate.SignOut()
	}
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Sweep signs out every session idle for longer than the idle TTL and
// returns how many were evicted.
func (t *Tracker) Sweep() int {
	cutoff := t.clock.Now().Add(-t.idleTTL)
	t.mu.Lock()
	var stale []string
	for id, entry := range t.entries {
		if entry.seenAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	t.mu.Unlock()

	for _, id := range stale {
		t.SignOut(id)
	}
	return len(stale)
}

// Run sweeps idle sessions until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	interval := t.idleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := t.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := t.Sweep(); n > 0 {
				t.logger.Debug("gate idle sweep", slog.Int("evicted", n))
			}
		}
	}
}

func (t *Tracker) entry(sessionID string) *trackedGate {
	t.mu.Lock()
	entry, ok := t.entries[sessionID]
	if ok {
		entry.seenAt = t.clock.Now()
		t.mu.Unlock()
		return entry
	}
	entry = &trackedGate{gate: New(), seenAt: t.clock.Now()}
	t.entries[sessionID] = entry
	t.mu.Unlock()

	for _, observe := range t.observers {
		observe(sessionID, entry.gate)
	}
	return entry
}

func (t *Tracker) tracking(sessionID string, entry *trackedGate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[sessionID] == entry
}

func (t *Tracker) loadedAt(entry *trackedGate) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return entry.loadedAt
}
