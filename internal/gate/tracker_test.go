package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishdesk/parishdesk/internal/shared"
)

type stubProfiles struct {
	mu       sync.Mutex
	profiles map[string]*Profile
	err      error
	calls    int
}

func (s *stubProfiles) Get(ctx context.Context, subject string) (*Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[subject]
	if !ok {
		return nil, ErrProfileNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *stubProfiles) set(p *Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID.String()] = p
}

func newTrackerFixture(t *testing.T) (*Tracker, *stubProfiles, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	profiles := &stubProfiles{profiles: make(map[string]*Profile)}
	tracker := NewTracker(TrackerConfig{
		Profiles:   profiles,
		Clock:      clock,
		ProfileTTL: time.Minute,
		IdleTTL:    10 * time.Minute,
	})
	return tracker, profiles, clock
}

func TestTrackerResolveAuthorized(t *testing.T) {
	tracker, profiles, _ := newTrackerFixture(t)
	subject := uuid.New()
	profiles.set(&Profile{ID: subject, Role: RoleUser})

	g := tracker.Resolve(context.Background(), "sess-1", subject.String())
	assert.Equal(t, Authorized, g.State())
	assert.Equal(t, 1, tracker.Len())

	again := tracker.Resolve(context.Background(), "sess-1", subject.String())
	assert.Same(t, g, again)
	assert.Equal(t, 1, profiles.calls, "profile is trusted within its TTL")
}

func TestTrackerAnonymousIsUnauthenticated(t *testing.T) {
	tracker, profiles, _ := newTrackerFixture(t)

	g := tracker.Resolve(context.Background(), "sess-1", "")
	assert.Equal(t, Unauthenticated, g.State())
	assert.Zero(t, tracker.Len())
	assert.Zero(t, profiles.calls)
}

func TestTrackerProfileErrorIsTerminal(t *testing.T) {
	tracker, profiles, clock := newTrackerFixture(t)
	subject := uuid.New()
	profiles.err = errors.New("db down")

	g := tracker.Resolve(context.Background(), "sess-1", subject.String())
	assert.Equal(t, Unauthorized, g.State())

	profiles.err = nil
	profiles.set(&Profile{ID: subject, Role: RoleAdmin})
	clock.Advance(time.Hour)
	g = tracker.Resolve(context.Background(), "sess-1", subject.String())
	assert.Equal(t, Unauthorized, g.State(), "no automatic retry after failure")
	assert.Equal(t, 1, profiles.calls)

	tracker.SignOut("sess-1")
	g = tracker.Resolve(context.Background(), "sess-2", subject.String())
	assert.Equal(t, Authorized, g.State())
}

func TestTrackerPicksUpDemotionAfterTTL(t *testing.T) {
	tracker, profiles, clock := newTrackerFixture(t)
	subject := uuid.New()
	profiles.set(&Profile{ID: subject, Role: RoleAdmin})

	g := tracker.Resolve(context.Background(), "sess-1", subject.String())
	require.Equal(t, Authorized, g.State())

	profiles.set(&Profile{ID: subject, Role: "guest"})
	clock.Advance(2 * time.Minute)
	g = tracker.Resolve(context.Background(), "sess-1", subject.String())
	assert.Equal(t, Unauthorized, g.State())
}

func TestTrackerSignOutNotifiesObservers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	subject := uuid.New()
	profiles := &stubProfiles{profiles: map[string]*Profile{subject.String(): {ID: subject, Role: RoleUser}}}

	var transitions []Transition
	tracker := NewTracker(TrackerConfig{
		Profiles: profiles,
		Clock:    clock,
		Observers: []Observer{func(sessionID string, g *Gate) {
			g.Subscribe(func(tr Transition) { transitions = append(transitions, tr) })
		}},
	})

	tracker.Resolve(context.Background(), "sess-1", subject.String())
	tracker.SignOut("sess-1")

	require.Len(t, transitions, 2)
	assert.Equal(t, Authorized, transitions[0].To)
	assert.Equal(t, Unauthenticated, transitions[1].To)
	assert.Zero(t, tracker.Len())
}

func TestTrackerKeepsGateClosedWhenSignedOutDuringResolve(t *testing.T) {
	clock := clockwork.NewFakeClock()
	subject := uuid.New()
	profiles := &stubProfiles{profiles: map[string]*Profile{subject.String(): {ID: subject, Role: RoleUser}}}

	var tracker *Tracker
	tracker = NewTracker(TrackerConfig{
		Profiles: profiles,
		Clock:    clock,
		Observers: []Observer{func(sessionID string, g *Gate) {
			// Sign-out lands after the gate is created but before it is fed.
			tracker.SignOut(sessionID)
		}},
	})

	g := tracker.Resolve(context.Background(), "sess-1", subject.String())
	assert.Equal(t, Unauthenticated, g.State())
	assert.Zero(t, tracker.Len())
	assert.Zero(t, profiles.calls)
}

func TestTrackerSweepEvictsIdleSessions(t *testing.T) {
	tracker, profiles, clock := newTrackerFixture(t)
	idle, active := uuid.New(), uuid.New()
	profiles.set(&Profile{ID: idle, Role: RoleUser})
	profiles.set(&Profile{ID: active, Role: RoleUser})

	idleGate := tracker.Resolve(context.Background(), "idle", idle.String())
	clock.Advance(8 * time.Minute)
	tracker.Resolve(context.Background(), "active", active.String())
	clock.Advance(3 * time.Minute)

	assert.Equal(t, 1, tracker.Sweep())
	assert.Equal(t, 1, tracker.Len())
	assert.Equal(t, Unauthenticated, idleGate.State())
}

func TestMiddlewareRequireAuthorized(t *testing.T) {
	tracker, profiles, _ := newTrackerFixture(t)
	admin, guest := uuid.New(), uuid.New()
	profiles.set(&Profile{ID: admin, Role: RoleAdmin})
	profiles.set(&Profile{ID: guest, Role: "guest"})
	mw := Middleware{Tracker: tracker}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, found := AccessFromContext(r.Context())
		require.True(t, found)
		assert.Equal(t, Authorized, snap.State)
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name    string
		subject string
		accept  string
		want    int
	}{
		{name: "anonymous page", want: http.StatusSeeOther},
		{name: "anonymous json", accept: "application/json", want: http.StatusUnauthorized},
		{name: "guest", subject: guest.String(), want: http.StatusForbidden},
		{name: "admin", subject: admin.String(), want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := requestWithSession(t, "sess-"+tt.name, tt.subject)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()
			mw.RequireAuthorized(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMiddlewareRequireRole(t *testing.T) {
	tracker, profiles, _ := newTrackerFixture(t)
	user, admin := uuid.New(), uuid.New()
	profiles.set(&Profile{ID: user, Role: RoleUser})
	profiles.set(&Profile{ID: admin, Role: RoleAdmin})
	mw := Middleware{Tracker: tracker}
	handler := mw.RequireRole(RoleAdmin, RoleSuperAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithSession(t, "u", user.String()))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithSession(t, "a", admin.String()))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func requestWithSession(t *testing.T, id, subject string) *http.Request {
	t.Helper()
	sess := &shared.Session{ID: id}
	if subject != "" {
		sess.SignIn(subject)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func TestMiddlewareDeniedRendersPagesOnly(t *testing.T) {
	tracker, profiles, _ := newTrackerFixture(t)
	guest := uuid.New()
	profiles.set(&Profile{ID: guest, Role: RoleChurchAdmin})
	mw := Middleware{Tracker: tracker, Denied: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied page"))
	})}
	handler := mw.RequireAuthorized(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unauthorized request reached handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithSession(t, "page", guest.String()))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "denied page", rec.Body.String())

	req := requestWithSession(t, "api", guest.String())
	req.Header.Set("Accept", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "denied page")
}
