package gate

import (
	"sort"
	"sync"
)

// Snapshot is a consistent view of the gate inputs and the state derived
// from them.
type Snapshot struct {
	State   State
	Session *Session
	Profile *Profile
	// Err is the profile load failure, if any.
	Err error
}

// Role returns the profile role when the snapshot is Authorized.
func (s Snapshot) Role() (Role, bool) {
	if s.State != Authorized || s.Profile == nil {
		return "", false
	}
	return s.Profile.Role, true
}

// Transition is delivered to subscribers whenever the resolved state changes.
type Transition struct {
	From     State
	To       State
	Snapshot Snapshot
}

// Gate is the observable access-state container of one console session.
// Inputs may arrive in any order; every change recomputes the state through
// Resolve and notifies subscribers when it differs.
type Gate struct {
	// delivery serializes each state change together with its notification
	// so subscribers observe transitions in the order they happened.
	delivery sync.Mutex

	mu           sync.Mutex
	sessionReady bool
	session      *Session
	profileReady bool
	profile      *Profile
	profileErr   error
	state        State

	subs   map[int]func(Transition)
	nextID int
}

// New returns a gate in the Initializing state.
func New() *Gate {
	return &Gate{state: Initializing, subs: make(map[int]func(Transition))}
}

// SetSession records the session feed. A nil session means signed out. A
// different subject discards the profile of the previous one.
func (g *Gate) SetSession(sess *Session) {
	g.update(func() {
		g.sessionReady = true
		if sess == nil {
			g.session = nil
			g.clearProfile()
			return
		}
		if g.session == nil || g.session.Subject != sess.Subject {
			g.clearProfile()
		}
		copied := *sess
		g.session = &copied
	})
}

// SetProfile records a loaded profile. A nil profile means not found.
// Profiles that do not belong to the current session subject are dropped.
func (g *Gate) SetProfile(p *Profile) {
	g.update(func() {
		if g.session == nil {
			return
		}
		if p != nil && p.ID.String() != g.session.Subject {
			return
		}
		g.profileReady = true
		g.profileErr = nil
		if p == nil {
			g.profile = nil
			return
		}
		copied := *p
		g.profile = &copied
	})
}

// FailProfile records a profile load failure, which resolves to Unauthorized.
func (g *Gate) FailProfile(err error) {
	g.update(func() {
		if g.session == nil {
			return
		}
		g.profileReady = true
		g.profile = nil
		g.profileErr = &ProfileLoadError{Subject: g.session.Subject, Err: err}
	})
}

// SignOut drops the session. Subscribers observe Unauthenticated before
// SignOut returns.
func (g *Gate) SignOut() {
	g.SetSession(nil)
}

// State returns the current access state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Snapshot returns the current inputs and state.
func (g *Gate) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

// Subscribe registers fn for state transitions and returns a function that
// removes it.
func (g *Gate) Subscribe(fn func(Transition)) func() {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.subs[id] = fn
	g.mu.Unlock()

	return g.unsubscriber(id)
}

// Follow registers fn like Subscribe and immediately delivers the current
// state to it as a transition from that state to itself. No transition can
// slip in between registration and the first delivery.
func (g *Gate) Follow(fn func(Transition)) func() {
	g.delivery.Lock()
	defer g.delivery.Unlock()

	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.subs[id] = fn
	tr := Transition{From: g.state, To: g.state, Snapshot: g.snapshotLocked()}
	g.mu.Unlock()

	fn(tr)
	return g.unsubscriber(id)
}

func (g *Gate) unsubscriber(id int) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.subs, id)
			g.mu.Unlock()
		})
	}
}

// update applies mutate and notifies subscribers of the resulting
// transition. Subscribers must not change the gate they are notified by.
func (g *Gate) update(mutate func()) {
	g.delivery.Lock()
	defer g.delivery.Unlock()

	g.mu.Lock()
	from := g.state
	mutate()
	g.state = Resolve(Inputs{
		SessionReady: g.sessionReady,
		Session:      g.session,
		ProfileReady: g.profileReady,
		Profile:      g.profile,
	})
	if g.state == from {
		g.mu.Unlock()
		return
	}
	tr := Transition{From: from, To: g.state, Snapshot: g.snapshotLocked()}
	subs := g.subscribersLocked()
	g.mu.Unlock()

	for _, fn := range subs {
		fn(tr)
	}
}

func (g *Gate) clearProfile() {
	g.profile = nil
	g.profileReady = false
	g.profileErr = nil
}

func (g *Gate) snapshotLocked() Snapshot {
	snap := Snapshot{State: g.state, Err: g.profileErr}
	if g.session != nil {
		s := *g.session
		snap.Session = &s
	}
	if g.profile != nil {
		p := *g.profile
		snap.Profile = &p
	}
	return snap
}

// subscribersLocked returns subscribers in registration order.
func (g *Gate) subscribersLocked() []func(Transition) {
	ids := make([]int, 0, len(g.subs))
	for id := range g.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Transition), 0, len(ids))
	for _, id := range ids {
		out = append(out, g.subs[id])
	}
	return out
}
