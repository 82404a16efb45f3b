package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/parishdesk/parishdesk/internal/gate"
)

// StoreFactory yields the per-user store of a recipient.
type StoreFactory interface {
	ForUser(userID uuid.UUID) Store
}

// HubConfig configures a Hub.
type HubConfig struct {
	Stores   StoreFactory
	Clock    clockwork.Clock
	Interval time.Duration
	Limit    int
	Logger   *slog.Logger
	Observer Observer
}

type hubEntry struct {
	userID uuid.UUID
	engine *Engine
	bus    *PointerBus
}

// Hub owns one engine per authorized console session. Engines start when
// the session gate becomes Authorized and stop on any other state.
type Hub struct {
	ctx       context.Context
	cfg       HubConfig
	coalescer Coalescer

	mu      sync.Mutex
	entries map[string]*hubEntry
}

// NewHub constructs a hub whose polling loops live until ctx is done.
func NewHub(ctx context.Context, cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Hub{ctx: ctx, cfg: cfg, entries: make(map[string]*hubEntry)}
}

// Bind follows the gate of sessionID. It matches gate.Observer.
func (h *Hub) Bind(sessionID string, g *gate.Gate) {
	g.Follow(func(tr gate.Transition) {
		h.apply(sessionID, tr.Snapshot)
	})
}

func (h *Hub) apply(sessionID string, snap gate.Snapshot) {
	if snap.State == gate.Authorized && snap.Profile != nil {
		h.start(sessionID, snap.Profile.ID)
		return
	}
	h.stop(sessionID)
}

func (h *Hub) start(sessionID string, userID uuid.UUID) {
	h.mu.Lock()
	previous, ok := h.entries[sessionID]
	if ok && previous.userID == userID {
		h.mu.Unlock()
		return
	}
	bus := NewPointerBus()
	engine := NewEngine(EngineConfig{
		Store:    h.coalescer.Wrap(userID.String(), h.cfg.Stores.ForUser(userID)),
		Clock:    h.cfg.Clock,
		Interval: h.cfg.Interval,
		Limit:    h.cfg.Limit,
		Logger:   h.cfg.Logger.With(slog.String("user_id", userID.String())),
		Observer: h.cfg.Observer,
		Pointer:  bus,
	})
	h.entries[sessionID] = &hubEntry{userID: userID, engine: engine, bus: bus}
	active := len(h.entries)
	h.mu.Unlock()

	if ok {
		previous.engine.Stop()
	}
	engine.Start(h.ctx)
	h.cfg.Observer.EnginesActive(active)
}

func (h *Hub) stop(sessionID string) {
	h.mu.Lock()
	entry, ok := h.entries[sessionID]
	delete(h.entries, sessionID)
	active := len(h.entries)
	h.mu.Unlock()
	if !ok {
		return
	}
	entry.engine.Stop()
	h.cfg.Observer.EnginesActive(active)
}

// Engine returns the engine of sessionID.
func (h *Hub) Engine(sessionID string) (*Engine, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.entries[sessionID]
	if !ok {
		return nil, false
	}
	return entry.engine, true
}

// Pointer returns the pointer bus of sessionID.
func (h *Hub) Pointer(sessionID string) (*PointerBus, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.entries[sessionID]
	if !ok {
		return nil, false
	}
	return entry.bus, true
}

// Len returns the number of live engines.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Close stops every engine.
func (h *Hub) Close() {
	h.mu.Lock()
	entries := h.entries
	h.entries = make(map[string]*hubEntry)
	h.mu.Unlock()
	for _, entry := range entries {
		entry.engine.Stop()
	}
	h.cfg.Observer.EnginesActive(0)
}
