package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultInterval is the polling period of a started engine.
	DefaultInterval = 30 * time.Second
	// DefaultLimit bounds the cached window.
	DefaultLimit = 10
	// DefaultRegion identifies the bell in pointer event paths.
	DefaultRegion = "notification-bell"
)

// EngineConfig configures an Engine.
type EngineConfig struct {
	Store    Store
	Clock    clockwork.Clock
	Interval time.Duration
	Limit    int
	Logger   *slog.Logger
	Observer Observer
	Pointer  PointerSource
	Region   string
}

// Engine keeps the cached window and unread counter of one mounted view in
// sync with its Store. The two reads are independent: either may fail
// without disturbing the value held by the other. Writes never update the
// cache directly; the following refresh reports what the store accepted.
type Engine struct {
	store    Store
	clock    clockwork.Clock
	interval time.Duration
	limit    int
	logger   *slog.Logger
	observer Observer
	dropdown *Dropdown

	mu       sync.Mutex
	items    []Notification
	unread   int
	seenRead map[int64]struct{}
	mounted  bool
	epoch    uint64
	ticker   clockwork.Ticker
	cancel   context.CancelFunc
}

// NewEngine constructs a mounted engine that is not yet polling.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return &Engine{
		store:    cfg.Store,
		clock:    cfg.Clock,
		interval: cfg.Interval,
		limit:    cfg.Limit,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		dropdown: NewDropdown(cfg.Region, cfg.Pointer),
		seenRead: make(map[int64]struct{}),
		mounted:  true,
	}
}

// Start refreshes once and then every interval until Stop. Calling Start on
// a running engine does nothing.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return
	}
	e.mounted = true
	e.epoch++
	epoch := e.epoch
	runCtx, cancel := context.WithCancel(ctx)
	ticker := e.clock.NewTicker(e.interval)
	e.cancel = cancel
	e.ticker = ticker
	e.mu.Unlock()

	go e.poll(runCtx, ticker, epoch)
}

// Stop halts polling, closes the dropdown and discards the results of any
// fetch still in flight. The engine stays inert until started again.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.mounted = false
	e.epoch++
	cancel, ticker := e.cancel, e.ticker
	e.cancel, e.ticker = nil, nil
	e.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
	}
	if cancel != nil {
		cancel()
	}
	e.dropdown.Close()
}

// Running reports whether the polling loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancel != nil
}

func (e *Engine) poll(ctx context.Context, ticker clockwork.Ticker, epoch uint64) {
	// In-flight reads outlive Stop; the epoch check discards their results.
	fetchCtx := context.WithoutCancel(ctx)
	e.refresh(fetchCtx, epoch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !e.current(epoch) {
				return
			}
			e.refresh(fetchCtx, epoch)
		}
	}
}

// Refresh reads the window and the unread count concurrently and applies
// whichever succeeded.
func (e *Engine) Refresh(ctx context.Context) {
	e.mu.Lock()
	epoch, mounted := e.epoch, e.mounted
	e.mu.Unlock()
	if !mounted {
		return
	}
	e.refresh(ctx, epoch)
}

func (e *Engine) refresh(ctx context.Context, epoch uint64) {
	var (
		items    []Notification
		listErr  error
		count    int
		countErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		items, listErr = e.store.ListRecent(ctx, e.limit)
		return nil
	})
	g.Go(func() error {
		count, countErr = e.store.UnreadCount(ctx)
		return nil
	})
	_ = g.Wait()

	e.observer.FetchCompleted(OpList, listErr)
	e.observer.FetchCompleted(OpCount, countErr)
	if listErr != nil {
		e.logger.Warn("notifications list", slog.Any("error", listErr))
	}
	if countErr != nil {
		e.logger.Warn("notifications unread count", slog.Any("error", countErr))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.mounted || e.epoch != epoch {
		e.logger.Debug("notifications refresh discarded")
		return
	}
	if listErr == nil {
		e.applyItems(items)
	}
	if countErr == nil {
		if count < 0 {
			count = 0
		}
		e.unread = count
	}
}

// applyItems replaces the window. An item seen read that comes back unread
// is displayed as the store reports it and logged as an integrity fault.
func (e *Engine) applyItems(items []Notification) {
	if len(items) > e.limit {
		items = items[:e.limit]
	}
	window := make([]Notification, len(items))
	copy(window, items)

	seen := make(map[int64]struct{}, len(window))
	for _, n := range window {
		if n.IsRead {
			seen[n.ID] = struct{}{}
			continue
		}
		if _, wasRead := e.seenRead[n.ID]; wasRead {
			e.logger.Error("notification read flag reverted", slog.Int64("notification_id", n.ID))
		}
	}
	e.items = window
	e.seenRead = seen
}

// MarkRead writes the read flag of id and refreshes on success. Failures
// leave the cache untouched.
func (e *Engine) MarkRead(ctx context.Context, id int64) error {
	if !e.isMounted() {
		return nil
	}
	err := e.store.MarkRead(ctx, id)
	e.observer.FetchCompleted(OpMarkRead, err)
	if err != nil {
		e.logger.Warn("notifications mark read", slog.Int64("notification_id", id), slog.Any("error", err))
		return err
	}
	e.Refresh(ctx)
	return nil
}

// MarkAllRead marks every notification read and refreshes on success.
func (e *Engine) MarkAllRead(ctx context.Context) error {
	if !e.isMounted() {
		return nil
	}
	err := e.store.MarkAllRead(ctx)
	e.observer.FetchCompleted(OpMarkAllRead, err)
	if err != nil {
		e.logger.Warn("notifications mark all read", slog.Any("error", err))
		return err
	}
	e.Refresh(ctx)
	return nil
}

// Select handles activation of a cached item: it is marked read when
// unread, and the dropdown closes. The returned link is empty when the
// item has none or is not cached.
func (e *Engine) Select(ctx context.Context, id int64) string {
	defer e.dropdown.Close()

	item, ok := e.find(id)
	if !ok {
		return ""
	}
	if !item.IsRead {
		_ = e.MarkRead(ctx, id)
	}
	return item.Link
}

// Toggle opens or closes the dropdown.
func (e *Engine) Toggle() bool {
	return e.dropdown.Toggle()
}

// Dropdown exposes the dropdown state.
func (e *Engine) Dropdown() *Dropdown {
	return e.dropdown
}

// Snapshot returns a copy of what the view renders.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	items := make([]Notification, len(e.items))
	copy(items, e.items)
	unread := e.unread
	e.mu.Unlock()

	return Snapshot{
		Items:  items,
		Unread: unread,
		Badge:  Badge(unread),
		Open:   e.dropdown.IsOpen(),
	}
}

func (e *Engine) find(id int64) (Notification, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, n := range e.items {
		if n.ID == id {
			return n, true
		}
	}
	return Notification{}, false
}

func (e *Engine) isMounted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mounted
}

func (e *Engine) current(epoch uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mounted && e.epoch == epoch
}
