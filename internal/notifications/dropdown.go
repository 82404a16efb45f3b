package notifications

import (
	"slices"
	"sync"
)

// PointerEvent is a pointer-down reported by the page. Path lists the
// region identifiers from the event target outward.
type PointerEvent struct {
	Path []string `json:"path"`
}

// Within reports whether the event landed inside region.
func (e PointerEvent) Within(region string) bool {
	return region != "" && slices.Contains(e.Path, region)
}

// PointerSource delivers pointer-down events. The returned func removes the
// listener and is safe to call more than once.
type PointerSource interface {
	OnPointerDown(fn func(PointerEvent)) (remove func())
}

// PointerBus fans pointer events of one page out to its listeners.
type PointerBus struct {
	mu        sync.Mutex
	listeners map[int]func(PointerEvent)
	nextID    int
}

// NewPointerBus constructs an empty bus.
func NewPointerBus() *PointerBus {
	return &PointerBus{listeners: make(map[int]func(PointerEvent))}
}

// OnPointerDown registers fn.
func (b *PointerBus) OnPointerDown(fn func(PointerEvent)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Publish delivers ev to every listener registered at call time.
func (b *PointerBus) Publish(ev PointerEvent) {
	b.mu.Lock()
	fns := make([]func(PointerEvent), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Listeners returns the number of registered listeners.
func (b *PointerBus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Dropdown is the open/closed state of the bell. While open it listens for
// pointer-downs and closes on any that land outside its region.
type Dropdown struct {
	region string
	source PointerSource

	mu     sync.Mutex
	open   bool
	detach func()
}

// NewDropdown constructs a closed dropdown. source may be nil.
func NewDropdown(region string, source PointerSource) *Dropdown {
	return &Dropdown{region: region, source: source}
}

// Open opens the dropdown and attaches the outside-pointer listener.
func (d *Dropdown) Open() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return
	}
	d.open = true
	if d.source != nil {
		d.detach = d.source.OnPointerDown(d.pointerDown)
	}
}

// Close closes the dropdown and detaches its listener.
func (d *Dropdown) Close() {
	d.mu.Lock()
	d.open = false
	detach := d.detach
	d.detach = nil
	d.mu.Unlock()

	if detach != nil {
		detach()
	}
}

// Toggle flips the dropdown and reports the new state.
func (d *Dropdown) Toggle() bool {
	if d.IsOpen() {
		d.Close()
		return false
	}
	d.Open()
	return true
}

// IsOpen reports whether the dropdown is open.
func (d *Dropdown) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

func (d *Dropdown) pointerDown(ev PointerEvent) {
	if ev.Within(d.region) {
		return
	}
	d.Close()
}
