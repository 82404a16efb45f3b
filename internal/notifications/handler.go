package notifications

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"github.com/parishdesk/parishdesk/internal/gate"
	"github.com/parishdesk/parishdesk/internal/platform/httpx"
)

// Handler exposes the bell of the current console session as JSON.
type Handler struct {
	hub    *Hub
	clock  clockwork.Clock
	logger *slog.Logger
	page   http.Handler
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, clock clockwork.Clock, logger *slog.Logger) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Handler{hub: hub, clock: clock, logger: logger}
}

// WithPage serves page to browsers that ask for the bell without accepting
// JSON.
func (h *Handler) WithPage(page http.Handler) *Handler {
	h.page = page
	return h
}

// MountRoutes registers the bell endpoints. The router must only admit
// Authorized requests.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
	r.Post("/refresh", h.refresh)
	r.Post("/read-all", h.markAllRead)
	r.Post("/toggle", h.toggle)
	r.Post("/pointer", h.pointer)
	r.Post("/{id}/read", h.markRead)
	r.Post("/{id}/open", h.open)
}

// ItemView is a notification decorated for display.
type ItemView struct {
	Notification
	TimeAgo string `json:"time_ago"`
}

// BellView is the rendered bell.
type BellView struct {
	Items  []ItemView `json:"items"`
	Unread int        `json:"unread"`
	Badge  string     `json:"badge"`
	Open   bool       `json:"open"`
}

// View decorates snap relative to now.
func View(snap Snapshot, now time.Time) BellView {
	items := make([]ItemView, 0, len(snap.Items))
	for _, n := range snap.Items {
		items = append(items, ItemView{Notification: n, TimeAgo: TimeAgo(now, n.CreatedAt)})
	}
	return BellView{Items: items, Unread: snap.Unread, Badge: snap.Badge, Open: snap.Open}
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	if h.page != nil && !httpx.WantsJSON(r) {
		h.page.ServeHTTP(w, r)
		return
	}
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	h.respond(w, engine)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	engine.Refresh(r.Context())
	h.respond(w, engine)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	// A failed write is logged by the engine; the bell stays as it was.
	_ = engine.MarkRead(r.Context(), id)
	h.respond(w, engine)
}

func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	_ = engine.MarkAllRead(r.Context())
	h.respond(w, engine)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	link := safeLink(engine.Select(r.Context(), id))
	if !httpx.WantsJSON(r) {
		if link == "" {
			httpx.Back(w, r, "/")
			return
		}
		http.Redirect(w, r, link, http.StatusSeeOther)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"link": link,
		"bell": View(engine.Snapshot(), h.clock.Now()),
	})
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	engine.Toggle()
	h.respond(w, engine)
}

func (h *Handler) pointer(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	var ev PointerEvent
	if err := httpx.DecodeJSON(r, &ev); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Pointer Event", err.Error())
		return
	}
	if bus, ok := h.hub.Pointer(sessionID(r)); ok {
		bus.Publish(ev)
	}
	h.respond(w, engine)
}

func (h *Handler) respond(w http.ResponseWriter, engine *Engine) {
	httpx.JSON(w, http.StatusOK, View(engine.Snapshot(), h.clock.Now()))
}

func (h *Handler) engine(w http.ResponseWriter, r *http.Request) (*Engine, bool) {
	engine, ok := h.hub.Engine(sessionID(r))
	if !ok {
		h.logger.Debug("notifications engine missing", slog.String("path", r.URL.Path))
		httpx.Problem(w, http.StatusServiceUnavailable, "Notifications Unavailable", "")
		return nil, false
	}
	return engine, true
}

func sessionID(r *http.Request) string {
	snap, ok := gate.AccessFromContext(r.Context())
	if !ok || snap.Session == nil {
		return ""
	}
	return snap.Session.ID
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Notification", "")
		return 0, false
	}
	return id, true
}

// safeLink keeps only same-origin absolute paths.
func safeLink(link string) string {
	if !strings.HasPrefix(link, "/") || strings.HasPrefix(link, "//") || strings.HasPrefix(link, "/\\") {
		return ""
	}
	return link
}
