package app

import (
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"

	"github.com/parishdesk/parishdesk/internal/announcements"
	"github.com/parishdesk/parishdesk/internal/auth"
	"github.com/parishdesk/parishdesk/internal/gate"
	"github.com/parishdesk/parishdesk/internal/navigation"
	"github.com/parishdesk/parishdesk/internal/notifications"
	"github.com/parishdesk/parishdesk/internal/observability"
	"github.com/parishdesk/parishdesk/internal/shared"
	"github.com/parishdesk/parishdesk/internal/users"
	"github.com/parishdesk/parishdesk/internal/view"
	"github.com/parishdesk/parishdesk/jobs"
	"github.com/parishdesk/parishdesk/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	Templates            *view.Engine
	SessionManager       *shared.SessionManager
	CSRFManager          *shared.CSRFManager
	Gate                 gate.Middleware
	Hub                  *notifications.Hub
	Flags                navigation.Flags
	Clock                clockwork.Clock
	AuthHandler          *auth.Handler
	NotificationsHandler *notifications.Handler
	AnnouncementsHandler *announcements.Handler
	UsersHandler         *users.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)
	r.Use(params.Gate.Load)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	p := pages{params: params}
	r.With(params.Gate.RequireAuthorized).Get("/", p.home)
	for _, entry := range navigation.Catalog() {
		if !sectionRoutes[entry.Route] {
			continue
		}
		guard := params.Gate.RequireAuthorized
		if roles := entry.Visibility.Roles(); len(roles) > 0 {
			guard = params.Gate.RequireRole(roles...)
		}
		r.With(guard).Get(entry.Route, p.section(entry))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(limitCredentialPosts(CredentialRateLimit()))
		params.AuthHandler.MountRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(params.Gate.RequireAuthorized)
			params.AuthHandler.MountAccountRoutes(r)
		})
	})
	if params.NotificationsHandler != nil {
		r.Route("/notifications", func(r chi.Router) {
			r.Use(params.Gate.RequireAuthorized)
			params.NotificationsHandler.MountRoutes(r)
		})
	}
	if params.AnnouncementsHandler != nil {
		r.Route("/announcements", func(r chi.Router) {
			params.AnnouncementsHandler.MountRoutes(r, params.Gate)
		})
	}
	if params.UsersHandler != nil {
		r.Route("/users", func(r chi.Router) {
			params.UsersHandler.MountRoutes(r, params.Gate)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.Gate.RequireRole(gate.RoleSuperAdmin))
			params.JobHandler.MountRoutes(r)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// Decorator returns the view decorator that fills the console chrome from
// the gate snapshot of the request.
func Decorator(params RouterParams) view.Decorator {
	clock := params.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	demo := params.Config != nil && params.Config.DemoMode
	return func(r *http.Request, data *view.TemplateData) {
		snap, ok := gate.AccessFromContext(r.Context())
		if !ok {
			return
		}
		role, ok := snap.Role()
		if !ok {
			return
		}
		menu := navigation.Filter(navigation.Catalog(), role, params.Flags, demo)
		data.Menu = &menu
		data.Profile = snap.Profile
		data.Demo = demo
		if params.Hub == nil || snap.Session == nil {
			return
		}
		if engine, ok := params.Hub.Engine(snap.Session.ID); ok {
			bell := notifications.View(engine.Snapshot(), clock.Now())
			data.Bell = &bell
		}
	}
}

// sectionRoutes are menu entries whose screens are served by other
// parish services. The console answers them with a section page guarded by
// the entry's visibility.
var sectionRoutes = map[string]bool{
	"/churches":     true,
	"/appointments": true,
	"/donations":    true,
	"/settings":     true,
}

type pages struct {
	params RouterParams
}

func (p pages) home(w http.ResponseWriter, r *http.Request) {
	p.render(w, r, http.StatusOK, "pages/home.html", "Dashboard", true, nil)
}

type sectionData struct {
	Entry    navigation.Entry
	Disabled bool
	Reason   string
}

// section renders the page of entry. Items the menu shows as disabled are
// refused the same way.
func (p pages) section(entry navigation.Entry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := sectionData{Entry: entry}
		if snap, ok := gate.AccessFromContext(r.Context()); ok {
			if role, ok := snap.Role(); ok {
				menu := navigation.Filter([]navigation.Entry{entry}, role, p.params.Flags, p.params.Config != nil && p.params.Config.DemoMode)
				if item, ok := menu.Find(entry.Name); ok {
					data.Disabled, data.Reason = item.Disabled, item.Reason
				}
			}
		}
		status := http.StatusOK
		if data.Disabled {
			status = http.StatusForbidden
		}
		p.render(w, r, status, "pages/section.html", entry.Name, true, data)
	}
}

// Notifications renders the full-page list of the bell.
func Notifications(params RouterParams) http.Handler {
	p := pages{params: params}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.render(w, r, http.StatusOK, "pages/notifications.html", "Notifications", true, nil)
	})
}

// Forbidden renders the page shown to sessions the gate refuses.
func Forbidden(params RouterParams) http.Handler {
	p := pages{params: params}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.render(w, r, http.StatusForbidden, "pages/forbidden.html", "Access denied", false, nil)
	})
}

func (p pages) render(w http.ResponseWriter, r *http.Request, status int, name, title string, chrome bool, payload any) {
	sess := shared.SessionFromContext(r.Context())
	token, err := p.params.CSRFManager.EnsureToken(sess)
	if err != nil {
		p.params.Logger.Warn("csrf token", slog.Any("error", err))
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	data := view.TemplateData{
		Title:       title,
		CSRFToken:   token,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        payload,
	}
	if chrome {
		Decorator(p.params)(r, &data)
	}
	if err := p.params.Templates.RenderStatus(w, status, name, data); err != nil {
		p.params.Logger.Error("render", slog.String("template", name), slog.Any("error", err))
	}
}

// limitCredentialPosts applies limit to credential submissions only.
func limitCredentialPosts(limit func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && (strings.HasSuffix(r.URL.Path, "/login") || strings.HasSuffix(r.URL.Path, "/register")) {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
