package gate

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/parishdesk/parishdesk/internal/platform/httpx"
	"github.com/parishdesk/parishdesk/internal/shared"
)

type accessContextKey struct{}

// ContextWithAccess stores the resolved gate snapshot in ctx.
func ContextWithAccess(ctx context.Context, snap Snapshot) context.Context {
	return context.WithValue(ctx, accessContextKey{}, snap)
}

// AccessFromContext returns the snapshot stored by the middleware.
func AccessFromContext(ctx context.Context) (Snapshot, bool) {
	snap, ok := ctx.Value(accessContextKey{}).(Snapshot)
	return snap, ok
}

// Middleware wires the gate into HTTP handlers.
type Middleware struct {
	Tracker   *Tracker
	Logger    *slog.Logger
	LoginPath string
	// Denied renders refused page requests. Plain 403 when nil.
	Denied http.Handler
}

// Load resolves the access state of every request and stores it in the
// request context without blocking anything.
func (m Middleware) Load(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := m.resolve(r)
		next.ServeHTTP(w, r.WithContext(ContextWithAccess(r.Context(), snap)))
	})
}

// RequireAuthorized lets only Authorized requests through.
func (m Middleware) RequireAuthorized(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, ok := AccessFromContext(r.Context())
		if !ok {
			snap = m.resolve(r)
			r = r.WithContext(ContextWithAccess(r.Context(), snap))
		}
		if !m.admit(w, r, snap) {
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole lets through Authorized requests whose role is one of roles.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.RequireAuthorized(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap, _ := AccessFromContext(r.Context())
			role, ok := snap.Role()
			if !ok || !role.In(roles...) {
				m.deny(w, r)
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

func (m Middleware) admit(w http.ResponseWriter, r *http.Request, snap Snapshot) bool {
	switch snap.State {
	case Authorized:
		return true
	case Unauthenticated:
		if r.Method == http.MethodGet && !httpx.WantsJSON(r) {
			http.Redirect(w, r, m.loginPath(), http.StatusSeeOther)
			return false
		}
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return false
	default:
		if m.Logger != nil {
			m.Logger.Warn("gate denied request", slog.String("state", snap.State.String()), slog.String("path", r.URL.Path))
		}
		m.deny(w, r)
		return false
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request) {
	if m.Denied != nil && r.Method == http.MethodGet && !httpx.WantsJSON(r) {
		m.Denied.ServeHTTP(w, r)
		return
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func (m Middleware) resolve(r *http.Request) Snapshot {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || m.Tracker == nil {
		return Snapshot{State: Unauthenticated}
	}
	return m.Tracker.Resolve(r.Context(), sess.ID, sess.User()).Snapshot()
}

func (m Middleware) loginPath() string {
	if m.LoginPath == "" {
		return "/auth/login"
	}
	return m.LoginPath
}
