package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/parishdesk/parishdesk/internal/gate"
	"github.com/parishdesk/parishdesk/internal/shared"
	"github.com/parishdesk/parishdesk/internal/view"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	decorate  view.Decorator
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, decorate view.Decorator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, decorate: decorate}
}

// MountRoutes registers user routes. Only super administrators manage accounts.
func (h *Handler) MountRoutes(r chi.Router, mw gate.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(mw.RequireRole(gate.RoleSuperAdmin))
		r.Get("/", h.listUsers)
		r.Post("/{id}/role", h.changeRole)
		r.Post("/{id}/active", h.setActive)
	})
}

type accountRow struct {
	Account
	Self bool
}

type listData struct {
	Accounts []accountRow
	Roles    []gate.Role
	Errors   map[string]string
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	h.renderList(w, r, http.StatusOK, nil)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request) {
	actor, target, ok := h.parties(w, r)
	if !ok {
		return
	}
	role := gate.ParseRole(r.PostFormValue("role"))
	if err := h.service.ChangeRole(r.Context(), actor, target, role); err != nil {
		h.fail(w, r, err)
		return
	}
	h.redirectWithFlash(w, r, "success", "Role updated")
}

func (h *Handler) setActive(w http.ResponseWriter, r *http.Request) {
	actor, target, ok := h.parties(w, r)
	if !ok {
		return
	}
	active, err := strconv.ParseBool(r.PostFormValue("active"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if err := h.service.SetActive(r.Context(), actor, target, active); err != nil {
		h.fail(w, r, err)
		return
	}
	message := "Account deactivated"
	if active {
		message = "Account activated"
	}
	h.redirectWithFlash(w, r, "success", message)
}

func (h *Handler) parties(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	snap, _ := gate.AccessFromContext(r.Context())
	if snap.Profile == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return uuid.Nil, uuid.Nil, false
	}
	target, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		return uuid.Nil, uuid.Nil, false
	}
	return snap.Profile.ID, target, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSelfChange):
		h.renderList(w, r, http.StatusConflict, map[string]string{"general": "You cannot change your own account"})
	case errors.Is(err, ErrUnknownRole):
		h.renderList(w, r, http.StatusBadRequest, map[string]string{"general": "Choose one of the listed roles"})
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, gate.ErrProfileNotFound):
		h.renderList(w, r, http.StatusNotFound, map[string]string{"general": "Account not found"})
	default:
		h.logger.Error("update account", slog.Any("error", err))
		h.renderList(w, r, http.StatusInternalServerError, map[string]string{"general": "The account could not be updated"})
	}
}

func (h *Handler) renderList(w http.ResponseWriter, r *http.Request, status int, errs map[string]string) {
	data := listData{Roles: Assignable, Errors: errs}
	if data.Errors == nil {
		data.Errors = map[string]string{}
	}
	var self uuid.UUID
	if snap, ok := gate.AccessFromContext(r.Context()); ok && snap.Profile != nil {
		self = snap.Profile.ID
	}
	accounts, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		data.Errors["general"] = "Accounts are unavailable, please try again"
		if status < http.StatusBadRequest {
			status = http.StatusInternalServerError
		}
	}
	for _, a := range accounts {
		data.Accounts = append(data.Accounts, accountRow{Account: a, Self: a.ID == self})
	}
	h.render(w, r, status, data)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data listData) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, err := h.csrf.EnsureToken(sess)
	if err != nil {
		h.logger.Warn("csrf token", slog.Any("error", err))
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{Title: "Users", CSRFToken: csrfToken, Flash: flash, CurrentPath: r.URL.Path, Data: data}
	if h.decorate != nil {
		h.decorate(r, &viewData)
	}
	if err := h.templates.RenderStatus(w, status, "pages/users.html", viewData); err != nil {
		h.logger.Error("render template", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}
