// Package announcements lets diocese administrators broadcast a notification
// to every profile of the selected roles.
package announcements

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	"github.com/parishdesk/parishdesk/internal/gate"
	"github.com/parishdesk/parishdesk/internal/notifications"
	"github.com/parishdesk/parishdesk/internal/shared"
	"github.com/parishdesk/parishdesk/internal/view"
	"github.com/parishdesk/parishdesk/jobs"
)

// Publisher queues a broadcast.
type Publisher interface {
	EnqueueBroadcast(ctx context.Context, payload jobs.BroadcastPayload) (*asynq.TaskInfo, error)
}

// Publishers may address announcements.
var Publishers = []gate.Role{gate.RoleAdmin, gate.RoleSuperAdmin}

// Audiences are the roles an announcement can target.
var Audiences = []gate.Role{gate.RoleUser, gate.RoleAdmin, gate.RoleSuperAdmin}

// Handler serves the announcements page.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	publisher Publisher
	decorate  view.Decorator
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, publisher Publisher, decorate view.Decorator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		templates: templates,
		csrf:      csrf,
		publisher: publisher,
		decorate:  decorate,
		validator: validator.New(),
	}
}

// MountRoutes registers the page for every Authorized role and publishing for
// Publishers only.
func (h *Handler) MountRoutes(r chi.Router, mw gate.Middleware) {
	r.With(mw.RequireAuthorized).Get("/", h.show)
	r.With(mw.RequireRole(Publishers...)).Post("/", h.publish)
}

type form struct {
	Title   string `validate:"required,max=120"`
	Message string `validate:"required,max=1000"`
	Link    string `validate:"omitempty,max=300,startswith=/"`
}

type pageData struct {
	CanPublish bool
	Form       form
	Errors     map[string]string
	Audiences  []gate.Role
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, pageData{})
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	f := form{
		Title:   strings.TrimSpace(r.PostFormValue("title")),
		Message: strings.TrimSpace(r.PostFormValue("message")),
		Link:    strings.TrimSpace(r.PostFormValue("link")),
	}
	errs := h.validate(f)
	if strings.HasPrefix(f.Link, "//") {
		errs["Link"] = "Use a path inside the console, like /appointments"
	}
	roles, ok := parseRoles(r.PostForm["roles"])
	if !ok {
		errs["general"] = "Unknown audience"
	}
	if len(errs) > 0 {
		h.render(w, r, http.StatusBadRequest, pageData{Form: f, Errors: errs})
		return
	}

	payload := jobs.BroadcastPayload{
		Roles: roles,
		Draft: notifications.Draft{
			Type:    notifications.TypeAnnouncement,
			Title:   f.Title,
			Message: f.Message,
			Link:    f.Link,
		},
	}
	if snap, ok := gate.AccessFromContext(r.Context()); ok && snap.Profile != nil {
		payload.Author = snap.Profile.ID.String()
	}
	info, err := h.publisher.EnqueueBroadcast(r.Context(), payload)
	if err != nil {
		h.logger.Error("enqueue announcement", slog.Any("error", err))
		h.render(w, r, http.StatusServiceUnavailable, pageData{
			Form:   f,
			Errors: map[string]string{"general": "Publishing is unavailable, please try again"},
		})
		return
	}
	h.logger.Info("announcement queued", slog.String("task_id", info.ID), slog.Any("roles", roles), slog.String("author", payload.Author))
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Announcement queued for delivery"})
	}
	http.Redirect(w, r, "/announcements", http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	snap, _ := gate.AccessFromContext(r.Context())
	if role, ok := snap.Role(); ok {
		data.CanPublish = role.In(Publishers...)
	}
	data.Audiences = Audiences
	if data.Errors == nil {
		data.Errors = map[string]string{}
	}

	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrf.EnsureToken(sess)
	if err != nil {
		h.logger.Warn("csrf token", slog.Any("error", err))
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       "Announcements",
		CSRFToken:   token,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if h.decorate != nil {
		h.decorate(r, &viewData)
	}
	if err := h.templates.RenderStatus(w, status, "pages/announcements.html", viewData); err != nil {
		h.logger.Error("render", slog.String("template", "pages/announcements.html"), slog.Any("error", err))
	}
}

func (h *Handler) validate(f form) map[string]string {
	errs := make(map[string]string)
	var fieldErrs validator.ValidationErrors
	if err := h.validator.Struct(f); errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			switch fe.Tag() {
			case "required":
				errs[fe.Field()] = "This field is required"
			case "max":
				errs[fe.Field()] = "Must be at most " + fe.Param() + " characters"
			case "startswith":
				errs[fe.Field()] = "Use a path inside the console, like /appointments"
			default:
				errs[fe.Field()] = "Invalid value"
			}
		}
	}
	return errs
}

// parseRoles keeps the submitted audience in Audiences order, without
// duplicates. An empty selection addresses everyone.
func parseRoles(raw []string) ([]string, bool) {
	selected := make(map[gate.Role]bool, len(raw))
	for _, value := range raw {
		role := gate.ParseRole(value)
		if !role.In(Audiences...) {
			return nil, false
		}
		selected[role] = true
	}
	roles := make([]string, 0, len(selected))
	for _, role := range Audiences {
		if selected[role] {
			roles = append(roles, string(role))
		}
	}
	return roles, true
}
