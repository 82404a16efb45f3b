package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/parishdesk/parishdesk/internal/gate"
	"github.com/parishdesk/parishdesk/internal/password"
	"github.com/parishdesk/parishdesk/internal/platform/httpx"
	"github.com/parishdesk/parishdesk/internal/shared"
	"github.com/parishdesk/parishdesk/internal/view"
)

// SessionSigner forgets the access state of a console session.
type SessionSigner interface {
	SignOut(sessionID string)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	signer         SessionSigner
	decorate       view.Decorator
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, signer SessionSigner, decorate view.Decorator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		signer:         signer,
		decorate:       decorate,
		validator:      validator.New(),
	}
}

// MountRoutes registers the public auth routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
	r.Post("/password/assess", h.assessPassword)
}

// MountAccountRoutes registers routes that require an Authorized session.
func (h *Handler) MountAccountRoutes(r chi.Router) {
	r.Get("/password", h.showPassword)
	r.Post("/password", h.handlePassword)
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

type registerForm struct {
	FullName string `validate:"required,max=120"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=72"`
	Confirm  string `validate:"required,eqfield=Password"`
}

type registerPageData struct {
	Form     registerForm
	Errors   map[string]string
	Strength password.Assessment
}

type passwordForm struct {
	Current  string `validate:"required"`
	Password string `validate:"required,max=72"`
	Confirm  string `validate:"required,eqfield=Password"`
}

type passwordPageData struct {
	Errors   map[string]string
	Strength password.Assessment
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if authorized(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "pages/login.html", "Sign in", loginPageData{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
	errs := h.validate(form)
	if len(errs) == 0 {
		user, err := h.service.SignIn(r.Context(), form.Email, form.Password)
		if err == nil {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil {
				h.logger.Error("session missing during login")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			sess.SignIn(user.ID.String())
			sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back"})
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		var authErr *AuthError
		if !errors.As(err, &authErr) {
			h.logger.Error("sign in", slog.Any("error", err))
			errs["general"] = "Sign in is unavailable, please try again"
		} else {
			errs["general"] = authErr.Message
		}
	}
	form.Password = ""
	h.render(w, r, http.StatusBadRequest, "pages/login.html", "Sign in", loginPageData{Form: form, Errors: errs})
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	if authorized(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, "pages/register.html", "Create account", registerPageData{Strength: password.Assess("")})
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := registerForm{
		FullName: r.PostFormValue("full_name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
	}
	errs := h.validate(form)
	if _, ok := errs["Password"]; !ok {
		if res := password.Validate(form.Password); !res.Valid {
			errs["Password"] = "Missing: " + strings.Join(res.Errors, ", ")
		}
	}
	if len(errs) == 0 {
		user, err := h.service.SignUp(r.Context(), SignUpInput{Email: form.Email, Password: form.Password, FullName: form.FullName})
		if err == nil {
			sess := shared.SessionFromContext(r.Context())
			if sess != nil {
				sess.SignIn(user.ID.String())
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Your account has been created"})
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		var authErr *AuthError
		if errors.As(err, &authErr) {
			errs["general"] = authErr.Message
		} else {
			h.logger.Error("sign up", slog.Any("error", err))
			errs["general"] = "Registration is unavailable, please try again"
		}
	}
	strength := password.Assess(form.Password)
	form.Password, form.Confirm = "", ""
	h.render(w, r, http.StatusBadRequest, "pages/register.html", "Create account", registerPageData{Form: form, Errors: errs, Strength: strength})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if h.signer != nil {
			h.signer.SignOut(sess.ID)
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) showPassword(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/password.html", "Change password", passwordPageData{Strength: password.Assess("")})
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	snap, _ := gate.AccessFromContext(r.Context())
	if snap.Profile == nil {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	form := passwordForm{
		Current:  r.PostFormValue("current"),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("confirm"),
	}
	errs := h.validate(form)
	if _, ok := errs["Password"]; !ok {
		if res := password.Validate(form.Password); !res.Valid {
			errs["Password"] = "Missing: " + strings.Join(res.Errors, ", ")
		}
	}
	if len(errs) == 0 {
		err := h.service.ChangePassword(r.Context(), snap.Profile.ID, form.Current, form.Password)
		if err == nil {
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Password updated"})
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		var authErr *AuthError
		if errors.As(err, &authErr) {
			errs["general"] = authErr.Message
		} else {
			h.logger.Error("change password", slog.Any("error", err))
			errs["general"] = "Password change is unavailable, please try again"
		}
	}
	h.render(w, r, http.StatusBadRequest, "pages/password.html", "Change password", passwordPageData{Errors: errs, Strength: password.Assess(form.Password)})
}

type assessRequest struct {
	Password string `json:"password"`
}

type assessResponse struct {
	password.Assessment
	Percent int  `json:"percent"`
	Show    bool `json:"show"`
}

func (h *Handler) assessPassword(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	a := password.Assess(req.Password)
	httpx.JSON(w, http.StatusOK, assessResponse{Assessment: a, Percent: a.Percent(), Show: a.ShowRequirements()})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, err := h.csrfManager.EnsureToken(sess)
	if err != nil {
		h.logger.Warn("csrf token", slog.Any("error", err))
	}
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if h.decorate != nil && authorized(r) {
		h.decorate(r, &viewData)
	}
	if err := h.templates.RenderStatus(w, status, name, viewData); err != nil {
		h.logger.Error("render", slog.String("template", name), slog.Any("error", err))
	}
}

func (h *Handler) validate(form any) map[string]string {
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[fieldErr.Field()] = fieldMessage(fieldErr)
			}
		}
	}
	return errs
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Enter a valid email address"
	case "eqfield":
		return "Passwords do not match"
	case "max":
		return "Must be at most " + fe.Param() + " characters"
	default:
		return "Invalid value"
	}
}

func authorized(r *http.Request) bool {
	snap, ok := gate.AccessFromContext(r.Context())
	return ok && snap.State == gate.Authorized
}
