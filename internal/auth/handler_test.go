package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishdesk/parishdesk/internal/auth"
	"github.com/parishdesk/parishdesk/internal/gate"
	"github.com/parishdesk/parishdesk/internal/notifications"
	"github.com/parishdesk/parishdesk/internal/password"
	"github.com/parishdesk/parishdesk/internal/shared"
	"github.com/parishdesk/parishdesk/internal/view"
	_ "github.com/parishdesk/parishdesk/testing"
)

type stubRepo struct {
	mu       sync.Mutex
	users    map[string]*auth.User
	profiles []gate.Profile
}

func newStubRepo(users ...*auth.User) *stubRepo {
	repo := &stubRepo{users: make(map[string]*auth.User)}
	for _, u := range users {
		repo.users[u.Email] = u
	}
	return repo
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(email)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *stubRepo) FindByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			clone := *u
			return &clone, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) CreateAccount(_ context.Context, user auth.User, profile gate.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Email]; ok {
		return auth.ErrEmailTaken
	}
	s.users[user.Email] = &user
	s.profiles = append(s.profiles, profile)
	return nil
}

func (s *stubRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			u.PasswordHash = hash
			return nil
		}
	}
	return shared.ErrNotFound
}

type stubNotifier struct {
	published []notifications.Draft
	users     []uuid.UUID
}

func (n *stubNotifier) Publish(_ context.Context, userID uuid.UUID, d notifications.Draft) (int64, error) {
	n.users = append(n.users, userID)
	n.published = append(n.published, d)
	return int64(len(n.published)), nil
}

type stubSigner struct {
	signedOut []string
}

func (s *stubSigner) SignOut(sessionID string) {
	s.signedOut = append(s.signedOut, sessionID)
}

const goodPassword = "Vespers#2026"

func activeUser(t *testing.T, email string) *auth.User {
	t.Helper()
	hash, err := password.Hash(goodPassword)
	require.NoError(t, err)
	return &auth.User{ID: uuid.New(), Email: email, PasswordHash: hash, IsActive: true}
}

type harness struct {
	router   http.Handler
	sessions *shared.SessionManager
	repo     *stubRepo
	notifier *stubNotifier
	signer   *stubSigner
	access   *gate.Snapshot
}

func newHarness(t *testing.T, repo *stubRepo) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	templates, err := view.NewEngine()
	require.NoError(t, err)

	h := &harness{sessions: sessions, repo: repo, notifier: &stubNotifier{}, signer: &stubSigner{}}
	service := auth.NewService(repo, h.notifier, nil)
	handler := auth.NewHandler(nil, service, templates, sessions, shared.NewCSRFManager("csrfsecret"), h.signer, nil)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.access != nil {
				r = r.WithContext(gate.ContextWithAccess(r.Context(), *h.access))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Route("/auth", func(r chi.Router) {
		handler.MountRoutes(r)
		handler.MountAccountRoutes(r)
	})
	h.router = r
	return h
}

// serve runs req through the router with a loaded session and commits it.
func (h *harness) serve(t *testing.T, req *http.Request, cookie *http.Cookie) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := h.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req.WithContext(ctx))
	require.NoError(t, h.sessions.Commit(ctx, res, sess))
	return res, sess
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestLoginPage(t *testing.T) {
	h := newHarness(t, newStubRepo())

	res, sess := h.serve(t, httptest.NewRequest(http.MethodGet, "/auth/login", nil), nil)

	assert.Equal(t, http.StatusOK, res.Code)
	assert.Contains(t, res.Body.String(), "<form")
	assert.NotEmpty(t, sess.Get(shared.CSRFSessionKey))
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newHarness(t, newStubRepo(activeUser(t, "clerk@parish.test")))

	res, sess := h.serve(t, postForm("/auth/login", url.Values{
		"email":    {"clerk@parish.test"},
		"password": {"wrongpass"},
	}), nil)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Invalid email or password")
	assert.Equal(t, "", sess.User())
}

func TestLoginSuccessRotatesSession(t *testing.T) {
	user := activeUser(t, "clerk@parish.test")
	h := newHarness(t, newStubRepo(user))

	_, anon := h.serve(t, httptest.NewRequest(http.MethodGet, "/auth/login", nil), nil)
	cookie := &http.Cookie{Name: h.sessions.CookieName(), Value: anon.ID}

	res, sess := h.serve(t, postForm("/auth/login", url.Values{
		"email":    {"clerk@parish.test"},
		"password": {goodPassword},
	}), cookie)

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/", res.Header().Get("Location"))
	assert.Equal(t, user.ID.String(), sess.User())
	assert.NotEqual(t, anon.ID, sess.ID)
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	user := activeUser(t, "former@parish.test")
	user.IsActive = false
	h := newHarness(t, newStubRepo(user))

	res, _ := h.serve(t, postForm("/auth/login", url.Values{
		"email":    {"former@parish.test"},
		"password": {goodPassword},
	}), nil)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "deactivated")
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	h := newHarness(t, newStubRepo())

	res, _ := h.serve(t, postForm("/auth/register", url.Values{
		"full_name": {"Maria Santos"},
		"email":     {"maria@parish.test"},
		"password":  {"abcdefgh"},
		"confirm":   {"abcdefgh"},
	}), nil)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "One uppercase letter")
	assert.Empty(t, h.repo.profiles)
}

func TestRegisterCreatesUserProfileAndWelcome(t *testing.T) {
	h := newHarness(t, newStubRepo())

	res, sess := h.serve(t, postForm("/auth/register", url.Values{
		"full_name": {"Maria Santos"},
		"email":     {"Maria@Parish.test"},
		"password":  {goodPassword},
		"confirm":   {goodPassword},
	}), nil)

	require.Equal(t, http.StatusSeeOther, res.Code)
	require.Len(t, h.repo.profiles, 1)
	profile := h.repo.profiles[0]
	assert.Equal(t, gate.RoleUser, profile.Role)
	assert.Equal(t, "Maria Santos", profile.FullName)
	assert.Equal(t, profile.ID.String(), sess.User())

	stored, err := h.repo.FindByEmail(context.Background(), "maria@parish.test")
	require.NoError(t, err)
	assert.NoError(t, password.Verify(stored.PasswordHash, goodPassword))

	require.Len(t, h.notifier.published, 1)
	assert.Equal(t, profile.ID, h.notifier.users[0])
	assert.Equal(t, notifications.TypeSuccess, h.notifier.published[0].Type)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newHarness(t, newStubRepo(activeUser(t, "maria@parish.test")))

	res, _ := h.serve(t, postForm("/auth/register", url.Values{
		"full_name": {"Maria Santos"},
		"email":     {"maria@parish.test"},
		"password":  {goodPassword},
		"confirm":   {goodPassword},
	}), nil)

	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "already exists")
	assert.Empty(t, h.notifier.published)
}

func TestLogoutSignsOutGate(t *testing.T) {
	user := activeUser(t, "clerk@parish.test")
	h := newHarness(t, newStubRepo(user))
	_, sess := h.serve(t, postForm("/auth/login", url.Values{
		"email":    {"clerk@parish.test"},
		"password": {goodPassword},
	}), nil)
	cookie := &http.Cookie{Name: h.sessions.CookieName(), Value: sess.ID}

	res, _ := h.serve(t, postForm("/auth/logout", url.Values{}), cookie)

	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, "/auth/login", res.Header().Get("Location"))
	assert.Equal(t, []string{sess.ID}, h.signer.signedOut)

	// The destroyed session is not loadable any more.
	_, reloaded := h.serve(t, httptest.NewRequest(http.MethodGet, "/auth/login", nil), cookie)
	assert.NotEqual(t, sess.ID, reloaded.ID)
	assert.Equal(t, "", reloaded.User())
}

func TestChangePassword(t *testing.T) {
	user := activeUser(t, "clerk@parish.test")
	h := newHarness(t, newStubRepo(user))
	h.access = &gate.Snapshot{
		State:   gate.Authorized,
		Session: &gate.Session{ID: "sess", Subject: user.ID.String()},
		Profile: &gate.Profile{ID: user.ID, Role: gate.RoleAdmin, FullName: "Clerk"},
	}

	res, _ := h.serve(t, postForm("/auth/password", url.Values{
		"current":  {"not-it"},
		"password": {"Compline!2027"},
		"confirm":  {"Compline!2027"},
	}), nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "Current password is incorrect")

	res, _ = h.serve(t, postForm("/auth/password", url.Values{
		"current":  {goodPassword},
		"password": {"Compline!2027"},
		"confirm":  {"Compline!2027"},
	}), nil)
	assert.Equal(t, http.StatusSeeOther, res.Code)
	stored, err := h.repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.NoError(t, password.Verify(stored.PasswordHash, "Compline!2027"))
}

func TestAssessPassword(t *testing.T) {
	h := newHarness(t, newStubRepo())

	req := httptest.NewRequest(http.MethodPost, "/auth/password/assess", strings.NewReader(`{"password":"Abcdefg1!"}`))
	req.Header.Set("Content-Type", "application/json")
	res, _ := h.serve(t, req, nil)

	require.Equal(t, http.StatusOK, res.Code)
	var body struct {
		Score        int    `json:"score"`
		Label        string `json:"label"`
		Valid        bool   `json:"valid"`
		Percent      int    `json:"percent"`
		Show         bool   `json:"show"`
		Requirements []struct {
			Met bool `json:"met"`
		} `json:"requirements"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Score)
	assert.Equal(t, "Very Strong", body.Label)
	assert.True(t, body.Valid)
	assert.Equal(t, 100, body.Percent)
	assert.True(t, body.Show)
	assert.Len(t, body.Requirements, 5)

	req = httptest.NewRequest(http.MethodPost, "/auth/password/assess", strings.NewReader(`{"password":""}`))
	res, _ = h.serve(t, req, nil)
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.False(t, body.Show)
	assert.Equal(t, 0, body.Percent)
}
