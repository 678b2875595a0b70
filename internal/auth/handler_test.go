package auth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/atrium-hq/atrium/internal/auth"
	"github.com/atrium-hq/atrium/internal/registry"
	"github.com/atrium-hq/atrium/internal/shared"
	_ "github.com/atrium-hq/atrium/testing"
)

type stubAuthRepo struct {
	users    map[string]*auth.User
	sessions map[string]int64
}

func newStubAuthRepo() *stubAuthRepo {
	return &stubAuthRepo{users: make(map[string]*auth.User), sessions: make(map[string]int64)}
}

func (s *stubAuthRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, ok := s.users[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubAuthRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions[id] = userID
	return nil
}

func (s *stubAuthRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

func (s *stubAuthRepo) addUser(t *testing.T, id int64, email, password string, role registry.Role, active bool) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	s.users[email] = &auth.User{ID: id, Email: email, PasswordHash: string(hash), Role: role, IsActive: active}
}

type authTestEnv struct {
	router   chi.Router
	repo     *stubAuthRepo
	sessions *shared.SessionManager
	redis    *redis.Client
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// commitWriter mirrors the production session middleware: the session must be
// persisted before the first header write so Set-Cookie lands in the response.
type commitWriter struct {
	http.ResponseWriter
	commit func()
	done   bool
}

func (w *commitWriter) WriteHeader(code int) {
	if !w.done {
		w.done = true
		w.commit()
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *commitWriter) Write(b []byte) (int, error) {
	if !w.done {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func newAuthTestEnv(t *testing.T) *authTestEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sm := shared.NewSessionManager(client, "atrium_session", "test-secret", time.Hour, false)
	repo := newStubAuthRepo()
	svc := auth.NewService(repo)
	handler := auth.NewHandler(discardLogger(), svc, sm)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sm.Load(req.Context(), req)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			ctx := shared.ContextWithSession(req.Context(), sess)
			wrapped := &commitWriter{ResponseWriter: w, commit: func() {
				_ = sm.Commit(ctx, w, req, sess)
			}}
			next.ServeHTTP(wrapped, req.WithContext(ctx))
		})
	})
	r.Route("/auth", func(r chi.Router) {
		handler.MountRoutes(r)
	})

	return &authTestEnv{router: r, repo: repo, sessions: sm, redis: client}
}

func (env *authTestEnv) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "atrium_session" {
			return c
		}
	}
	return nil
}

func TestLoginSuccess(t *testing.T) {
	env := newAuthTestEnv(t)
	env.repo.addUser(t, 7, "manager@atrium.local", "secret123", registry.RoleManager, true)

	rec := env.login(t, "manager@atrium.local", "secret123")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		UserID int64  `json:"user_id"`
		Role   string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(7), resp.UserID)
	require.Equal(t, "MANAGER", resp.Role)

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie, "login must set the session cookie")
	require.True(t, cookie.HttpOnly)

	// The session record lands in postgres for audit; the stub captures it.
	require.Equal(t, int64(7), env.repo.sessions[cookie.Value])

	// The redis payload carries the identity the authorization core reads.
	data, err := env.redis.Get(context.Background(), "session:"+cookie.Value).Bytes()
	require.NoError(t, err)
	require.Contains(t, string(data), `"user_id":"7"`)
	require.Contains(t, string(data), `"role":"MANAGER"`)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newAuthTestEnv(t)
	env.repo.addUser(t, 7, "manager@atrium.local", "secret123", registry.RoleManager, true)

	rec := env.login(t, "manager@atrium.local", "wrong")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, env.repo.sessions)
}

func TestLoginUnknownEmail(t *testing.T) {
	env := newAuthTestEnv(t)

	rec := env.login(t, "nobody@atrium.local", "whatever")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unknown email and wrong password are indistinguishable to the caller.
	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "Unauthorized", problem["title"])
}

func TestLoginInactiveAccount(t *testing.T) {
	env := newAuthTestEnv(t)
	env.repo.addUser(t, 9, "gone@atrium.local", "secret123", registry.RoleUser, false)

	rec := env.login(t, "gone@atrium.local", "secret123")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidation(t *testing.T) {
	env := newAuthTestEnv(t)

	rec := env.login(t, "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{broken"))
	out := httptest.NewRecorder()
	env.router.ServeHTTP(out, req)
	require.Equal(t, http.StatusBadRequest, out.Code)
}

func TestLogoutClearsSession(t *testing.T) {
	env := newAuthTestEnv(t)
	env.repo.addUser(t, 7, "manager@atrium.local", "secret123", registry.RoleManager, true)

	rec := env.login(t, "manager@atrium.local", "secret123")
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(cookie)
	out := httptest.NewRecorder()
	env.router.ServeHTTP(out, req)
	require.Equal(t, http.StatusNoContent, out.Code)

	// Postgres session record and redis payload are both gone.
	require.Empty(t, env.repo.sessions)
	err := env.redis.Get(context.Background(), "session:"+cookie.Value).Err()
	require.ErrorIs(t, err, redis.Nil)

	cleared := sessionCookie(out)
	require.NotNil(t, cleared)
	require.Equal(t, -1, cleared.MaxAge, "logout must expire the cookie")
}
