package handler

import (
	"blog_auth/internal/auth"
	"blog_auth/internal/service"
	"blog_auth/internal/storage"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	clock  *time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	tokens, err := auth.NewTokenCodec("access-secret", "refresh-secret", auth.WithClock(clock))
	if err != nil {
		t.Fatalf("NewTokenCodec: %v", err)
	}
	store := storage.NewMemoryStorage().WithClock(clock)
	lgr := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := service.DefaultConfig()

	svc := service.NewService(store, store, auth.NewHasher(4), tokens, cfg, lgr, service.WithClock(clock))
	h := NewHandler(svc, lgr, CookieConfig{
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		Secure:     true,
		SameSite:   http.SameSiteStrictMode,
	}, time.Second)

	return &testServer{router: h.InitRoutes(), clock: &now}
}

func (s *testServer) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func cookieByName(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

const adaJSON = `{"name":"Ada","email":"ada@example.com","password":"secret1"}`

func TestRegister_SetsCookiesAndOmitsPassword(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/auth/registration", adaJSON)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}

	access := cookieByName(w, accessTokenCookie)
	refresh := cookieByName(w, refreshTokenCookie)
	if access == nil || refresh == nil {
		t.Fatal("auth cookies not set")
	}
	if !access.HttpOnly || !access.Secure || access.MaxAge != int((15*time.Minute).Seconds()) {
		t.Errorf("access cookie: %+v", access)
	}
	if refresh.Path != refreshPath || refresh.MaxAge != int((30*24*time.Hour).Seconds()) {
		t.Errorf("refresh cookie: %+v", refresh)
	}

	body := w.Body.String()
	if strings.Contains(strings.ToLower(body), "password") {
		t.Fatalf("response leaks password field: %s", body)
	}

	var resp authResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response.Email != "ada@example.com" || resp.Response.AccessToken != access.Value {
		t.Fatalf("response: %+v", resp)
	}
}

func TestRegister_Validation(t *testing.T) {
	s := newTestServer(t)

	cases := map[string]string{
		"bad email":      `{"name":"Ada","email":"nope","password":"secret1"}`,
		"short password": `{"name":"Ada","email":"ada@example.com","password":"123"}`,
		"missing name":   `{"email":"ada@example.com","password":"secret1"}`,
		"not json":       `{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if w := s.do(t, http.MethodPost, "/auth/registration", body); w.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d", w.Code)
			}
		})
	}
}

func TestRegister_MultibytePasswordOverByteLimit(t *testing.T) {
	s := newTestServer(t)

	body := `{"name":"Ada","email":"ada@example.com","password":"` + strings.Repeat("é", 40) + `"}`
	w := s.do(t, http.MethodPost, "/auth/registration", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}

	var resp errorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Message != "Password must be at most 72 bytes" {
		t.Fatalf("message: got %q", resp.Message)
	}
}

func TestRegister_Conflict(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/auth/registration", adaJSON)

	if w := s.do(t, http.MethodPost, "/auth/registration", adaJSON); w.Code != http.StatusConflict {
		t.Fatalf("status: got %d", w.Code)
	}
}

func TestLogin_GenericFailure(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/auth/registration", adaJSON)

	wrong := s.do(t, http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"wrong1"}`)
	unknown := s.do(t, http.MethodPost, "/auth/login", `{"email":"bob@example.com","password":"secret1"}`)

	if wrong.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d and %d", wrong.Code, unknown.Code)
	}
	if wrong.Body.String() != unknown.Body.String() {
		t.Fatalf("bodies differ: %s vs %s", wrong.Body.String(), unknown.Body.String())
	}

	malformed := s.do(t, http.MethodPost, "/auth/login", `{"email":"not-an-email","password":"secret1"}`)
	if malformed.Code != http.StatusUnauthorized || malformed.Body.String() != unknown.Body.String() {
		t.Fatalf("malformed email: got %d %s", malformed.Code, malformed.Body.String())
	}

	ok := s.do(t, http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"secret1"}`)
	if ok.Code != http.StatusOK || cookieByName(ok, refreshTokenCookie) == nil {
		t.Fatalf("login: got %d", ok.Code)
	}
}

func TestRefreshAndLogoutFlow(t *testing.T) {
	s := newTestServer(t)
	reg := s.do(t, http.MethodPost, "/auth/registration", adaJSON)
	access := cookieByName(reg, accessTokenCookie)
	refresh := cookieByName(reg, refreshTokenCookie)

	if w := s.do(t, http.MethodGet, "/auth/refresh", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh without cookie: got %d", w.Code)
	}

	w := s.do(t, http.MethodGet, "/auth/refresh", "", refresh)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: got %d, body %s", w.Code, w.Body.String())
	}
	if cookieByName(w, accessTokenCookie) == nil {
		t.Fatal("refresh must set a new access cookie")
	}
	if cookieByName(w, refreshTokenCookie) != nil {
		t.Fatal("fresh session must not rotate the refresh cookie")
	}

	if w := s.do(t, http.MethodGet, "/auth/profile", "", access); w.Code != http.StatusOK {
		t.Fatalf("profile: got %d", w.Code)
	}

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodGet, "/auth/logout", "", access)
		if w.Code != http.StatusOK {
			t.Fatalf("logout #%d: got %d", i+1, w.Code)
		}
		if c := cookieByName(w, accessTokenCookie); c == nil || c.MaxAge >= 0 {
			t.Fatalf("logout #%d must clear access cookie: %+v", i+1, c)
		}
	}

	if w := s.do(t, http.MethodGet, "/auth/refresh", "", refresh); w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: got %d", w.Code)
	}
}

func TestRefresh_RotatesCookieNearExpiry(t *testing.T) {
	s := newTestServer(t)
	reg := s.do(t, http.MethodPost, "/auth/registration", adaJSON)
	refresh := cookieByName(reg, refreshTokenCookie)

	*s.clock = s.clock.Add(30*24*time.Hour - 23*time.Hour)

	w := s.do(t, http.MethodGet, "/auth/refresh", "", refresh)
	if w.Code != http.StatusOK {
		t.Fatalf("refresh: got %d", w.Code)
	}
	rotated := cookieByName(w, refreshTokenCookie)
	if rotated == nil || rotated.Value == "" || rotated.Value == refresh.Value {
		t.Fatalf("expected rotated refresh cookie, got %+v", rotated)
	}
}

func TestProfile_BearerAndMissingToken(t *testing.T) {
	s := newTestServer(t)
	reg := s.do(t, http.MethodPost, "/auth/registration", adaJSON)
	access := cookieByName(reg, accessTokenCookie)

	if w := s.do(t, http.MethodGet, "/auth/profile", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+access.Value)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("bearer: got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("missing request id header")
	}
}

func TestLogout_WithoutTokenSucceeds(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(t, http.MethodGet, "/auth/logout", ""); w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
}
