package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/slimedodge/server/internal/config"
	"github.com/slimedodge/server/internal/testutil"
)

func testConfig(observerHash string) *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:            "test_jwt_secret_key_32_bytes_long!!",
			JWTExpiration:        15 * time.Minute,
			Issuer:               "slimedodge-test",
			ObserverPasswordHash: observerHash,
			BCryptCost:           bcrypt.MinCost,
		},
	}
}

func TestJWTService_RoundTrip(t *testing.T) {
	service := NewJWTService(testConfig(""))

	token, expiresAt, err := service.GenerateAccessToken("watcher")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), expiresAt, 5*time.Second)

	claims, err := service.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "watcher", claims.ObserverID)
	assert.Equal(t, RoleObserver, claims.Role)
	assert.Equal(t, "slimedodge-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestJWTService_RejectsBadTokens(t *testing.T) {
	service := NewJWTService(testConfig(""))

	other := testConfig("")
	other.Auth.JWTSecret = "another_secret"
	foreign, _, err := NewJWTService(other).GenerateAccessToken("watcher")
	require.NoError(t, err)

	otherIssuer := testConfig("")
	otherIssuer.Auth.Issuer = "someone-else"
	wrongIssuer, _, err := NewJWTService(otherIssuer).GenerateAccessToken("watcher")
	require.NoError(t, err)

	expiredCfg := testConfig("")
	expiredCfg.Auth.JWTExpiration = -time.Minute
	expired, _, err := NewJWTService(expiredCfg).GenerateAccessToken("watcher")
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{ObserverID: "watcher"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":        "not.a.token",
		"foreign secret": foreign,
		"wrong issuer":   wrongIssuer,
		"expired":        expired,
		"unsigned":       none,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := service.ValidateAccessToken(token)
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}
}

func TestPasswordService(t *testing.T) {
	service := NewPasswordService(testConfig(""))

	_, err := service.HashPassword("short")
	assert.Error(t, err)

	hash, err := service.HashPassword("observerpassword123")
	require.NoError(t, err)
	assert.True(t, service.VerifyPassword("observerpassword123", hash))
	assert.False(t, service.VerifyPassword("wrong", hash))

	assert.False(t, service.ObserverPasswordRequired())
	assert.True(t, service.VerifyObserver("anything"))

	locked := NewPasswordService(testConfig(hash))
	assert.True(t, locked.ObserverPasswordRequired())
	assert.True(t, locked.VerifyObserver("observerpassword123"))
	assert.False(t, locked.VerifyObserver(""))
}

func newTestHandlers(t *testing.T, password string) *AuthHandlers {
	t.Helper()
	hash := ""
	if password != "" {
		raw, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		hash = string(raw)
	}
	cfg := testConfig(hash)
	return NewAuthHandlers(NewJWTService(cfg), NewPasswordService(cfg), zerolog.Nop())
}

func TestIssueObserverToken(t *testing.T) {
	observer := testutil.NewTestObserver()
	h := newTestHandlers(t, observer.Password)
	helper := testutil.NewHTTPTestHelper(http.HandlerFunc(h.IssueObserverToken))

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"valid", ObserverLoginRequest{ObserverID: "watcher1", Password: observer.Password}, http.StatusOK, ""},
		{"wrong password", ObserverLoginRequest{ObserverID: "watcher1", Password: "nope"}, http.StatusUnauthorized, "InvalidCredentials"},
		{"short id", ObserverLoginRequest{ObserverID: "ab", Password: observer.Password}, http.StatusBadRequest, "ValidationError"},
		{"bad characters", ObserverLoginRequest{ObserverID: "watch er!", Password: observer.Password}, http.StatusBadRequest, "ValidationError"},
		{"not an object", "{", http.StatusBadRequest, "InvalidRequest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := helper.MakeRequest(http.MethodPost, "/api/auth/observer", tt.body)
			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.status == http.StatusOK {
				resp := testutil.DecodeJSON[TokenResponse](t, rr)
				assert.Equal(t, "watcher1", resp.ObserverID)
				_, err := h.JWTService().ValidateAccessToken(resp.AccessToken)
				assert.NoError(t, err)
				return
			}
			resp := testutil.DecodeJSON[ErrorResponse](t, rr)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	h := newTestHandlers(t, "")
	token, _, err := h.JWTService().GenerateAccessToken("watcher")
	require.NoError(t, err)

	protected := h.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetObserverID(r)
		require.True(t, ok)
		claims, ok := GetClaims(r)
		require.True(t, ok)
		assert.Equal(t, id, claims.ObserverID)
		w.Write([]byte(id))
	}))

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"header", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"query", func(r *http.Request) { r.URL.RawQuery = "token=" + token }, http.StatusOK},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"malformed header", func(r *http.Request) { r.Header.Set("Authorization", "Token "+token) }, http.StatusUnauthorized},
		{"invalid", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(req)
			rr := httptest.NewRecorder()
			protected.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "watcher", strings.TrimSpace(rr.Body.String()))
			}
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	rr := httptest.NewRecorder()
	SecurityHeadersMiddleware(false)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, rr.Header().Get("Strict-Transport-Security"))

	rr = httptest.NewRecorder()
	SecurityHeadersMiddleware(true)(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rr.Header().Get("Strict-Transport-Security"))
}
