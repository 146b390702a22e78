package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/auth/session"
	"github.com/angelmondragon/storefront-backend/pkg/config"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}

type stubSessionVerifier struct {
	live bool
	err  error
}

func (s stubSessionVerifier) HasSession(context.Context, string) (bool, error) {
	return s.live, s.err
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, activated bool) (string, string) {
	t.Helper()
	accessID := session.NewAccessID()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{
		UserID:    userID,
		Email:     "tester@example.com",
		Activated: activated,
		JTI:       accessID,
	})
	require.NoError(t, err)
	return token, accessID
}

func serveAuth(verifier session.AccessSessionChecker, header string, next http.HandlerFunc) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	Auth(testJWT, verifier, nil)(next).ServeHTTP(rec, req)
	return rec
}

func TestAuthRejections(t *testing.T) {
	token, _ := mintTestToken(t, testJWT, uuid.New(), true)
	foreign, _ := mintTestToken(t, config.JWTConfig{Secret: "other", Issuer: "issuer", ExpirationMinutes: 60}, uuid.New(), true)

	cases := []struct {
		name      string
		header    string
		verifier  stubSessionVerifier
		want      int
		challenge bool
	}{
		{"missing header", "", stubSessionVerifier{live: true}, http.StatusUnauthorized, true},
		{"garbage token", "Bearer invalid", stubSessionVerifier{live: true}, http.StatusUnauthorized, true},
		{"wrong scheme", "Basic " + token, stubSessionVerifier{live: true}, http.StatusUnauthorized, true},
		{"foreign signature", "Bearer " + foreign, stubSessionVerifier{live: true}, http.StatusUnauthorized, true},
		{"revoked session", "Bearer " + token, stubSessionVerifier{live: false}, http.StatusUnauthorized, true},
		{"session store down", "Bearer " + token, stubSessionVerifier{err: errors.New("dial tcp")}, http.StatusServiceUnavailable, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serveAuth(tc.verifier, tc.header, func(http.ResponseWriter, *http.Request) {
				t.Fatal("handler should not run")
			})
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, tc.challenge, rec.Header().Get("WWW-Authenticate") != "")
		})
	}
}

func TestAuthSeedsSession(t *testing.T) {
	userID := uuid.New()
	token, accessID := mintTestToken(t, testJWT, userID, true)

	var got principal
	rec := serveAuth(stubSessionVerifier{live: true}, "Bearer "+token, func(w http.ResponseWriter, r *http.Request) {
		got = principalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID.String(), got.userID)
	assert.Equal(t, accessID, got.accessID)
	assert.True(t, got.activated)
}

func TestAuthWithoutVerifierTrustsToken(t *testing.T) {
	token, _ := mintTestToken(t, testJWT, uuid.New(), false)
	rec := serveAuth(nil, token, func(w http.ResponseWriter, r *http.Request) {
		assert.False(t, ActivatedFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireActivated(t *testing.T) {
	handler := RequireActivated(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name string
		ctx  context.Context
		want int
	}{
		{"anonymous", context.Background(), http.StatusUnauthorized},
		{"inactive", WithSession(context.Background(), uuid.NewString(), "a1", false), http.StatusForbidden},
		{"active", WithSession(context.Background(), uuid.NewString(), "a1", true), http.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/", nil).WithContext(tc.ctx)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equalf(t, tc.want, rec.Code, tc.name)
	}
}
