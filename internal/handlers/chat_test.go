package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/connectify/apiserver/config"
	"github.com/connectify/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIssuer struct {
	err error
}

func (f fakeIssuer) CreateToken(userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token-for-" + userID, nil
}

func (fakeIssuer) APIKey() string { return "public-key" }

func TestChatToken(t *testing.T) {
	cfg := config.AuthConfig{JWTSecret: "secret"}
	token, err := issueToken("user-1", []byte("secret"), time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		issuer TokenIssuer
		code   int
		body   string
	}{
		{name: "issued", issuer: fakeIssuer{}, code: http.StatusOK, body: `{"token":"token-for-user-1","apiKey":"public-key"}`},
		{name: "not configured", issuer: nil, code: http.StatusServiceUnavailable, body: `{"error":"chat is not configured"}`},
		{name: "issuer failure", issuer: fakeIssuer{err: errors.New("bad key")}, code: http.StatusInternalServerError, body: `{"error":"internal server error"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			router := chi.NewRouter()
			ChatRouter(router, tc.issuer, RequireAuth(cfg), logger)

			req := httptest.NewRequest(http.MethodGet, "/token", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.code, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
		})
	}
}

func TestMetricsCountFriendshipOutcomes(t *testing.T) {
	metrics := NewMetrics()
	metrics.friendship("send", nil)
	metrics.friendship("send", &services.Error{Kind: services.ErrConflict, Message: "exists"})
	metrics.friendship("accept", &services.Error{Kind: services.ErrForbidden, Message: "nope"})

	var nilMetrics *Metrics
	nilMetrics.friendship("send", nil)

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, line := range []string{
		`friendship_operations_total{operation="send",outcome="ok"} 1`,
		`friendship_operations_total{operation="send",outcome="conflict"} 1`,
		`friendship_operations_total{operation="accept",outcome="forbidden"} 1`,
	} {
		assert.True(t, strings.Contains(body, line), "missing %s", line)
	}
}
