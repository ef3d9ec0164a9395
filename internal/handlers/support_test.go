package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/connectify/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

type stubMailer struct {
	err error
	to  string
}

func (m *stubMailer) Send(_ context.Context, to, _, _ string) error {
	m.to = to
	return m.err
}

func TestSupportSubmit(t *testing.T) {
	tests := []struct {
		name   string
		mailer *stubMailer
		body   string
		code   int
		want   string
	}{
		{
			name:   "forwarded",
			mailer: &stubMailer{},
			body:   `{"email":"ana@example.com","username":"Ana","message":"hi","rating":5}`,
			code:   http.StatusOK,
			want:   `{"success":true}`,
		},
		{
			name:   "missing fields",
			mailer: &stubMailer{},
			body:   `{"email":"ana@example.com"}`,
			code:   http.StatusBadRequest,
			want:   `{"error":"all fields are required","missingFields":["username","message"]}`,
		},
		{
			name:   "malformed body",
			mailer: &stubMailer{},
			body:   `{"rating":"five"}`,
			code:   http.StatusBadRequest,
			want:   `{"error":"invalid request"}`,
		},
		{
			name:   "delivery failure",
			mailer: &stubMailer{err: errors.New("smtp down")},
			body:   `{"email":"ana@example.com","username":"Ana","message":"hi","rating":1}`,
			code:   http.StatusInternalServerError,
			want:   `{"error":"failed to send support message"}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logger, _ := test.NewNullLogger()
			router := chi.NewRouter()
			SupportRouter(router, services.NewSupportService(tc.mailer, "help@connectify.local", logger), nil, logger)

			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.code, rec.Code)
			assert.JSONEq(t, tc.want, rec.Body.String())
			if tc.code == http.StatusOK {
				assert.Equal(t, "help@connectify.local", tc.mailer.to)
			}
		})
	}
}
