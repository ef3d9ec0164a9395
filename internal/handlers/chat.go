package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// TokenIssuer mints chat/video provider tokens.
type TokenIssuer interface {
	CreateToken(userID string) (string, error)
	APIKey() string
}

type ChatHandler struct {
	issuer TokenIssuer
	log    logrus.FieldLogger
}

// ChatRouter registers chat routes. A nil issuer disables the endpoint with 503.
func ChatRouter(r chi.Router, issuer TokenIssuer, authMiddleware func(http.Handler) http.Handler, log logrus.FieldLogger) {
	handler := &ChatHandler{issuer: issuer, log: log}

	r.With(authMiddleware).Get("/token", handler.Token)
}

type ChatTokenResponse struct {
	Token  string `json:"token"`
	APIKey string `json:"apiKey"`
}

func (h *ChatHandler) Token(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.issuer == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}

	token, err := h.issuer.CreateToken(userID)
	if err != nil {
		h.log.WithError(err).WithField("user_id", userID).Error("failed to create chat token")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, ChatTokenResponse{Token: token, APIKey: h.issuer.APIKey()})
}
