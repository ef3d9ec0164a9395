package handlers

import (
	"net/http"

	"github.com/connectify/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type UploadHandler struct {
	profiles *services.ProfileService
	log      logrus.FieldLogger
}

// UploadRouter registers signed-upload routes.
func UploadRouter(r chi.Router, profiles *services.ProfileService, authMiddleware func(http.Handler) http.Handler, log logrus.FieldLogger) {
	handler := &UploadHandler{profiles: profiles, log: log}

	r.With(authMiddleware).Post("/avatar", handler.Avatar)
}

// Avatar issues a presigned PUT URL for a new profile picture. The client
// uploads the image and then calls PUT /users/update-avatar with the key.
func (h *UploadHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	upload, err := h.profiles.AvatarUploadURL(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, upload)
}
