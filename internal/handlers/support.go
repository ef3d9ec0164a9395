package handlers

import (
	"net/http"

	"github.com/connectify/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type SupportHandler struct {
	support *services.SupportService
	log     logrus.FieldLogger
}

// SupportRouter registers the public support form endpoint. limiter may be nil.
func SupportRouter(r chi.Router, support *services.SupportService, limiter func(http.Handler) http.Handler, log logrus.FieldLogger) {
	handler := &SupportHandler{support: support, log: log}

	if limiter != nil {
		r.Use(limiter)
	}
	r.Post("/", handler.Submit)
}

type SupportRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Message  string `json:"message"`
	Rating   int    `json:"rating"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func (h *SupportHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SupportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	err := h.support.Submit(r.Context(), services.SupportInput{
		Email:    req.Email,
		Username: req.Username,
		Message:  req.Message,
		Rating:   req.Rating,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
