package handlers

import (
	"net/http"

	"github.com/connectify/apiserver/internal/services"
	"github.com/connectify/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// UserHandler serves discovery, friendship and profile endpoints.
type UserHandler struct {
	friends  *services.FriendshipService
	profiles *services.ProfileService
	metrics  *Metrics
	log      logrus.FieldLogger
}

func NewUserHandler(friends *services.FriendshipService, profiles *services.ProfileService, metrics *Metrics, log logrus.FieldLogger) *UserHandler {
	return &UserHandler{friends: friends, profiles: profiles, metrics: metrics, log: log}
}

// UserRouter registers user routes. Every route requires authentication.
func UserRouter(
	r chi.Router,
	friends *services.FriendshipService,
	profiles *services.ProfileService,
	metrics *Metrics,
	authMiddleware func(http.Handler) http.Handler,
	log logrus.FieldLogger,
) {
	handler := NewUserHandler(friends, profiles, metrics, log)

	r.Use(authMiddleware)
	r.Get("/connect", handler.Recommended)
	r.Get("/friends", handler.Friends)
	r.Get("/friend-requests", handler.FriendRequests)
	r.Get("/outgoing-friend-requests", handler.OutgoingFriendRequests)
	r.Get("/search", handler.Search)
	r.Post("/friend-request/{id}", handler.SendFriendRequest)
	r.Put("/friend-request/{id}/accept", handler.AcceptFriendRequest)
	r.Put("/friend-request/{id}/reject", handler.RejectFriendRequest)
	r.Delete("/unfriend/{id}", handler.Unfriend)
	r.Put("/me", handler.UpdateProfile)
	r.Put("/update-avatar", handler.UpdateAvatar)
}

type FriendRequestResponse struct {
	Success bool                `json:"success"`
	Request types.FriendRequest `json:"request"`
}

// RecommendedResponse wraps the connect list the way the web client reads it.
type RecommendedResponse struct {
	Success          bool                `json:"success"`
	RecommendedUsers []types.UserSummary `json:"recommendedUsers"`
}

type UpdateAvatarRequest struct {
	ProfilePic string `json:"profilePic"`
	Key        string `json:"key"`
}

func (h *UserHandler) Recommended(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	users, err := h.friends.ListRecommended(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, RecommendedResponse{Success: true, RecommendedUsers: users})
}

func (h *UserHandler) Friends(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	friends, err := h.friends.ListFriends(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, friends)
}

func (h *UserHandler) FriendRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	lists, err := h.friends.ListIncomingAndAccepted(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, lists)
}

func (h *UserHandler) OutgoingFriendRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	outgoing, err := h.friends.ListOutgoingPending(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, outgoing)
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	users, err := h.profiles.Search(r.Context(), userID, r.URL.Query().Get("query"))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	req, err := h.friends.SendRequest(r.Context(), userID, chi.URLParam(r, "id"))
	h.metrics.friendship("send", err)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, FriendRequestResponse{Success: true, Request: req})
}

func (h *UserHandler) AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	req, err := h.friends.AcceptRequest(r.Context(), chi.URLParam(r, "id"), userID)
	h.metrics.friendship("accept", err)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, FriendRequestResponse{Success: true, Request: req})
}

func (h *UserHandler) RejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	err := h.friends.RejectRequest(r.Context(), chi.URLParam(r, "id"), userID)
	h.metrics.friendship("reject", err)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "friend request rejected"})
}

func (h *UserHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	err := h.friends.Unfriend(r.Context(), userID, chi.URLParam(r, "id"))
	h.metrics.friendship("unfriend", err)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "friend removed"})
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	var patch services.ProfilePatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.profiles.UpdateProfile(r.Context(), userID, patch)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}

func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}

	var req UpdateAvatarRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.profiles.UpdateAvatar(r.Context(), userID, req.ProfilePic, req.Key)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}

func (h *UserHandler) subject(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", false
	}
	return userID, true
}
