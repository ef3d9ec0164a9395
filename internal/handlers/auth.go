package handlers

import (
	"net/http"

	"github.com/connectify/apiserver/config"
	"github.com/connectify/apiserver/internal/services"
	"github.com/connectify/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// AuthHandler provides account and session endpoints.
type AuthHandler struct {
	auth     *services.AuthService
	sessions sessions
	log      logrus.FieldLogger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(auth *services.AuthService, cfg config.AuthConfig, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		sessions: newSessions(cfg),
		log:      log,
	}
}

// AuthRouter registers auth routes on the given router. otpLimiter guards the
// endpoints that send or check one-time codes; it may be nil.
func AuthRouter(r chi.Router, auth *services.AuthService, cfg config.AuthConfig, otpLimiter func(http.Handler) http.Handler, log logrus.FieldLogger) {
	handler := NewAuthHandler(auth, cfg, log)

	r.Post("/signup", handler.Signup)
	r.Post("/login", handler.Login)
	r.Post("/logout", handler.Logout)
	r.With(handler.RequireAuth).Get("/me", handler.Me)
	r.With(handler.RequireAuth).Post("/onboarding", handler.Onboard)

	r.Group(func(r chi.Router) {
		if otpLimiter != nil {
			r.Use(otpLimiter)
		}
		r.Post("/send-otp", handler.SendOtp)
		r.Post("/verify-otp", handler.VerifyOtp)
		r.Post("/reset-password", handler.ResetPassword)
		r.Post("/verify-reset-otp", handler.VerifyResetOtp)
	})
}

// RequireAuth enforces session authentication and injects the subject into context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return requireAuth(h.sessions)(next)
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type OnboardRequest struct {
	FullName       string  `json:"fullName"`
	Bio            string  `json:"bio"`
	NativeLanguage string  `json:"nativeLanguage"`
	Location       string  `json:"location"`
	ProfilePic     *string `json:"profilePic"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type VerifyOtpRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type VerifyResetOtpRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

type UserResponse struct {
	Success bool       `json:"success"`
	User    types.User `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.auth.Signup(r.Context(), services.SignupInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	if err := h.sessions.start(w, user.ID); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{Success: true, User: user})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	if err := h.sessions.start(w, user.ID); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.end(w)
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "logout successful"})
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.auth.Me(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}

func (h *AuthHandler) Onboard(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req OnboardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.auth.Onboard(r.Context(), userID, services.OnboardInput{
		FullName:       req.FullName,
		Bio:            req.Bio,
		NativeLanguage: req.NativeLanguage,
		Location:       req.Location,
		ProfilePic:     req.ProfilePic,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}

func (h *AuthHandler) SendOtp(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.auth.RequestSignupOtp(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "OTP sent successfully"})
}

func (h *AuthHandler) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req VerifyOtpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.auth.VerifySignupOtp(r.Context(), req.Email, req.OTP)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{Success: true, User: user})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "OTP sent to email"})
}

func (h *AuthHandler) VerifyResetOtp(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetOtpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.auth.VerifyPasswordResetOtp(r.Context(), req.Email, req.OTP, req.NewPassword); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "password reset successful"})
}
