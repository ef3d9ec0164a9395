package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/connectify/apiserver/config"
	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 7 * 24 * time.Hour

// sessions issues and reads the session token carried in a cookie or an
// Authorization header.
type sessions struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	secure     bool
}

func newSessions(cfg config.AuthConfig) sessions {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	name := cfg.CookieName
	if name == "" {
		name = "jwt"
	}
	return sessions{
		secret:     []byte(cfg.JWTSecret),
		ttl:        ttl,
		cookieName: name,
		secure:     cfg.CookieSecure,
	}
}

// start signs a token for userID and sets it as the session cookie.
func (s sessions) start(w http.ResponseWriter, userID string) error {
	token, err := issueToken(userID, s.secret, s.ttl)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl / time.Second),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

func (s sessions) end(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s sessions) token(r *http.Request) (string, error) {
	if cookie, err := r.Cookie(s.cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
		return strings.TrimSpace(cookie.Value), nil
	}
	return bearerToken(r)
}

// RequireAuth constructs auth middleware for other routers.
func RequireAuth(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return requireAuth(newSessions(cfg))
}

func requireAuth(s sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := s.token(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized - no token provided")
				return
			}

			subject, err := parseTokenSubject(tokenString, s.secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized - invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), contextSubjectKey, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func issueToken(userID string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func parseTokenSubject(tokenString string, secret []byte) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
