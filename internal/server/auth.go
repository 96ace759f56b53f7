package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// authMiddleware verifies bearer tokens on the administrative surface. The
// gateway callback routes are mounted outside of it: the payment gateway
// cannot carry our tokens.
type authMiddleware struct {
	secret  []byte
	devMode bool
	log     zerolog.Logger
}

func newAuthMiddleware(secret string, devMode bool, log zerolog.Logger) *authMiddleware {
	return &authMiddleware{
		secret:  []byte(secret),
		devMode: devMode,
		log:     log.With().Str("component", "auth").Logger(),
	}
}

// Handler rejects requests without a valid HS256 bearer token. In dev mode
// with no secret configured, auth is disabled entirely.
func (a *authMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.devMode && len(a.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		token, err := a.bearerToken(r)
		if err != nil {
			a.deny(w, err.Error())
			return
		}

		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil || !parsed.Valid {
			a.log.Warn().Err(err).Str("path", r.URL.Path).Msg("Rejected request with invalid token")
			a.deny(w, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *authMiddleware) bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("missing Authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("malformed Authorization header")
	}
	return parts[1], nil
}

func (a *authMiddleware) deny(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}
