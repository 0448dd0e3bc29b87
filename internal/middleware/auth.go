package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/feedrank/internal/auth"
)

// TokenValidator validates a bearer token. *auth.JWTService implements it.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// Auth failure reasons reported to metrics.
const (
	authReasonMissing   = "missing"
	authReasonMalformed = "malformed"
	authReasonExpired   = "expired"
	authReasonInvalid   = "invalid"
)

// Auth authenticates "Authorization: Bearer <jwt>" and stores the token
// subject as the reader id. Requests without the header pass through
// anonymously unless required is set; a present but bad token is always
// rejected with 401. metrics may be nil.
func Auth(validator TokenValidator, required bool, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fail := func(reason, message string) {
				if metrics != nil {
					metrics.IncAuthFailures(reason)
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="feedrank"`)
				writeError(w, r, http.StatusUnauthorized, "auth_failed", message)
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				if required {
					fail(authReasonMissing, "Authentication required")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(header, " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				fail(authReasonMalformed, "Malformed authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					fail(authReasonExpired, "Token has expired")
					return
				}
				fail(authReasonInvalid, "Invalid token")
				return
			}

			ctx := SetUserID(r.Context(), claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeError writes the API's JSON error envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	SetErrorCode(r.Context(), code)

	body := struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}{}
	body.Error.Code = code
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.ErrorContext(r.Context(), "failed to write error response", "error", err)
	}
}
