package middleware

import (
	"context"
	"net/http"
	"strings"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/TimeFreeze025/it315-project/internal/auth"
	"github.com/TimeFreeze025/it315-project/internal/response"
)

// ProfileRecorder stores the display name of an authenticated caller.
type ProfileRecorder interface {
	Remember(ctx context.Context, caller auth.Caller) error
}

// Authenticate resolves the Bearer token, if any, and stores the resulting
// auth.Caller in the request context. Requests without a valid token continue
// as anonymous; authorization is left to the handlers and services.
// profiles may be nil.
func Authenticate(resolver auth.Resolver, profiles ProfileRecorder, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			caller, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				log.Debug("rejected bearer token",
					zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
					zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if profiles != nil {
				if err := profiles.Remember(r.Context(), caller); err != nil {
					log.Warn("record user profile",
						zap.String("user_id", caller.UserID),
						zap.Error(err))
				}
			}

			next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
		})
	}
}

// RequireAuth rejects requests that Authenticate left anonymous.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.FromContext(r.Context()).IsZero() {
			response.Unauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
