package middleware

import (
	"context"
	"errors"
	"net/http"

	"identity-server/internal/domain"
	"identity-server/internal/metrics"
	"identity-server/internal/service"
	"identity-server/pkg/response"

	"github.com/gorilla/mux"
)

type identityContextKey struct{}

// AuthMiddleware verifies the bearer access token and stores the resulting
// identity in the request context.
func AuthMiddleware(gate *service.Gate, rec *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			identity, err := gate.Authenticate(authHeader)
			if err != nil {
				rec.TokenRejected(metrics.TokenAccess)
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			annotateSubject(r.Context(), identity.Subject)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// OwnerOnly lets the request through only when the authenticated subject
// equals the route variable param. It must run after AuthMiddleware.
func OwnerOnly(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, _ := IdentityFromContext(r.Context())

			err := service.AuthorizeOwner(identity, mux.Vars(r)[param])
			switch {
			case errors.Is(err, service.ErrUnauthorized):
				response.Unauthorized(w, "Authentication required")
				return
			case err != nil:
				response.Forbidden(w, "Access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func WithIdentity(ctx context.Context, identity *domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (*domain.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*domain.Identity)
	return identity, ok && identity != nil
}
