package handler

import (
	"context"
	"net/http"

	"github.com/sakif/todo-auth/internal/auth"
	"github.com/sakif/todo-auth/internal/middleware"
	"github.com/sakif/todo-auth/internal/model"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of this type, so nothing else can read
// or shadow the value.
type contextKey string

const userKey contextKey = "user"

// RequireUser is a middleware that resolves the session cookie to a user.
//
// It reads the token from the session cookie and asks the service who it
// belongs to. A missing cookie and a rejected token both end in 401; a
// token for a deleted account ends in 404. On success the PublicUser is
// stored in the request context for the handler, and its id is handed to
// the request logger.
func RequireUser(svc Authenticator, cookies *auth.CookieTransport) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// An absent cookie becomes "" and the service reports Unauthenticated.
			token, _ := cookies.Extract(r)

			user, err := svc.CurrentUser(r.Context(), token)
			if err != nil {
				writeError(w, err)
				return
			}

			middleware.SetUserID(r.Context(), user.ID)

			ctx := context.WithValue(r.Context(), userKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the user RequireUser resolved for this request.
func UserFromContext(ctx context.Context) (*model.PublicUser, bool) {
	u, ok := ctx.Value(userKey).(*model.PublicUser)
	return u, ok && u != nil
}
