package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/todo-auth/internal/auth"
	"github.com/sakif/todo-auth/internal/model"
	"github.com/sakif/todo-auth/internal/service"
)

// Authenticator is the slice of service.AuthService the handlers use.
type Authenticator interface {
	Register(ctx context.Context, reg model.UserRegistration) (*service.Session, error)
	SignIn(ctx context.Context, req model.SignInRequest) (*service.Session, error)
	CurrentUser(ctx context.Context, token string) (*model.PublicUser, error)
}

// AuthHandler serves registration, sign-in, sign-out and the current user.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister → POST /users/          create an account, set the cookie
//   - HandleSignIn   → POST /users/sign-in/  check credentials, set the cookie
//   - HandleSignOut  → POST /users/sign-out/ clear the cookie
//   - HandleMe       → GET  /users/me/       return the session's user
//
// The service never sees a request or a cookie. The handler moves the token
// between the cookie and the service; that is all it does with it.
type AuthHandler struct {
	svc     Authenticator
	cookies *auth.CookieTransport
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler. All dependencies are injected here;
// the handler has no knowledge of how they're constructed.
func NewAuthHandler(svc Authenticator, cookies *auth.CookieTransport, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:     svc,
		cookies: cookies,
		logger:  logger,
	}
}

// HandleRegister creates a user and signs them in.
//
// HTTP: POST /users/
// REQUEST BODY: UserRegistration
// RESPONSES: 200 PublicUser + cookie | 400 mismatch/validation | 409 email taken
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var reg model.UserRegistration
	if err := decodeJSON(w, r, &reg); err != nil {
		writeError(w, err)
		return
	}

	sess, err := h.svc.Register(r.Context(), reg)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.Attach(w, sess.Token)
	writeJSON(w, http.StatusOK, sess.User)
}

// HandleSignIn exchanges an email/password pair for a session cookie.
//
// HTTP: POST /users/sign-in/
// REQUEST BODY: {"email": "...", "password": "..."}
// RESPONSES: 200 PublicUser + cookie | 401 invalid credentials
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req model.SignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	sess, err := h.svc.SignIn(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	h.cookies.Attach(w, sess.Token)
	writeJSON(w, http.StatusOK, sess.User)
}

// HandleSignOut clears the session cookie.
//
// HTTP: POST /users/sign-out/
//
// WHY POST AND NOT GET?
// Sign-out changes state. A GET could be triggered by a prefetch or an
// <img> tag on another site.
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	h.cookies.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

// HandleMe returns the currently authenticated user.
//
// HTTP: GET /users/me/
// Auth: Required (RequireUser puts the user in the context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		// Only reachable if the route was registered without RequireUser.
		h.logger.Error("HandleMe: no user in context", slog.String("path", r.URL.Path))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	writeJSON(w, http.StatusOK, user)
}
