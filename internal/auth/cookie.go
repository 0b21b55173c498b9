package auth

import (
	"net/http"
	"time"
)

// SessionCookieName is the cookie that carries the access token.
const SessionCookieName = "todo.access-token"

// CookieTransport decides how a token travels between client and server.
//
// COOKIE-BASED TOKEN STORAGE:
// We store the JWT in an HttpOnly cookie rather than localStorage or a
// header. HttpOnly means JavaScript cannot read it, so an XSS bug cannot
// steal the session.
//
// Domain and Secure are deployment settings, fixed when the transport is
// built. Nothing about the cookie depends on the request.
type CookieTransport struct {
	name     string
	domain   string
	secure   bool
	sameSite http.SameSite
}

// NewCookieTransport builds a transport for SessionCookieName.
// Set secure in production (requires HTTPS).
func NewCookieTransport(domain string, secure bool) *CookieTransport {
	return &CookieTransport{
		name:     SessionCookieName,
		domain:   domain,
		secure:   secure,
		sameSite: http.SameSiteLaxMode,
	}
}

// Name returns the cookie name.
func (c *CookieTransport) Name() string {
	return c.name
}

// Attach sets the session cookie on the response. Max-Age and Expires both
// come from the token itself so cookie and token lapse at the same instant.
func (c *CookieTransport) Attach(w http.ResponseWriter, tok IssuedToken) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    tok.Value,
		Path:     "/",
		Domain:   c.domain,
		MaxAge:   int(tok.TTL() / time.Second),
		Expires:  tok.ExpiresAt.UTC(),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite,
	})
}

// Extract returns the token presented with the request. The boolean is false
// when the cookie is missing or empty: "no session", not an error.
func (c *CookieTransport) Extract(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// Clear tells the browser to drop the session cookie immediately.
//
// Since we're stateless (JWT), "sign out" just means deleting the client-side
// cookie. The token remains technically valid until it expires.
func (c *CookieTransport) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		Domain:   c.domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite,
	})
}
