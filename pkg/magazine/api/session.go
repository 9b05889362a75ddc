package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
)

const (
	sessionCookie = "jwt"

	claimRole = "role"
	claimSub  = "sub"
	claimName = "name"

	roleAdmin   = "admin"
	roleStudent = "student"
)

// Session is the per-request identity decoded from the session cookie. The
// zero value is an anonymous visitor.
type Session struct {
	Admin       bool
	StudentID   string
	StudentName string
}

// IsStudent reports whether a student is logged in.
func (s Session) IsStudent() bool { return s.StudentID != "" }

type sessionKey struct{}

// SessionFrom returns the session stored in ctx by the session middleware.
func SessionFrom(ctx context.Context) Session {
	s, _ := ctx.Value(sessionKey{}).(Session)
	return s
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// Sessions issues and verifies signed session cookies.
type Sessions struct {
	auth   *jwtauth.JWTAuth
	ttl    time.Duration
	secure bool
}

// NewSessions creates an HS256 session signer. Secure marks cookies
// HTTPS-only.
func NewSessions(secret string, ttl time.Duration, secure bool) *Sessions {
	return &Sessions{
		auth:   jwtauth.New("HS256", []byte(secret), nil),
		ttl:    ttl,
		secure: secure,
	}
}

// Issue signs s and sets it as the session cookie.
func (m *Sessions) Issue(w http.ResponseWriter, s Session) error {
	claims := map[string]interface{}{}
	switch {
	case s.Admin:
		claims[claimRole] = roleAdmin
	case s.IsStudent():
		claims[claimRole] = roleStudent
		claims[claimSub] = s.StudentID
		claims[claimName] = s.StudentName
	}
	jwtauth.SetIssuedNow(claims)
	jwtauth.SetExpiryIn(claims, m.ttl)

	_, token, err := m.auth.Encode(claims)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie.
func (m *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Middleware verifies the session cookie and stores the decoded Session in
// the request context. Missing, expired or forged tokens yield an anonymous
// session.
func (m *Sessions) Middleware(next http.Handler) http.Handler {
	verify := jwtauth.Verify(m.auth, jwtauth.TokenFromCookie, jwtauth.TokenFromHeader)
	load := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var s Session
		token, claims, err := jwtauth.FromContext(r.Context())
		if err == nil && token != nil {
			s = sessionFromClaims(claims)
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
	return verify(load)
}

func sessionFromClaims(claims map[string]interface{}) Session {
	role, _ := claims[claimRole].(string)
	switch role {
	case roleAdmin:
		return Session{Admin: true}
	case roleStudent:
		id, _ := claims[claimSub].(string)
		name, _ := claims[claimName].(string)
		return Session{StudentID: id, StudentName: name}
	}
	return Session{}
}

// RequireAdmin rejects requests without an admin session.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !SessionFrom(r.Context()).Admin {
			writeMessage(w, r, http.StatusUnauthorized, "Please login as admin")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStudent rejects requests without a student session.
func RequireStudent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !SessionFrom(r.Context()).IsStudent() {
			writeResult(w, r, http.StatusUnauthorized, false, "Please login first")
			return
		}
		next.ServeHTTP(w, r)
	})
}
