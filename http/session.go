package httpapi

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/yourorg/listing-api/internal/browse"
	"github.com/yourorg/listing-api/internal/session"
)

const (
	SessionHeader = "X-Session-ID"
	SessionCookie = "sid"
)

// Sessions binds requests to their session.
type Sessions struct {
	Registry *session.Registry
}

// From returns the caller's session, minting one when the request carries no
// id, and echoes the id back in both the header and the cookie.
func (s Sessions) From(w http.ResponseWriter, req *http.Request) *session.Session {
	id := req.Header.Get(SessionHeader)
	if id == "" {
		if c, err := req.Cookie(SessionCookie); err == nil {
			id = c.Value
		}
	}
	sess := s.Registry.Get(id)
	w.Header().Set(SessionHeader, sess.ID)
	if id != sess.ID {
		http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: sess.ID, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	}
	return sess
}

// View returns the session's list view, creating it on first use.
func View(sess *session.Session, loader browse.Loader) *browse.View {
	return sess.Value("browse.view", func() any { return browse.NewView(loader, sess) }).(*browse.View)
}

// Error renders {"error": code, "detail": detail} plus any extra fields.
func Error(w http.ResponseWriter, req *http.Request, status int, code, detail string, extra map[string]any) {
	body := map[string]any{"error": code}
	if detail != "" {
		body["detail"] = detail
	}
	for k, v := range extra {
		body[k] = v
	}
	render.Status(req, status)
	render.JSON(w, req, body)
}
