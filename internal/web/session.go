package web

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// SessionCookie holds the browser's session id.
const SessionCookie = "orion_session"

type sessionKeyType struct{}

// sessionMiddleware gives every request a session id, reusing the cookie
// when it holds a valid UUID. The cookie is refreshed on each response.
func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(SessionCookie); err == nil {
			if parsed, err := uuid.Parse(c.Value); err == nil {
				id = parsed.String()
			}
		}
		if id == "" {
			id = uuid.NewString()
		}

		cookie := &http.Cookie{
			Name:     SessionCookie,
			Value:    id,
			Path:     "/",
			HttpOnly: true,
			Secure:   r.TLS != nil,
			SameSite: http.SameSiteLaxMode,
		}
		if s.ttl > 0 {
			cookie.MaxAge = int(s.ttl / time.Second)
		}
		http.SetCookie(w, cookie)

		ctx := context.WithValue(r.Context(), sessionKeyType{}, "web:"+id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionKey returns the relay history key of the request's session.
func sessionKey(ctx context.Context) string {
	key, _ := ctx.Value(sessionKeyType{}).(string)
	return key
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
