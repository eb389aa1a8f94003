package web

import (
	"net/http"

	log "github.com/go-pkgz/lgr"
	"golang.org/x/crypto/bcrypt"
)

const authUser = "tunetrack"

// authMiddleware checks basic auth against bcrypt hash, pass-through if no hash configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.passwordHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		username, password, ok := r.BasicAuth()
		if ok && username == authUser {
			if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err == nil {
				next.ServeHTTP(w, r)
				return
			}
			log.Printf("[WARN] failed auth attempt from %s", r.RemoteAddr)
		}

		w.Header().Set("WWW-Authenticate", `Basic realm="tunetrack"`)
		s.writeJSONError(w, http.StatusUnauthorized, "unauthorized")
	})
}
