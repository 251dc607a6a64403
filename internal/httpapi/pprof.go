package httpapi

import (
	"net/http"
	hpprof "net/http/pprof"
	"strings"

	"github.com/go-chi/chi/v5"
)

// pprofRouter serves net/http/pprof under its canonical /debug/pprof/ root.
// With a token, callers must send "Authorization: Bearer <token>" or
// ?token=<token>.
func pprofRouter(token string) http.Handler {
	r := chi.NewRouter()
	r.Use(withToken(token))
	r.HandleFunc("/cmdline", hpprof.Cmdline)
	r.HandleFunc("/profile", hpprof.Profile)
	r.HandleFunc("/symbol", hpprof.Symbol)
	r.HandleFunc("/trace", hpprof.Trace)
	r.HandleFunc("/", hpprof.Index)
	r.HandleFunc("/*", hpprof.Index)
	return r
}

func withToken(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "" {
				if got == tok {
					next.ServeHTTP(w, r)
					return
				}
				unauthorized(w)
				return
			}
			const p = "Bearer "
			if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
				next.ServeHTTP(w, r)
				return
			}
			unauthorized(w)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
