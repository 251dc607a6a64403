// Package threadstest provides an in-process fake of the upstream API for
// tests of the publishing variants.
package threadstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Request is one recorded upstream call.
type Request struct {
	Method  string
	Path    string
	Header  http.Header
	Payload map[string]any
}

type Server struct {
	*httptest.Server

	// Authorized decides whether a request carries a valid session.
	Authorized func(h http.Header) bool
	// RejectConfigure makes the configure endpoints refuse the post.
	RejectConfigure bool
	// CurrentUserStatus, when non-zero, is returned by current_user with an
	// error body.
	CurrentUserStatus int

	mu       sync.Mutex
	requests []Request
}

func NewServer() *Server {
	s := &Server{Authorized: func(http.Header) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /accounts/current_user/", s.currentUser)
	mux.HandleFunc("POST /rupload_igphoto/", s.upload)
	mux.HandleFunc("POST /media/configure_text_only_post/", s.configure)
	mux.HandleFunc("POST /media/configure_text_post_app_feed/", s.configure)
	mux.HandleFunc("GET /image.jpg", func(w http.ResponseWriter, r *http.Request) {
		s.record(r, nil)
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10})
	})
	s.Server = httptest.NewServer(mux)
	return s
}

// Requests returns a copy of the recorded calls.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Paths returns the recorded request paths in order.
func (s *Server) Paths() []string {
	var out []string
	for _, r := range s.Requests() {
		out = append(out, r.Path)
	}
	return out
}

func (s *Server) record(r *http.Request, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Header:  r.Header.Clone(),
		Payload: payload,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) currentUser(w http.ResponseWriter, r *http.Request) {
	s.record(r, nil)
	if !s.Authorized(r.Header) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "fail", "message": "login_required"})
		return
	}
	if s.CurrentUserStatus != 0 {
		writeJSON(w, s.CurrentUserStatus, map[string]any{"status": "fail", "message": "try again later"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"user":   map[string]any{"pk": 42, "username": "alice"},
	})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	s.record(r, nil)
	if !s.Authorized(r.Header) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "fail", "message": "login_required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "upload_id": "upload-1"})
}

func (s *Server) configure(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := r.ParseForm(); err == nil {
		body := strings.TrimPrefix(r.PostForm.Get("signed_body"), "SIGNATURE.")
		_ = json.Unmarshal([]byte(body), &payload)
	}
	s.record(r, payload)
	switch {
	case !s.Authorized(r.Header):
		writeJSON(w, http.StatusUnauthorized, map[string]any{"status": "fail", "message": "login_required"})
	case s.RejectConfigure:
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": "fail", "message": "feedback_required"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"media":  map[string]any{"pk": "3141", "id": "3141_42", "code": "C0de"},
		})
	}
}
