package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"threadq/internal/credentials"
	"threadq/internal/publisher"
	"threadq/internal/queue"
	"threadq/internal/task"
	"threadq/internal/tunnel"
	"threadq/pkg/logx"
)

const (
	statusQueued  = "queued"
	statusError   = "error"
	statusSuccess = "success"

	checkTimeout = 45 * time.Second
)

// request is the body accepted by /api/enqueue and /api/check.
type request struct {
	AccountIdentity string `json:"accountIdentity"`
	SessionBlob     string `json:"sessionBlob"`
	Text            string `json:"text"`
	ProxyDescriptor string `json:"proxyDescriptor"`
	UserAgent       string `json:"userAgent,omitempty"`
	DeviceID        string `json:"deviceId,omitempty"`
	ImageURL        string `json:"imageUrl,omitempty"`
	ReplyToID       string `json:"replyToId,omitempty"`
}

func (r request) task() task.Task {
	return task.Task{
		AccountIdentity: strings.TrimSpace(r.AccountIdentity),
		SessionBlob:     r.SessionBlob,
		Text:            r.Text,
		ProxyDescriptor: strings.TrimSpace(r.ProxyDescriptor),
		UserAgent:       strings.TrimSpace(r.UserAgent),
		DeviceID:        strings.TrimSpace(r.DeviceID),
		ImageURL:        strings.TrimSpace(r.ImageURL),
		ReplyToID:       strings.TrimSpace(r.ReplyToID),
	}
}

type response struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	ID       string `json:"id,omitempty"`
	Position int    `json:"position,omitempty"`
	Egress   string `json:"egress,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, response{Status: statusError, Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request) (request, error) {
	var req request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return request{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	return req, nil
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	req, err := decode(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t := req.task()
	if err := t.Validate(s.cfg.RequireProxy); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t = task.Admit(t, time.Now())

	pos, err := s.queue.Enqueue(t)
	switch {
	case errors.Is(err, queue.ErrStopped):
		writeError(w, http.StatusServiceUnavailable, "queue is shutting down")
		return
	case errors.Is(err, queue.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error("enqueue failed", logx.String("account", t.AccountIdentity), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}

	writeJSON(w, http.StatusAccepted, response{
		Status:   statusQueued,
		Message:  fmt.Sprintf("post for %s queued at position %d", t.AccountIdentity, pos),
		ID:       t.ID,
		Position: pos,
	})
}

// handleCheck probes authentication through the requested tunnel. It never
// enqueues and never publishes.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if !s.allowCheck() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "too many checks, retry shortly")
		return
	}
	req, err := decode(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	t := req.task()
	if strings.TrimSpace(t.SessionBlob) == "" {
		writeError(w, http.StatusBadRequest, (&task.FieldError{Field: "sessionBlob"}).Error())
		return
	}
	if s.cfg.RequireProxy && t.ProxyDescriptor == "" {
		writeError(w, http.StatusBadRequest, (&task.FieldError{Field: "proxyDescriptor"}).Error())
		return
	}
	if s.prober == nil {
		writeError(w, http.StatusNotImplemented, "probe not supported by this publisher")
		return
	}

	tun := tunnel.Resolve(t.ProxyDescriptor)
	if tun == nil && t.ProxyDescriptor != "" {
		writeError(w, http.StatusBadRequest, "malformed proxyDescriptor")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	resp := response{}
	if s.egress != nil {
		if desc, err := s.egress.Describe(ctx, tun); err == nil {
			resp.Egress = desc
		} else {
			s.log.Debug("check egress lookup failed", logx.String("tunnel", tun.String()), logx.Err(err))
		}
	}

	out := s.probe(ctx, credentials.ForTask(t), tun, t.UserAgent)
	log := s.log.With(
		logx.String("account", t.AccountIdentity),
		logx.String("tunnel", tun.String()),
	)
	if out.OK {
		log.Info("check passed", logx.String("detail", out.Message))
		resp.Status, resp.Message = statusSuccess, out.Message
		writeJSON(w, http.StatusOK, resp)
		return
	}
	log.Warn("check failed", logx.String("reason", string(out.Reason)), logx.String("detail", out.Message))
	resp.Status, resp.Message = statusError, out.String()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) probe(ctx context.Context, c credentials.Credentials, tun *tunnel.Tunnel, ua string) (out publisher.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = publisher.Failure(publisher.ReasonInternal, fmt.Sprintf("probe panic: %v", r))
		}
	}()
	return s.prober.Probe(ctx, c, tun, ua)
}

type statusResponse struct {
	queue.Snapshot
	CooldownText string `json:"cooldownText"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snap := s.queue.Snapshot()
	writeJSON(w, http.StatusOK, statusResponse{Snapshot: snap, CooldownText: snap.Cooldown.String()})
}
