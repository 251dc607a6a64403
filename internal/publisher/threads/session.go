// Package threads is the wire client shared by the publishing variants.
//
// A Session owns one dedicated transport routed through the attempt's tunnel.
// Variants supply the authentication headers; everything else (endpoints,
// payloads, status mapping) lives here.
package threads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"threadq/internal/publisher"
	"threadq/internal/tunnel"
)

const (
	DefaultBaseURL = "https://i.instagram.com/api/v1"

	maxBody      = 1 << 20
	maxImageSize = 8 << 20
)

// Options configure one Session.
type Options struct {
	BaseURL   string
	UserAgent string
	// Authorize adds variant credentials to every upstream request.
	Authorize func(h http.Header)
	Transport tunnel.TransportOptions
}

type Session struct {
	base      *url.URL
	userAgent string
	authorize func(h http.Header)
	transport *http.Transport
	client    *http.Client
}

// Open builds a session bound to tun. Callers must Close it.
func Open(tun *tunnel.Tunnel, opts Options) (*Session, error) {
	raw := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if raw == "" {
		raw = DefaultBaseURL
	}
	base, err := url.Parse(raw)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("threads: invalid base url %q", opts.BaseURL)
	}
	tr := tunnel.NewTransport(tun, opts.Transport)
	return &Session{
		base:      base,
		userAgent: opts.UserAgent,
		authorize: opts.Authorize,
		transport: tr,
		client:    &http.Client{Transport: tr},
	}, nil
}

// Close releases the session's connections.
func (s *Session) Close() {
	if s == nil || s.transport == nil {
		return
	}
	s.transport.CloseIdleConnections()
}

type User struct {
	ID       string
	Username string
}

// CurrentUser confirms the session is authenticated. Any upstream reply that
// does not confirm it, including 5xx and undecodable bodies, is reported as
// ErrUnauthenticated; transport failures are returned as is.
func (s *Session) CurrentUser(ctx context.Context) (User, error) {
	var resp struct {
		Status string `json:"status"`
		User   struct {
			PK       json.Number `json:"pk"`
			Username string      `json:"username"`
		} `json:"user"`
	}
	if err := s.do(ctx, http.MethodGet, "/accounts/current_user/?edit=true", nil, "", nil, &resp); err != nil {
		if errors.Is(err, publisher.ErrRejected) {
			return User{}, fmt.Errorf("current user: %w (%v)", publisher.ErrUnauthenticated, err)
		}
		return User{}, fmt.Errorf("current user: %w", err)
	}
	if resp.User.PK.String() == "" {
		return User{}, fmt.Errorf("current user: %w", publisher.ErrUnauthenticated)
	}
	return User{ID: resp.User.PK.String(), Username: resp.User.Username}, nil
}

// UploadImage fetches imageURL through the session transport and uploads it.
func (s *Session) UploadImage(ctx context.Context, imageURL string) (string, error) {
	data, contentType, err := s.fetch(ctx, imageURL)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	uploadID := strconv.FormatInt(time.Now().UnixMilli(), 10)
	name := uploadID + "_0_" + strconv.FormatInt(int64(len(data)), 10)

	params, _ := json.Marshal(map[string]any{
		"upload_id":         uploadID,
		"media_type":        "1",
		"image_compression": `{"lib_name":"moz","lib_version":"3.1.m","quality":"80"}`,
		"xsharing_user_ids": "[]",
		"retry_context":     `{"num_step_auto_retry":0,"num_reupload":0,"num_step_manual_retry":0}`,
	})
	hdr := http.Header{}
	hdr.Set("X-Instagram-Rupload-Params", string(params))
	hdr.Set("X-Entity-Type", contentType)
	hdr.Set("X-Entity-Name", name)
	hdr.Set("X-Entity-Length", strconv.Itoa(len(data)))
	hdr.Set("Offset", "0")

	var resp struct {
		Status   string `json:"status"`
		UploadID string `json:"upload_id"`
	}
	if err := s.do(ctx, http.MethodPost, "/rupload_igphoto/"+name, bytes.NewReader(data), "application/octet-stream", hdr, &resp); err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	if resp.UploadID == "" {
		resp.UploadID = uploadID
	}
	return resp.UploadID, nil
}

// TextPost is the configure payload.
type TextPost struct {
	UserID    string
	DeviceID  string
	Text      string
	ReplyToID string
	UploadID  string
}

// ConfigureTextPost publishes p and returns the new post id.
func (s *Session) ConfigureTextPost(ctx context.Context, p TextPost) (string, error) {
	info := map[string]any{"reply_control": 0}
	if p.ReplyToID != "" {
		info["reply_id"] = p.ReplyToID
	}
	payload := map[string]any{
		"publish_mode":       "text_post",
		"text_post_app_info": info,
		"timezone_offset":    "0",
		"source_type":        "4",
		"caption":            p.Text,
		"_uid":               p.UserID,
		"device_id":          p.DeviceID,
		"upload_id":          strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	path := "/media/configure_text_only_post/"
	if p.UploadID != "" {
		path = "/media/configure_text_post_app_feed/"
		payload["upload_id"] = p.UploadID
		payload["scene_capture_type"] = ""
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("configure: %w", err)
	}
	form := "signed_body=SIGNATURE." + url.QueryEscape(string(body))

	var resp struct {
		Status string `json:"status"`
		Media  struct {
			PK   json.Number `json:"pk"`
			ID   string      `json:"id"`
			Code string      `json:"code"`
		} `json:"media"`
	}
	if err := s.do(ctx, http.MethodPost, path, strings.NewReader(form), "application/x-www-form-urlencoded; charset=UTF-8", nil, &resp); err != nil {
		return "", fmt.Errorf("configure: %w", err)
	}
	id := resp.Media.ID
	if id == "" {
		id = resp.Media.PK.String()
	}
	if id == "" {
		return "", fmt.Errorf("configure: %w: no media in response", publisher.ErrRejected)
	}
	return id, nil
}

func (s *Session) endpoint(path string) string {
	return strings.TrimRight(s.base.String(), "/") + path
}

func (s *Session) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US")
	return req, nil
}

func (s *Session) do(ctx context.Context, method, path string, body io.Reader, contentType string, extra http.Header, out any) error {
	req, err := s.newRequest(ctx, method, s.endpoint(path), body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if s.authorize != nil {
		s.authorize(req.Header)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return err
	}
	if err := statusError(resp.StatusCode, raw); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: undecodable response: %v", publisher.ErrRejected, err)
	}
	return nil
}

type apiError struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// statusError maps an upstream reply onto the publisher sentinels.
func statusError(code int, body []byte) error {
	var ae apiError
	_ = json.Unmarshal(body, &ae)
	msg := strings.TrimSpace(ae.Message)
	if msg == "" {
		msg = http.StatusText(code)
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden,
		ae.Message == "login_required", ae.Message == "challenge_required":
		return fmt.Errorf("%w: %s", publisher.ErrUnauthenticated, msg)
	case code >= 300:
		return fmt.Errorf("%w: status %d: %s", publisher.ErrRejected, code, msg)
	case ae.Status == "fail":
		return fmt.Errorf("%w: %s", publisher.ErrRejected, msg)
	}
	return nil
}

func (s *Session) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := s.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: image url: %v", publisher.ErrRejected, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("%w: image fetch status %d", publisher.ErrRejected, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxImageSize {
		return nil, "", fmt.Errorf("%w: image larger than %d bytes", publisher.ErrRejected, maxImageSize)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return data, ct, nil
}
