// Package web publishes with browser session cookies and the anti-forgery
// token, the way the web client talks to the upstream.
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"threadq/internal/credentials"
	"threadq/internal/publisher"
	"threadq/internal/publisher/threads"
	"threadq/internal/task"
	"threadq/internal/tunnel"
)

const (
	DefaultAppID     = "238260118697367"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultTimeout   = 60 * time.Second
)

type Config struct {
	BaseURL   string
	AppID     string
	UserAgent string
	Timeout   time.Duration
}

type Publisher struct {
	cfg Config
}

var (
	_ publisher.Publisher = (*Publisher)(nil)
	_ publisher.Prober    = (*Publisher)(nil)
)

func New(cfg Config) *Publisher {
	if cfg.AppID == "" {
		cfg.AppID = DefaultAppID
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Publisher{cfg: cfg}
}

func (p *Publisher) Name() string { return "web" }

var required = []credentials.Field{
	credentials.FieldSessionToken,
	credentials.FieldAccountUserID,
	credentials.FieldAntiForgeryToken,
}

func (p *Publisher) Publish(ctx context.Context, t task.Task, c credentials.Credentials, tun *tunnel.Tunnel) publisher.Outcome {
	if err := c.Require(required...); err != nil {
		return publisher.Fail(err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	sess, err := p.open(c, tun, t.UserAgent)
	if err != nil {
		return publisher.Fail(err)
	}
	defer sess.Close()

	id, err := threads.Post(ctx, sess, t, c.DeviceID)
	if err != nil {
		return publisher.Fail(err)
	}
	return publisher.Success(id)
}

func (p *Publisher) Probe(ctx context.Context, c credentials.Credentials, tun *tunnel.Tunnel, userAgent string) publisher.Outcome {
	if err := c.Require(required...); err != nil {
		return publisher.Fail(err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	sess, err := p.open(c, tun, userAgent)
	if err != nil {
		return publisher.Fail(err)
	}
	defer sess.Close()

	me, err := sess.CurrentUser(ctx)
	if err != nil {
		return publisher.Fail(err)
	}
	out := publisher.Success("")
	out.Message = "authenticated as @" + me.Username
	return out
}

func (p *Publisher) open(c credentials.Credentials, tun *tunnel.Tunnel, userAgent string) (*threads.Session, error) {
	if userAgent == "" {
		userAgent = p.cfg.UserAgent
	}
	cookie := cookieHeader(c)
	appID := p.cfg.AppID
	return threads.Open(tun, threads.Options{
		BaseURL:   p.cfg.BaseURL,
		UserAgent: userAgent,
		Authorize: func(h http.Header) {
			h.Set("Cookie", cookie)
			h.Set("X-CSRFToken", c.AntiForgeryToken)
			h.Set("X-IG-App-ID", appID)
			h.Set("X-Requested-With", "XMLHttpRequest")
		},
	})
}

func cookieHeader(c credentials.Credentials) string {
	parts := []string{
		"sessionid=" + c.SessionToken,
		"ds_user_id=" + c.AccountUserID,
		"csrftoken=" + c.AntiForgeryToken,
	}
	if c.DeviceID != "" {
		parts = append(parts, "ig_did="+c.DeviceID)
	}
	return strings.Join(parts, "; ")
}
