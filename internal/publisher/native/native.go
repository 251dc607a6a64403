// Package native publishes with the bearer token and device headers the
// mobile client sends.
package native

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"threadq/internal/credentials"
	"threadq/internal/publisher"
	"threadq/internal/publisher/threads"
	"threadq/internal/task"
	"threadq/internal/tunnel"
)

const (
	DefaultAppID     = "3419628305025917"
	DefaultUserAgent = "Barcelona 289.0.0.77.109 Android (31/12; 420dpi; 1080x2400; samsung; SM-G991B; o1s; exynos2100; en_US; 489720145)"
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

func (p *Publisher) Name() string { return "native" }

var required = []credentials.Field{
	credentials.FieldSessionToken,
	credentials.FieldAccountUserID,
}

func (p *Publisher) Publish(ctx context.Context, t task.Task, c credentials.Credentials, tun *tunnel.Tunnel) publisher.Outcome {
	if err := c.Require(required...); err != nil {
		return publisher.Fail(err)
	}
	c.DeviceID = DeviceID(c)
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
	c.DeviceID = DeviceID(c)
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

// DeviceID returns c.DeviceID, or a stable android-style id derived from the
// account when none was supplied.
func DeviceID(c credentials.Credentials) string {
	if c.DeviceID != "" {
		return c.DeviceID
	}
	sum := sha256.Sum256([]byte("threadq:" + c.AccountUserID))
	return "android-" + hex.EncodeToString(sum[:])[:16]
}

func (p *Publisher) open(c credentials.Credentials, tun *tunnel.Tunnel, userAgent string) (*threads.Session, error) {
	if userAgent == "" {
		userAgent = p.cfg.UserAgent
	}
	appID := p.cfg.AppID
	return threads.Open(tun, threads.Options{
		BaseURL:   p.cfg.BaseURL,
		UserAgent: userAgent,
		Authorize: func(h http.Header) {
			h.Set("Authorization", "Bearer IGT:2:"+c.SessionToken)
			h.Set("X-IG-App-ID", appID)
			h.Set("X-IG-Device-ID", c.DeviceID)
			h.Set("IG-U-DS-USER-ID", c.AccountUserID)
			h.Set("X-IG-Android-ID", c.DeviceID)
		},
	})
}
