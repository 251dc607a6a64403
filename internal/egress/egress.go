// Package egress reports where a tunnel exits: the public IP and ISP seen
// by the outside world.
package egress

import (
	"context"
	"fmt"
	"strings"
	"time"

	st "github.com/showwin/speedtest-go/speedtest"

	"threadq/internal/tunnel"
)

const DefaultTimeout = 15 * time.Second

type Config struct {
	Timeout   time.Duration
	UserAgent string
}

type Info struct {
	IP     string        `json:"ip"`
	ISP    string        `json:"isp"`
	Tunnel string        `json:"tunnel"`
	Took   time.Duration `json:"took"`
}

func (i Info) String() string {
	switch {
	case i.IP == "":
		return "unknown"
	case i.ISP == "":
		return i.IP
	}
	return fmt.Sprintf("%s (%s)", i.IP, i.ISP)
}

// lookupFunc fetches the exit address for one tunnel.
type lookupFunc func(ctx context.Context, tun *tunnel.Tunnel, userAgent string) (Info, error)

type Prober struct {
	cfg    Config
	lookup lookupFunc
}

func New(cfg Config) *Prober {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Prober{cfg: cfg, lookup: speedtestLookup}
}

// Lookup resolves the exit of tun (direct when nil).
func (p *Prober) Lookup(ctx context.Context, tun *tunnel.Tunnel) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	info, err := p.lookup(ctx, tun, p.cfg.UserAgent)
	if err != nil {
		return Info{}, fmt.Errorf("egress via %s: %w", tun.String(), err)
	}
	info.Tunnel = tun.String()
	info.Took = time.Since(start)
	return info, nil
}

// Describe implements the queue's egress hook.
func (p *Prober) Describe(ctx context.Context, tun *tunnel.Tunnel) (string, error) {
	info, err := p.Lookup(ctx, tun)
	if err != nil {
		return "", err
	}
	return info.String(), nil
}

func speedtestLookup(ctx context.Context, tun *tunnel.Tunnel, userAgent string) (Info, error) {
	uc := &st.UserConfig{UserAgent: userAgent}
	if tun != nil {
		uc.Proxy = tun.URL().String()
	}
	// A fresh client per lookup keeps library state from leaking between tunnels.
	stc := st.New(st.WithUserConfig(uc))
	defer func() {
		stc.Snapshots().Clean()
		stc.Reset()
	}()

	user, err := stc.FetchUserInfoContext(ctx)
	if err != nil {
		return Info{}, err
	}
	return Info{IP: strings.TrimSpace(user.IP), ISP: strings.TrimSpace(user.Isp)}, nil
}
