package tunnel

import (
	"net"
	"net/http"
	"time"
)

// TransportOptions tunes NewTransport. Zero values take the defaults.
type TransportOptions struct {
	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	IdleConnTimeout     time.Duration
}

func (o TransportOptions) withDefaults() TransportOptions {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 15 * time.Second
	}
	if o.TLSHandshakeTimeout <= 0 {
		o.TLSHandshakeTimeout = 10 * time.Second
	}
	if o.IdleConnTimeout <= 0 {
		o.IdleConnTimeout = 30 * time.Second
	}
	return o
}

// NewTransport returns a fresh transport routed through t, or a direct one
// when t is nil. The environment proxy is never consulted.
func NewTransport(t *Tunnel, opts TransportOptions) *http.Transport {
	opts = opts.withDefaults()
	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        4,
		IdleConnTimeout:     opts.IdleConnTimeout,
		TLSHandshakeTimeout: opts.TLSHandshakeTimeout,
		Proxy:               nil,
	}
	if t != nil {
		tr.Proxy = http.ProxyURL(t.URL())
	}
	return tr
}
