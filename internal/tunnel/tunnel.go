// Package tunnel resolves proxy descriptors into outbound tunnels and builds
// HTTP transports that route through them.
package tunnel

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Tunnel is derived per attempt. A nil *Tunnel means a direct connection.
type Tunnel struct {
	Scheme   string
	Host     string
	Port     int
	Username string
	Password string
}

const defaultScheme = "http"

var schemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true,
}

// Resolve parses descriptor. It returns nil for an empty or malformed
// descriptor; callers log the malformed case and continue direct.
//
// Accepted forms:
//
//	scheme://[user:pass@]host:port
//	host:port:user:pass              (user and password may contain ':' or '@')
//	user:pass@host:port              (scheme http)
//	host:port
//
// Without a leading scheme the tuple form wins whenever its second field is a
// valid port.
func Resolve(descriptor string) *Tunnel {
	s := strings.TrimSpace(descriptor)
	if s == "" {
		return nil
	}
	if hasScheme(s) {
		return fromURL(s)
	}
	parts := strings.SplitN(s, ":", 4)
	if len(parts) == 4 && validPort(parts[1]) && !strings.ContainsAny(parts[0], "@/") {
		return build(defaultScheme, parts[0], parts[1], parts[2], parts[3])
	}
	if strings.Contains(s, "@") {
		return fromURL(defaultScheme + "://" + s)
	}
	if len(parts) == 2 {
		return build(defaultScheme, parts[0], parts[1], "", "")
	}
	return nil
}

// hasScheme reports whether s starts with a URL scheme followed by "://".
func hasScheme(s string) bool {
	i := strings.Index(s, "://")
	if i <= 0 {
		return false
	}
	for j, r := range s[:i] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case j > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func validPort(s string) bool {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	return err == nil && p >= 1 && p <= 65535
}

// Malformed reports whether descriptor is non-empty but did not resolve.
func Malformed(descriptor string) bool {
	return strings.TrimSpace(descriptor) != "" && Resolve(descriptor) == nil
}

func fromURL(s string) *Tunnel {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return nil
	}
	var user, pass string
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	return build(strings.ToLower(u.Scheme), u.Hostname(), u.Port(), user, pass)
}

func build(scheme, host, port, user, pass string) *Tunnel {
	if !schemes[scheme] {
		return nil
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return nil
	}
	if !validPort(port) {
		return nil
	}
	p, _ := strconv.Atoi(strings.TrimSpace(port))
	return &Tunnel{Scheme: scheme, Host: host, Port: p, Username: user, Password: pass}
}

// Addr returns host:port.
func (t *Tunnel) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// URL returns the proxy URL including credentials.
func (t *Tunnel) URL() *url.URL {
	u := &url.URL{Scheme: t.Scheme, Host: t.Addr()}
	if t.Username != "" || t.Password != "" {
		u.User = url.UserPassword(t.Username, t.Password)
	}
	return u
}

// String renders the tunnel for logs with the password redacted.
func (t *Tunnel) String() string {
	if t == nil {
		return "direct"
	}
	u := &url.URL{Scheme: t.Scheme, Host: t.Addr()}
	if t.Username != "" {
		u.User = url.UserPassword(t.Username, "xxxxx")
	}
	return u.String()
}
