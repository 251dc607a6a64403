package egress

import (
	"context"
	"errors"
	"strings"
	"testing"

	"threadq/internal/tunnel"
)

func TestInfoString(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   Info
		want string
	}{
		{Info{}, "unknown"},
		{Info{IP: "203.0.113.7"}, "203.0.113.7"},
		{Info{IP: "203.0.113.7", ISP: "Example Mobile"}, "203.0.113.7 (Example Mobile)"},
	}
	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Fatalf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestLookupStampsTunnel(t *testing.T) {
	t.Parallel()
	var seen *tunnel.Tunnel
	p := New(Config{})
	p.lookup = func(_ context.Context, tun *tunnel.Tunnel, _ string) (Info, error) {
		seen = tun
		return Info{IP: "198.51.100.1", ISP: "isp"}, nil
	}
	tun := tunnel.Resolve("10.0.0.1:3128:u:secret")
	desc, err := p.Describe(context.Background(), tun)
	if err != nil {
		t.Fatal(err)
	}
	if seen != tun || desc != "198.51.100.1 (isp)" {
		t.Fatalf("desc = %q tunnel = %v", desc, seen)
	}
	info, _ := p.Lookup(context.Background(), tun)
	if strings.Contains(info.Tunnel, "secret") {
		t.Fatalf("tunnel leaked password: %q", info.Tunnel)
	}
}

func TestLookupWrapsError(t *testing.T) {
	t.Parallel()
	boom := errors.New("dial failed")
	p := New(Config{})
	p.lookup = func(context.Context, *tunnel.Tunnel, string) (Info, error) { return Info{}, boom }
	if _, err := p.Lookup(context.Background(), nil); !errors.Is(err, boom) || !strings.Contains(err.Error(), "direct") {
		t.Fatalf("Lookup() = %v", err)
	}
}
