package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"threadq/internal/credentials"
	"threadq/internal/task"
	"threadq/internal/tunnel"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{name: "nil", err: nil, want: ReasonNone},
		{name: "credentials", err: fmt.Errorf("web: %w", credentials.Credentials{}.Require(credentials.FieldSessionToken)), want: ReasonCredentials},
		{name: "unauthenticated", err: fmt.Errorf("current user: %w", ErrUnauthenticated), want: ReasonUnauthenticated},
		{name: "rejected", err: fmt.Errorf("configure: %w", ErrRejected), want: ReasonRejected},
		{name: "deadline", err: fmt.Errorf("post: %w", context.DeadlineExceeded), want: ReasonNetwork},
		{name: "url error", err: &url.Error{Op: "Post", URL: "https://x", Err: errors.New("connection refused")}, want: ReasonNetwork},
		{name: "other", err: errors.New("boom"), want: ReasonInternal},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestFailCarriesMessage(t *testing.T) {
	t.Parallel()
	out := Fail(fmt.Errorf("configure: %w", ErrRejected))
	if out.OK || out.Reason != ReasonRejected || out.Message == "" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if ok := Fail(nil); !ok.OK {
		t.Fatalf("Fail(nil) = %+v", ok)
	}
}

func TestSafeRecoversPanic(t *testing.T) {
	t.Parallel()
	p := Func(func(context.Context, task.Task, credentials.Credentials, *tunnel.Tunnel) Outcome {
		panic("nil map")
	})
	out := Safe(context.Background(), p, task.Task{}, credentials.Credentials{}, nil)
	if out.OK || out.Reason != ReasonInternal {
		t.Fatalf("unexpected outcome %+v", out)
	}
}
