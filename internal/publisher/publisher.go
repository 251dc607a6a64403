// Package publisher defines the contract between the worker loop and the
// upstream publishing variants.
//
// Variants classify their own failures through Fail, so nothing above this
// package ever inspects a variant's error types.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"threadq/internal/credentials"
	"threadq/internal/task"
	"threadq/internal/tunnel"
)

type Reason string

const (
	ReasonNone            Reason = ""
	ReasonCredentials     Reason = "credentials"
	ReasonUnauthenticated Reason = "unauthenticated"
	ReasonRejected        Reason = "rejected"
	ReasonNetwork         Reason = "network"
	ReasonInternal        Reason = "internal"
)

// Outcome is the only thing a Publisher reports back.
type Outcome struct {
	OK      bool   `json:"ok"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	PostID  string `json:"postId,omitempty"`
}

func Success(postID string) Outcome { return Outcome{OK: true, PostID: postID} }

func Failure(reason Reason, msg string) Outcome {
	if reason == ReasonNone {
		reason = ReasonInternal
	}
	return Outcome{Reason: reason, Message: msg}
}

func (o Outcome) String() string {
	if o.OK {
		if o.PostID == "" {
			return "ok"
		}
		return "ok post=" + o.PostID
	}
	return fmt.Sprintf("%s: %s", o.Reason, o.Message)
}

// Publisher posts one task upstream. Implementations own every network
// resource they open and release it before returning.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, t task.Task, c credentials.Credentials, tun *tunnel.Tunnel) Outcome
}

// Prober is implemented by variants that can verify a session without posting.
type Prober interface {
	Probe(ctx context.Context, c credentials.Credentials, tun *tunnel.Tunnel, userAgent string) Outcome
}

// Fail maps err onto an Outcome.
func Fail(err error) Outcome {
	if err == nil {
		return Success("")
	}
	return Failure(Classify(err), err.Error())
}

// Classify picks the Reason for err.
func Classify(err error) Reason {
	var (
		netErr net.Error
		urlErr *url.Error
	)
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, credentials.ErrIncomplete):
		return ReasonCredentials
	case errors.Is(err, ErrUnauthenticated):
		return ReasonUnauthenticated
	case errors.Is(err, ErrRejected):
		return ReasonRejected
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr),
		errors.As(err, &urlErr):
		return ReasonNetwork
	default:
		return ReasonInternal
	}
}

// Safe calls p.Publish and converts a panic into an internal failure.
func Safe(ctx context.Context, p Publisher, t task.Task, c credentials.Credentials, tun *tunnel.Tunnel) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Failure(ReasonInternal, fmt.Sprintf("panic: %v", r))
		}
	}()
	return p.Publish(ctx, t, c, tun)
}

// Func adapts a function to Publisher.
type Func func(ctx context.Context, t task.Task, c credentials.Credentials, tun *tunnel.Tunnel) Outcome

func (f Func) Name() string { return "func" }
func (f Func) Publish(ctx context.Context, t task.Task, c credentials.Credentials, tun *tunnel.Tunnel) Outcome {
	return f(ctx, t, c, tun)
}
