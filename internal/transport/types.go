// Package transport is the outbound operator channel: alerts about the
// publish queue go out through a Sender.
package transport

import (
	"context"
	"errors"
	"strings"
)

var ErrNoTarget = errors.New("transport: no target chat")

type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers text to a chat. Long texts may be split across messages;
// the returned ref points at the first one.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Alerter sends log alerts to one fixed target. It satisfies logx.AlertSender.
type Alerter struct {
	Sender  Sender
	Target  ChatTarget
	Prefix  string
	Options SendOptions
}

func (a Alerter) SendAlert(ctx context.Context, text string) error {
	if a.Sender == nil || a.Target.ChatID == 0 {
		return ErrNoTarget
	}
	if p := strings.TrimSpace(a.Prefix); p != "" {
		text = p + " " + text
	}
	opt := a.Options
	opt.DisablePreview = true
	_, err := a.Sender.SendText(ctx, a.Target, text, &opt)
	return err
}
