package task

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrMissingField is matched by every admission validation failure.
var ErrMissingField = errors.New("missing required field")

// FieldError names the first required field that was absent.
type FieldError struct {
	Field string
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %s", ErrMissingField, e.Field) }
func (e *FieldError) Is(target error) bool {
	return target == ErrMissingField
}

// Task is one publish request. It is passed by value and never mutated after
// admission.
type Task struct {
	ID              string    `json:"id"`
	AccountIdentity string    `json:"accountIdentity"`
	SessionBlob     string    `json:"-"`
	Text            string    `json:"text"`
	ProxyDescriptor string    `json:"-"`
	UserAgent       string    `json:"userAgent,omitempty"`
	DeviceID        string    `json:"deviceId,omitempty"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	ReplyToID       string    `json:"replyToId,omitempty"`
	EnqueuedAt      time.Time `json:"enqueuedAt"`
}

// Validate checks the fields admission requires. requireProxy additionally
// makes the proxy descriptor mandatory.
func (t Task) Validate(requireProxy bool) error {
	switch {
	case strings.TrimSpace(t.AccountIdentity) == "":
		return &FieldError{Field: "accountIdentity"}
	case strings.TrimSpace(t.SessionBlob) == "":
		return &FieldError{Field: "sessionBlob"}
	case strings.TrimSpace(t.Text) == "":
		return &FieldError{Field: "text"}
	case requireProxy && strings.TrimSpace(t.ProxyDescriptor) == "":
		return &FieldError{Field: "proxyDescriptor"}
	}
	return nil
}

// Admit stamps the task with an ID and admission time.
func Admit(t Task, now time.Time) Task {
	if strings.TrimSpace(t.ID) == "" {
		t.ID = uuid.NewString()
	}
	t.EnqueuedAt = now
	return t
}
