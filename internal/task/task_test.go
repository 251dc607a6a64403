package task

import (
	"errors"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	full := Task{AccountIdentity: "acct", SessionBlob: "sessionid=abc", Text: "hello", ProxyDescriptor: "1.2.3.4:8080:u:p"}

	tests := []struct {
		name         string
		mutate       func(*Task)
		requireProxy bool
		field        string
	}{
		{name: "complete", mutate: func(*Task) {}},
		{name: "missing text", mutate: func(t *Task) { t.Text = "  " }, field: "text"},
		{name: "missing account", mutate: func(t *Task) { t.AccountIdentity = "" }, field: "accountIdentity"},
		{name: "missing blob", mutate: func(t *Task) { t.SessionBlob = "" }, field: "sessionBlob"},
		{name: "proxy optional", mutate: func(t *Task) { t.ProxyDescriptor = "" }},
		{name: "proxy required", mutate: func(t *Task) { t.ProxyDescriptor = "" }, requireProxy: true, field: "proxyDescriptor"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tk := full
			tt.mutate(&tk)
			err := tk.Validate(tt.requireProxy)
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrMissingField) {
				t.Fatalf("Validate() = %v, want ErrMissingField", err)
			}
			var fe *FieldError
			if !errors.As(err, &fe) || fe.Field != tt.field {
				t.Fatalf("field = %v, want %s", err, tt.field)
			}
		})
	}
}

func TestAdmitAssignsIDAndTime(t *testing.T) {
	t.Parallel()
	now := time.Unix(1700000000, 0)
	a := Admit(Task{Text: "x"}, now)
	b := Admit(Task{Text: "x"}, now)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if !a.EnqueuedAt.Equal(now) {
		t.Fatalf("EnqueuedAt = %v, want %v", a.EnqueuedAt, now)
	}
	if kept := Admit(Task{ID: "fixed"}, now); kept.ID != "fixed" {
		t.Fatalf("ID = %q, want fixed", kept.ID)
	}
}
