package credentials

import (
	"errors"
	"testing"

	"threadq/internal/task"
)

func TestExtract(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		blob string
		want Credentials
	}{
		{
			name: "record list",
			blob: `[{"name":"sessionid","value":"abc123"}]`,
			want: Credentials{SessionToken: "abc123"},
		},
		{
			name: "delimited",
			blob: "sessionid=abc123; csrftoken=xyz",
			want: Credentials{SessionToken: "abc123", AntiForgeryToken: "xyz"},
		},
		{
			name: "delimited percent encoded",
			blob: "sessionid=a%3Ab; ds_user_id=42; ig_did=DEV-1",
			want: Credentials{SessionToken: "a:b", AccountUserID: "42", DeviceID: "DEV-1"},
		},
		{
			name: "cookies wrapper",
			blob: `{"cookies":[{"name":"ds_user_id","value":"42","domain":".threads.net"},{"Name":"csrftoken","Value":"tok"}]}`,
			want: Credentials{AccountUserID: "42", AntiForgeryToken: "tok"},
		},
		{
			name: "single record",
			blob: `{"name":"session_token","value":"s"}`,
			want: Credentials{SessionToken: "s"},
		},
		{
			name: "flat map with numeric id",
			blob: `{"session_id":"s","user_id":1234567890,"device_id":"d","csrf_token":"c"}`,
			want: Credentials{SessionToken: "s", AccountUserID: "1234567890", DeviceID: "d", AntiForgeryToken: "c"},
		},
		{
			name: "first occurrence wins",
			blob: "sessionid=first; session_token=second",
			want: Credentials{SessionToken: "first"},
		},
		{
			name: "flat map alias priority",
			blob: `{"session_token":"b","SessionID":"a","csrf_token":"c2","csrftoken":"c1"}`,
			want: Credentials{SessionToken: "a", AntiForgeryToken: "c1"},
		},
		{name: "malformed json", blob: `[{"name":`, want: Credentials{}},
		{name: "unrecognised", blob: "foo=bar; baz", want: Credentials{}},
		{name: "empty", blob: "   ", want: Credentials{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// map-backed forms must not depend on iteration order
			for i := 0; i < 20; i++ {
				if got := Extract(tt.blob); got != tt.want {
					t.Fatalf("Extract(%q) = %+v, want %+v", tt.blob, got, tt.want)
				}
			}
		})
	}
}

func TestForTaskPrefersTaskDeviceID(t *testing.T) {
	t.Parallel()
	c := ForTask(task.Task{SessionBlob: "sessionid=s; ig_did=blob", DeviceID: " explicit "})
	if c.DeviceID != "explicit" {
		t.Fatalf("DeviceID = %q, want explicit", c.DeviceID)
	}
	c = ForTask(task.Task{SessionBlob: "sessionid=s; ig_did=blob"})
	if c.DeviceID != "blob" {
		t.Fatalf("DeviceID = %q, want blob", c.DeviceID)
	}
}

func TestRequire(t *testing.T) {
	t.Parallel()
	c := Credentials{SessionToken: "s"}
	if err := c.Require(FieldSessionToken); err != nil {
		t.Fatalf("Require() = %v", err)
	}
	err := c.Require(FieldSessionToken, FieldAccountUserID, FieldAntiForgeryToken)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Require() = %v, want ErrIncomplete", err)
	}
	var me *MissingError
	if !errors.As(err, &me) || len(me.Fields) != 2 || me.Fields[0] != FieldAccountUserID {
		t.Fatalf("missing = %+v", me)
	}
}
