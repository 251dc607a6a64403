// Package credentials turns an opaque session blob into the identity material
// a publisher presents upstream.
//
// Parsing never fails: malformed input yields an empty Credentials value and
// callers decide which fields they require.
package credentials

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"threadq/internal/task"
)

// Credentials is derived per attempt and never stored.
type Credentials struct {
	SessionToken     string
	AccountUserID    string
	DeviceID         string
	AntiForgeryToken string
}

// Field identifies one Credentials member.
type Field string

const (
	FieldSessionToken     Field = "session token"
	FieldAccountUserID    Field = "account id"
	FieldDeviceID         Field = "device id"
	FieldAntiForgeryToken Field = "anti-forgery token"
)

// ErrIncomplete is matched by *MissingError.
var ErrIncomplete = errors.New("credentials incomplete")

type MissingError struct {
	Fields []Field
}

func (e *MissingError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("%s: missing %s", ErrIncomplete, strings.Join(names, ", "))
}

func (e *MissingError) Is(target error) bool { return target == ErrIncomplete }

type alias struct {
	name  string
	field Field
}

// aliases lists accepted names in priority order. When a flat object carries
// several names for one field, the earliest listed wins.
var aliases = []alias{
	{"sessionid", FieldSessionToken},
	{"session_id", FieldSessionToken},
	{"session_token", FieldSessionToken},
	{"ds_user_id", FieldAccountUserID},
	{"user_id", FieldAccountUserID},
	{"account_id", FieldAccountUserID},
	{"ig_did", FieldDeviceID},
	{"device_id", FieldDeviceID},
	{"csrftoken", FieldAntiForgeryToken},
	{"csrf_token", FieldAntiForgeryToken},
}

var aliasFields = func() map[string]Field {
	m := make(map[string]Field, len(aliases))
	for _, a := range aliases {
		m[a.name] = a.field
	}
	return m
}()

// Extract parses blob. A leading '[' or '{' selects structured parsing,
// anything else the delimited "k=v; k=v" form.
func Extract(blob string) Credentials {
	s := strings.TrimSpace(blob)
	if s == "" {
		return Credentials{}
	}
	var c Credentials
	if s[0] == '[' || s[0] == '{' {
		c.fromStructured(s)
		return c
	}
	c.fromDelimited(s)
	return c
}

// ForTask derives credentials for t. An explicit task device id takes
// precedence over the one carried in the blob.
func ForTask(t task.Task) Credentials {
	c := Extract(t.SessionBlob)
	if id := strings.TrimSpace(t.DeviceID); id != "" {
		c.DeviceID = id
	}
	return c
}

// Require returns a *MissingError listing the absent fields, in argument order.
func (c Credentials) Require(fields ...Field) error {
	var missing []Field
	for _, f := range fields {
		if c.get(f) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Fields: missing}
	}
	return nil
}

// Empty reports whether no field was extracted.
func (c Credentials) Empty() bool { return c == Credentials{} }

func (c Credentials) get(f Field) string {
	switch f {
	case FieldSessionToken:
		return c.SessionToken
	case FieldAccountUserID:
		return c.AccountUserID
	case FieldDeviceID:
		return c.DeviceID
	case FieldAntiForgeryToken:
		return c.AntiForgeryToken
	}
	return ""
}

// set stores v under name unless the field already holds a value.
func (c *Credentials) set(name, v string) {
	f, ok := aliasFields[strings.ToLower(strings.TrimSpace(name))]
	if !ok || v == "" {
		return
	}
	switch f {
	case FieldSessionToken:
		if c.SessionToken == "" {
			c.SessionToken = v
		}
	case FieldAccountUserID:
		if c.AccountUserID == "" {
			c.AccountUserID = v
		}
	case FieldDeviceID:
		if c.DeviceID == "" {
			c.DeviceID = v
		}
	case FieldAntiForgeryToken:
		if c.AntiForgeryToken == "" {
			c.AntiForgeryToken = v
		}
	}
}

func (c *Credentials) fromDelimited(s string) {
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if dec, err := url.PathUnescape(v); err == nil {
			v = dec
		}
		c.set(k, v)
	}
}

func (c *Credentials) fromStructured(s string) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return
	}
	var parsed Credentials
	parsed.walk(v)
	*c = parsed
}

// walk accepts a record list, {"cookies": [...]}, a single {name, value}
// record or a flat name->value object.
func (c *Credentials) walk(v any) {
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			if rec, ok := item.(map[string]any); ok {
				c.record(rec)
			}
		}
	case map[string]any:
		if cookies, ok := lookup(x, "cookies"); ok {
			c.walk(cookies)
			return
		}
		if c.record(x) {
			return
		}
		for _, a := range aliases {
			if val, ok := lookup(x, a.name); ok {
				c.set(a.name, scalar(val))
			}
		}
	}
}

// record handles one {name, value, ...} entry and reports whether x had that shape.
func (c *Credentials) record(x map[string]any) bool {
	name, okName := lookup(x, "name")
	val, okVal := lookup(x, "value")
	if !okName || !okVal {
		return false
	}
	c.set(scalar(name), scalar(val))
	return true
}

func lookup(m map[string]any, key string) (any, bool) {
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		if x {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(x); err != nil {
			return ""
		}
		return strings.TrimSpace(buf.String())
	}
}
