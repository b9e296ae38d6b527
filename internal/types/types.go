// Package types provides domain models shared across the event trigger engine.
//
// Attributes and Definitions are loosely typed bags because they are authored
// by users (rule definitions) or produced by many platform integrations
// (attributes). Typed accessors here are the only place that coerces them, so
// every consumer sees the same numeric and boolean interpretation.
package types

import (
	"sort"
	"strconv"
	"strings"
)

// Attributes is the key/value bag describing one firing of an event.
// Lifetime is a single Fire call; never persisted.
type Attributes map[string]any

// Well-known attribute keys consumed by the engine.
const (
	AttrUserID               = "userId"
	AttrUserName             = "userName"
	AttrUsername             = "username"
	AttrRecipient            = "recipient"
	AttrIsAnonymous          = "isAnonymous"
	AttrIsTriggeredByCommand = "isTriggeredByCommand"
	AttrReset                = "reset"
	AttrEventID              = "eventId"
	AttrIs                   = "is"
	AttrRecipientIs          = "recipientis"
	AttrMessage              = "message"
	AttrTest                 = "test"
)

// Clone returns a deep copy. Nested maps and slices are copied so operations
// and checkers cannot leak mutations back to the caller.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return Attributes{}
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Attributes:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Get resolves a dotted path ("is.moderator") through nested maps.
func (a Attributes) Get(path string) (any, bool) {
	var cur any = map[string]any(a)
	for _, key := range strings.Split(path, ".") {
		switch m := cur.(type) {
		case map[string]any:
			v, ok := m[key]
			if !ok {
				return nil, false
			}
			cur = v
		case Attributes:
			v, ok := m[key]
			if !ok {
				return nil, false
			}
			cur = v
		default:
			return nil, false
		}
	}
	return cur, true
}

// String returns the attribute as a string; missing or nil yields "".
func (a Attributes) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	return ToString(v)
}

// Bool reports JavaScript-like truthiness of the attribute.
func (a Attributes) Bool(key string) bool {
	v, ok := a[key]
	if !ok {
		return false
	}
	return Truthy(v)
}

// Number returns the attribute coerced to float64.
// ok is false when missing or not numeric.
func (a Attributes) Number(key string) (float64, bool) {
	v, ok := a[key]
	if !ok || v == nil {
		return 0, false
	}
	return ToNumber(v)
}

// Keys returns attribute keys in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Definitions is a parameter bag for an event kind or an operation.
type Definitions map[string]any

// Number returns the definition coerced to float64, 0 when missing or invalid.
func (d Definitions) Number(key string) float64 {
	v, ok := d[key]
	if !ok || v == nil {
		return 0
	}
	n, ok := ToNumber(v)
	if !ok {
		return 0
	}
	return n
}

// String returns the definition as a string, "" when missing.
func (d Definitions) String(key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	return ToString(v)
}

// Bool returns the truthiness of the definition.
func (d Definitions) Bool(key string) bool {
	v, ok := d[key]
	if !ok {
		return false
	}
	return Truthy(v)
}

// WithDefaults returns a copy of d restricted to the keys declared in
// defaults. Missing keys take the default; a default declared as a list of
// choices contributes its first element.
func (d Definitions) WithDefaults(defaults Definitions) Definitions {
	out := make(Definitions, len(defaults))
	for k, def := range defaults {
		if v, ok := d[k]; ok && v != nil {
			out[k] = v
			continue
		}
		if choices, ok := def.([]any); ok {
			if len(choices) > 0 {
				out[k] = choices[0]
			} else {
				out[k] = nil
			}
			continue
		}
		out[k] = def
	}
	return out
}

// Clone returns a shallow copy.
func (d Definitions) Clone() Definitions {
	out := make(Definitions, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

// ToNumber converts numeric types and numeric strings to float64.
// Booleans map to 1/0. Empty strings and non-numeric values fail.
func ToNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// ToString renders scalars the way a JavaScript template would.
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		if n, ok := ToNumber(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		return "[object]"
	}
}

// Truthy mirrors JavaScript truthiness for the value kinds found in attributes.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0 && t == t
	default:
		if n, ok := ToNumber(v); ok {
			return n != 0
		}
		return true
	}
}

// Identity is a platform user known to the user store.
type Identity struct {
	UserID       string `db:"user_id" json:"userId"`
	UserName     string `db:"user_name" json:"userName"`
	IsOnline     bool   `db:"is_online" json:"isOnline"`
	IsModerator  bool   `db:"is_moderator" json:"isModerator"`
	IsSubscriber bool   `db:"is_subscriber" json:"isSubscriber"`
	IsVIP        bool   `db:"is_vip" json:"isVip"`
}

// Capabilities are the per-principal flags attached as "is"/"recipientis".
type Capabilities struct {
	Moderator   bool
	Subscriber  bool
	VIP         bool
	Broadcaster bool
	Bot         bool
	Owner       bool
}

// Map renders capabilities in the attribute shape filters read.
func (c Capabilities) Map() map[string]any {
	return map[string]any{
		"moderator":   c.Moderator,
		"subscriber":  c.Subscriber,
		"vip":         c.VIP,
		"broadcaster": c.Broadcaster,
		"bot":         c.Bot,
		"owner":       c.Owner,
	}
}
