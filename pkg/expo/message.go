package expo

import (
	"math"
	"strings"
)

// Priority values accepted by Expo.
const (
	PriorityDefault = "default"
	PriorityNormal  = "normal"
	PriorityHigh    = "high"
)

// SoundDefault plays the device's default notification sound.
const SoundDefault = "default"

// contentAvailableKey is the wire name Expo uses for the content-available flag.
const contentAvailableKey = "_contentAvailable"

// Message is a single outbound push notification. The zero value is an empty
// message with default priority.
type Message struct {
	to         []string
	data       any
	title      *string
	body       *string
	ttl        *int
	expiration *int
	priority   string
	subtitle   *string
	sound      *string
	badge      *int
	channelID  *string
	categoryID *string

	mutableContent   bool
	contentAvailable bool
}

// NewMessage builds a message from optional initial attributes. Keys match the
// Expo wire names; a single leading underscore is ignored so both
// "contentAvailable" and "_contentAvailable" are accepted. Unknown keys are skipped.
func NewMessage(attrs map[string]any) (*Message, error) {
	m := &Message{priority: PriorityDefault}
	for key, value := range attrs {
		setter, ok := messageSetters[strings.TrimPrefix(key, "_")]
		if !ok {
			continue
		}
		if err := setter(m, value); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetTo validates and stores the explicit recipients of this message.
func (m *Message) SetTo(tokens any) error {
	valid, err := ValidateTokens(tokens)
	if err != nil {
		return err
	}
	m.to = valid
	return nil
}

// SetData sets the custom JSON payload. nil clears it.
func (m *Message) SetData(data any) error {
	normalized, err := normalizeData(data)
	if err != nil {
		return err
	}
	m.data = normalized
	return nil
}

// SetPriority sets the delivery priority, case-insensitively.
func (m *Message) SetPriority(priority string) error {
	p := strings.ToLower(priority)
	switch p {
	case PriorityDefault, PriorityNormal, PriorityHigh:
		m.priority = p
		return nil
	}
	return ErrInvalidMessagePriority
}

func (m *Message) SetTitle(title string) *Message {
	m.title = &title
	return m
}

func (m *Message) SetBody(body string) *Message {
	m.body = &body
	return m
}

// SetTTL sets the number of seconds Expo may keep the message for redelivery.
func (m *Message) SetTTL(seconds int) *Message {
	m.ttl = &seconds
	return m
}

// SetExpiration sets a unix timestamp after which the message is dropped.
func (m *Message) SetExpiration(unix int) *Message {
	m.expiration = &unix
	return m
}

func (m *Message) SetSubtitle(subtitle string) *Message {
	m.subtitle = &subtitle
	return m
}

func (m *Message) SetSound(sound string) *Message {
	m.sound = &sound
	return m
}

// PlaySound sets the sound to the device default.
func (m *Message) PlaySound() *Message {
	return m.SetSound(SoundDefault)
}

func (m *Message) SetBadge(badge int) *Message {
	m.badge = &badge
	return m
}

func (m *Message) SetChannelID(id string) *Message {
	m.channelID = &id
	return m
}

func (m *Message) SetCategoryID(id string) *Message {
	m.categoryID = &id
	return m
}

func (m *Message) SetMutableContent(v bool) *Message {
	m.mutableContent = v
	return m
}

func (m *Message) SetContentAvailable(v bool) *Message {
	m.contentAvailable = v
	return m
}

// Recipients returns the explicit recipients, or nil when none were set.
func (m *Message) Recipients() []string {
	if m.to == nil {
		return nil
	}
	return append([]string(nil), m.to...)
}

// ToMap serializes the message to its wire form, omitting unset fields.
// mutableContent and the content-available flag are always present.
func (m *Message) ToMap() map[string]any {
	priority := m.priority
	if priority == "" {
		priority = PriorityDefault
	}
	out := map[string]any{
		"priority":          priority,
		"mutableContent":    m.mutableContent,
		contentAvailableKey: m.contentAvailable,
	}
	if m.to != nil {
		out["to"] = append([]string(nil), m.to...)
	}
	if m.data != nil {
		out["data"] = m.data
	}
	putString(out, "title", m.title)
	putString(out, "body", m.body)
	putString(out, "subtitle", m.subtitle)
	putString(out, "sound", m.sound)
	putString(out, "channelId", m.channelID)
	putString(out, "categoryId", m.categoryID)
	putInt(out, "ttl", m.ttl)
	putInt(out, "expiration", m.expiration)
	putInt(out, "badge", m.badge)
	return out
}

func putString(out map[string]any, key string, v *string) {
	if v != nil {
		out[key] = *v
	}
}

func putInt(out map[string]any, key string, v *int) {
	if v != nil {
		out[key] = *v
	}
}

// messageSetters maps attribute names to their setters. A nil value clears an
// optional field.
var messageSetters = map[string]func(*Message, any) error{
	"to":   func(m *Message, v any) error { return m.SetTo(v) },
	"data": func(m *Message, v any) error { return m.SetData(v) },
	"priority": func(m *Message, v any) error {
		s, ok := v.(string)
		if !ok {
			return &InvalidMessageFieldError{Field: "priority", Expected: "string", Got: typeName(v)}
		}
		return m.SetPriority(s)
	},
	"title":            stringSetter("title", func(m *Message) **string { return &m.title }),
	"body":             stringSetter("body", func(m *Message) **string { return &m.body }),
	"subtitle":         stringSetter("subtitle", func(m *Message) **string { return &m.subtitle }),
	"sound":            stringSetter("sound", func(m *Message) **string { return &m.sound }),
	"channelId":        stringSetter("channelId", func(m *Message) **string { return &m.channelID }),
	"categoryId":       stringSetter("categoryId", func(m *Message) **string { return &m.categoryID }),
	"ttl":              intSetter("ttl", func(m *Message) **int { return &m.ttl }),
	"expiration":       intSetter("expiration", func(m *Message) **int { return &m.expiration }),
	"badge":            intSetter("badge", func(m *Message) **int { return &m.badge }),
	"mutableContent":   boolSetter("mutableContent", func(m *Message) *bool { return &m.mutableContent }),
	"contentAvailable": boolSetter("contentAvailable", func(m *Message) *bool { return &m.contentAvailable }),
}

func stringSetter(field string, target func(*Message) **string) func(*Message, any) error {
	return func(m *Message, v any) error {
		if v == nil {
			*target(m) = nil
			return nil
		}
		s, ok := v.(string)
		if !ok {
			return &InvalidMessageFieldError{Field: field, Expected: "string", Got: typeName(v)}
		}
		*target(m) = &s
		return nil
	}
}

func intSetter(field string, target func(*Message) **int) func(*Message, any) error {
	return func(m *Message, v any) error {
		if v == nil {
			*target(m) = nil
			return nil
		}
		n, ok := toInt(v)
		if !ok {
			return &InvalidMessageFieldError{Field: field, Expected: "integer", Got: typeName(v)}
		}
		*target(m) = &n
		return nil
	}
}

func boolSetter(field string, target func(*Message) *bool) func(*Message, any) error {
	return func(m *Message, v any) error {
		b, ok := v.(bool)
		if !ok {
			return &InvalidMessageFieldError{Field: field, Expected: "bool", Got: typeName(v)}
		}
		*target(m) = b
		return nil
	}
}

// toInt accepts Go integer kinds and integral float64 values (as produced by
// encoding/json).
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case uint32:
		return int(n), true
	case float32:
		return toInt(float64(n))
	case float64:
		// float64(math.MaxInt) rounds up to 2^63, so the upper bound is exclusive.
		if n != math.Trunc(n) || n < math.MinInt || n >= math.MaxInt {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
