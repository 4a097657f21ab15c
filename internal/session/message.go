package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrEmptyMessage = errors.New("session: message content is empty")

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

type Icon string

const (
	IconLoading Icon = "loading"
	IconSuccess Icon = "success"
	IconError   Icon = "error"
)

type Status struct {
	Text string `json:"text"`
	Icon Icon   `json:"icon"`
}

type ContentItem struct {
	Text        string `json:"text"`
	Highlighted bool   `json:"highlighted,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Content is the body of a message. On the wire it is an array of items; a
// bare string is accepted as a single item.
type Content []ContentItem

func (c *Content) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		*c = Content{{Text: s}}
		return nil
	}
	var items []ContentItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	*c = items
	return nil
}

// Text joins the item texts with single spaces.
func (c Content) Text() string {
	parts := make([]string, 0, len(c))
	for _, it := range c {
		if t := strings.TrimSpace(it.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

// Message is one transcript entry.
type Message struct {
	ID        string  `json:"id"`
	Role      Role    `json:"role"`
	Content   Content `json:"content"`
	Heading   string  `json:"heading,omitempty"`
	Status    *Status `json:"status,omitempty"`
	Transient bool    `json:"transient,omitempty"`
}

type MessageOption func(*Message)

func WithStatus(text string, icon Icon) MessageOption {
	return func(m *Message) {
		m.Status = &Status{Text: text, Icon: icon}
	}
}

func WithHeading(heading string) MessageOption {
	return func(m *Message) {
		m.Heading = strings.TrimSpace(heading)
	}
}

// AsTransient marks the message as an in-progress placeholder.
func AsTransient() MessageOption {
	return func(m *Message) {
		m.Transient = true
	}
}

// NewMessage builds a message with a fresh ID. Empty text is refused.
func NewMessage(role Role, text string, opts ...MessageOption) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}
	m := Message{
		ID:      uuid.NewString(),
		Role:    role,
		Content: Content{{Text: text}},
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m, nil
}

func cloneMessage(m Message) Message {
	out := m
	out.Content = append(Content(nil), m.Content...)
	if m.Status != nil {
		s := *m.Status
		out.Status = &s
	}
	return out
}
