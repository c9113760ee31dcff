package session

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// MessageKind classifies a transient user-facing message.
type MessageKind string

const (
	MessageSuccess MessageKind = "success"
	MessageError   MessageKind = "error"
	MessageInfo    MessageKind = "info"
)

// Message is a short-lived notice for the user.
type Message struct {
	Kind MessageKind `json:"kind"`
	Text string      `json:"text"`
	At   time.Time   `json:"at"`
}

// Notifier receives transient messages produced by the controller.
type Notifier interface {
	Notify(kind MessageKind, text string)
}

const latestMessageKey = "latest"

// MessageBoard keeps the most recent message until it expires.
type MessageBoard struct {
	store *cache.Cache
	ttl   time.Duration
}

// NewMessageBoard creates a board whose messages disappear after ttl.
func NewMessageBoard(ttl time.Duration) *MessageBoard {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	return &MessageBoard{
		store: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

// Notify replaces the current message.
func (b *MessageBoard) Notify(kind MessageKind, text string) {
	b.store.Set(latestMessageKey, Message{Kind: kind, Text: text, At: time.Now().UTC()}, b.ttl)
}

// Latest returns the current message if it has not expired.
func (b *MessageBoard) Latest() (Message, bool) {
	v, ok := b.store.Get(latestMessageKey)
	if !ok {
		return Message{}, false
	}
	return v.(Message), true
}

type nopNotifier struct{}

func (nopNotifier) Notify(MessageKind, string) {}
