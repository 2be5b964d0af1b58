// Package notify delivers transient user notifications (toasts) about the
// outcome of portal actions.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/coffeestaff/portal/internal/metrics"
)

// Levels.
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// historySize is how many recent notifications a Broadcaster keeps.
const historySize = 20

// Notification is one toast.
type Notification struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	Op        string `json:"op,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Notifier receives notifications.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to a Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Success is shorthand for a success notification.
func Success(op, msg string) Notification {
	return Notification{Level: LevelSuccess, Op: op, Message: msg}
}

// Failure is shorthand for an error notification.
func Failure(op, msg string) Notification {
	return Notification{Level: LevelError, Op: op, Message: msg}
}

// Broadcaster fans notifications out to subscribers and keeps the most
// recent ones for late subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Notification]struct{}
	history     []Notification
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Notification]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Notification {
	ch := make(chan Notification, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	metrics.SetNotificationStreamsActive(b.Count())
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Notification) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
	metrics.SetNotificationStreamsActive(b.Count())
}

// Notify publishes n to all subscribers. Non-blocking: drops notifications
// for slow consumers.
func (b *Broadcaster) Notify(n Notification) {
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().Unix()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = append(b.history, n)
	if len(b.history) > historySize {
		b.history = b.history[len(b.history)-historySize:]
	}
	for ch := range b.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
	metrics.RecordNotification(n.Level)
}

// Recent returns the most recent notifications, oldest first.
func (b *Broadcaster) Recent() []Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Notification(nil), b.history...)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Marshal serializes a notification to JSON.
func Marshal(n Notification) ([]byte, error) {
	return json.Marshal(n)
}
