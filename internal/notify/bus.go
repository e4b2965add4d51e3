// Package notify provides fan-out buses for toasts and connection status.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultBuffer is the per-subscriber channel capacity.
const defaultBuffer = 64

// Bus fans out published values to every subscriber.
// A subscriber whose buffer is full misses the value; Publish never blocks.
type Bus[T any] struct {
	mu     sync.Mutex
	subs   map[int]chan T
	nextID int
	last   *T
	closed bool
}

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{subs: make(map[int]chan T)}
}

// Publish delivers v to every subscriber and remembers it as the latest value.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.last = &v
	for _, ch := range b.subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Subscribe registers a new subscriber. The latest published value, if any,
// is delivered first. The returned cancel func unregisters and closes the channel.
func (b *Bus[T]) Subscribe() (<-chan T, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, defaultBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.last != nil {
		ch <- *b.last
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Latest returns the last published value.
func (b *Bus[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.last == nil {
		var zero T
		return zero, false
	}
	return *b.last, true
}

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

// Toast is a transient user-visible notification.
type Toast struct {
	ID      string
	Message string
	At      time.Time
}

// ToastTTL is how long the dashboard keeps a toast on screen.
const ToastTTL = 5 * time.Second

// Notifier surfaces a user-visible message. Components receive one by injection.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(message string)

// Notify calls f(message).
func (f NotifierFunc) Notify(message string) { f(message) }

// Discard is a Notifier that drops every message.
var Discard Notifier = NotifierFunc(func(string) {})

// Toasts is a Notifier that publishes each message as a Toast.
type Toasts struct {
	*Bus[Toast]
	now func() time.Time
}

// NewToasts creates a toast bus.
func NewToasts() *Toasts {
	return &Toasts{Bus: NewBus[Toast](), now: time.Now}
}

// Notify publishes message as a new toast.
func (t *Toasts) Notify(message string) {
	t.Publish(Toast{
		ID:      uuid.New().String(),
		Message: message,
		At:      t.now(),
	})
}
