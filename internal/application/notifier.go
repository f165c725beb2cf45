package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

// KeyEvents receives key lifecycle events from the KeyService. Calls must not
// block; implementations own delivery and its failures.
type KeyEvents interface {
	KeyCreated(key model.AccessKey)
	KeyDeleted(key model.AccessKey)
}

// KeyHook handles one key lifecycle event.
type KeyHook func(ctx context.Context, key model.AccessKey) error

// OnlyOwnedKeys wraps h so it only runs for keys held by a registered owner.
// Orphans and keys owned by the system identity are skipped.
func OnlyOwnedKeys(h KeyHook) KeyHook {
	return func(ctx context.Context, key model.AccessKey) error {
		if key.Owner == nil || key.Owner.IsSystem() {
			return nil
		}
		return h(ctx, key)
	}
}

// DefaultHookTimeout bounds a single hook call made by the Notifier.
const DefaultHookTimeout = 30 * time.Second

type keyEventKind uint8

const (
	keyEventCreated keyEventKind = iota
	keyEventDeleted
)

func (k keyEventKind) String() string {
	if k == keyEventCreated {
		return "created"
	}
	return "deleted"
}

type keyEvent struct {
	kind keyEventKind
	key  model.AccessKey
}

// Notifier dispatches key events to hooks from a single worker goroutine fed
// by a bounded queue. Enqueueing never blocks: when the queue is full the
// event is dropped and logged. Hook errors and panics are logged and never
// reach the operation that raised the event.
type Notifier struct {
	onCreated KeyHook
	onDeleted KeyHook
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan keyEvent
	done   chan struct{}
}

// Compile-time interface satisfaction check.
var _ KeyEvents = (*Notifier)(nil)

// NewNotifier starts a Notifier with room for size pending events. Either
// hook may be nil. Close must be called to stop the worker.
func NewNotifier(size int, onCreated, onDeleted KeyHook) *Notifier {
	if size < 0 {
		size = 0
	}
	n := &Notifier{
		onCreated: onCreated,
		onDeleted: onDeleted,
		timeout:   DefaultHookTimeout,
		queue:     make(chan keyEvent, size),
		done:      make(chan struct{}),
	}
	go n.run()
	return n
}

// KeyCreated queues a creation event.
func (n *Notifier) KeyCreated(key model.AccessKey) {
	n.enqueue(keyEvent{kind: keyEventCreated, key: key})
}

// KeyDeleted queues a deletion event.
func (n *Notifier) KeyDeleted(key model.AccessKey) {
	n.enqueue(keyEvent{kind: keyEventDeleted, key: key})
}

// Close stops accepting events, delivers the ones already queued and waits
// for the worker to exit. It is safe to call more than once.
func (n *Notifier) Close() {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	<-n.done
}

func (n *Notifier) enqueue(ev keyEvent) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.closed {
		slog.Warn("key event dropped, notifier closed", "event", ev.kind, "key_id", ev.key.ID)
		return
	}

	select {
	case n.queue <- ev:
	default:
		slog.Warn("key event dropped, queue full", "event", ev.kind, "key_id", ev.key.ID)
	}
}

func (n *Notifier) run() {
	defer close(n.done)
	for ev := range n.queue {
		n.deliver(ev)
	}
}

func (n *Notifier) deliver(ev keyEvent) {
	hook := n.onCreated
	if ev.kind == keyEventDeleted {
		hook = n.onDeleted
	}
	if hook == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	if err := callHook(ctx, hook, ev.key); err != nil {
		slog.Error("key event hook failed",
			"event", ev.kind,
			"key_id", ev.key.ID,
			"remote_id", ev.key.RemoteID,
			"error", err,
		)
	}
}

func callHook(ctx context.Context, hook KeyHook, key model.AccessKey) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hook panicked: %v", r)
		}
	}()
	return hook(ctx, key)
}
