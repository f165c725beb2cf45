package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/keyhub/internal/application"
	"github.com/ericfisherdev/keyhub/internal/domain/model"
)

type hookRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *hookRecorder) hook(_ context.Context, key model.AccessKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key.ID)
	return nil
}

func (r *hookRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

func TestNotifier_DeliversInOrder(t *testing.T) {
	created, deleted := &hookRecorder{}, &hookRecorder{}
	n := application.NewNotifier(8, created.hook, deleted.hook)

	n.KeyCreated(model.AccessKey{ID: "a"})
	n.KeyDeleted(model.AccessKey{ID: "b"})
	n.KeyCreated(model.AccessKey{ID: "c"})
	n.Close()

	assert.Equal(t, []string{"a", "c"}, created.seen())
	assert.Equal(t, []string{"b"}, deleted.seen())
}

func TestNotifier_HookFailuresAreContained(t *testing.T) {
	after := &hookRecorder{}
	calls := 0
	failing := func(ctx context.Context, key model.AccessKey) error {
		calls++
		switch key.ID {
		case "panic":
			panic("boom")
		case "error":
			return errors.New("send failed")
		}
		return after.hook(ctx, key)
	}

	n := application.NewNotifier(8, failing, nil)
	n.KeyCreated(model.AccessKey{ID: "panic"})
	n.KeyCreated(model.AccessKey{ID: "error"})
	n.KeyCreated(model.AccessKey{ID: "ok"})
	n.KeyDeleted(model.AccessKey{ID: "no hook"})
	n.Close()

	assert.Equal(t, 3, calls)
	assert.Equal(t, []string{"ok"}, after.seen(), "worker survives a panicking hook")
}

func TestNotifier_FullQueueDropsWithoutBlocking(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	rec := &hookRecorder{}
	blocking := func(ctx context.Context, key model.AccessKey) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return rec.hook(ctx, key)
	}

	n := application.NewNotifier(1, blocking, nil)
	n.KeyCreated(model.AccessKey{ID: "first"})
	<-started

	n.KeyCreated(model.AccessKey{ID: "queued"})

	done := make(chan struct{})
	go func() {
		n.KeyCreated(model.AccessKey{ID: "dropped"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}

	close(release)
	n.Close()
	assert.Equal(t, []string{"first", "queued"}, rec.seen())
}

func TestNotifier_EventsAfterCloseAreDropped(t *testing.T) {
	rec := &hookRecorder{}
	n := application.NewNotifier(4, rec.hook, rec.hook)
	n.Close()
	n.Close()

	n.KeyCreated(model.AccessKey{ID: "late"})
	assert.Empty(t, rec.seen())
}

func TestNotifier_WiredIntoKeyService(t *testing.T) {
	created := &hookRecorder{}
	n := application.NewNotifier(4, created.hook, nil)

	env := newTestEnv(t, nil, nil, application.WithKeyEvents(n))
	key, err := env.svc.CreateAccessKey(context.Background(), model.OwnerByID(alice.ID), application.NewKey{Name: "phone"})
	require.NoError(t, err)

	n.Close()
	assert.Equal(t, []string{key.ID}, created.seen())
}

func TestOnlyOwnedKeys(t *testing.T) {
	rec := &hookRecorder{}
	hook := application.OnlyOwnedKeys(rec.hook)
	ctx := context.Background()

	require.NoError(t, hook(ctx, model.AccessKey{ID: "orphan"}))
	require.NoError(t, hook(ctx, model.AccessKey{ID: "system", Owner: &model.Owner{ID: model.SystemOwnerID}}))
	require.NoError(t, hook(ctx, model.AccessKey{ID: "owned", Owner: &model.Owner{ID: 101, Nickname: "alice"}}))

	assert.Equal(t, []string{"owned"}, rec.seen())
}
