package watch_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MalteJ/mvirt/pkg/models"
	"github.com/MalteJ/mvirt/pkg/watch"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := watch.NewBus(4)
	sub := bus.Subscribe(context.Background())
	defer sub.Close()

	bus.Publish(models.Event{Kind: models.EventCreated, EntityKind: models.EntityKindVM, ID: "vm-1", NewVersion: 1})

	select {
	case ev := <-sub.C:
		assert.Equal(t, "vm-1", ev.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestLaggingSubscriberIsDroppedNotBlocked(t *testing.T) {
	bus := watch.NewBus(1)
	sub := bus.Subscribe(context.Background())

	bus.Publish(models.Event{ID: "vm-1"})
	bus.Publish(models.Event{ID: "vm-2"}) // buffer full, sub gets dropped

	_, ok := <-sub.C
	require.True(t, ok, "first buffered event should still be readable")

	_, ok = <-sub.C
	require.False(t, ok, "channel should be closed after lag")
	assert.ErrorIs(t, sub.Err(), watch.ErrLagged)
}

func TestCloseUnsubscribes(t *testing.T) {
	bus := watch.NewBus(4)
	sub := bus.Subscribe(context.Background())
	sub.Close()

	bus.Publish(models.Event{ID: "vm-1"})

	_, ok := <-sub.C
	assert.False(t, ok)
}
