package progressbus

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"fooocus-orchestrator/pkg/types"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(zap.NewNop())
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(types.ProgressUpdate{TaskID: "t1", Percentage: 50})

	select {
	case update := <-ch:
		if update.TaskID != "t1" || update.Percentage != 50 {
			t.Errorf("update = %+v, want task t1 at 50%%", update)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
}

func TestPublishIsolatesSlowSubscriberFromOthers(t *testing.T) {
	b := New(zap.NewNop())
	slow, unsubSlow := b.Subscribe()
	defer unsubSlow()
	fast, unsubFast := b.Subscribe()
	defer unsubFast()

	for i := 0; i < subscriberBufferSize+5; i++ {
		b.Publish(types.ProgressUpdate{TaskID: "t1", Percentage: i})

		select {
		case <-fast:
		default:
			t.Fatal("fast subscriber should have received every update")
		}
	}

	if b.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1 (slow evicted, fast kept)", b.SubscriberCount())
	}

	// Eviction closes the slow subscriber's channel, so ranging over it
	// yields what was buffered before the eviction and then stops.
	drained := 0
	for range slow {
		drained++
	}
	if drained == 0 {
		t.Fatal("slow subscriber should still have buffered updates")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(zap.NewNop())
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0 after unsubscribe", b.SubscriberCount())
	}

	_, ok := <-ch
	if ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestSubscriberCount(t *testing.T) {
	b := New(zap.NewNop())
	if b.SubscriberCount() != 0 {
		t.Fatalf("initial SubscriberCount() = %d, want 0", b.SubscriberCount())
	}
	_, unsub1 := b.Subscribe()
	_, unsub2 := b.Subscribe()
	if b.SubscriberCount() != 2 {
		t.Errorf("SubscriberCount() = %d, want 2", b.SubscriberCount())
	}
	unsub1()
	unsub2()
}
