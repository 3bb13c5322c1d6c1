package eventbus

import (
	"testing"
	"time"
)

func TestFanoutDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()
	b := New()
	ch1, unsub1 := b.Subscribe(4)
	defer unsub1()
	ch2, unsub2 := b.Subscribe(4)
	defer unsub2()

	b.Publish(Event{Type: TypeTaskScheduled, TaskID: "task_1"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			if ev.Type != TypeTaskScheduled || ev.TaskID != "task_1" {
				t.Fatalf("subscriber %d got %+v", i, ev)
			}
			if ev.Time.IsZero() {
				t.Fatalf("subscriber %d: event time not stamped", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}
}

func TestPublishNeverBlocksOnFullBuffer(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	// Nobody is draining; the second and third publish must drop, not hang.
	b.Publish(Event{Type: TypeTaskScheduled, TaskID: "a"})
	b.Publish(Event{Type: TypeTaskScheduled, TaskID: "b"})
	b.Publish(Event{Type: TypeTaskScheduled, TaskID: "c"})

	ev := <-ch
	if ev.TaskID != "a" {
		t.Fatalf("kept event = %q, want the first published", ev.TaskID)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event %+v", ev)
	default:
	}
}

func TestUnsubscribeStopsDeliveryAndCloses(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(2)
	unsub()
	unsub() // idempotent

	b.Publish(Event{Type: TypeTaskCancelled, TaskID: "x"})

	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
}
