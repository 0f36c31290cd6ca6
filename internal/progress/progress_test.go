package progress

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub(8)
	first := hub.Subscribe("session-1")
	second := hub.Subscribe("session-1")
	defer first.Close()
	defer second.Close()

	hub.Publish("session-1", Event{ExecutionID: 7, Type: EventStageStarted})

	for _, sub := range []*Subscription{first, second} {
		select {
		case ev := <-sub.C:
			if ev.ExecutionID != 7 || ev.Type != EventStageStarted {
				t.Errorf("got %+v", ev)
			}
			if ev.Timestamp.IsZero() {
				t.Error("publish should stamp the event")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber never received the event")
		}
	}
}

func TestPublishIsScopedByRequester(t *testing.T) {
	hub := NewHub(8)
	mine := hub.Subscribe("session-1")
	other := hub.Subscribe("session-2")
	defer mine.Close()
	defer other.Close()

	hub.Publish("session-1", Event{ExecutionID: 1, Type: EventDone})

	select {
	case <-other.C:
		t.Fatal("event leaked across requesters")
	case <-time.After(50 * time.Millisecond):
	}
	select {
	case <-mine.C:
	default:
		t.Fatal("own subscriber missed the event")
	}
}

func TestPublishWithoutSubscribersDoesNotBlock(t *testing.T) {
	hub := NewHub(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Publish("nobody", Event{ExecutionID: int64(i), Type: EventFinding})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked with no subscribers")
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub(2)
	sub := hub.Subscribe("session-1")
	defer sub.Close()

	// Nobody drains: the third publish must be dropped, not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			hub.Publish("session-1", Event{ExecutionID: int64(i), Type: EventFinding})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber buffer")
	}

	var received int
drain:
	for {
		select {
		case <-sub.C:
			received++
		default:
			break drain
		}
	}
	if received != 2 {
		t.Errorf("received %d events, want the 2 buffered ones", received)
	}
}

func TestCloseDetachesSubscriber(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Subscribe("session-1")

	if got := hub.SubscriberCount("session-1"); got != 1 {
		t.Fatalf("count = %d, want 1", got)
	}
	sub.Close()
	if got := hub.SubscriberCount("session-1"); got != 0 {
		t.Errorf("count after close = %d, want 0", got)
	}

	// Closing twice is a no-op.
	sub.Close()

	// Publishing after close is harmless for the producer.
	hub.Publish("session-1", Event{ExecutionID: 1, Type: EventDone})

	// The stream is closed for the reader.
	if _, ok := <-sub.C; ok {
		t.Error("closed subscription still delivering events")
	}
}
