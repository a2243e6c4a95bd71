package realtime

import (
	"context"
	"testing"
	"time"
)

func TestDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()

	dispatcher.Publish(Event{
		Topic:      TopicMessages,
		MessageIDs: []string{"msg-a", "msg-b"},
		Timestamp:  time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.Topic != TopicMessages {
			t.Fatalf("expected topic %s, got %s", TopicMessages, received.Topic)
		}
		if len(received.MessageIDs) != 2 {
			t.Fatalf("expected 2 message ids, got %d", len(received.MessageIDs))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected event within deadline")
	}
}

func TestDispatcherBroadcastsToAllSubscribers(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, firstCleanup := dispatcher.Subscribe(ctx)
	defer firstCleanup()
	second, secondCleanup := dispatcher.Subscribe(ctx)
	defer secondCleanup()

	dispatcher.Publish(Event{Topic: TopicSettings, Timestamp: time.Now().UTC()})

	for _, stream := range []<-chan Event{first, second} {
		select {
		case event := <-stream:
			if event.Topic != TopicSettings {
				t.Fatalf("expected topic %s, got %s", TopicSettings, event.Topic)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatal("expected broadcast event for every subscriber")
		}
	}
}

func TestDispatcherCancelIsIdempotent(t *testing.T) {
	dispatcher := NewDispatcher()
	_, cleanup := dispatcher.Subscribe(context.Background())
	cleanup()
	cleanup()

	stream, secondCleanup := dispatcher.Subscribe(context.Background())
	defer secondCleanup()

	dispatcher.Publish(Event{Topic: TopicEngagement, Timestamp: time.Now().UTC()})

	select {
	case <-stream:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("remaining subscriber should still receive events")
	}
}

func TestDispatcherDropsEventsForSlowSubscriber(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()

	// More events than the buffer holds must not block the publisher.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			dispatcher.Publish(Event{Topic: TopicMessages, Timestamp: time.Now().UTC()})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
