package server

import (
	"context"
	"testing"
	"time"
)

func TestActivityDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewActivityDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, 1)
	defer cleanup()

	dispatcher.Publish(ActivityMessage{
		UserID:    1,
		EventType: ActivityEventCommentAdded,
		NoteID:    10,
		ActorID:   2,
		CommentID: 30,
		Timestamp: time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.EventType != ActivityEventCommentAdded {
			t.Fatalf("expected event type %s, got %s", ActivityEventCommentAdded, received.EventType)
		}
		if received.NoteID != 10 || received.CommentID != 30 {
			t.Fatalf("unexpected message %+v", received)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected activity message within deadline")
	}
}

func TestActivityDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewActivityDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, 2)
	defer cleanup()
	otherStream, otherCleanup := dispatcher.Subscribe(ctx, 3)
	defer otherCleanup()

	dispatcher.Publish(ActivityMessage{UserID: 3, EventType: ActivityEventNoteSaved, NoteID: 5})

	select {
	case <-userStream:
		t.Fatal("did not expect activity message for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.UserID != 3 {
			t.Fatalf("expected user 3, received %d", msg.UserID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected activity message for subscribed user")
	}
}

func TestActivityDispatcherUnsubscribesOnCancel(t *testing.T) {
	dispatcher := NewActivityDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, 4)
	defer cleanup()
	if dispatcher.SubscriberCount(4) != 1 {
		t.Fatalf("expected one subscriber")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount(4) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscriber to be removed after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestActivityDispatcherDropsWhenBufferFull(t *testing.T) {
	dispatcher := NewActivityDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, 5)
	defer cleanup()

	for index := 0; index < dispatcher.bufferSize+4; index++ {
		dispatcher.Publish(ActivityMessage{UserID: 5, EventType: ActivityEventNoteSaved, NoteID: int64(index)})
	}
	if len(stream) != dispatcher.bufferSize {
		t.Fatalf("expected %d buffered messages, got %d", dispatcher.bufferSize, len(stream))
	}
}

func TestActivityDispatcherIgnoresAnonymousSubscribers(t *testing.T) {
	dispatcher := NewActivityDispatcher()
	stream, cleanup := dispatcher.Subscribe(context.Background(), 0)
	defer cleanup()
	if _, open := <-stream; open {
		t.Fatal("expected closed stream for anonymous subscriber")
	}
}
