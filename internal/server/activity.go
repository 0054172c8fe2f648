package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	ActivityEventCommentAdded = "comment-added"
	ActivityEventNoteSaved    = "note-saved"
	activityEventHeartbeat    = "heartbeat"

	activityHeartbeatInterval = 25 * time.Second
)

// ActivityMessage tells a note owner that someone else interacted with their note.
type ActivityMessage struct {
	UserID    int64     `json:"-"`
	EventType string    `json:"-"`
	NoteID    int64     `json:"noteId"`
	ActorID   int64     `json:"actorId"`
	CommentID int64     `json:"commentId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ActivityDispatcher fans messages out to the open streams of one user.
// Publish never blocks; a full subscriber buffer drops the message.
type ActivityDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]map[int64]*activitySubscriber
	nextID      int64
	bufferSize  int
}

type activitySubscriber struct {
	id     int64
	stream chan ActivityMessage
}

func NewActivityDispatcher() *ActivityDispatcher {
	return &ActivityDispatcher{
		subscribers: make(map[int64]map[int64]*activitySubscriber),
		bufferSize:  16,
	}
}

func (d *ActivityDispatcher) Subscribe(ctx context.Context, userID int64) (<-chan ActivityMessage, func()) {
	if userID <= 0 {
		ch := make(chan ActivityMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &activitySubscriber{
		id:     d.nextSequence(),
		stream: make(chan ActivityMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(userID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *ActivityDispatcher) Publish(message ActivityMessage) {
	if message.UserID <= 0 || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.UserID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*activitySubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the open streams of userID.
func (d *ActivityDispatcher) SubscriberCount(userID int64) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *ActivityDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *ActivityDispatcher) registerSubscriber(userID int64, subscriber *activitySubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*activitySubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *ActivityDispatcher) unregisterSubscriber(userID int64, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}

// notifyOwner publishes to the note owner unless the owner is the actor.
func (h *httpHandler) notifyOwner(eventType string, ownerID, actorID, noteID, commentID int64) {
	if ownerID == actorID {
		return
	}
	h.activity.Publish(ActivityMessage{
		UserID:    ownerID,
		EventType: eventType,
		NoteID:    noteID,
		ActorID:   actorID,
		CommentID: commentID,
		Timestamp: time.Now().UTC(),
	})
}

func (h *httpHandler) handleActivityStream(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		respondFailure(c, http.StatusUnauthorized, messageTokenMissing)
		return
	}

	stream, cleanup := h.activity.Subscribe(c.Request.Context(), identity.UserID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(activityHeartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, message)
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(activityEventHeartbeat, gin.H{"timestamp": tick.UTC()})
			return true
		}
	})
	h.logger.Debug("activity stream closed", zap.Int64("user_id", identity.UserID))
}
