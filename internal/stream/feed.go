package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Event is one vault notification as seen by stream subscribers.
type Event struct {
	Subject   string      `json:"subject"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Subscriber is one connected event stream consumer.
type Subscriber struct {
	ID      uuid.UUID
	Updates chan Event
	Done    chan struct{}

	closeOnce sync.Once
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() { close(s.Done) })
}

// Feed fans vault events out to websocket subscribers. Slow subscribers
// drop events rather than backing up the publisher.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*Subscriber
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{
		subscribers: make(map[uuid.UUID]*Subscriber),
	}
}

// Subscribe registers a new subscriber.
func (f *Feed) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:      uuid.New(),
		Updates: make(chan Event, 16),
		Done:    make(chan struct{}),
	}

	f.mu.Lock()
	f.subscribers[sub.ID] = sub
	f.mu.Unlock()

	return sub
}

// Unsubscribe removes a subscriber and signals its Done channel.
func (f *Feed) Unsubscribe(subID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if sub, exists := f.subscribers[subID]; exists {
		sub.close()
		delete(f.subscribers, subID)
	}
}

// Broadcast delivers an event to every subscriber that can keep up.
func (f *Feed) Broadcast(subject string, data interface{}) {
	event := Event{
		Subject:   subject,
		Data:      data,
		Timestamp: time.Now(),
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subscribers {
		select {
		case sub.Updates <- event:
		case <-sub.Done:
		default:
			// Subscriber buffer full; the event is dropped for them.
		}
	}
}

// SubscriberCount returns the number of connected subscribers.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// WebSocketHandler serves the event stream over websocket connections.
type WebSocketHandler struct {
	feed     *Feed
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a handler for feed.
func NewWebSocketHandler(feed *Feed) *WebSocketHandler {
	return &WebSocketHandler{
		feed: feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Upgrader returns the websocket upgrader for HTTP handler wiring.
func (h *WebSocketHandler) Upgrader() *websocket.Upgrader {
	return &h.upgrader
}

// ServeWS streams events to one websocket connection until the client
// disconnects or ctx is cancelled.
func (h *WebSocketHandler) ServeWS(ctx context.Context, conn *websocket.Conn) {
	sub := h.feed.Subscribe()

	defer func() {
		h.feed.Unsubscribe(sub.ID)
		conn.Close()
	}()

	// Reader goroutine: detects client disconnect.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				sub.close()
				return
			}
		}
	}()

	for {
		select {
		case event := <-sub.Updates:
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-sub.Done:
			return
		case <-ctx.Done():
			return
		}
	}
}
