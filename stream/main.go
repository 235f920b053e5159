// Package stream delivers low-latency notice of inbox mutations to the
// clients a user currently has connected, so open views update without
// polling. Subscriptions are ephemeral; a client that is not connected simply
// sees the change on its next inbox fetch.
package stream

import (
	"sync"

	"github.com/cyverse-de/notification-hub/model"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithFields(logrus.Fields{
	"service": "notification-hub",
	"art-id":  "notification-hub",
	"group":   "org.cyverse",
})

// EventType identifies the kind of inbox mutation an event announces.
type EventType string

// The event types delivered to subscribers.
const (
	EventTypeNew      EventType = "new"
	EventTypeRead     EventType = "read"
	EventTypeArchived EventType = "archived"
	EventTypeRefresh  EventType = "refresh"
)

// Event is the payload delivered to a subscriber. New-notification events
// carry the full notification; read and archived events carry just the
// identifier; refresh events carry neither and ask the client to refetch.
type Event struct {
	Type           EventType           `json:"type"`
	Notification   *model.Notification `json:"notification,omitempty"`
	NotificationID string              `json:"notificationId,omitempty"`
}

// Callback receives events for one client connection. The transport layer
// wires it to whatever long-lived connection the client holds.
type Callback func(event Event)

// Stream fans inbox mutation events out to a user's connected clients.
type Stream interface {
	// Subscribe registers a callback for the user's events and returns a
	// function that removes exactly that callback. A user may hold any number
	// of concurrent subscriptions, one per open client connection.
	Subscribe(userID string, callback Callback) func()

	// Publish announces a new notification to the user's subscribers.
	Publish(userID string, notification *model.Notification)

	// PublishRead announces that a notification was marked as read.
	PublishRead(userID, notificationID string)

	// PublishArchived announces that a notification was archived.
	PublishArchived(userID, notificationID string)

	// PublishRefresh asks the user's clients to refetch the inbox, for bulk
	// operations where enumerating every affected notification is wasteful.
	PublishRefresh(userID string)
}

// InMemory is the single-process stream implementation. It keeps an in-memory
// mapping from user ID to that user's live callbacks.
type InMemory struct {
	mutex       sync.RWMutex
	subscribers map[string]map[string]Callback
}

// NewInMemory creates a new in-memory stream with no subscribers.
func NewInMemory() *InMemory {
	return &InMemory{
		subscribers: make(map[string]map[string]Callback),
	}
}

// Subscribe registers a callback for the user's events.
func (s *InMemory) Subscribe(userID string, callback Callback) func() {
	subscriptionID := uuid.NewString()

	// Register the callback.
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.subscribers[userID] == nil {
		s.subscribers[userID] = make(map[string]Callback)
	}
	s.subscribers[userID][subscriptionID] = callback

	// The returned function removes this subscription and drops the user's
	// entry when the last subscription goes away. It looks the registration
	// up again so that calling it more than once is safe.
	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		callbacks, ok := s.subscribers[userID]
		if !ok {
			return
		}
		if _, ok := callbacks[subscriptionID]; !ok {
			return
		}
		delete(callbacks, subscriptionID)
		if len(callbacks) == 0 {
			delete(s.subscribers, userID)
		}
	}
}

// SubscriberCount returns the number of live subscriptions for a user.
func (s *InMemory) SubscriberCount(userID string) int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.subscribers[userID])
}

// fanOut delivers an event to every subscriber the user currently has. The
// subscriber set is snapshotted first so callbacks can subscribe or
// unsubscribe during delivery.
func (s *InMemory) fanOut(userID string, event Event) {
	s.mutex.RLock()
	callbacks := make([]Callback, 0, len(s.subscribers[userID]))
	for _, callback := range s.subscribers[userID] {
		callbacks = append(callbacks, callback)
	}
	s.mutex.RUnlock()

	for _, callback := range callbacks {
		s.deliver(userID, event, callback)
	}
}

// deliver invokes a single callback, recovering a panic so that one broken
// client connection cannot prevent delivery to the user's other connections.
func (s *InMemory) deliver(userID string, event Event, callback Callback) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("a subscriber callback for %s panicked: %v", userID, r)
		}
	}()
	callback(event)
}

// Publish announces a new notification to the user's subscribers.
func (s *InMemory) Publish(userID string, notification *model.Notification) {
	s.fanOut(userID, Event{Type: EventTypeNew, Notification: notification})
}

// PublishRead announces that a notification was marked as read.
func (s *InMemory) PublishRead(userID, notificationID string) {
	s.fanOut(userID, Event{Type: EventTypeRead, NotificationID: notificationID})
}

// PublishArchived announces that a notification was archived.
func (s *InMemory) PublishArchived(userID, notificationID string) {
	s.fanOut(userID, Event{Type: EventTypeArchived, NotificationID: notificationID})
}

// PublishRefresh asks the user's clients to refetch the inbox.
func (s *InMemory) PublishRefresh(userID string) {
	s.fanOut(userID, Event{Type: EventTypeRefresh})
}
