package stream

import (
	"testing"

	"github.com/cyverse-de/notification-hub/model"
	"github.com/stretchr/testify/assert"
)

func TestPublishReachesEverySubscriber(t *testing.T) {
	assert := assert.New(t)
	s := NewInMemory()

	// Register two independent subscriptions for the same user.
	var first, second []Event
	unsubscribeFirst := s.Subscribe("u1", func(event Event) { first = append(first, event) })
	s.Subscribe("u1", func(event Event) { second = append(second, event) })
	assert.Equal(2, s.SubscriberCount("u1"))

	// Both subscriptions should receive the notification.
	notification := &model.Notification{ID: "n1", RecipientUserID: "u1", Type: model.TypeMemberJoined}
	s.Publish("u1", notification)
	assert.Len(first, 1)
	assert.Len(second, 1)
	assert.Equal(EventTypeNew, first[0].Type)
	assert.Equal(notification, first[0].Notification)

	// After one subscription is removed, only the other should receive events.
	unsubscribeFirst()
	s.Publish("u1", notification)
	assert.Len(first, 1, "the removed subscription should not receive further events")
	assert.Len(second, 2)
}

func TestPublishToOtherUsersSubscribers(t *testing.T) {
	assert := assert.New(t)
	s := NewInMemory()

	// Another user's subscribers should not see the event.
	var received []Event
	s.Subscribe("u2", func(event Event) { received = append(received, event) })
	s.Publish("u1", &model.Notification{ID: "n1", RecipientUserID: "u1"})
	assert.Empty(received)
}

func TestPublishWithNoSubscribers(t *testing.T) {
	assert := assert.New(t)
	s := NewInMemory()

	// Publishing to a user with no live subscriptions is a valid no-op.
	s.Publish("u1", &model.Notification{ID: "n1"})
	s.PublishRefresh("u1")
	assert.Equal(0, s.SubscriberCount("u1"))
}

func TestUnsubscribeRemovesEmptyUserEntries(t *testing.T) {
	assert := assert.New(t)
	s := NewInMemory()

	unsubscribe := s.Subscribe("u1", func(Event) {})
	assert.Equal(1, s.SubscriberCount("u1"))

	// Removing the last subscription should drop the user's entry entirely.
	unsubscribe()
	assert.Equal(0, s.SubscriberCount("u1"))
	s.mutex.RLock()
	_, exists := s.subscribers["u1"]
	s.mutex.RUnlock()
	assert.False(exists, "an empty subscriber set should not linger")
}

func TestUnsubscribeIsSafeToRepeat(t *testing.T) {
	assert := assert.New(t)
	s := NewInMemory()

	// A stale unsubscribe function must not disturb newer subscriptions.
	unsubscribeFirst := s.Subscribe("u1", func(Event) {})
	unsubscribeFirst()
	s.Subscribe("u1", func(Event) {})
	unsubscribeFirst()
	assert.Equal(1, s.SubscriberCount("u1"))
}

func TestPanickingCallbackDoesNotBlockSiblings(t *testing.T) {
	assert := assert.New(t)
	s := NewInMemory()

	var delivered bool
	s.Subscribe("u1", func(Event) { panic("client connection broke") })
	s.Subscribe("u1", func(Event) { delivered = true })

	s.Publish("u1", &model.Notification{ID: "n1"})
	assert.True(delivered, "a panicking callback should not block delivery to siblings")
}

func TestStateChangeEventShapes(t *testing.T) {
	assert := assert.New(t)
	s := NewInMemory()

	var received []Event
	s.Subscribe("u1", func(event Event) { received = append(received, event) })

	s.PublishRead("u1", "n1")
	s.PublishArchived("u1", "n2")
	s.PublishRefresh("u1")

	assert.Len(received, 3)
	assert.Equal(Event{Type: EventTypeRead, NotificationID: "n1"}, received[0])
	assert.Equal(Event{Type: EventTypeArchived, NotificationID: "n2"}, received[1])
	assert.Equal(Event{Type: EventTypeRefresh}, received[2])
}
