package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cyverse-de/notification-hub/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// channelPrefix is the prefix of the Redis channels carrying stream events.
const channelPrefix = "notifications."

// redisClient is the subset of the go-redis client used by the backplane,
// extracted so tests can substitute their own implementation.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	PSubscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// envelope is the wire format events travel in between process instances.
// The origin instance is recorded so an instance can ignore its own messages,
// which it has already delivered locally.
type envelope struct {
	Origin string `json:"origin"`
	UserID string `json:"userId"`
	Event  Event  `json:"event"`
}

// Redis fans events out across process instances through Redis pub/sub. Each
// instance delivers to its own subscribers directly and republishes the event
// on the backplane for the subscribers other instances hold. A backplane
// failure degrades to local-only delivery; it never blocks the local fan-out.
type Redis struct {
	local      *InMemory
	client     redisClient
	instanceID string
	cancel     context.CancelFunc
	pubsub     *redis.PubSub
	done       chan struct{}
}

// NewRedis creates a stream with a Redis pub/sub backplane and starts its
// listener. The listener runs until Close is called.
func NewRedis(ctx context.Context, client redisClient) *Redis {
	ctx, cancel := context.WithCancel(ctx)
	r := &Redis{
		local:      NewInMemory(),
		client:     client,
		instanceID: uuid.NewString(),
		cancel:     cancel,
		pubsub:     client.PSubscribe(ctx, channelPrefix+"*"),
		done:       make(chan struct{}),
	}
	go r.listen(ctx)
	return r
}

// Close stops the backplane listener. Local subscriptions remain usable.
func (r *Redis) Close() {
	r.cancel()
	if err := r.pubsub.Close(); err != nil {
		log.Errorf("unable to close the backplane subscription: %s", err)
	}
	<-r.done
}

// listen delivers backplane messages to local subscribers until the stream is
// closed.
func (r *Redis) listen(ctx context.Context) {
	defer close(r.done)
	messages := r.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			r.handleMessage([]byte(message.Payload))
		}
	}
}

// handleMessage delivers one backplane message to local subscribers, skipping
// messages this instance published itself.
func (r *Redis) handleMessage(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		log.Errorf("unable to parse a backplane message: %s", err)
		return
	}
	if env.Origin == r.instanceID || env.UserID == "" {
		return
	}
	r.local.fanOut(env.UserID, env.Event)
}

// publish delivers an event locally and republishes it on the backplane.
func (r *Redis) publish(userID string, event Event) {

	// Local subscribers are served first; the backplane can't take them away.
	r.local.fanOut(userID, event)

	// Republish for the subscribers held by other instances.
	payload, err := json.Marshal(envelope{Origin: r.instanceID, UserID: userID, Event: event})
	if err != nil {
		log.Errorf("unable to marshal a backplane message for %s: %s", userID, err)
		return
	}
	channel := fmt.Sprintf("%s%s", channelPrefix, userID)
	if err := r.client.Publish(context.Background(), channel, payload).Err(); err != nil {
		log.Errorf("unable to publish to the backplane for %s, delivery was local only: %s", userID, err)
	}
}

// Subscribe registers a callback for the user's events on this instance.
func (r *Redis) Subscribe(userID string, callback Callback) func() {
	return r.local.Subscribe(userID, callback)
}

// SubscriberCount returns the number of live subscriptions for a user on this
// instance.
func (r *Redis) SubscriberCount(userID string) int {
	return r.local.SubscriberCount(userID)
}

// Publish announces a new notification to the user's subscribers on every
// instance.
func (r *Redis) Publish(userID string, notification *model.Notification) {
	r.publish(userID, Event{Type: EventTypeNew, Notification: notification})
}

// PublishRead announces that a notification was marked as read.
func (r *Redis) PublishRead(userID, notificationID string) {
	r.publish(userID, Event{Type: EventTypeRead, NotificationID: notificationID})
}

// PublishArchived announces that a notification was archived.
func (r *Redis) PublishArchived(userID, notificationID string) {
	r.publish(userID, Event{Type: EventTypeArchived, NotificationID: notificationID})
}

// PublishRefresh asks the user's clients on every instance to refetch the
// inbox.
func (r *Redis) PublishRefresh(userID string) {
	r.publish(userID, Event{Type: EventTypeRefresh})
}
