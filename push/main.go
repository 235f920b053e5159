// Package push defines the boundary to the external push provider. The
// provider delivers in-app pushes to a user's registered devices and manages
// the device registrations and topic subscriptions behind them.
package push

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNoCredentials indicates that a user has no registered devices. Callers
// treat it as a deliberate skip rather than a delivery failure.
var ErrNoCredentials = errors.New("no push credentials registered for the user")

// Content is the renderable payload of a push message.
type Content struct {
	Title    string
	Body     string
	DeepLink string
	Data     map[string]string
}

// SubscriberProfile is the profile information registered with the provider
// when a user is identified.
type SubscriberProfile struct {
	Email string
	Name  string
}

// DeviceInfo identifies one device registration for push delivery.
type DeviceInfo struct {
	Platform string
	Token    string
}

// Provider is the capability set consumed from the external push provider.
// Calls may fail when the provider is unreachable; callers treat those
// failures as non-fatal.
type Provider interface {
	// IdentifySubscriber registers or updates the user's profile with the provider.
	IdentifySubscriber(ctx context.Context, userID string, profile SubscriberProfile) error

	// SendInApp delivers a push message to all of the user's registered
	// devices, returning the provider's message identifier. A user with no
	// registered devices returns ErrNoCredentials.
	SendInApp(ctx context.Context, userID string, content Content) (string, error)

	// SetCredentials registers a device for push delivery.
	SetCredentials(ctx context.Context, userID string, device DeviceInfo) error

	// RemoveCredentials removes all of the user's device registrations for one platform.
	RemoveCredentials(ctx context.Context, userID, platform string) error

	// CreateTopic registers a broadcast topic with the provider.
	CreateTopic(ctx context.Context, topicID, name string) error

	// AddUserToTopic subscribes all of the user's registered devices to a topic.
	AddUserToTopic(ctx context.Context, topicID, userID string) error
}

// Noop is the provider used when no push provider is configured. Sends report
// ErrNoCredentials so that callers skip the push channel without recording
// failures.
type Noop struct{}

// NewNoop creates a new no-op push provider.
func NewNoop() *Noop {
	return &Noop{}
}

// IdentifySubscriber does nothing.
func (*Noop) IdentifySubscriber(_ context.Context, _ string, _ SubscriberProfile) error {
	return nil
}

// SendInApp reports that there is nothing to deliver to.
func (*Noop) SendInApp(_ context.Context, _ string, _ Content) (string, error) {
	return "", ErrNoCredentials
}

// SetCredentials does nothing.
func (*Noop) SetCredentials(_ context.Context, _ string, _ DeviceInfo) error {
	return nil
}

// RemoveCredentials does nothing.
func (*Noop) RemoveCredentials(_ context.Context, _, _ string) error {
	return nil
}

// CreateTopic does nothing.
func (*Noop) CreateTopic(_ context.Context, _, _ string) error {
	return nil
}

// AddUserToTopic does nothing.
func (*Noop) AddUserToTopic(_ context.Context, _, _ string) error {
	return nil
}
