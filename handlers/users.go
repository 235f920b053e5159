package handlers

import (
	"context"
	"fmt"

	"github.com/cyverse-de/notification-hub/events"
	"github.com/cyverse-de/notification-hub/model"
	"github.com/cyverse-de/notification-hub/notify"
	"github.com/cyverse-de/notification-hub/push"
)

// UserSignedUp deliberately creates no notification. Until the address is
// verified, the verification email is the only communication channel.
func (h *Handlers) UserSignedUp(ctx context.Context, event events.UserSignedUp) error {
	log.Debugf("ignoring the sign-up of %s until the address is verified", event.UserID)
	return nil
}

// UserVerified welcomes a user whose email address was just verified and
// registers them with the push provider so later sends can reach them.
func (h *Handlers) UserVerified(ctx context.Context, event events.UserVerified) error {

	// Identify the user with the push provider. This only primes the profile,
	// so a provider outage is not worth more than a log line.
	err := h.deps.Provider.IdentifySubscriber(ctx, event.UserID, push.SubscriberProfile{
		Email: event.Email,
		Name:  event.UserName,
	})
	if err != nil {
		log.Errorf("unable to identify %s with the push provider: %s", event.UserID, err)
	}

	// Welcome the user in their inbox.
	notification, err := h.deps.Dispatcher.Notify(ctx, &notify.Request{
		RecipientUserID: event.UserID,
		Type:            model.TypeWelcome,
		Title:           "Welcome!",
		Body:            fmt.Sprintf("Welcome, %s! Your account is ready to use.", event.UserName),
	})
	if err != nil {
		return err
	}
	h.publish(notification)
	return nil
}
