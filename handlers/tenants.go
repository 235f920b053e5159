package handlers

import (
	"context"
	"fmt"

	"github.com/cyverse-de/notification-hub/events"
	"github.com/cyverse-de/notification-hub/mailer"
	"github.com/cyverse-de/notification-hub/model"
	"github.com/cyverse-de/notification-hub/notify"
)

// InviteSent notifies an invitee who already has an account and sends the
// invitation email. The email goes out whether or not the invitee has an
// account yet; it may be their first contact with the tenant.
func (h *Handlers) InviteSent(ctx context.Context, event events.InviteSent) error {

	// An invitee with an account gets an inbox entry.
	var notification *model.Notification
	if event.InviteeUserID != "" {
		var err error
		notification, err = h.deps.Dispatcher.Notify(ctx, &notify.Request{
			RecipientUserID: event.InviteeUserID,
			TenantID:        event.TenantID,
			Type:            model.TypeMemberInvited,
			Title:           fmt.Sprintf("You're invited to join %s", event.TenantName),
			Body:            fmt.Sprintf("%s invited you to join %s.", event.InviterName, event.TenantName),
			DeepLink:        "/invites",
			Data:            map[string]interface{}{"tenantId": event.TenantID},
			ActorUserID:     event.InviterUserID,
		})
		if err != nil {
			return err
		}
		h.publish(notification)
	}

	// Send the invitation email.
	h.sendEmail(ctx, event.InviteeUserID, notification, mailer.Request{
		TemplateName: "member-invite",
		To:           event.InviteeEmail,
		Data: map[string]interface{}{
			"inviterName": event.InviterName,
			"tenantName":  event.TenantName,
		},
		Locale: event.Locale,
	})
	return nil
}

// InviteAccepted tells the inviter that their invitation was accepted.
func (h *Handlers) InviteAccepted(ctx context.Context, event events.InviteAccepted) error {
	notification, err := h.deps.Dispatcher.Notify(ctx, &notify.Request{
		RecipientUserID: event.InviterUserID,
		TenantID:        event.TenantID,
		Type:            model.TypeMemberJoined,
		Title:           "Invitation accepted",
		Body:            fmt.Sprintf("%s accepted your invitation to %s.", event.UserName, event.TenantName),
		DeepLink:        fmt.Sprintf("/nest/%s", event.TenantID),
		Data:            map[string]interface{}{"tenantId": event.TenantID, "userId": event.UserID},
		ActorUserID:     event.UserID,
	})
	if err != nil {
		return err
	}
	h.publish(notification)
	return nil
}

// TenantCreated congratulates the owner on their new tenant and registers the
// tenant as a push topic. Topic registration is optional infrastructure, so a
// provider outage never blocks the notification.
func (h *Handlers) TenantCreated(ctx context.Context, event events.TenantCreated) error {

	// Register the tenant as a push topic and subscribe the owner to it.
	topicID := fmt.Sprintf("tenant-%s", event.TenantID)
	err := h.deps.Provider.CreateTopic(ctx, topicID, event.TenantName)
	if err != nil {
		log.Errorf("unable to create the push topic for tenant %s: %s", event.TenantID, err)
	} else if err = h.deps.Provider.AddUserToTopic(ctx, topicID, event.OwnerUserID); err != nil {
		log.Errorf("unable to subscribe %s to the push topic for tenant %s: %s", event.OwnerUserID, event.TenantID, err)
	}

	// Tell the owner about their new tenant.
	notification, err := h.deps.Dispatcher.Notify(ctx, &notify.Request{
		RecipientUserID: event.OwnerUserID,
		TenantID:        event.TenantID,
		Type:            model.TypeTenantCreated,
		Title:           fmt.Sprintf("%s is ready", event.TenantName),
		Body:            fmt.Sprintf("Your new nest %s has been created. Invite your team to get started.", event.TenantName),
		DeepLink:        fmt.Sprintf("/nest/%s", event.TenantID),
		Data:            map[string]interface{}{"tenantId": event.TenantID},
		ActorUserID:     event.OwnerUserID,
	})
	if err != nil {
		return err
	}
	h.publish(notification)
	return nil
}

// TenantMemberJoined tells the tenant owner about a new member. The owner
// joining their own tenant is not news to them.
func (h *Handlers) TenantMemberJoined(ctx context.Context, event events.TenantMemberJoined) error {
	if event.UserID == event.OwnerUserID {
		return nil
	}

	notification, err := h.deps.Dispatcher.Notify(ctx, &notify.Request{
		RecipientUserID: event.OwnerUserID,
		TenantID:        event.TenantID,
		Type:            model.TypeMemberJoined,
		Title:           "New member",
		Body:            fmt.Sprintf("%s joined %s.", event.UserName, event.TenantName),
		DeepLink:        fmt.Sprintf("/nest/%s/members", event.TenantID),
		Data:            map[string]interface{}{"tenantId": event.TenantID, "userId": event.UserID},
		ActorUserID:     event.UserID,
	})
	if err != nil {
		return err
	}
	h.publish(notification)
	return nil
}

// TenantSettingsChanged tells the tenant owner that a member changed the
// tenant settings, unless the owner made the change themselves.
func (h *Handlers) TenantSettingsChanged(ctx context.Context, event events.TenantSettingsChanged) error {
	if event.ActorUserID == event.OwnerUserID {
		return nil
	}

	notification, err := h.deps.Dispatcher.Notify(ctx, &notify.Request{
		RecipientUserID: event.OwnerUserID,
		TenantID:        event.TenantID,
		Type:            model.TypeSettingsChanged,
		Title:           "Settings updated",
		Body:            fmt.Sprintf("%s changed the settings for %s.", event.ActorName, event.TenantName),
		DeepLink:        fmt.Sprintf("/nest/%s/settings", event.TenantID),
		Data:            map[string]interface{}{"tenantId": event.TenantID},
		ActorUserID:     event.ActorUserID,
	})
	if err != nil {
		return err
	}
	h.publish(notification)
	return nil
}
