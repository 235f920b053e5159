package handlers

import (
	"context"
	"fmt"

	"github.com/cyverse-de/notification-hub/events"
	"github.com/cyverse-de/notification-hub/mailer"
	"github.com/cyverse-de/notification-hub/model"
	"github.com/cyverse-de/notification-hub/notify"
)

// SubscriptionActivated tells the tenant owner that their subscription is
// active.
func (h *Handlers) SubscriptionActivated(ctx context.Context, event events.SubscriptionActivated) error {
	notification, err := h.deps.Dispatcher.Notify(ctx, &notify.Request{
		RecipientUserID: event.OwnerUserID,
		TenantID:        event.TenantID,
		Type:            model.TypeSubscriptionActive,
		Title:           "Subscription active",
		Body:            fmt.Sprintf("The %s plan is now active for %s.", event.PlanName, event.TenantName),
		DeepLink:        fmt.Sprintf("/nest/%s/billing", event.TenantID),
		Data:            map[string]interface{}{"tenantId": event.TenantID, "planName": event.PlanName},
	})
	if err != nil {
		return err
	}
	h.publish(notification)
	return nil
}

// SubscriptionPaymentFailed warns the tenant owner about a failed payment in
// their inbox and by email.
func (h *Handlers) SubscriptionPaymentFailed(ctx context.Context, event events.SubscriptionPaymentFailed) error {
	notification, err := h.deps.Dispatcher.Notify(ctx, &notify.Request{
		RecipientUserID: event.OwnerUserID,
		TenantID:        event.TenantID,
		Type:            model.TypePaymentFailed,
		Title:           "Payment failed",
		Body:            fmt.Sprintf("A payment for the %s plan of %s failed. Please update your payment method.", event.PlanName, event.TenantName),
		DeepLink:        fmt.Sprintf("/nest/%s/billing", event.TenantID),
		Data:            map[string]interface{}{"tenantId": event.TenantID, "planName": event.PlanName},
	})
	if err != nil {
		return err
	}
	h.publish(notification)

	// Billing problems are urgent enough to warrant an email as well.
	h.sendEmail(ctx, event.OwnerUserID, notification, mailer.Request{
		TemplateName: "payment-failed",
		To:           event.OwnerEmail,
		Data: map[string]interface{}{
			"tenantName": event.TenantName,
			"planName":   event.PlanName,
		},
		Locale: event.Locale,
	})
	return nil
}

// SubscriptionTrialEnding reminds the tenant owner that their trial is about
// to end, in their inbox and by email.
func (h *Handlers) SubscriptionTrialEnding(ctx context.Context, event events.SubscriptionTrialEnding) error {
	notification, err := h.deps.Dispatcher.Notify(ctx, &notify.Request{
		RecipientUserID: event.OwnerUserID,
		TenantID:        event.TenantID,
		Type:            model.TypeTrialEnding,
		Title:           "Your trial is ending soon",
		Body:            fmt.Sprintf("The %s trial for %s ends in %d days.", event.PlanName, event.TenantName, event.DaysLeft),
		DeepLink:        fmt.Sprintf("/nest/%s/billing", event.TenantID),
		Data:            map[string]interface{}{"tenantId": event.TenantID, "daysLeft": event.DaysLeft},
	})
	if err != nil {
		return err
	}
	h.publish(notification)

	h.sendEmail(ctx, event.OwnerUserID, notification, mailer.Request{
		TemplateName: "trial-ending",
		To:           event.OwnerEmail,
		Data: map[string]interface{}{
			"tenantName": event.TenantName,
			"planName":   event.PlanName,
			"daysLeft":   event.DaysLeft,
		},
		Locale: event.Locale,
	})
	return nil
}

// SubscriptionCanceled tells the tenant owner that their subscription was
// canceled, in their inbox and by email.
func (h *Handlers) SubscriptionCanceled(ctx context.Context, event events.SubscriptionCanceled) error {
	notification, err := h.deps.Dispatcher.Notify(ctx, &notify.Request{
		RecipientUserID: event.OwnerUserID,
		TenantID:        event.TenantID,
		Type:            model.TypeSubscriptionCanceled,
		Title:           "Subscription canceled",
		Body:            fmt.Sprintf("The %s subscription for %s has been canceled.", event.PlanName, event.TenantName),
		DeepLink:        fmt.Sprintf("/nest/%s/billing", event.TenantID),
		Data:            map[string]interface{}{"tenantId": event.TenantID, "planName": event.PlanName},
	})
	if err != nil {
		return err
	}
	h.publish(notification)

	h.sendEmail(ctx, event.OwnerUserID, notification, mailer.Request{
		TemplateName: "subscription-canceled",
		To:           event.OwnerEmail,
		Data: map[string]interface{}{
			"tenantName": event.TenantName,
			"planName":   event.PlanName,
		},
		Locale: event.Locale,
	})
	return nil
}
