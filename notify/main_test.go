package notify

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/cyverse-de/notification-hub/model"
	"github.com/cyverse-de/notification-hub/push"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

// mockDatabase is a hand-rolled stand-in for the database client.
type mockDatabase struct {
	savedNotifications  []*model.Notification
	savedDeliveries     []*model.Delivery
	preferences         *model.ChannelPreferences
	preferencesErr      error
	saveNotificationErr error
	saveDeliveryErr     error
	nextID              int
}

func (m *mockDatabase) Begin(ctx context.Context) (*sql.Tx, error) {
	return nil, nil
}

func (m *mockDatabase) Commit(tx *sql.Tx) error {
	return nil
}

func (m *mockDatabase) Rollback(tx *sql.Tx) error {
	return nil
}

func (m *mockDatabase) SaveNotification(ctx context.Context, tx *sql.Tx, notification *model.Notification) error {
	if m.saveNotificationErr != nil {
		return m.saveNotificationErr
	}
	m.nextID++
	notification.ID = fmt.Sprintf("notification-%d", m.nextID)
	notification.CreatedAt = time.Now()
	m.savedNotifications = append(m.savedNotifications, notification)
	return nil
}

func (m *mockDatabase) SaveDelivery(ctx context.Context, tx *sql.Tx, delivery *model.Delivery) error {
	if m.saveDeliveryErr != nil {
		return m.saveDeliveryErr
	}
	m.nextID++
	delivery.ID = fmt.Sprintf("delivery-%d", m.nextID)
	delivery.CreatedAt = time.Now()
	m.savedDeliveries = append(m.savedDeliveries, delivery)
	return nil
}

func (m *mockDatabase) GetChannelPreferences(ctx context.Context, tx *sql.Tx, userID string) (*model.ChannelPreferences, error) {
	if m.preferencesErr != nil {
		return nil, m.preferencesErr
	}
	if m.preferences != nil {
		return m.preferences, nil
	}
	return model.DefaultChannelPreferences(userID), nil
}

// fakeProvider records push attempts and returns a canned outcome.
type fakeProvider struct {
	push.Noop
	sentTo      []string
	sentContent []push.Content
	messageID   string
	sendErr     error
}

func (p *fakeProvider) SendInApp(ctx context.Context, userID string, content push.Content) (string, error) {
	p.sentTo = append(p.sentTo, userID)
	p.sentContent = append(p.sentContent, content)
	if p.sendErr != nil {
		return "", p.sendErr
	}
	return p.messageID, nil
}

func newTestDispatcher(database *mockDatabase, provider push.Provider) *Dispatcher {
	dispatcher := NewDispatcher(database, provider)
	dispatcher.now = func() time.Time {
		return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	}
	return dispatcher
}

func memberJoinedRequest() *Request {
	return &Request{
		RecipientUserID: "u1",
		TenantID:        "t1",
		Type:            model.TypeMemberJoined,
		Title:           "New team member",
		Body:            "Bob joined Acme",
		DeepLink:        "/nest/t1",
		Data:            map[string]interface{}{"tenantId": "t1"},
		ActorUserID:     "u2",
	}
}

func TestNotifyCreatesInboxEntryAndAuditsPush(t *testing.T) {
	assert := assert.New(t)
	database := &mockDatabase{}
	provider := &fakeProvider{messageID: "provider-123"}
	dispatcher := newTestDispatcher(database, provider)

	notification, err := dispatcher.Notify(context.Background(), memberJoinedRequest())
	assert.NoError(err)
	if !assert.NotNil(notification) {
		return
	}

	// The inbox entry is fully populated.
	assert.Equal("notification-1", notification.ID)
	assert.Equal("t1", notification.TenantID)
	assert.Equal("u1", notification.RecipientUserID)
	assert.Equal("u2", notification.ActorUserID)
	assert.Equal(model.TypeMemberJoined, notification.Type)
	assert.Equal("u2_member_joined_28508310", notification.BatchKey)
	assert.Len(database.savedNotifications, 1)

	// The push went to the recipient with the notification's content.
	if assert.Len(provider.sentTo, 1) {
		assert.Equal("u1", provider.sentTo[0])
		content := provider.sentContent[0]
		assert.Equal("New team member", content.Title)
		assert.Equal("Bob joined Acme", content.Body)
		assert.Equal("/nest/t1", content.DeepLink)
		assert.Equal("notification-1", content.Data["notificationId"])
		assert.Equal("member_joined", content.Data["type"])
		assert.Equal("t1", content.Data["tenantId"])
	}

	// The audit log records the successful attempt.
	if assert.Len(database.savedDeliveries, 1) {
		delivery := database.savedDeliveries[0]
		assert.Equal("notification-1", delivery.NotificationID)
		assert.Equal(model.ChannelPush, delivery.Channel)
		assert.Equal(model.StatusSent, delivery.Status)
		assert.Equal("provider-123", delivery.ProviderMessageID)
		assert.Empty(delivery.Error)
	}
}

func TestNotifyRecordsFailedPushDeliveries(t *testing.T) {
	assert := assert.New(t)
	database := &mockDatabase{}
	provider := &fakeProvider{sendErr: errors.New("the push service is unavailable")}
	dispatcher := newTestDispatcher(database, provider)

	// The notification is created even though every push attempt fails.
	notification, err := dispatcher.Notify(context.Background(), memberJoinedRequest())
	assert.NoError(err)
	if !assert.NotNil(notification) {
		return
	}
	assert.NotEmpty(notification.ID)

	// The failure is recorded in the audit log.
	if assert.Len(database.savedDeliveries, 1) {
		delivery := database.savedDeliveries[0]
		assert.Equal(notification.ID, delivery.NotificationID)
		assert.Equal(model.ChannelPush, delivery.Channel)
		assert.Equal(model.StatusFailed, delivery.Status)
		assert.Empty(delivery.ProviderMessageID)
		assert.Contains(delivery.Error, "the push service is unavailable")
	}
}

func TestNotifySkipsPushWhenDisabled(t *testing.T) {
	assert := assert.New(t)
	database := &mockDatabase{
		preferences: &model.ChannelPreferences{
			UserID:       "u1",
			InAppEnabled: true,
			PushEnabled:  false,
			EmailEnabled: true,
		},
	}
	provider := &fakeProvider{messageID: "provider-123"}
	dispatcher := newTestDispatcher(database, provider)

	// The inbox entry is created normally.
	notification, err := dispatcher.Notify(context.Background(), memberJoinedRequest())
	assert.NoError(err)
	assert.NotNil(notification)
	assert.Len(database.savedNotifications, 1)

	// The provider is never consulted and no audit record appears.
	assert.Empty(provider.sentTo)
	assert.Empty(database.savedDeliveries)
}

func TestNotifySkipsAuditWhenRecipientHasNoDevices(t *testing.T) {
	assert := assert.New(t)
	database := &mockDatabase{}
	provider := &fakeProvider{sendErr: push.ErrNoCredentials}
	dispatcher := newTestDispatcher(database, provider)

	// A recipient without registered devices is a skip, not a failure.
	notification, err := dispatcher.Notify(context.Background(), memberJoinedRequest())
	assert.NoError(err)
	assert.NotNil(notification)
	assert.Len(provider.sentTo, 1)
	assert.Empty(database.savedDeliveries)
}

func TestNotifyNormalizesTheSystemTenant(t *testing.T) {
	assert := assert.New(t)
	database := &mockDatabase{}
	provider := &fakeProvider{}
	dispatcher := newTestDispatcher(database, provider)

	request := &Request{
		RecipientUserID: "u1",
		Type:            model.TypeWelcome,
		Title:           "Welcome!",
		Body:            "Thanks for verifying your address.",
	}
	notification, err := dispatcher.Notify(context.Background(), request)
	assert.NoError(err)
	if !assert.NotNil(notification) {
		return
	}
	assert.Equal(model.SystemTenant, notification.TenantID)
	assert.Empty(notification.ActorUserID)
	assert.Equal("system_welcome_28508310", notification.BatchKey)
}

func TestNotifyPropagatesPersistenceFailures(t *testing.T) {
	assert := assert.New(t)
	database := &mockDatabase{saveNotificationErr: errors.New("connection refused")}
	provider := &fakeProvider{messageID: "provider-123"}
	dispatcher := newTestDispatcher(database, provider)

	// A failed inbox write is a hard failure and stops delivery entirely.
	notification, err := dispatcher.Notify(context.Background(), memberJoinedRequest())
	assert.Error(err)
	assert.Nil(notification)
	assert.Empty(provider.sentTo)
	assert.Empty(database.savedDeliveries)
}

func TestNotifyAppliesDefaultsWhenPreferenceLookupFails(t *testing.T) {
	assert := assert.New(t)
	database := &mockDatabase{preferencesErr: errors.New("connection reset")}
	provider := &fakeProvider{messageID: "provider-123"}
	dispatcher := newTestDispatcher(database, provider)

	// The default preferences enable push, so the attempt still happens.
	notification, err := dispatcher.Notify(context.Background(), memberJoinedRequest())
	assert.NoError(err)
	assert.NotNil(notification)
	assert.Len(provider.sentTo, 1)
	assert.Len(database.savedDeliveries, 1)
}

func TestNotifySurvivesAuditFailures(t *testing.T) {
	assert := assert.New(t)
	database := &mockDatabase{saveDeliveryErr: errors.New("disk full")}
	provider := &fakeProvider{messageID: "provider-123"}
	dispatcher := newTestDispatcher(database, provider)

	// Losing an audit record never fails the notification itself.
	notification, err := dispatcher.Notify(context.Background(), memberJoinedRequest())
	assert.NoError(err)
	assert.NotNil(notification)
	assert.Len(database.savedNotifications, 1)
}

func TestRecordDelivery(t *testing.T) {
	assert := assert.New(t)
	database := &mockDatabase{}
	dispatcher := newTestDispatcher(database, &fakeProvider{})

	err := dispatcher.RecordDelivery(context.Background(), &model.Delivery{
		NotificationID:    "notification-1",
		Channel:           model.ChannelEmail,
		Status:            model.StatusSent,
		ProviderMessageID: "email-123",
	})
	assert.NoError(err)
	if assert.Len(database.savedDeliveries, 1) {
		assert.Equal(model.ChannelEmail, database.savedDeliveries[0].Channel)
		assert.Equal("email-123", database.savedDeliveries[0].ProviderMessageID)
	}
}
