package push

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/cyverse-de/notification-hub/db"
	"github.com/cyverse-de/notification-hub/model"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

var log = logrus.WithFields(logrus.Fields{
	"service": "notification-hub",
	"art-id":  "notification-hub",
	"group":   "org.cyverse",
})

// fcmSender is the subset of the Firebase messaging client used by the FCM
// provider, extracted so tests can substitute their own implementation.
type fcmSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// FCM delivers pushes through Firebase Cloud Messaging. Device registrations
// and subscriber profiles are kept in the notification database.
type FCM struct {
	sender   fcmSender
	database *db.Client
}

// NewFCM creates a push provider backed by Firebase Cloud Messaging, using
// the service account credentials stored at the given path.
func NewFCM(ctx context.Context, credentialsFile string, database *db.Client) (*FCM, error) {
	wrapMsg := "unable to initialize the FCM push provider"

	// Initialize the Firebase app and obtain a messaging client from it.
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	return &FCM{sender: client, database: database}, nil
}

// IdentifySubscriber records the user's profile so that it can be attached to
// future device registrations.
func (f *FCM) IdentifySubscriber(ctx context.Context, userID string, profile SubscriberProfile) error {
	wrapMsg := "unable to identify the push subscriber"

	// Begin a database transaction.
	tx, err := f.database.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	defer f.database.Rollback(tx) // nolint:errcheck

	// Store the subscriber profile.
	err = f.database.SavePushSubscriber(ctx, tx, userID, profile.Email, profile.Name)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Commit the transaction.
	err = f.database.Commit(tx)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// SetCredentials registers a device token for push delivery.
func (f *FCM) SetCredentials(ctx context.Context, userID string, device DeviceInfo) error {
	wrapMsg := "unable to set the push credentials"

	// Begin a database transaction.
	tx, err := f.database.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	defer f.database.Rollback(tx) // nolint:errcheck

	// Store the device registration.
	credential := &model.PushCredential{UserID: userID, Platform: device.Platform, Token: device.Token}
	err = f.database.SavePushCredential(ctx, tx, credential)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Commit the transaction.
	err = f.database.Commit(tx)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// RemoveCredentials removes all of the user's device registrations for one
// platform.
func (f *FCM) RemoveCredentials(ctx context.Context, userID, platform string) error {
	wrapMsg := "unable to remove the push credentials"

	// Begin a database transaction.
	tx, err := f.database.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	defer f.database.Rollback(tx) // nolint:errcheck

	// Remove the device registrations.
	_, err = f.database.DeletePushCredentials(ctx, tx, userID, platform)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	// Commit the transaction.
	err = f.database.Commit(tx)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	return nil
}

// listTokens looks up the user's registered device tokens.
func (f *FCM) listTokens(ctx context.Context, userID string) ([]string, error) {

	// Begin a database transaction.
	tx, err := f.database.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer f.database.Rollback(tx) // nolint:errcheck

	// Look up the tokens.
	tokens, err := f.database.ListPushTokens(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	// Commit the transaction.
	err = f.database.Commit(tx)
	if err != nil {
		return nil, err
	}

	return tokens, nil
}

// message builds the FCM message for one device token.
func message(token string, content Content) *messaging.Message {
	data := make(map[string]string, len(content.Data)+1)
	for key, value := range content.Data {
		data[key] = value
	}
	if content.DeepLink != "" {
		data["deepLink"] = content.DeepLink
	}
	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: content.Title,
			Body:  content.Body,
		},
		Data: data,
	}
}

// SendInApp delivers a push message to each of the user's registered devices.
// The message identifier of the first successful send is returned. Delivery
// counts as failed only if every device send fails.
func (f *FCM) SendInApp(ctx context.Context, userID string, content Content) (string, error) {
	wrapMsg := "unable to send the push message"

	// Look up the user's registered device tokens.
	tokens, err := f.listTokens(ctx, userID)
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}
	if len(tokens) == 0 {
		return "", ErrNoCredentials
	}

	// Send the message to each device, keeping the first message ID.
	var messageID string
	var sendErrs []error
	for _, token := range tokens {
		id, err := f.sender.Send(ctx, message(token, content))
		if err != nil {
			log.Errorf("unable to send a push message to one of the devices belonging to %s: %s", userID, err)
			sendErrs = append(sendErrs, err)
			continue
		}
		if messageID == "" {
			messageID = id
		}
	}

	// The send only counts as failed if no device received it.
	if len(sendErrs) == len(tokens) {
		return "", errors.Wrap(sendErrs[0], wrapMsg)
	}

	return messageID, nil
}

// CreateTopic registers a broadcast topic. FCM creates topics implicitly on
// first subscription, so there is nothing to send to the provider here.
func (f *FCM) CreateTopic(_ context.Context, topicID, name string) error {
	log.Infof("registered the push topic %s (%s)", topicID, name)
	return nil
}

// AddUserToTopic subscribes all of the user's registered devices to a topic.
func (f *FCM) AddUserToTopic(ctx context.Context, topicID, userID string) error {
	wrapMsg := "unable to add the user to the push topic"

	// Look up the user's registered device tokens.
	tokens, err := f.listTokens(ctx, userID)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if len(tokens) == 0 {
		return ErrNoCredentials
	}

	// Subscribe the devices to the topic.
	response, err := f.sender.SubscribeToTopic(ctx, tokens, topicID)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	if response.FailureCount > 0 {
		log.Errorf("%d of %d devices belonging to %s could not be subscribed to %s",
			response.FailureCount, len(tokens), userID, topicID)
	}

	return nil
}
