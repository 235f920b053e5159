// Package mailer defines the boundary to the external mail provider. Emails
// are a side channel triggered by notification handlers; a failed send is
// logged and recorded, never propagated to the business action that caused
// it.
package mailer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithFields(logrus.Fields{
	"service": "notification-hub",
	"art-id":  "notification-hub",
	"group":   "org.cyverse",
})

// ErrNotConfigured indicates that no mail provider is configured. Callers
// treat it as a deliberate skip rather than a delivery failure.
var ErrNotConfigured = errors.New("no mailer is configured")

// Request describes one templated email send.
type Request struct {
	TemplateName string
	To           string
	Data         map[string]interface{}
	Locale       string
}

// Mailer sends templated emails. SendTemplateEmail returns the provider's
// message identifier for the delivery audit log.
type Mailer interface {
	SendTemplateEmail(ctx context.Context, request Request) (string, error)
}

// Noop is the mailer used when no mail provider is configured.
type Noop struct{}

// NewNoop creates a new no-op mailer.
func NewNoop() *Noop {
	return &Noop{}
}

// SendTemplateEmail logs the dropped request and reports that no mailer is
// configured.
func (*Noop) SendTemplateEmail(_ context.Context, request Request) (string, error) {
	log.Infof("dropping the %s email to %s: no mailer is configured", request.TemplateName, request.To)
	return "", ErrNotConfigured
}
