package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/cyverse-de/notification-hub/common"
	"github.com/pkg/errors"
	"github.com/resend/resend-go/v3"
)

// emailSender is the subset of the Resend client used by the mailer,
// extracted so tests can substitute their own implementation.
type emailSender interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Resend sends templated emails through the Resend API. Templates are HTML
// files in the configured template directory, each defining a "subject" and a
// "body" template.
type Resend struct {
	emails      emailSender
	from        string
	templateDir string
}

// NewResend creates a mailer backed by the Resend API. The sender address
// should include a display name, for example "Acme <no-reply@acme.example>".
func NewResend(apiKey, from, templateDir string) *Resend {
	client := resend.NewClient(apiKey)
	return &Resend{
		emails:      client.Emails,
		from:        from,
		templateDir: templateDir,
	}
}

// templatePath picks the template file for a template name and locale. A
// locale-specific file takes precedence when it exists.
func (r *Resend) templatePath(templateName, locale string) string {
	if locale != "" {
		localized := filepath.Join(r.templateDir, fmt.Sprintf("%s.%s.html", templateName, locale))
		if _, err := os.Stat(localized); err == nil {
			return localized
		}
	}
	return filepath.Join(r.templateDir, fmt.Sprintf("%s.html", templateName))
}

// render executes one named template from the template file.
func render(tmpl *template.Template, name string, data map[string]interface{}) (string, error) {
	var buffer bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buffer, name, data); err != nil {
		return "", err
	}
	return buffer.String(), nil
}

// SendTemplateEmail renders the named template and sends the result.
func (r *Resend) SendTemplateEmail(ctx context.Context, request Request) (string, error) {
	wrapMsg := fmt.Sprintf("unable to send the %s email", request.TemplateName)

	// Validate the recipient address before doing anything else.
	if err := common.ValidateEmailAddress(request.To); err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	// Parse the template file for the requested locale.
	tmpl, err := template.ParseFiles(r.templatePath(request.TemplateName, request.Locale))
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	// Render the subject and body.
	subject, err := render(tmpl, "subject", request.Data)
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}
	body, err := render(tmpl, "body", request.Data)
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	// Send the email.
	response, err := r.emails.Send(&resend.SendEmailRequest{
		From:    r.from,
		To:      []string{request.To},
		Subject: subject,
		Html:    body,
	})
	if err != nil {
		return "", errors.Wrap(err, wrapMsg)
	}

	return response.Id, nil
}
