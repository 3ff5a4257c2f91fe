package notify

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/resend/resend-go/v2"

	"emailfilter/internal/domain/mail"
)

// EmailSender is the part of the Resend client EmailNotifier uses.
type EmailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// EmailNotifier mails the run summary through Resend.
type EmailNotifier struct {
	emails EmailSender
	from   string
	to     []string
}

func NewEmailNotifier(apiKey, from string, to []string) (*EmailNotifier, error) {
	if apiKey == "" {
		return nil, errors.New("resend api key is required")
	}
	return newEmailNotifier(resend.NewClient(apiKey).Emails, from, to)
}

func newEmailNotifier(emails EmailSender, from string, to []string) (*EmailNotifier, error) {
	if from == "" || len(to) == 0 {
		return nil, errors.New("alert email from and to are required")
	}
	return &EmailNotifier{emails: emails, from: from, to: to}, nil
}

var reportTmpl = template.Must(template.New("report").Parse(`<p>{{.Text}}</p>
{{- if .Failed}}
<p>Could not delete:</p>
<ul>{{range .Failed}}<li>{{.MessageID}}: {{.Err}}</li>{{end}}</ul>
{{- end}}`))

func (n *EmailNotifier) Notify(ctx context.Context, summary mail.RunSummary) error {
	var failed []mail.DeletionOutcome
	for _, o := range summary.Outcomes {
		if !o.Succeeded() {
			failed = append(failed, o)
		}
	}

	var html strings.Builder
	if err := reportTmpl.Execute(&html, struct {
		Text   string
		Failed []mail.DeletionOutcome
	}{Text(summary), failed}); err != nil {
		return fmt.Errorf("render alert email: %w", err)
	}

	_, err := n.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      n.to,
		Subject: subject(summary),
		Text:    Text(summary),
		Html:    html.String(),
	})
	if err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}
	return nil
}

func subject(summary mail.RunSummary) string {
	if summary.DeleteFailed > 0 {
		return fmt.Sprintf("Junk filter deleted %d messages, %d failed", summary.Deleted, summary.DeleteFailed)
	}
	return fmt.Sprintf("Junk filter deleted %d messages", summary.Deleted)
}
