package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"emailfilter/internal/domain/mail"
)

// MessageCreator is the part of the Twilio REST client SMSNotifier uses.
type MessageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// SMSNotifier texts the run summary through Twilio.
type SMSNotifier struct {
	api  MessageCreator
	from string
	to   string
}

func NewSMSNotifier(accountSid, authToken, from, to string) (*SMSNotifier, error) {
	if accountSid == "" || authToken == "" {
		return nil, errors.New("account sid and auth token cannot be empty")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSid,
		Password: authToken,
	})
	return newSMSNotifier(client.Api, from, to)
}

func newSMSNotifier(api MessageCreator, from, to string) (*SMSNotifier, error) {
	if from == "" || to == "" {
		return nil, errors.New("sms from and to numbers are required")
	}
	return &SMSNotifier{api: api, from: from, to: to}, nil
}

func (n *SMSNotifier) Notify(_ context.Context, summary mail.RunSummary) error {
	params := &openapi.CreateMessageParams{}
	params.SetFrom(n.from)
	params.SetTo(n.to)
	params.SetBody(Text(summary))

	if _, err := n.api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send sms: %w", err)
	}
	return nil
}
