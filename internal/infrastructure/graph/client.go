// Package graph reads and deletes junk mail through Microsoft Graph.
package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	msgraphsdkgo "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	"go.uber.org/zap"

	"emailfilter/internal/domain/mail"
)

const folderPageSize = 100

// Client implements the mail source and subscription API on Microsoft Graph.
type Client struct {
	client *msgraphsdkgo.GraphServiceClient
	log    *zap.SugaredLogger
}

func NewClient(cred azcore.TokenCredential, scopes []string, log *zap.SugaredLogger) (*Client, error) {
	client, err := msgraphsdkgo.NewGraphServiceClientWithCredentials(cred, scopes)
	if err != nil {
		return nil, fmt.Errorf("create graph client: %w", err)
	}
	return &Client{client: client, log: log}, nil
}

func (c *Client) ListFolders(ctx context.Context) ([]mail.Folder, error) {
	top := int32(folderPageSize)
	resp, err := c.client.Me().MailFolders().Get(ctx, &users.ItemMailFoldersRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMailFoldersRequestBuilderGetQueryParameters{
			Select: []string{"id", "displayName"},
			Top:    &top,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list mail folders: %w", describe(err))
	}

	var folders []mail.Folder
	for _, f := range resp.GetValue() {
		folders = append(folders, mail.Folder{
			ID:          deref(f.GetId()),
			DisplayName: deref(f.GetDisplayName()),
		})
	}
	return folders, nil
}

func (c *Client) ListMessages(ctx context.Context, folderID string, limit int) ([]mail.Message, error) {
	top := int32(limit)
	resp, err := c.client.Me().MailFolders().ByMailFolderId(folderID).Messages().Get(ctx, &users.ItemMailFoldersItemMessagesRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMailFoldersItemMessagesRequestBuilderGetQueryParameters{
			Select:  []string{"id", "subject", "from", "bodyPreview", "receivedDateTime"},
			Top:     &top,
			Orderby: []string{"receivedDateTime desc"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", describe(err))
	}

	var msgs []mail.Message
	for _, m := range resp.GetValue() {
		msgs = append(msgs, toMessage(m))
	}
	return msgs, nil
}

// DeleteMessage permanently removes a message. A message that is already
// gone counts as deleted.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	err := c.client.Me().Messages().ByMessageId(messageID).Delete(ctx, nil)
	if err == nil {
		return nil
	}

	err = describe(err)
	var se *StatusError
	if errors.As(err, &se) && se.Status == http.StatusNotFound {
		c.log.Debugw("message already gone", "id", messageID)
		return nil
	}
	return err
}

func toMessage(m models.Messageable) mail.Message {
	msg := mail.Message{
		ID:      deref(m.GetId()),
		Subject: deref(m.GetSubject()),
		Preview: deref(m.GetBodyPreview()),
	}
	if from := m.GetFrom(); from != nil && from.GetEmailAddress() != nil {
		msg.Sender = deref(from.GetEmailAddress().GetAddress())
	}
	if t := m.GetReceivedDateTime(); t != nil {
		msg.ReceivedAt = t.UTC()
	}
	return msg
}

// StatusError carries the HTTP status of a failed Graph call.
type StatusError struct {
	Status  int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

func describe(err error) error {
	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) {
		return err
	}
	se := &StatusError{Status: odataErr.ResponseStatusCode, Err: err}
	if mainErr := odataErr.GetErrorEscaped(); mainErr != nil {
		se.Message = deref(mainErr.GetMessage())
	}
	return se
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func timePtr(t time.Time) *time.Time {
	return &t
}
