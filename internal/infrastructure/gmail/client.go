package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"emailfilter/internal/application/triage"
	"emailfilter/internal/domain/mail"
)

const (
	user = "me"

	// spamLabelID is Gmail's junk folder. It is presented as "Junk" so the
	// default junk folder names match it.
	spamLabelID   = "SPAM"
	spamLabelName = "Junk"
)

// Client implements Gmail operations (adapter)
type Client struct {
	Srv   *gmail.Service
	topic string
	log   *zap.SugaredLogger
}

func NewService(ctx context.Context, ts oauth2.TokenSource) (*gmail.Service, error) {
	srv, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("cannot create gmail service: %w", err)
	}
	return srv, nil
}

// NewClient creates a Gmail client. topic is the Pub/Sub topic watches publish to.
func NewClient(srv *gmail.Service, topic string, log *zap.SugaredLogger) *Client {
	return &Client{Srv: srv, topic: topic, log: log}
}

func (c *Client) ListFolders(ctx context.Context) ([]mail.Folder, error) {
	list, err := c.Srv.Users.Labels.List(user).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail list labels: %w", err)
	}

	folders := make([]mail.Folder, 0, len(list.Labels))
	for _, l := range list.Labels {
		folders = append(folders, toFolder(l))
	}
	return folders, nil
}

func (c *Client) ListMessages(ctx context.Context, folderID string, limit int) ([]mail.Message, error) {
	resp, err := c.Srv.Users.Messages.List(user).
		LabelIds(folderID).
		IncludeSpamTrash(true).
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	msgs := make([]mail.Message, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		m, err := c.Srv.Users.Messages.Get(user, ref.Id).
			Format("metadata").
			MetadataHeaders("From", "Subject").
			Context(ctx).
			Do()
		if err != nil {
			return nil, fmt.Errorf("gmail get message %s: %w", ref.Id, err)
		}
		msgs = append(msgs, toMessage(m))
	}
	return msgs, nil
}

// DeleteMessage permanently deletes, bypassing Trash. A message that is
// already gone counts as deleted.
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	err := c.Srv.Users.Messages.Delete(user, messageID).Context(ctx).Do()
	if isNotFound(err) {
		c.log.Debugw("message already gone", "id", messageID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("gmail delete message: %w", err)
	}
	return nil
}

// CreateSubscription starts a watch on the folder's label. Gmail pushes to
// the Pub/Sub topic, so the notification URL is unused. The label id serves
// as the subscription id because renewing means re-issuing the watch.
func (c *Client) CreateSubscription(ctx context.Context, req triage.SubscriptionRequest) (triage.Subscription, error) {
	return c.watch(ctx, req.FolderID)
}

// RenewSubscription re-issues the watch. Gmail decides the expiry.
func (c *Client) RenewSubscription(ctx context.Context, id string, _ time.Time) (triage.Subscription, error) {
	return c.watch(ctx, id)
}

func (c *Client) watch(ctx context.Context, labelID string) (triage.Subscription, error) {
	if c.topic == "" {
		return triage.Subscription{}, errors.New("gmail watch needs a pub/sub topic")
	}

	resp, err := c.Srv.Users.Watch(user, &gmail.WatchRequest{
		TopicName:           c.topic,
		LabelIds:            []string{labelID},
		LabelFilterBehavior: "include",
	}).Context(ctx).Do()
	if err != nil {
		return triage.Subscription{}, fmt.Errorf("gmail watch: %w", err)
	}

	return triage.Subscription{
		ID:              labelID,
		Resource:        "label:" + labelID,
		NotificationURL: c.topic,
		ExpiresAt:       time.UnixMilli(resp.Expiration).UTC(),
	}, nil
}

func toFolder(l *gmail.Label) mail.Folder {
	if l.Id == spamLabelID {
		return mail.Folder{ID: l.Id, DisplayName: spamLabelName}
	}
	return mail.Folder{ID: l.Id, DisplayName: l.Name}
}

func toMessage(msg *gmail.Message) mail.Message {
	return mail.Message{
		ID:         msg.Id,
		Sender:     extractHeader(msg, "From"),
		Subject:    extractHeader(msg, "Subject"),
		Preview:    msg.Snippet,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}
}

func extractHeader(msg *gmail.Message, name string) string {
	if msg.Payload == nil {
		return ""
	}
	for _, h := range msg.Payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}
