package triage

import (
	"context"
	"time"

	"emailfilter/internal/domain/mail"
)

type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

type MailSource interface {
	ListFolders(ctx context.Context) ([]mail.Folder, error)
	// ListMessages returns at most limit messages, newest first.
	ListMessages(ctx context.Context, folderID string, limit int) ([]mail.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

// Classifier returns verdicts keyed by index into batch.
type Classifier interface {
	Classify(ctx context.Context, batch []mail.Message) (mail.Verdicts, error)
}

type SeenSetStore interface {
	Load(ctx context.Context) (mail.SeenSet, error)
	Save(ctx context.Context, seen mail.SeenSet) error
}

type Notifier interface {
	Notify(ctx context.Context, summary mail.RunSummary) error
}

// Runner is what the dispatcher needs from the pipeline.
type Runner interface {
	Run(ctx context.Context, fetchLimit, classifyLimit int) (mail.RunSummary, error)
}

// Enqueuer hands accepted notifications to a queue instead of running inline.
type Enqueuer interface {
	Enqueue(ctx context.Context, notifications []Notification) error
}

// KeyValueStore is the persistence used by the subscription flow.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

type Subscription struct {
	ID              string
	Resource        string
	NotificationURL string
	ExpiresAt       time.Time
}

type SubscriptionRequest struct {
	FolderID        string
	NotificationURL string
	ClientState     string
	ExpiresAt       time.Time
}

// SubscriptionAPI creates and extends change-notification subscriptions.
// Renew returns ErrSubscriptionNotFound when the provider no longer knows the id.
type SubscriptionAPI interface {
	CreateSubscription(ctx context.Context, req SubscriptionRequest) (Subscription, error)
	RenewSubscription(ctx context.Context, id string, expiresAt time.Time) (Subscription, error)
}
