package triage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	SubscriptionKey = "webhook-subscription"
	// DefaultSubscriptionTTL is just under the provider's three-day ceiling for mail resources.
	DefaultSubscriptionTTL = 60 * time.Hour
)

type SubscriptionConfig struct {
	NotificationURL string
	ClientState     string
	TTL             time.Duration
	JunkFolderNames []string
	Key             string
}

// SubscriptionManager keeps one change-notification subscription on the junk folder alive.
type SubscriptionManager struct {
	api    SubscriptionAPI
	source MailSource
	store  KeyValueStore
	cfg    SubscriptionConfig
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewSubscriptionManager(
	api SubscriptionAPI,
	source MailSource,
	store KeyValueStore,
	log *zap.SugaredLogger,
	cfg SubscriptionConfig,
) *SubscriptionManager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultSubscriptionTTL
	}
	if cfg.Key == "" {
		cfg.Key = SubscriptionKey
	}
	return &SubscriptionManager{
		api:    api,
		source: source,
		store:  store,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// Create subscribes notificationURL to new messages in the junk folder and
// stores the subscription id. An empty notificationURL falls back to the
// configured one; providers that push elsewhere (Gmail) accept none.
func (m *SubscriptionManager) Create(ctx context.Context, notificationURL string) (Subscription, error) {
	if notificationURL == "" {
		notificationURL = m.cfg.NotificationURL
	}
	if notificationURL != "" {
		if err := validateNotificationURL(notificationURL); err != nil {
			return Subscription{}, err
		}
	}

	folders, err := m.source.ListFolders(ctx)
	if err != nil {
		return Subscription{}, fmt.Errorf("list folders: %w", err)
	}
	junk, ok := FindJunkFolder(folders, m.cfg.JunkFolderNames)
	if !ok {
		return Subscription{}, &Error{Kind: FolderNotFound, Op: "create subscription"}
	}

	sub, err := m.api.CreateSubscription(ctx, SubscriptionRequest{
		FolderID:        junk.ID,
		NotificationURL: notificationURL,
		ClientState:     m.cfg.ClientState,
		ExpiresAt:       m.now().Add(m.cfg.TTL),
	})
	if err != nil {
		return Subscription{}, fmt.Errorf("create subscription: %w", err)
	}

	if err := m.store.Put(ctx, m.cfg.Key, []byte(sub.ID)); err != nil {
		return sub, fmt.Errorf("store subscription id: %w", err)
	}

	m.log.Infow("subscription created", "id", sub.ID, "resource", sub.Resource, "expires_at", sub.ExpiresAt)
	return sub, nil
}

// Renew extends the stored subscription. If the provider no longer knows it,
// a new one is created when a notification URL is configured.
func (m *SubscriptionManager) Renew(ctx context.Context) (Subscription, error) {
	raw, found, err := m.store.Get(ctx, m.cfg.Key)
	if err != nil {
		return Subscription{}, fmt.Errorf("load subscription id: %w", err)
	}
	id := strings.TrimSpace(string(raw))
	if !found || id == "" {
		return Subscription{}, ErrNoSubscription
	}

	sub, err := m.api.RenewSubscription(ctx, id, m.now().Add(m.cfg.TTL))
	if errors.Is(err, ErrSubscriptionNotFound) && m.cfg.NotificationURL != "" {
		m.log.Warnw("subscription gone, creating a new one", "id", id)
		return m.Create(ctx, "")
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("renew subscription %s: %w", id, err)
	}

	m.log.Infow("subscription renewed", "id", sub.ID, "expires_at", sub.ExpiresAt)
	return sub, nil
}

func validateNotificationURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse notification url: %w", err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("notification url must be an absolute https url: %q", raw)
	}
	return nil
}
