package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"emailfilter/internal/application/triage"
)

const changeTypeCreated = "created"

func (c *Client) CreateSubscription(ctx context.Context, req triage.SubscriptionRequest) (triage.Subscription, error) {
	if req.NotificationURL == "" {
		return triage.Subscription{}, errors.New("graph subscriptions need a notification url")
	}

	resource := fmt.Sprintf("me/mailFolders('%s')/messages", req.FolderID)
	changeType := changeTypeCreated

	sub := models.NewSubscription()
	sub.SetChangeType(&changeType)
	sub.SetNotificationUrl(&req.NotificationURL)
	sub.SetResource(&resource)
	sub.SetExpirationDateTime(timePtr(req.ExpiresAt.UTC()))
	if req.ClientState != "" {
		sub.SetClientState(&req.ClientState)
	}

	created, err := c.client.Subscriptions().Post(ctx, sub, nil)
	if err != nil {
		return triage.Subscription{}, fmt.Errorf("post subscription: %w", describe(err))
	}
	return toSubscription(created), nil
}

func (c *Client) RenewSubscription(ctx context.Context, id string, expiresAt time.Time) (triage.Subscription, error) {
	patch := models.NewSubscription()
	patch.SetExpirationDateTime(timePtr(expiresAt.UTC()))

	updated, err := c.client.Subscriptions().BySubscriptionId(id).Patch(ctx, patch, nil)
	if err != nil {
		err = describe(err)
		var se *StatusError
		if errors.As(err, &se) && se.Status == http.StatusNotFound {
			return triage.Subscription{}, fmt.Errorf("%w: %v", triage.ErrSubscriptionNotFound, err)
		}
		return triage.Subscription{}, fmt.Errorf("patch subscription: %w", err)
	}
	return toSubscription(updated), nil
}

func toSubscription(s models.Subscriptionable) triage.Subscription {
	if s == nil {
		return triage.Subscription{}
	}
	sub := triage.Subscription{
		ID:              deref(s.GetId()),
		Resource:        deref(s.GetResource()),
		NotificationURL: deref(s.GetNotificationUrl()),
	}
	if t := s.GetExpirationDateTime(); t != nil {
		sub.ExpiresAt = t.UTC()
	}
	return sub
}
