package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"emailfilter/internal/application/triage"
)

// gmailNotification is what a Gmail watch publishes.
type gmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Handler processes one decoded Pub/Sub message. A non-nil error nacks it.
type Handler func(ctx context.Context, notifications []triage.Notification) error

// Subscriber handles Pub/Sub messages
type Subscriber struct {
	client         *pubsub.Client
	subscriptionID string
	log            *zap.SugaredLogger

	mu           sync.Mutex
	processedIDs map[uint64]bool
}

// NewSubscriber creates a new Pub/Sub subscriber
func NewSubscriber(ctx context.Context, projectID, subscriptionID string, log *zap.SugaredLogger) (*Subscriber, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	return &Subscriber{
		client:         client,
		subscriptionID: subscriptionID,
		log:            log,
		processedIDs:   make(map[uint64]bool),
	}, nil
}

// Listen receives messages one at a time until ctx is cancelled. Runs share
// the seen-set, so they must not overlap.
func (s *Subscriber) Listen(ctx context.Context, handler Handler) error {
	sub := s.client.Subscription(s.subscriptionID)
	sub.ReceiveSettings.NumGoroutines = 1
	sub.ReceiveSettings.MaxOutstandingMessages = 1

	s.log.Infow("pub/sub listener started", "subscription", s.subscriptionID)

	return sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		s.receive(ctx, m.ID, m.Data, handler, m.Ack, m.Nack)
	})
}

func (s *Subscriber) receive(ctx context.Context, id string, data []byte, handler Handler, ack, nack func()) {
	notifications, historyID, err := decode(data)
	if err != nil {
		// Redelivery cannot fix a malformed payload.
		s.log.Warnw("dropping unparseable message", "id", id, "error", err, "data", string(data))
		ack()
		return
	}

	if historyID != 0 && s.processed(historyID) {
		s.log.Debugw("history id already processed", "history_id", historyID)
		ack()
		return
	}

	if err := handler(ctx, notifications); err != nil {
		s.log.Errorw("handler failed, message will be redelivered", "id", id, "error", err)
		nack()
		return
	}

	if historyID != 0 {
		s.markProcessed(historyID)
	}
	ack()
}

func (s *Subscriber) processed(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processedIDs[id]
}

func (s *Subscriber) markProcessed(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processedIDs[id] = true
}

// Close closes the Pub/Sub client
func (s *Subscriber) Close() error {
	return s.client.Close()
}

// decode accepts either a queued webhook batch or a Gmail watch
// notification. The latter becomes one "created" notification and also
// returns its history id.
func decode(data []byte) ([]triage.Notification, uint64, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, 0, fmt.Errorf("unmarshal notification: %w", err)
	}

	if _, ok := fields["value"]; ok {
		var batch triage.NotificationBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, 0, fmt.Errorf("unmarshal notification batch: %w", err)
		}
		return batch.Value, 0, nil
	}

	var n gmailNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, 0, fmt.Errorf("unmarshal gmail notification: %w", err)
	}
	if n.EmailAddress == "" && n.HistoryID == 0 {
		return nil, 0, fmt.Errorf("unrecognised notification")
	}
	return []triage.Notification{{
		ChangeType: "created",
		Resource:   n.EmailAddress,
	}}, n.HistoryID, nil
}
