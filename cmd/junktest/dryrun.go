package main

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"emailfilter/internal/application/triage"
	"emailfilter/internal/domain/mail"
)

// dryRunSource lists mail for real and reports deletes instead of doing them.
type dryRunSource struct {
	triage.MailSource
	log *zap.SugaredLogger

	mu      sync.Mutex
	listed  map[string]mail.Message
	flagged []mail.Message
}

func newDryRunSource(src triage.MailSource, log *zap.SugaredLogger) *dryRunSource {
	return &dryRunSource{MailSource: src, log: log, listed: make(map[string]mail.Message)}
}

func (d *dryRunSource) ListMessages(ctx context.Context, folderID string, limit int) ([]mail.Message, error) {
	msgs, err := d.MailSource.ListMessages(ctx, folderID, limit)
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range msgs {
		d.listed[m.ID] = m
	}
	return msgs, err
}

func (d *dryRunSource) DeleteMessage(_ context.Context, messageID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	m := d.listed[messageID]
	if m.ID == "" {
		m.ID = messageID
	}
	d.flagged = append(d.flagged, m)
	d.log.Infow("would delete", "id", messageID, "from", m.Sender, "subject", m.Subject)
	return nil
}

// Flagged returns what the classifier marked for deletion, in delete order.
func (d *dryRunSource) Flagged() []mail.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]mail.Message(nil), d.flagged...)
}
