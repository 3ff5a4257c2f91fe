package pubsub

import (
	"context"

	"go.uber.org/zap"

	"emailfilter/internal/application/triage"
)

// Processor runs queued notifications through the pipeline.
type Processor interface {
	Process(ctx context.Context, notifications []triage.Notification) (triage.Result, error)
}

type Handler struct {
	processor Processor
	log       *zap.SugaredLogger
}

func NewHandler(processor Processor, log *zap.SugaredLogger) *Handler {
	return &Handler{processor: processor, log: log}
}

// HandleNotification returns the processing error so the message is redelivered.
func (h *Handler) HandleNotification(ctx context.Context, notifications []triage.Notification) error {
	if len(notifications) == 0 {
		h.log.Debugw("empty notification batch")
		return nil
	}

	res, err := h.processor.Process(ctx, notifications)
	if err != nil {
		h.log.Errorw("processing queued notifications failed", "count", len(notifications), "error", err)
		return err
	}

	h.log.Infow(res.Message, "processed", res.Processed, "deleted", res.Deleted)
	return nil
}
