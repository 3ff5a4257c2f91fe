package triage

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

const (
	DefaultWebhookFetchLimit    = 5
	DefaultWebhookClassifyLimit = 5

	changeTypeCreated = "created"
)

// Notification is one entry of a change-notification delivery.
type Notification struct {
	ChangeType     string `json:"changeType"`
	Resource       string `json:"resource,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	ClientState    string `json:"clientState,omitempty"`
}

// NotificationBatch is the body shape {"value": [...]}.
type NotificationBatch struct {
	Value []Notification `json:"value"`
}

type Request struct {
	Query map[string]string
	Body  []byte
}

type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Result is the JSON body of a successful dispatch.
type Result struct {
	Message   string `json:"message"`
	Processed int    `json:"processed"`
	Deleted   int    `json:"deleted"`
}

type DispatcherConfig struct {
	FetchLimit    int
	ClassifyLimit int
	// ClientState, when set, must match each notification's clientState.
	ClientState string
	// Enqueuer switches the dispatcher to queued mode.
	Enqueuer Enqueuer
}

// Dispatcher turns webhook deliveries into pipeline runs.
type Dispatcher struct {
	runner Runner
	cfg    DispatcherConfig
	log    *zap.SugaredLogger
}

func NewDispatcher(runner Runner, log *zap.SugaredLogger, cfg DispatcherConfig) *Dispatcher {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultWebhookFetchLimit
	}
	if cfg.ClassifyLimit <= 0 {
		cfg.ClassifyLimit = DefaultWebhookClassifyLimit
	}
	return &Dispatcher{runner: runner, cfg: cfg, log: log}
}

// Handle always returns a response, including when processing panics.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Errorw("panic while handling webhook", "panic", r)
			resp = errorResponse(http.StatusInternalServerError, fmt.Errorf("internal error: %v", r))
		}
	}()

	// The subscription handshake wins over any body.
	if token, ok := req.Query["validationToken"]; ok {
		d.log.Infow("answering validation handshake")
		return Response{
			StatusCode:  http.StatusOK,
			ContentType: "text/plain",
			Body:        []byte(token),
		}
	}

	if len(bytes.TrimSpace(req.Body)) == 0 {
		return resultResponse(http.StatusOK, Result{Message: "No notifications"})
	}

	var batch NotificationBatch
	if err := json.Unmarshal(req.Body, &batch); err != nil {
		d.log.Warnw("malformed notification body", "error", err)
		return errorResponse(http.StatusBadRequest, fmt.Errorf("decode notifications: %w", err))
	}

	if len(batch.Value) == 0 {
		return resultResponse(http.StatusOK, Result{Message: "No notifications"})
	}

	accepted := d.accept(batch.Value)

	if d.cfg.Enqueuer != nil && len(accepted) > 0 {
		if err := d.cfg.Enqueuer.Enqueue(ctx, accepted); err != nil {
			d.log.Errorw("enqueue notifications failed", "error", err)
			return errorResponse(http.StatusInternalServerError, err)
		}
		return resultResponse(http.StatusAccepted, Result{
			Message: fmt.Sprintf("Queued %d notifications", len(accepted)),
		})
	}

	res, err := d.run(ctx, accepted)
	if err != nil {
		d.log.Errorw("webhook processing failed", "error", err)
		return errorResponse(http.StatusInternalServerError, err)
	}
	return resultResponse(http.StatusOK, res)
}

// Process runs the pipeline for every accepted notification. It is the
// entry point for workers draining the queue.
func (d *Dispatcher) Process(ctx context.Context, notifications []Notification) (Result, error) {
	return d.run(ctx, d.accept(notifications))
}

func (d *Dispatcher) accept(notifications []Notification) []Notification {
	accepted := make([]Notification, 0, len(notifications))
	for _, n := range notifications {
		if n.ChangeType != changeTypeCreated {
			d.log.Debugw("ignoring notification", "change_type", n.ChangeType)
			continue
		}
		if d.cfg.ClientState != "" &&
			subtle.ConstantTimeCompare([]byte(n.ClientState), []byte(d.cfg.ClientState)) != 1 {
			d.log.Warnw("dropping notification with wrong client state", "subscription_id", n.SubscriptionID)
			continue
		}
		accepted = append(accepted, n)
	}
	return accepted
}

func (d *Dispatcher) run(ctx context.Context, notifications []Notification) (Result, error) {
	var res Result
	for _, n := range notifications {
		d.log.Infow("processing notification", "change_type", n.ChangeType, "resource", n.Resource)

		summary, err := d.runner.Run(ctx, d.cfg.FetchLimit, d.cfg.ClassifyLimit)
		if err != nil {
			return Result{}, fmt.Errorf("run pipeline: %w", err)
		}
		res.Processed += summary.Classified
		res.Deleted += summary.Deleted
	}

	res.Message = fmt.Sprintf("Processed %d new emails, deleted %d", res.Processed, res.Deleted)
	d.log.Infow(res.Message)
	return res, nil
}

func resultResponse(status int, res Result) Response {
	body, _ := json.Marshal(res)
	return Response{StatusCode: status, ContentType: "application/json", Body: body}
}

func errorResponse(status int, err error) Response {
	body, _ := json.Marshal(map[string]string{"error": err.Error()})
	return Response{StatusCode: status, ContentType: "application/json", Body: body}
}
