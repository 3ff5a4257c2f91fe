package triage

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/nalgeon/be"
	"go.uber.org/zap/zaptest"

	"emailfilter/internal/domain/mail"
)

type fakeRunner struct {
	summaries []mail.RunSummary
	err       error
	panicMsg  string

	calls  int
	limits [][2]int
}

func (f *fakeRunner) Run(_ context.Context, fetchLimit, classifyLimit int) (mail.RunSummary, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.limits = append(f.limits, [2]int{fetchLimit, classifyLimit})
	defer func() { f.calls++ }()
	if f.err != nil {
		return mail.RunSummary{}, f.err
	}
	if f.calls < len(f.summaries) {
		return f.summaries[f.calls], nil
	}
	return mail.RunSummary{}, nil
}

type fakeEnqueuer struct {
	got [][]Notification
	err error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, ns []Notification) error {
	f.got = append(f.got, ns)
	return f.err
}

func decodeResult(t *testing.T, resp Response) Result {
	t.Helper()
	var res Result
	be.Err(t, json.Unmarshal(resp.Body, &res), nil)
	return res
}

const createdBody = `{"value":[{"changeType":"created","resource":"me/mailFolders('j')/messages"}]}`

func TestHandleValidationTokenWins(t *testing.T) {
	runner := &fakeRunner{}
	d := NewDispatcher(runner, zaptest.NewLogger(t).Sugar(), DispatcherConfig{})

	resp := d.Handle(context.Background(), Request{
		Query: map[string]string{"validationToken": "abc123"},
		Body:  []byte(createdBody),
	})

	be.Equal(t, resp.StatusCode, http.StatusOK)
	be.Equal(t, resp.ContentType, "text/plain")
	be.Equal(t, string(resp.Body), "abc123")
	be.Equal(t, runner.calls, 0)
}

func TestHandleRunsOnlyCreatedNotifications(t *testing.T) {
	runner := &fakeRunner{summaries: []mail.RunSummary{
		{Classified: 3, Deleted: 1},
		{Classified: 2, Deleted: 2},
	}}
	d := NewDispatcher(runner, zaptest.NewLogger(t).Sugar(), DispatcherConfig{})

	body := `{"value":[
		{"changeType":"created"},
		{"changeType":"updated"},
		{"changeType":"created"},
		{"changeType":"deleted"}
	]}`
	resp := d.Handle(context.Background(), Request{Body: []byte(body)})

	be.Equal(t, resp.StatusCode, http.StatusOK)
	be.Equal(t, runner.calls, 2)
	be.Equal(t, runner.limits[0], [2]int{5, 5})
	res := decodeResult(t, resp)
	be.Equal(t, res, Result{Message: "Processed 5 new emails, deleted 3", Processed: 5, Deleted: 3})
}

func TestHandleNoNotifications(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, zaptest.NewLogger(t).Sugar(), DispatcherConfig{})

	for _, body := range []string{"", `{}`, `{"value":[]}`} {
		resp := d.Handle(context.Background(), Request{Body: []byte(body)})
		be.Equal(t, resp.StatusCode, http.StatusOK)
		be.Equal(t, decodeResult(t, resp), Result{Message: "No notifications"})
	}
}

func TestHandleMalformedBody(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, zaptest.NewLogger(t).Sugar(), DispatcherConfig{})

	resp := d.Handle(context.Background(), Request{Body: []byte(`{"value":`)})

	be.Equal(t, resp.StatusCode, http.StatusBadRequest)
	var body map[string]string
	be.Err(t, json.Unmarshal(resp.Body, &body), nil)
	be.True(t, body["error"] != "")
}

func TestHandlePipelineErrorIs500(t *testing.T) {
	runner := &fakeRunner{err: &Error{Kind: AuthFailure, Op: "get token", Err: errBoom}}
	d := NewDispatcher(runner, zaptest.NewLogger(t).Sugar(), DispatcherConfig{})

	resp := d.Handle(context.Background(), Request{Body: []byte(createdBody)})

	be.Equal(t, resp.StatusCode, http.StatusInternalServerError)
	var body map[string]string
	be.Err(t, json.Unmarshal(resp.Body, &body), nil)
	be.True(t, body["error"] != "")
}

func TestHandleRecoversPanics(t *testing.T) {
	d := NewDispatcher(&fakeRunner{panicMsg: "kaboom"}, zaptest.NewLogger(t).Sugar(), DispatcherConfig{})

	resp := d.Handle(context.Background(), Request{Body: []byte(createdBody)})

	be.Equal(t, resp.StatusCode, http.StatusInternalServerError)
	be.Equal(t, resp.ContentType, "application/json")
}

func TestHandleChecksClientState(t *testing.T) {
	runner := &fakeRunner{summaries: []mail.RunSummary{{Classified: 1}}}
	d := NewDispatcher(runner, zaptest.NewLogger(t).Sugar(), DispatcherConfig{ClientState: "s3cret"})

	body := `{"value":[{"changeType":"created","clientState":"wrong"},{"changeType":"created","clientState":"s3cret"}]}`
	resp := d.Handle(context.Background(), Request{Body: []byte(body)})

	be.Equal(t, resp.StatusCode, http.StatusOK)
	be.Equal(t, runner.calls, 1)
	be.Equal(t, decodeResult(t, resp).Processed, 1)
}

func TestHandleQueuedMode(t *testing.T) {
	runner := &fakeRunner{}
	q := &fakeEnqueuer{}
	d := NewDispatcher(runner, zaptest.NewLogger(t).Sugar(), DispatcherConfig{Enqueuer: q})

	resp := d.Handle(context.Background(), Request{Body: []byte(createdBody)})

	be.Equal(t, resp.StatusCode, http.StatusAccepted)
	be.Equal(t, decodeResult(t, resp).Message, "Queued 1 notifications")
	be.Equal(t, runner.calls, 0)
	be.Equal(t, len(q.got), 1)
	be.Equal(t, q.got[0][0].ChangeType, "created")
}

func TestProcessUsesConfiguredLimits(t *testing.T) {
	runner := &fakeRunner{summaries: []mail.RunSummary{{Classified: 2, Deleted: 1}}}
	d := NewDispatcher(runner, zaptest.NewLogger(t).Sugar(), DispatcherConfig{FetchLimit: 10, ClassifyLimit: 3})

	res, err := d.Process(context.Background(), []Notification{{ChangeType: "created"}, {ChangeType: "updated"}})

	be.Err(t, err, nil)
	be.Equal(t, runner.limits, [][2]int{{10, 3}})
	be.Equal(t, res.Processed, 2)
	be.Equal(t, res.Deleted, 1)
}
