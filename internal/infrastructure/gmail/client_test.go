package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"emailfilter/internal/application/triage"
)

// fakeGmail serves the handful of Gmail endpoints the client calls.
type fakeGmail struct {
	mu      sync.Mutex
	deleted []string
	watches []gmail.WatchRequest
}

func (f *fakeGmail) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/gmail/v1/users/me/")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && path == "labels":
		json.NewEncoder(w).Encode(gmail.ListLabelsResponse{Labels: []*gmail.Label{
			{Id: "INBOX", Name: "INBOX"},
			{Id: "SPAM", Name: "SPAM"},
		}})
	case r.Method == http.MethodGet && path == "messages":
		json.NewEncoder(w).Encode(gmail.ListMessagesResponse{Messages: []*gmail.Message{{Id: "m2"}, {Id: "m1"}}})
	case r.Method == http.MethodGet && strings.HasPrefix(path, "messages/"):
		id := strings.TrimPrefix(path, "messages/")
		json.NewEncoder(w).Encode(gmail.Message{
			Id:           id,
			Snippet:      "snippet " + id,
			InternalDate: 1722500000000,
			Payload: &gmail.MessagePart{Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Spammer <" + id + "@spam.example>"},
				{Name: "subject", Value: "Subject " + id},
			}},
		})
	case r.Method == http.MethodDelete && path == "messages/gone":
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 404, "message": "Not Found"}})
	case r.Method == http.MethodDelete && path == "messages/locked":
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 403, "message": "Forbidden"}})
	case r.Method == http.MethodDelete && strings.HasPrefix(path, "messages/"):
		f.deleted = append(f.deleted, strings.TrimPrefix(path, "messages/"))
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && path == "watch":
		var req gmail.WatchRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.watches = append(f.watches, req)
		json.NewEncoder(w).Encode(gmail.WatchResponse{HistoryId: 42, Expiration: 1723000000000})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, topic string) (*Client, *fakeGmail) {
	t.Helper()
	fake := &fakeGmail{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gmail.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	be.Err(t, err, nil)
	return NewClient(svc, topic, zaptest.NewLogger(t).Sugar()), fake
}

func TestListFoldersPresentsSpamAsJunk(t *testing.T) {
	c, _ := newTestClient(t, "")

	folders, err := c.ListFolders(context.Background())

	be.Err(t, err, nil)
	be.Equal(t, len(folders), 2)
	be.Equal(t, folders[1].ID, "SPAM")
	be.Equal(t, folders[1].DisplayName, "Junk")
	_, ok := triage.FindJunkFolder(folders, nil)
	be.True(t, ok)
}

func TestListMessages(t *testing.T) {
	c, _ := newTestClient(t, "")

	msgs, err := c.ListMessages(context.Background(), "SPAM", 2)

	be.Err(t, err, nil)
	be.Equal(t, len(msgs), 2)
	be.Equal(t, msgs[0].ID, "m2")
	be.Equal(t, msgs[0].Sender, "Spammer <m2@spam.example>")
	be.Equal(t, msgs[0].Subject, "Subject m2")
	be.Equal(t, msgs[0].Preview, "snippet m2")
	be.True(t, msgs[0].ReceivedAt.Equal(time.UnixMilli(1722500000000)))
}

func TestDeleteMessage(t *testing.T) {
	c, fake := newTestClient(t, "")

	be.Err(t, c.DeleteMessage(context.Background(), "m1"), nil)
	be.Err(t, c.DeleteMessage(context.Background(), "gone"), nil)
	be.Err(t, c.DeleteMessage(context.Background(), "locked"), "gmail delete message")
	be.Equal(t, fake.deleted, []string{"m1"})
}

func TestWatchAsSubscription(t *testing.T) {
	c, fake := newTestClient(t, "projects/p/topics/gmail")

	sub, err := c.CreateSubscription(context.Background(), triage.SubscriptionRequest{FolderID: "SPAM"})

	be.Err(t, err, nil)
	be.Equal(t, sub.ID, "SPAM")
	be.True(t, sub.ExpiresAt.Equal(time.UnixMilli(1723000000000)))
	be.Equal(t, fake.watches[0].TopicName, "projects/p/topics/gmail")
	be.Equal(t, fake.watches[0].LabelIds, []string{"SPAM"})

	_, err = c.RenewSubscription(context.Background(), sub.ID, time.Time{})
	be.Err(t, err, nil)
	be.Equal(t, len(fake.watches), 2)
}

func TestWatchNeedsTopic(t *testing.T) {
	c, _ := newTestClient(t, "")
	_, err := c.CreateSubscription(context.Background(), triage.SubscriptionRequest{FolderID: "SPAM"})
	be.Err(t, err, "pub/sub topic")
}
