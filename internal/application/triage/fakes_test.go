package triage

import (
	"context"
	"errors"
	"sync"
	"time"

	"emailfilter/internal/domain/mail"
)

type fakeCreds struct {
	err   error
	calls int
}

func (f *fakeCreds) Token(context.Context) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "token", nil
}

type fakeSource struct {
	folders    []mail.Folder
	foldersErr error
	messages   []mail.Message
	listErr    error
	deleteErr  map[string]error

	listedFolder string
	listedLimit  int
	deleted      []string
}

func newFakeSource(msgs ...mail.Message) *fakeSource {
	return &fakeSource{
		folders: []mail.Folder{
			{ID: "inbox-id", DisplayName: "Inbox"},
			{ID: "junk-id", DisplayName: "Junk Email"},
		},
		messages: msgs,
	}
}

func (f *fakeSource) ListFolders(context.Context) ([]mail.Folder, error) {
	return f.folders, f.foldersErr
}

func (f *fakeSource) ListMessages(_ context.Context, folderID string, limit int) ([]mail.Message, error) {
	f.listedFolder = folderID
	f.listedLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.messages) > limit {
		return f.messages[:limit], nil
	}
	return f.messages, nil
}

func (f *fakeSource) DeleteMessage(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.deleteErr[id]
}

// fakeClassifier deletes every message whose id is in deleteIDs.
type fakeClassifier struct {
	deleteIDs map[string]bool
	verdicts  mail.Verdicts
	err       error
	panicMsg  string

	batches [][]mail.Message
}

func (f *fakeClassifier) Classify(_ context.Context, batch []mail.Message) (mail.Verdicts, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	f.batches = append(f.batches, batch)
	if f.err != nil {
		return nil, f.err
	}
	if f.verdicts != nil {
		return f.verdicts, nil
	}
	out := mail.Verdicts{}
	for i, m := range batch {
		if f.deleteIDs[m.ID] {
			out[i] = mail.VerdictDelete
		}
	}
	return out, nil
}

type memSeen struct {
	mu      sync.Mutex
	set     mail.SeenSet
	loadErr error
	saveErr error
	saves   int
}

func (m *memSeen) Load(context.Context) (mail.SeenSet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return mail.NewSeenSet().Union(m.set), nil
}

func (m *memSeen) Save(_ context.Context, s mail.SeenSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.set = s.Union(nil)
	return nil
}

type fakeNotifier struct {
	summaries []mail.RunSummary
	err       error
}

func (f *fakeNotifier) Notify(_ context.Context, s mail.RunSummary) error {
	f.summaries = append(f.summaries, s)
	return f.err
}

type memKV struct {
	data   map[string][]byte
	getErr error
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memKV) Put(_ context.Context, key string, value []byte) error {
	m.data[key] = value
	return nil
}

var errBoom = errors.New("boom")

// msgs builds messages with strictly decreasing receive times, newest first.
func msgs(ids ...string) []mail.Message {
	base := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	out := make([]mail.Message, len(ids))
	for i, id := range ids {
		out[i] = mail.Message{
			ID:         id,
			Sender:     id + "@example.com",
			Subject:    "subject " + id,
			ReceivedAt: base.Add(-time.Duration(i) * time.Minute),
		}
	}
	return out
}

func ids(batch []mail.Message) []string {
	out := make([]string, len(batch))
	for i, m := range batch {
		out[i] = m.ID
	}
	return out
}
