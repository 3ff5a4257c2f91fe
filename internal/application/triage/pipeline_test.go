package triage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nalgeon/be"
	"go.uber.org/zap/zaptest"

	"emailfilter/internal/domain/mail"
)

type pipelineFixture struct {
	creds      *fakeCreds
	source     *fakeSource
	classifier *fakeClassifier
	seen       *memSeen
	notifier   *fakeNotifier
	pipeline   *Pipeline
}

func newPipelineFixture(t *testing.T, cfg PipelineConfig, messages ...mail.Message) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		creds:      &fakeCreds{},
		source:     newFakeSource(messages...),
		classifier: &fakeClassifier{deleteIDs: map[string]bool{}},
		seen:       &memSeen{},
		notifier:   &fakeNotifier{},
	}
	if cfg.Notifier == nil {
		cfg.Notifier = f.notifier
	}
	f.pipeline = NewPipeline(f.creds, f.source, f.classifier, f.seen, zaptest.NewLogger(t).Sugar(), cfg)
	return f
}

func TestRunClassifiesWithinLimitAndDefersTheRest(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A", "B", "C")...)
	f.classifier.deleteIDs["A"] = true

	summary, err := f.pipeline.Run(context.Background(), 20, 2)

	be.Err(t, err, nil)
	be.Equal(t, len(f.classifier.batches), 1)
	be.Equal(t, ids(f.classifier.batches[0]), []string{"A", "B"})
	be.Equal(t, f.source.deleted, []string{"A"})
	be.Equal(t, f.seen.set.IDs(), []string{"A", "B"})
	be.Equal(t, summary.Fetched, 3)
	be.Equal(t, summary.Classified, 2)
	be.Equal(t, summary.Deleted, 1)
	be.Equal(t, summary.DeleteFailed, 0)
	be.Equal(t, summary.Kept, 1)
	be.Equal(t, summary.Deferred, 1)
	be.Equal(t, f.source.listedFolder, "junk-id")
	be.Equal(t, f.source.listedLimit, 20)
}

func TestRunTwiceWithNoNewMailClassifiesNothing(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A", "B")...)

	first, err := f.pipeline.Run(context.Background(), 20, 20)
	be.Err(t, err, nil)
	be.Equal(t, first.Classified, 2)

	second, err := f.pipeline.Run(context.Background(), 20, 20)
	be.Err(t, err, nil)
	be.Equal(t, second.Classified, 0)
	be.Equal(t, second.AlreadySeen, 2)
	be.Equal(t, len(f.classifier.batches), 1)
	be.Equal(t, f.seen.saves, 1)
}

func TestRunDeferredMessagesAreClassifiedNextRun(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A", "B", "C")...)

	_, err := f.pipeline.Run(context.Background(), 20, 2)
	be.Err(t, err, nil)

	summary, err := f.pipeline.Run(context.Background(), 20, 2)
	be.Err(t, err, nil)
	be.Equal(t, ids(f.classifier.batches[1]), []string{"C"})
	be.Equal(t, summary.Classified, 1)
	be.Equal(t, summary.AlreadySeen, 2)
	be.Equal(t, f.seen.set.IDs(), []string{"A", "B", "C"})
}

func TestRunClassifierFailureKeepsEverything(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A", "B")...)
	f.classifier.err = errBoom

	summary, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, nil)
	be.True(t, summary.ClassifierFailed)
	be.Equal(t, summary.Deleted, 0)
	be.Equal(t, summary.Kept, 2)
	be.Equal(t, len(f.source.deleted), 0)
	be.Equal(t, f.seen.set.IDs(), []string{"A", "B"})
}

func TestRunDiscardsInvalidIndices(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A", "B")...)
	f.classifier.verdicts = mail.Verdicts{-1: mail.VerdictDelete, 1: mail.VerdictDelete, 7: mail.VerdictDelete}

	summary, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, nil)
	be.Equal(t, f.source.deleted, []string{"B"})
	be.Equal(t, summary.Deleted, 1)
	be.Equal(t, summary.Kept, 1)
}

func TestRunDeletionFailureDoesNotStopOthers(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A", "B", "C")...)
	f.classifier.deleteIDs = map[string]bool{"A": true, "B": true, "C": true}
	f.source.deleteErr = map[string]error{"A": errBoom}

	summary, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, nil)
	be.Equal(t, f.source.deleted, []string{"A", "B", "C"})
	be.Equal(t, summary.Deleted, 2)
	be.Equal(t, summary.DeleteFailed, 1)
	be.Equal(t, summary.Kept, 1)
	be.Equal(t, summary.Deleted+summary.Kept, summary.Classified)
	be.Equal(t, len(summary.Outcomes), 3)
	be.True(t, !summary.Outcomes[0].Succeeded())
	be.Equal(t, KindOf(summary.Outcomes[0].Err), DeletionFailure)
	// failed deletes are recorded by default
	be.Equal(t, f.seen.set.IDs(), []string{"A", "B", "C"})
	be.Equal(t, len(f.notifier.summaries), 1)
}

func TestRunRetryFailedDeletesLeavesThemUnseen(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{RetryFailedDeletes: true}, msgs("A", "B")...)
	f.classifier.deleteIDs = map[string]bool{"A": true}
	f.source.deleteErr = map[string]error{"A": errBoom}

	summary, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, nil)
	be.Equal(t, summary.DeleteFailed, 1)
	be.Equal(t, summary.Kept, 2)
	be.Equal(t, summary.Deleted+summary.Kept, summary.Classified)
	be.Equal(t, f.seen.set.IDs(), []string{"B"})
}

func TestRunFolderNotFound(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A")...)
	f.source.folders = []mail.Folder{{ID: "inbox-id", DisplayName: "Inbox"}}

	summary, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, nil)
	be.True(t, summary.FolderNotFound)
	be.Equal(t, summary.Fetched, 0)
	be.Equal(t, f.seen.saves, 0)
}

func TestRunMatchesJunkFolderCaseInsensitively(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A")...)
	f.source.folders = []mail.Folder{{ID: "j", DisplayName: "JUNK"}}

	summary, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, nil)
	be.Equal(t, f.source.listedFolder, "j")
	be.Equal(t, summary.Classified, 1)
}

func TestRunAuthFailureAborts(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A")...)
	f.creds.err = errBoom

	_, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, errBoom)
	be.Equal(t, KindOf(err), AuthFailure)
	be.Equal(t, len(f.classifier.batches), 0)
}

func TestRunFetchFailureAborts(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A")...)
	f.source.listErr = errBoom

	_, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Equal(t, KindOf(err), FetchFailure)
	be.Equal(t, f.seen.saves, 0)

	f.source.listErr = nil
	f.source.foldersErr = errBoom
	_, err = f.pipeline.Run(context.Background(), 20, 20)
	be.Equal(t, KindOf(err), FetchFailure)
}

func TestRunSeenLoadFailureTreatsSetAsEmpty(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A", "B")...)
	f.seen.set = mail.NewSeenSet("A")
	f.seen.loadErr = errBoom

	summary, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, nil)
	be.Equal(t, summary.Classified, 2)
	be.Equal(t, summary.AlreadySeen, 0)
}

func TestRunSaveFailureStillReturnsSummary(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A")...)
	f.classifier.deleteIDs["A"] = true
	f.seen.saveErr = errBoom

	summary, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, nil)
	be.True(t, summary.PersistFailed)
	be.Equal(t, summary.Deleted, 1)
}

func TestRunOrdersNewestFirst(t *testing.T) {
	base := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	f := newPipelineFixture(t, PipelineConfig{},
		mail.Message{ID: "old", ReceivedAt: base},
		mail.Message{ID: "new", ReceivedAt: base.Add(time.Hour)},
	)

	_, err := f.pipeline.Run(context.Background(), 20, 1)

	be.Err(t, err, nil)
	be.Equal(t, ids(f.classifier.batches[0]), []string{"new"})
}

func TestRunSkipsClassifierWhenEverythingSeen(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A")...)
	f.seen.set = mail.NewSeenSet("A", "Z")

	summary, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, nil)
	be.Equal(t, summary.Classified, 0)
	be.Equal(t, len(f.classifier.batches), 0)
	be.Equal(t, f.seen.saves, 0)
}

func TestRunKeepsPreviouslySeenIDs(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A")...)
	f.seen.set = mail.NewSeenSet("old")

	_, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, nil)
	be.Equal(t, f.seen.set.IDs(), []string{"A", "old"})
}

func TestRunRejectsNonPositiveLimits(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A")...)

	_, err := f.pipeline.Run(context.Background(), 0, 5)
	be.Err(t, err)
	be.Equal(t, f.creds.calls, 0)
}

func TestRunDoesNotNotifyWhenNothingDeleted(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A")...)

	_, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, nil)
	be.Equal(t, len(f.notifier.summaries), 0)
}

func TestConcurrentRunsDoNotClassifyTwice(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A", "B")...)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.pipeline.Run(context.Background(), 20, 20)
		}()
	}
	wg.Wait()

	be.Err(t, errs[0], nil)
	be.Err(t, errs[1], nil)

	be.Equal(t, len(f.classifier.batches), 1)
	be.Equal(t, f.seen.saves, 1)
}

func TestRunFailedDeleteCountsAsKept(t *testing.T) {
	f := newPipelineFixture(t, PipelineConfig{}, msgs("A", "B")...)
	f.classifier.deleteIDs = map[string]bool{"A": true}
	f.source.deleteErr = map[string]error{"A": errBoom}

	summary, err := f.pipeline.Run(context.Background(), 20, 20)

	be.Err(t, err, nil)
	be.Equal(t, summary.Classified, 2)
	be.Equal(t, summary.Deleted, 0)
	be.Equal(t, summary.DeleteFailed, 1)
	be.Equal(t, summary.Kept, 2)
	be.Equal(t, summary.Deleted+summary.Kept, summary.Classified)
}
