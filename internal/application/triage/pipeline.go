package triage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"emailfilter/internal/domain/mail"
)

type PipelineConfig struct {
	JunkFolderNames []string
	// RetryFailedDeletes leaves messages whose delete failed out of the
	// seen-set so the next run classifies them again.
	RetryFailedDeletes bool
	// Notifier is optional. It is called when a run deleted or failed to delete something.
	Notifier Notifier
}

// Pipeline runs one fetch, dedup, classify, delete, record cycle over the junk folder.
type Pipeline struct {
	creds      CredentialProvider
	source     MailSource
	classifier Classifier
	seen       SeenSetStore
	cfg        PipelineConfig
	log        *zap.SugaredLogger

	// mu serializes runs; each one rewrites the whole seen-set.
	mu sync.Mutex
}

func NewPipeline(
	creds CredentialProvider,
	source MailSource,
	classifier Classifier,
	seen SeenSetStore,
	log *zap.SugaredLogger,
	cfg PipelineConfig,
) *Pipeline {
	return &Pipeline{
		creds:      creds,
		source:     source,
		classifier: classifier,
		seen:       seen,
		cfg:        cfg,
		log:        log,
	}
}

// Run performs one triage pass. It returns an error only for auth and fetch
// failures; every other failure is logged and reflected in the summary.
func (p *Pipeline) Run(ctx context.Context, fetchLimit, classifyLimit int) (mail.RunSummary, error) {
	var summary mail.RunSummary

	if fetchLimit <= 0 || classifyLimit <= 0 {
		return summary, fmt.Errorf("invalid limits: fetch=%d classify=%d", fetchLimit, classifyLimit)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	log := p.log.With("run_id", uuid.NewString())

	// Acquire first so an expired cache surfaces as an auth failure, not a fetch failure.
	if _, err := p.creds.Token(ctx); err != nil {
		return summary, &Error{Kind: AuthFailure, Op: "get token", Err: err}
	}

	folders, err := p.source.ListFolders(ctx)
	if err != nil {
		return summary, &Error{Kind: FetchFailure, Op: "list folders", Err: err}
	}

	junk, ok := FindJunkFolder(folders, p.cfg.JunkFolderNames)
	if !ok {
		log.Warnw("junk folder not found", "error", &Error{Kind: FolderNotFound, Op: "resolve junk folder"}, "folders", len(folders))
		summary.FolderNotFound = true
		return summary, nil
	}

	msgs, err := p.source.ListMessages(ctx, junk.ID, fetchLimit)
	if err != nil {
		return summary, &Error{Kind: FetchFailure, Op: "list messages", Err: err}
	}
	msgs = newestFirst(msgs, fetchLimit)
	summary.Fetched = len(msgs)

	seen, err := p.seen.Load(ctx)
	if err != nil {
		log.Warnw("seen-set unavailable, treating as empty", "error", &Error{Kind: PersistenceFailure, Op: "load seen-set", Err: err})
		seen = nil
	}
	if seen == nil {
		seen = mail.NewSeenSet()
	}

	unseen := make([]mail.Message, 0, len(msgs))
	picked := mail.NewSeenSet()
	for _, m := range msgs {
		if seen.Has(m.ID) {
			summary.AlreadySeen++
			continue
		}
		if m.ID == "" || picked.Has(m.ID) {
			log.Warnw("skipping message with empty or duplicate id", "id", m.ID, "subject", m.Subject)
			continue
		}
		picked.Add(m.ID)
		unseen = append(unseen, m)
	}

	if len(unseen) == 0 {
		log.Infow("no new junk messages", "fetched", summary.Fetched, "already_seen", summary.AlreadySeen)
		return summary, nil
	}

	batch := unseen
	if len(batch) > classifyLimit {
		summary.Deferred = len(batch) - classifyLimit
		batch = batch[:classifyLimit]
	}
	summary.Classified = len(batch)

	verdicts := p.classify(ctx, log, batch, &summary)

	recorded := seen.Union(nil)
	for i, m := range batch {
		if verdicts.Of(i) != mail.VerdictDelete {
			log.Infow("keeping", "id", m.ID, "from", m.Sender, "subject", m.Subject)
			summary.Kept++
			recorded.Add(m.ID)
			continue
		}

		log.Infow("deleting", "id", m.ID, "from", m.Sender, "subject", m.Subject)
		outcome := mail.DeletionOutcome{MessageID: m.ID}
		if err := p.source.DeleteMessage(ctx, m.ID); err != nil {
			outcome.Err = &Error{Kind: DeletionFailure, Op: "delete message " + m.ID, Err: err}
			log.Warnw("delete failed", "id", m.ID, "error", outcome.Err)
			// A message that is still in the mailbox counts as kept.
			summary.DeleteFailed++
			summary.Kept++
			if !p.cfg.RetryFailedDeletes {
				recorded.Add(m.ID)
			}
		} else {
			summary.Deleted++
			recorded.Add(m.ID)
		}
		summary.Outcomes = append(summary.Outcomes, outcome)
	}

	if err := p.seen.Save(ctx, recorded); err != nil {
		log.Errorw("failed to save seen-set", "error", &Error{Kind: PersistenceFailure, Op: "save seen-set", Err: err})
		summary.PersistFailed = true
	}

	if p.cfg.Notifier != nil && (summary.Deleted > 0 || summary.DeleteFailed > 0) {
		if err := p.cfg.Notifier.Notify(ctx, summary); err != nil {
			log.Warnw("run notification failed", "error", err)
		}
	}

	log.Infow("triage run finished",
		"fetched", summary.Fetched,
		"already_seen", summary.AlreadySeen,
		"classified", summary.Classified,
		"deleted", summary.Deleted,
		"delete_failed", summary.DeleteFailed,
		"kept", summary.Kept,
		"deferred", summary.Deferred,
	)

	return summary, nil
}

func (p *Pipeline) classify(ctx context.Context, log *zap.SugaredLogger, batch []mail.Message, summary *mail.RunSummary) mail.Verdicts {
	verdicts, err := p.classifier.Classify(ctx, batch)
	if err != nil {
		log.Errorw("classifier failed, keeping batch", "error", &Error{Kind: ClassifierFailure, Op: "classify", Err: err}, "batch", len(batch))
		summary.ClassifierFailed = true
		return nil
	}

	valid := make(mail.Verdicts, len(verdicts))
	for idx, v := range verdicts {
		if idx < 0 || idx >= len(batch) {
			log.Warnw("discarding verdict for invalid index", "index", idx, "batch", len(batch))
			continue
		}
		valid[idx] = v
	}
	return valid
}

// newestFirst orders by ReceivedAt descending and caps the result at limit.
// Adapters already return newest first; the stable sort keeps their order on ties.
func newestFirst(msgs []mail.Message, limit int) []mail.Message {
	out := make([]mail.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReceivedAt.After(out[j].ReceivedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
