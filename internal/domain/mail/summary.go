package mail

import "fmt"

// DeletionOutcome records one delete attempt. Err is nil on success.
type DeletionOutcome struct {
	MessageID string
	Err       error
}

func (o DeletionOutcome) Succeeded() bool {
	return o.Err == nil
}

// RunSummary reports what a single triage run did.
type RunSummary struct {
	Fetched      int
	AlreadySeen  int
	Classified   int
	Deleted      int
	// DeleteFailed counts delete attempts that failed. Those messages are
	// also counted in Kept, so Deleted+Kept == Classified.
	DeleteFailed int
	Kept         int
	// Deferred counts unseen messages left for a later run by the classify limit.
	Deferred int

	FolderNotFound   bool
	ClassifierFailed bool
	PersistFailed    bool

	Outcomes []DeletionOutcome
}

func (s RunSummary) String() string {
	return fmt.Sprintf("fetched=%d seen=%d classified=%d deleted=%d failed=%d kept=%d deferred=%d",
		s.Fetched, s.AlreadySeen, s.Classified, s.Deleted, s.DeleteFailed, s.Kept, s.Deferred)
}
