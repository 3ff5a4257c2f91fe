// Package notify sends a short alert after a run that deleted mail or
// failed to.
package notify

import (
	"context"
	"errors"
	"fmt"

	"emailfilter/internal/application/triage"
	"emailfilter/internal/domain/mail"
)

// Multi fans a summary out to every notifier and joins their errors.
type Multi []triage.Notifier

func (m Multi) Notify(ctx context.Context, summary mail.RunSummary) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Text renders a one-line alert body.
func Text(summary mail.RunSummary) string {
	s := fmt.Sprintf("Junk filter: deleted %d, failed %d, kept %d",
		summary.Deleted, summary.DeleteFailed, summary.Kept)
	if summary.Deferred > 0 {
		s += fmt.Sprintf(", deferred %d", summary.Deferred)
	}
	return s
}
