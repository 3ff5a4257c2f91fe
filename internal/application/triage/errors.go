package triage

import (
	"errors"
	"fmt"
)

type Kind int

const (
	AuthFailure Kind = iota + 1
	FolderNotFound
	FetchFailure
	ClassifierFailure
	DeletionFailure
	PersistenceFailure
)

func (k Kind) String() string {
	switch k {
	case AuthFailure:
		return "auth failure"
	case FolderNotFound:
		return "folder not found"
	case FetchFailure:
		return "fetch failure"
	case ClassifierFailure:
		return "classifier failure"
	case DeletionFailure:
		return "deletion failure"
	case PersistenceFailure:
		return "persistence failure"
	}
	return "unknown failure"
}

// Error tags a collaborator failure with its kind. Only AuthFailure and
// FetchFailure are returned from Run; the rest are logged and recovered.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf reports the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return 0
}

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrNoSubscription       = errors.New("no stored subscription id")
)
