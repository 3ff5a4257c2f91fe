package mail

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestSeenSetUnionDoesNotModifyOperands(t *testing.T) {
	a := NewSeenSet("1", "2")
	b := NewSeenSet("2", "3")

	u := a.Union(b)

	be.Equal(t, u.IDs(), []string{"1", "2", "3"})
	be.Equal(t, len(a), 2)
	be.Equal(t, len(b), 2)
}

func TestSeenSetIgnoresEmptyID(t *testing.T) {
	s := NewSeenSet("", "x")
	be.Equal(t, s.IDs(), []string{"x"})
	be.True(t, !s.Has(""))
}

func TestVerdictsDefaultToKeep(t *testing.T) {
	vs := Verdicts{1: VerdictDelete}
	be.Equal(t, vs.Of(0), VerdictKeep)
	be.Equal(t, vs.Of(1), VerdictDelete)
	be.Equal(t, VerdictKeep.String(), "keep")
}
