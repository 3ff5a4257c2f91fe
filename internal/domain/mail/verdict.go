package mail

// Verdict is the classifier's decision for one message. The zero value keeps.
type Verdict int

const (
	VerdictKeep Verdict = iota
	VerdictDelete
)

func (v Verdict) String() string {
	if v == VerdictDelete {
		return "delete"
	}
	return "keep"
}

// Verdicts maps a batch index to its verdict. A missing index means keep.
type Verdicts map[int]Verdict

func (vs Verdicts) Of(i int) Verdict {
	return vs[i]
}
