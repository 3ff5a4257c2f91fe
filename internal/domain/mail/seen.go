package mail

import "sort"

// SeenSet holds ids of messages already handled by a previous run.
type SeenSet map[string]struct{}

func NewSeenSet(ids ...string) SeenSet {
	s := make(SeenSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s SeenSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s SeenSet) Add(id string) {
	if id == "" {
		return
	}
	s[id] = struct{}{}
}

// Union returns a new set; neither operand is modified.
func (s SeenSet) Union(other SeenSet) SeenSet {
	out := make(SeenSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// IDs returns the ids in sorted order so persisted output is stable.
func (s SeenSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
