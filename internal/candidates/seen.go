package candidates

import "strings"

// SeenSet tracks every candidate tested in a session, case-insensitively.
// One instance per session, owned by the orchestrator; not safe for
// concurrent use and never needs to be.
type SeenSet struct {
	entries map[string]struct{}
}

// NewSeenSet creates an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{entries: make(map[string]struct{})}
}

// Add records a candidate. Returns false if it was already present.
func (s *SeenSet) Add(candidate string) bool {
	key := strings.ToLower(candidate)
	if _, ok := s.entries[key]; ok {
		return false
	}
	s.entries[key] = struct{}{}
	return true
}

// Has reports whether a candidate was already recorded.
func (s *SeenSet) Has(candidate string) bool {
	_, ok := s.entries[strings.ToLower(candidate)]
	return ok
}

// Len returns the number of distinct candidates recorded.
func (s *SeenSet) Len() int {
	return len(s.entries)
}

// Filter returns the candidates not yet in the set, preserving order and
// dropping duplicates within the input itself. It does not mutate the set.
func (s *SeenSet) Filter(in []string) []string {
	out := make([]string, 0, len(in))
	local := make(map[string]struct{}, len(in))
	for _, c := range in {
		key := strings.ToLower(c)
		if _, ok := s.entries[key]; ok {
			continue
		}
		if _, ok := local[key]; ok {
			continue
		}
		local[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
