package candidates

import "testing"

func TestSeenSet_CaseInsensitive(t *testing.T) {
	s := NewSeenSet()
	if !s.Add("Secret123") {
		t.Fatal("first add should succeed")
	}
	if s.Add("SECRET123") {
		t.Error("case variant should be a duplicate")
	}
	if !s.Has("secret123") {
		t.Error("lookup should be case-insensitive")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestSeenSet_FilterPreservesOrderAndDedups(t *testing.T) {
	s := NewSeenSet()
	s.Add("alpha")

	got := s.Filter([]string{"beta", "ALPHA", "gamma", "Beta", "delta"})
	want := []string{"beta", "gamma", "delta"}
	if len(got) != len(want) {
		t.Fatalf("Filter() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Filter()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	// Filter must not record anything.
	if s.Len() != 1 {
		t.Errorf("Len() after Filter = %d, want 1", s.Len())
	}
}

func TestSeenSet_EmptyStringIsACandidate(t *testing.T) {
	s := NewSeenSet()
	if !s.Add("") {
		t.Fatal("empty string should be addable once")
	}
	if s.Add("") {
		t.Error("empty string should dedup like any candidate")
	}
}
