// Package candidates produces ordered password candidate sets from three
// strategies: caller-supplied variants, deterministic personal-data rules,
// and an AI-assisted generator that is told about prior failures. The
// generated strategies filter their output against the session's seen-set
// so the orchestrator never tests the same string twice.
package candidates

import (
	"strings"

	"github.com/paperkey/unlock-cli/internal/model"
)

// UserVariants expands a caller-supplied password into the password plus its
// upper- and lower-case forms, covering caps-lock and auto-capitalize
// mistakes. Dedup here is exact-match: passwords are case-sensitive, so the
// upper form of a lower-case password is a distinct, worthwhile guess.
func UserVariants(password string) model.PasswordCandidateSet {
	raw := []string{
		password,
		strings.ToUpper(password),
		strings.ToLower(password),
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, c := range raw {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return model.PasswordCandidateSet{
		Candidates: out,
		Provenance: model.ProvenanceUserVariant,
	}
}
