package candidates

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/paperkey/unlock-cli/internal/model"
)

// universalDefaults close out round 3. The empty string covers files whose
// owner password differs from the (blank) user password.
var universalDefaults = []string{"", "password", "123456", "0000"}

var titleCaser = cases.Title(language.English)

// Deterministic emits password candidates from personal data per a fixed
// rule table keyed by round number. It needs no network call and is the
// guaranteed fallback when the AI strategy is unavailable. Rounds past the
// table reuse the last rule set.
func Deterministic(round int, p model.PersonalData, seen *SeenSet) model.PasswordCandidateSet {
	var raw []string
	switch {
	case round <= 1:
		raw = roundOne(p)
	case round == 2:
		raw = roundTwo(p)
	default:
		raw = roundThree(p)
	}
	return model.PasswordCandidateSet{
		Candidates: seen.Filter(raw),
		Provenance: model.ProvenanceDeterministic,
	}
}

// roundOne: bare date-of-birth permutations and number suffixes. These are
// by far the most common real-world choices for bank and insurance PDFs.
func roundOne(p model.PersonalData) []string {
	var out []string
	if dob, ok := parseDOB(p.DateOfBirth); ok {
		out = append(out,
			dob.Format("02012006"), // DDMMYYYY
			dob.Format("020106"),   // DDMMYY
			dob.Format("20060102"), // YYYYMMDD
			dob.Format("2006"),     // YYYY
			dob.Format("0201"),     // DDMM
			dob.Format("012006"),   // MMYYYY
		)
	}
	if digits := digitsOnly(p.Phone); digits != "" {
		out = append(out, lastN(digits, 4), lastN(digits, 6))
	}
	if digits := digitsOnly(p.AccountNumber); digits != "" {
		out = append(out, lastN(digits, 4), lastN(digits, 6))
	}
	return out
}

// roundTwo: name fragments combined with DOB and account digits, and
// identity numbers verbatim.
func roundTwo(p model.PersonalData) []string {
	var out []string
	first := firstName(p.Name)
	dob, hasDOB := parseDOB(p.DateOfBirth)
	account := digitsOnly(p.AccountNumber)

	if first != "" {
		prefix := strings.ToLower(first)
		if len(prefix) > 4 {
			prefix = prefix[:4]
		}
		if hasDOB {
			out = append(out,
				prefix+dob.Format("02012006"),
				prefix+dob.Format("2006"),
				titleCaser.String(first)+dob.Format("2006"),
			)
		}
		if account != "" {
			out = append(out, prefix+lastN(account, 4))
		}
	}
	// As supplied only: the seen-set is case-insensitive, so a cased
	// variant would be filtered before testing anyway.
	if p.TaxID != "" {
		out = append(out, p.TaxID)
	}
	return out
}

// roundThree: punctuated date formats, policy/folio numbers, bank codes,
// then the universal defaults.
func roundThree(p model.PersonalData) []string {
	var out []string
	if dob, ok := parseDOB(p.DateOfBirth); ok {
		out = append(out,
			dob.Format("02-01-2006"),
			dob.Format("02/01/2006"),
		)
	}
	for _, policy := range p.PolicyNumbers {
		if policy != "" {
			out = append(out, policy)
		}
	}
	if p.IFSCCode != "" {
		out = append(out, strings.ToUpper(p.IFSCCode))
	}
	out = append(out, universalDefaults...)
	return out
}

func parseDOB(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func firstName(name string) string {
	fields := strings.Fields(strings.TrimSpace(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
