package model

import "time"

// UnlockRequest describes one uploaded file to unlock. It is created once per
// upload and never mutated.
type UnlockRequest struct {
	FileBytes []byte       `json:"-"`
	Filename  string       `json:"filename"`
	MIMEType  string       `json:"mime_type"`
	OwnerID   string       `json:"owner_id"`
	Password  string       `json:"-"` // optional caller-supplied password
	Personal  PersonalData `json:"-"`
}

// PersonalData holds the owner-supplied fields the deterministic candidate
// rules draw from. Any field may be empty.
type PersonalData struct {
	Name          string   `json:"name,omitempty"`
	DateOfBirth   string   `json:"date_of_birth,omitempty"` // YYYY-MM-DD
	Phone         string   `json:"phone,omitempty"`
	TaxID         string   `json:"tax_id,omitempty"` // PAN-style identifier
	AccountNumber string   `json:"account_number,omitempty"`
	PolicyNumbers []string `json:"policy_numbers,omitempty"` // policy/folio numbers
	IFSCCode      string   `json:"ifsc_code,omitempty"`
}

// Empty reports whether no personal field is populated.
func (p PersonalData) Empty() bool {
	return p.Name == "" && p.DateOfBirth == "" && p.Phone == "" &&
		p.TaxID == "" && p.AccountNumber == "" && len(p.PolicyNumbers) == 0 &&
		p.IFSCCode == ""
}

// ExtractionOutcome is produced by the extractor for every invocation,
// success or failure. One per attempt; immutable.
type ExtractionOutcome struct {
	ExtractedText  string `json:"extracted_text"`
	Success        bool   `json:"success"`
	CharCount      int    `json:"char_count"`
	PageCount      *int   `json:"page_count,omitempty"`
	RawDiagnostics string `json:"raw_diagnostics,omitempty"`
	ErrorDetail    string `json:"error_detail,omitempty"`
}

// LockStatus is derived purely from an ExtractionOutcome.
type LockStatus struct {
	IsLocked      bool   `json:"is_locked"`
	NeedsPassword bool   `json:"needs_password"`
	CanOpen       bool   `json:"can_open"`
	Message       string `json:"message"`
}

// Provenance identifies which strategy produced a candidate set.
type Provenance string

const (
	ProvenanceUserVariant   Provenance = "user-variant"
	ProvenanceDeterministic Provenance = "deterministic"
	ProvenanceAIGenerated   Provenance = "ai-generated"
)

// PasswordCandidateSet is an ordered list of candidates with provenance.
// Rationale and Confidence are populated for AI-generated sets only.
type PasswordCandidateSet struct {
	Candidates []string   `json:"candidates"`
	Provenance Provenance `json:"provenance"`
	Rationale  string     `json:"rationale,omitempty"`
	Confidence float64    `json:"confidence,omitempty"`
}

// AttemptOutcome is the result of testing one candidate set.
type AttemptOutcome string

const (
	AttemptSuccess   AttemptOutcome = "success"
	AttemptExhausted AttemptOutcome = "exhausted"
	AttemptError     AttemptOutcome = "error"
)

// UnlockAttemptRecord captures one round of candidate testing. Records live
// only for the duration of a session; they are never persisted.
type UnlockAttemptRecord struct {
	AttemptNumber   int                  `json:"attempt_number"`
	Candidates      PasswordCandidateSet `json:"candidates"`
	Outcome         AttemptOutcome       `json:"outcome"`
	WinningPassword string               `json:"-"`
}

// FailureReason classifies why a session ended without an unlock.
type FailureReason string

const (
	FailureUnrecoverable     FailureReason = "unrecoverable"
	FailureIncorrectPassword FailureReason = "incorrect-password"
	FailureExhausted         FailureReason = "exhausted"
)

// UnlockResult is the caller-facing terminal result of a session.
type UnlockResult struct {
	Success         bool              `json:"success"`
	Password        string            `json:"password,omitempty"`
	Outcome         ExtractionOutcome `json:"outcome"`
	FailureReason   FailureReason     `json:"failure_reason,omitempty"`
	CandidatesTried int               `json:"candidates_tried"`
	Rounds          int               `json:"rounds"`
}

// SessionStatus is the terminal status recorded in the session journal.
type SessionStatus string

const (
	SessionUnlocked SessionStatus = "unlocked"
	SessionOpen     SessionStatus = "open" // no password was needed
	SessionFailed   SessionStatus = "failed"
)

// SessionRecord is the audit row written once per unlock session. It carries
// counts and outcomes only; candidate strings and passwords are never stored.
type SessionRecord struct {
	ID              string        `json:"id"`
	OwnerID         string        `json:"owner_id"`
	Filename        string        `json:"filename"`
	MIMEType        string        `json:"mime_type"`
	Status          SessionStatus `json:"status"`
	FailureReason   FailureReason `json:"failure_reason,omitempty"`
	CandidatesTried int           `json:"candidates_tried"`
	Rounds          int           `json:"rounds"`
	CharCount       int           `json:"char_count"`
	DurationMs      int64         `json:"duration_ms"`
	CreatedAt       time.Time     `json:"created_at"`
}
