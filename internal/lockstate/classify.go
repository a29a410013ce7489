// Package lockstate derives a document's lock status from an extraction
// outcome. Classification is purely lexical: the phrase lists are data, so
// adding a new extractor message never touches control flow.
package lockstate

import (
	"strings"

	"github.com/paperkey/unlock-cli/internal/model"
)

// minReadableChars is the extracted-text length above which a successful
// extraction is considered a cleanly opened document.
const minReadableChars = 100

// lockPhrases indicate the document wants a password.
var lockPhrases = []string{
	"password protected",
	"incorrect password",
	"encrypted",
	"password required",
	"owner password",
}

// corruptionPhrases indicate the document cannot be opened at all,
// password or not.
var corruptionPhrases = []string{
	"corrupt",
	"damaged",
	"cannot read",
}

// Classify derives a LockStatus from an extraction outcome. Pure function,
// no I/O; deterministic for identical outcomes.
func Classify(outcome model.ExtractionOutcome) model.LockStatus {
	haystack := strings.ToLower(outcome.ExtractedText + "\n" + outcome.RawDiagnostics + "\n" + outcome.ErrorDetail)

	if phrase := firstMatch(haystack, lockPhrases); phrase != "" {
		return model.LockStatus{
			IsLocked:      true,
			NeedsPassword: true,
			CanOpen:       false,
			Message:       "document is password protected (" + phrase + ")",
		}
	}

	if outcome.Success && outcome.CharCount > minReadableChars {
		return model.LockStatus{CanOpen: true, Message: "document opened"}
	}

	if !outcome.Success {
		if phrase := firstMatch(haystack, corruptionPhrases); phrase != "" {
			return model.LockStatus{
				CanOpen: false,
				Message: "document is unreadable (" + phrase + ")",
			}
		}
		if strings.TrimSpace(outcome.ExtractedText) == "" {
			return model.LockStatus{CanOpen: false, Message: "extraction produced no text"}
		}
	}

	// Ambiguous signal with some text present: optimistic default. A false
	// negative here only makes a later extraction attempt fail cleanly.
	return model.LockStatus{CanOpen: true, Message: "document assumed readable"}
}

func firstMatch(haystack string, phrases []string) string {
	for _, p := range phrases {
		if strings.Contains(haystack, p) {
			return p
		}
	}
	return ""
}
