package candidates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/paperkey/unlock-cli/internal/aiqueue"
	"github.com/paperkey/unlock-cli/internal/model"
	"github.com/paperkey/unlock-cli/internal/monitoring"
)

// maxAICandidates caps how many candidates one model round contributes,
// whatever the model returns.
const maxAICandidates = 10

// maxDiagnosticsInPrompt bounds how much extractor output goes into the
// prompt; diagnostics beyond this add tokens, not signal.
const maxDiagnosticsInPrompt = 500

const systemPrompt = `You are a document-security assistant helping a user recover access to their own password-protected financial document. Banks and insurers derive these passwords from the customer's personal details.

Rules:
- Propose passwords derived from the personal details and filename provided
- Never repeat a password listed as already tried, in any letter case
- Order passwords from most to least likely
- Respond with ONLY valid JSON, no prose outside the JSON`

// Submitter is the slice of the call queue the generator needs.
type Submitter interface {
	Submit(ctx context.Context, p aiqueue.Prompt) (string, error)
}

// SessionContext carries everything the AI strategy embeds in its prompt.
type SessionContext struct {
	Filename    string
	Diagnostics string
	Personal    model.PersonalData
	Failed      []model.UnlockAttemptRecord
}

// Generator produces candidate sets for unlock rounds. A nil queue disables
// the AI strategy entirely; every round then uses the deterministic rules.
type Generator struct {
	queue   Submitter
	metrics *monitoring.Collector
}

// NewGenerator creates a Generator. queue and metrics may be nil.
func NewGenerator(queue Submitter, metrics *monitoring.Collector) *Generator {
	return &Generator{queue: queue, metrics: metrics}
}

// ForRound returns the candidate set for one unlock round, already filtered
// against the seen-set. The AI strategy is tried first; on any failure —
// upstream exhausted, unparseable output, or nothing new to try — the
// deterministic rules for the same round substitute transparently.
func (g *Generator) ForRound(ctx context.Context, round int, sctx SessionContext, seen *SeenSet) model.PasswordCandidateSet {
	if g.queue == nil {
		return Deterministic(round, sctx.Personal, seen)
	}

	text, err := g.queue.Submit(ctx, aiqueue.Prompt{
		System: systemPrompt,
		User:   buildUserMessage(round, sctx),
	})
	if err != nil {
		zap.L().Warn("candidates: model call failed, using deterministic rules",
			zap.Int("round", round),
			zap.Bool("upstream_exhausted", aiqueue.IsUpstreamExhausted(err)),
			zap.Error(err))
		return g.fallback(round, sctx, seen)
	}

	set, ok := parseCandidateSet(text)
	if !ok {
		zap.L().Warn("candidates: unparseable model output, using deterministic rules",
			zap.Int("round", round))
		return g.fallback(round, sctx, seen)
	}

	set.Candidates = seen.Filter(set.Candidates)
	if len(set.Candidates) == 0 {
		zap.L().Info("candidates: model returned only already-seen passwords",
			zap.Int("round", round))
		return g.fallback(round, sctx, seen)
	}
	if len(set.Candidates) > maxAICandidates {
		set.Candidates = set.Candidates[:maxAICandidates]
	}
	return set
}

func (g *Generator) fallback(round int, sctx SessionContext, seen *SeenSet) model.PasswordCandidateSet {
	if g.metrics != nil {
		g.metrics.AIFallback()
	}
	return Deterministic(round, sctx.Personal, seen)
}

// buildUserMessage renders the per-round prompt: file context, personal
// fields, and every previously failed candidate grouped by round so the
// model knows what not to repeat.
func buildUserMessage(round int, sctx SessionContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Guessing round %d.\n\nFilename: %s\n", round, sctx.Filename)

	if d := strings.TrimSpace(sctx.Diagnostics); d != "" {
		if len(d) > maxDiagnosticsInPrompt {
			d = d[:maxDiagnosticsInPrompt]
		}
		sb.WriteString("\nExtractor diagnostics:\n")
		sb.WriteString(d)
		sb.WriteString("\n")
	}

	sb.WriteString("\nKnown personal details:\n")
	writePersonal(&sb, sctx.Personal)

	if len(sctx.Failed) > 0 {
		sb.WriteString("\nAlready tried (do NOT repeat any of these):\n")
		for _, rec := range sctx.Failed {
			fmt.Fprintf(&sb, "Round %d (%s): %s\n",
				rec.AttemptNumber,
				rec.Candidates.Provenance,
				strings.Join(rec.Candidates.Candidates, ", "))
		}
	}

	fmt.Fprintf(&sb, `
Respond with ONLY valid JSON in this format:
{
  "passwords": ["<up to %d new candidates, most likely first>"],
  "rationale": "<one sentence on the pattern you used>",
  "confidence": <0.0 to 1.0>
}`, maxAICandidates)
	return sb.String()
}

func writePersonal(sb *strings.Builder, p model.PersonalData) {
	if p.Empty() {
		sb.WriteString("- none provided\n")
		return
	}
	write := func(label, value string) {
		if value != "" {
			fmt.Fprintf(sb, "- %s: %s\n", label, value)
		}
	}
	write("Name", p.Name)
	write("Date of birth", p.DateOfBirth)
	write("Phone", p.Phone)
	write("Tax ID", p.TaxID)
	write("Account number", p.AccountNumber)
	if len(p.PolicyNumbers) > 0 {
		write("Policy/folio numbers", strings.Join(p.PolicyNumbers, ", "))
	}
	write("IFSC code", p.IFSCCode)
}

// parseCandidateSet extracts the structured block from free-form model
// output. Markdown fences and surrounding prose are tolerated.
func parseCandidateSet(text string) (model.PasswordCandidateSet, bool) {
	cleaned := cleanJSON(text)

	var raw struct {
		Passwords  []string `json:"passwords"`
		Rationale  string   `json:"rationale"`
		Confidence float64  `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		zap.L().Debug("candidates: json parse failed", zap.Error(err))
		return model.PasswordCandidateSet{}, false
	}
	if len(raw.Passwords) == 0 {
		return model.PasswordCandidateSet{}, false
	}
	return model.PasswordCandidateSet{
		Candidates: raw.Passwords,
		Provenance: model.ProvenanceAIGenerated,
		Rationale:  raw.Rationale,
		Confidence: raw.Confidence,
	}, true
}

// cleanJSON strips markdown fences and slices out the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
