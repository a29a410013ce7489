// Package unlock drives the session state machine: probe the file, test the
// caller's password if one was given, otherwise run bounded rounds of
// generated candidates until the file opens or every strategy is exhausted.
package unlock

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/paperkey/unlock-cli/internal/candidates"
	"github.com/paperkey/unlock-cli/internal/config"
	"github.com/paperkey/unlock-cli/internal/extractor"
	"github.com/paperkey/unlock-cli/internal/lockstate"
	"github.com/paperkey/unlock-cli/internal/model"
	"github.com/paperkey/unlock-cli/internal/monitoring"
)

// State labels one phase of an unlock session.
type State string

const (
	StateChecking             State = "checking"
	StateTestingUserPassword  State = "testing-user-password"
	StateGeneratingCandidates State = "generating-candidates"
	StateTestingCandidates    State = "testing-candidates"
	StateUnlocked             State = "unlocked"
	StateFailed               State = "failed"
)

// Orchestrator coordinates the extractor, classifier and candidate
// generator for unlock sessions. One instance serves the whole process;
// per-session state lives on the session value.
type Orchestrator struct {
	runner    extractor.Runner
	generator *candidates.Generator
	maxRounds int
	metrics   *monitoring.Collector
}

// New creates an Orchestrator. metrics may be nil.
func New(runner extractor.Runner, generator *candidates.Generator, cfg config.UnlockConfig, metrics *monitoring.Collector) *Orchestrator {
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 3
	}
	return &Orchestrator{
		runner:    runner,
		generator: generator,
		maxRounds: maxRounds,
		metrics:   metrics,
	}
}

// session holds the state owned by one unlock attempt. Never shared across
// goroutines, so no locking.
type session struct {
	id       string
	req      model.UnlockRequest
	state    State
	seen     *candidates.SeenSet
	attempts []model.UnlockAttemptRecord
	tried    int
	rounds   int
	probe    model.ExtractionOutcome
	log      *zap.Logger
}

// Unlock runs one session to a terminal state. The only error it returns is
// context cancellation; every domain failure is expressed in the result.
func (o *Orchestrator) Unlock(ctx context.Context, req model.UnlockRequest) (model.UnlockResult, error) {
	s := &session{
		id:    uuid.NewString(),
		req:   req,
		state: StateChecking,
		seen:  candidates.NewSeenSet(),
	}
	s.log = zap.L().With(
		zap.String("session_id", s.id),
		zap.String("filename", req.Filename),
	)
	if o.metrics != nil {
		o.metrics.SessionStarted()
	}
	s.log.Info("unlock session started", zap.Bool("password_supplied", req.Password != ""))

	// Probe without a password. A supplied password is only spent in
	// TestingUserPassword, so a wrong one cannot mask an already-open file.
	s.probe = o.test(ctx, s, "")
	if ctx.Err() != nil {
		return model.UnlockResult{}, eris.Wrap(ctx.Err(), "unlock: session cancelled")
	}
	status := lockstate.Classify(s.probe)

	switch {
	case status.CanOpen:
		s.state = StateUnlocked
		if o.metrics != nil {
			o.metrics.SessionOpen()
		}
		s.log.Info("file opened without a password", zap.Int("chars", s.probe.CharCount))
		return o.result(s, "", s.probe), nil

	case !status.IsLocked:
		return o.fail(s, model.FailureUnrecoverable, s.probe), nil

	case req.Password != "":
		return o.testUserPassword(ctx, s)

	default:
		return o.runCandidateRounds(ctx, s)
	}
}

// testUserPassword tries the supplied password and its case variants, in
// order. All failing is terminal: the session never escalates to guessing
// when the user actively supplied a password, so a typo surfaces as a typo
// instead of being silently worked around.
func (o *Orchestrator) testUserPassword(ctx context.Context, s *session) (model.UnlockResult, error) {
	s.state = StateTestingUserPassword
	set := candidates.UserVariants(s.req.Password)

	password, outcome, ok := o.testSet(ctx, s, set)
	if ctx.Err() != nil {
		return model.UnlockResult{}, eris.Wrap(ctx.Err(), "unlock: session cancelled")
	}
	if ok {
		s.state = StateUnlocked
		if o.metrics != nil {
			o.metrics.SessionUnlocked()
		}
		s.log.Info("unlocked with supplied password variant")
		return o.result(s, password, outcome), nil
	}
	return o.fail(s, model.FailureIncorrectPassword, outcome), nil
}

// runCandidateRounds generates and tests candidate sets for up to maxRounds
// rounds. First success short-circuits everything.
func (o *Orchestrator) runCandidateRounds(ctx context.Context, s *session) (model.UnlockResult, error) {
	for round := 1; round <= o.maxRounds; round++ {
		if ctx.Err() != nil {
			return model.UnlockResult{}, eris.Wrap(ctx.Err(), "unlock: session cancelled")
		}
		s.state = StateGeneratingCandidates
		s.rounds = round

		set := o.generator.ForRound(ctx, round, candidates.SessionContext{
			Filename:    s.req.Filename,
			Diagnostics: s.probe.RawDiagnostics,
			Personal:    s.req.Personal,
			Failed:      s.attempts,
		}, s.seen)
		s.log.Info("candidate round generated",
			zap.Int("round", round),
			zap.String("provenance", string(set.Provenance)),
			zap.Int("candidates", len(set.Candidates)))
		if len(set.Candidates) == 0 {
			continue
		}

		s.state = StateTestingCandidates
		password, outcome, ok := o.testSet(ctx, s, set)
		if ctx.Err() != nil {
			return model.UnlockResult{}, eris.Wrap(ctx.Err(), "unlock: session cancelled")
		}
		if ok {
			s.state = StateUnlocked
			if o.metrics != nil {
				o.metrics.SessionUnlocked()
			}
			s.log.Info("unlocked with generated candidate",
				zap.Int("round", round),
				zap.String("provenance", string(set.Provenance)),
				zap.Int("candidates_tried", s.tried))
			return o.result(s, password, outcome), nil
		}
	}
	return o.fail(s, model.FailureExhausted, model.ExtractionOutcome{}), nil
}

// testSet tests every candidate in order, appending an attempt record. It
// returns the winning password and outcome, or ok=false when the whole set
// failed or the context was cancelled mid-set.
func (o *Orchestrator) testSet(ctx context.Context, s *session, set model.PasswordCandidateSet) (string, model.ExtractionOutcome, bool) {
	record := model.UnlockAttemptRecord{
		AttemptNumber: len(s.attempts) + 1,
		Candidates:    set,
		Outcome:       model.AttemptExhausted,
	}
	var last model.ExtractionOutcome

	for _, candidate := range set.Candidates {
		if ctx.Err() != nil {
			record.Outcome = model.AttemptError
			s.attempts = append(s.attempts, record)
			return "", last, false
		}
		s.seen.Add(candidate)
		s.tried++
		if o.metrics != nil {
			o.metrics.CandidateTested()
		}

		last = o.test(ctx, s, candidate)
		if lockstate.Classify(last).CanOpen {
			record.Outcome = model.AttemptSuccess
			record.WinningPassword = candidate
			s.attempts = append(s.attempts, record)
			return candidate, last, true
		}
	}
	s.attempts = append(s.attempts, record)
	return "", last, false
}

// test runs one extractor invocation for this session.
func (o *Orchestrator) test(ctx context.Context, s *session, password string) model.ExtractionOutcome {
	outcome := o.runner.Extract(ctx, extractor.ExtractRequest{
		FileBytes: s.req.FileBytes,
		Filename:  s.req.Filename,
		MIMEType:  s.req.MIMEType,
		Password:  password,
	})
	if outcome.ErrorDetail == "timeout" && o.metrics != nil {
		o.metrics.ExtractorTimeout()
	}
	return outcome
}

func (o *Orchestrator) result(s *session, password string, outcome model.ExtractionOutcome) model.UnlockResult {
	return model.UnlockResult{
		Success:         true,
		Password:        password,
		Outcome:         outcome,
		CandidatesTried: s.tried,
		Rounds:          s.rounds,
	}
}

func (o *Orchestrator) fail(s *session, reason model.FailureReason, outcome model.ExtractionOutcome) model.UnlockResult {
	s.state = StateFailed
	if o.metrics != nil {
		o.metrics.SessionFailed()
	}
	s.log.Warn("unlock session failed",
		zap.String("reason", string(reason)),
		zap.Int("candidates_tried", s.tried),
		zap.Int("rounds", s.rounds))
	return model.UnlockResult{
		Success:         false,
		Outcome:         outcome,
		FailureReason:   reason,
		CandidatesTried: s.tried,
		Rounds:          s.rounds,
	}
}
