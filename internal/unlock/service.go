package unlock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paperkey/unlock-cli/internal/model"
)

// Journal records one audit row per terminal session. Rows carry counts and
// outcomes only — candidate strings and passwords never reach the journal.
type Journal interface {
	CreateSession(ctx context.Context, rec model.SessionRecord) error
}

// Service runs unlock sessions and journals their terminal outcomes.
type Service struct {
	orch    *Orchestrator
	journal Journal
}

// NewService creates a Service. journal may be nil to disable the audit log.
func NewService(orch *Orchestrator, journal Journal) *Service {
	return &Service{orch: orch, journal: journal}
}

// Run executes one session and, unless it was cancelled, writes its journal
// row. A journal write failure is logged but never fails the session: the
// caller already has the result, the audit row is secondary.
func (s *Service) Run(ctx context.Context, req model.UnlockRequest) (model.UnlockResult, error) {
	start := time.Now()
	res, err := s.orch.Unlock(ctx, req)
	if err != nil {
		return res, err
	}

	if s.journal != nil {
		rec := sessionRecord(req, res, time.Since(start))
		if jerr := s.journal.CreateSession(ctx, rec); jerr != nil {
			zap.L().Warn("unlock: journal write failed",
				zap.String("session_id", rec.ID),
				zap.Error(jerr))
		}
	}
	return res, nil
}

func sessionRecord(req model.UnlockRequest, res model.UnlockResult, elapsed time.Duration) model.SessionRecord {
	status := model.SessionFailed
	switch {
	case res.Success && res.CandidatesTried == 0:
		status = model.SessionOpen
	case res.Success:
		status = model.SessionUnlocked
	}
	return model.SessionRecord{
		ID:              uuid.NewString(),
		OwnerID:         req.OwnerID,
		Filename:        req.Filename,
		MIMEType:        req.MIMEType,
		Status:          status,
		FailureReason:   res.FailureReason,
		CandidatesTried: res.CandidatesTried,
		Rounds:          res.Rounds,
		CharCount:       res.Outcome.CharCount,
		DurationMs:      elapsed.Milliseconds(),
		CreatedAt:       time.Now().UTC(),
	}
}
