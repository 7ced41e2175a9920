package observation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/clock"
)

// Service hosts the temporal engines. All timestamps for one logical
// operation come from a single Clock reading, so the close and the insert of
// a retro-update share the same transaction instant.
type Service struct {
	repo  Repository
	clock clock.Clock
	log   zerolog.Logger
}

func NewService(repo Repository, clk clock.Clock, log zerolog.Logger) *Service {
	return &Service{repo: repo, clock: clk, log: log}
}

// Create records a direct observation entry. The fact is born current:
// txn_start is now, txn_end open.
func (s *Service) Create(ctx context.Context, patientID uuid.UUID, loincNum string, value float64, validStart time.Time, validEnd *time.Time) (*Fact, error) {
	f := &Fact{
		PatientID:  patientID,
		LoincNum:   loincNum,
		Value:      value,
		ValidStart: validStart,
		ValidEnd:   validEnd,
		TxnStart:   s.clock.Now(),
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Append(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// History returns every fact whose valid interval intersects
// [windowStart, windowEnd), superseded rows included: the audit trail is the
// point. Results come back in clinical chronology (valid start ascending)
// with belief-revision order (transaction start) as the tie-break. An empty
// result is not an error.
func (s *Service) History(ctx context.Context, patientID uuid.UUID, loincNum string, windowStart, windowEnd time.Time) ([]*Fact, error) {
	if windowEnd.Before(windowStart) {
		return nil, fmt.Errorf("history window inverted: %s after %s",
			windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339))
	}
	return s.repo.FindIntersecting(ctx, patientID, loincNum, windowStart, windowEnd)
}

// RetroUpdate corrects the value of the fact currently believed for the
// target instant. The predecessor's transaction interval is closed and a
// successor with the same valid interval and the new value is appended, both
// inside one store transaction. Returns the successor's ID.
func (s *Service) RetroUpdate(ctx context.Context, patientID uuid.UUID, loincNum string, target time.Time, newValue float64) (uuid.UUID, error) {
	now := s.clock.Now()

	pre, err := s.repo.FindCurrentContaining(ctx, patientID, loincNum, target)
	if err != nil {
		return uuid.Nil, s.noteInvariant(err, patientID, loincNum, target)
	}
	if pre == nil {
		return uuid.Nil, ErrNoMatchingFact
	}

	var newID uuid.UUID
	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.FindCurrentContaining(ctx, patientID, loincNum, target)
		if err != nil {
			return s.noteInvariant(err, patientID, loincNum, target)
		}
		if cur == nil || cur.ID != pre.ID {
			// Another writer superseded or retracted the row since our
			// lookup; acting on stale intent is the caller's call to make.
			return ErrConflict
		}

		if err := s.repo.CloseTransaction(ctx, cur.ID, now); err != nil {
			return s.noteInvariant(err, patientID, loincNum, target)
		}

		successor := &Fact{
			PatientID:  cur.PatientID,
			LoincNum:   cur.LoincNum,
			Value:      newValue,
			ValidStart: cur.ValidStart,
			ValidEnd:   cur.ValidEnd,
			TxnStart:   now,
		}
		if err := s.repo.Append(ctx, successor); err != nil {
			return err
		}
		newID = successor.ID
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return newID, nil
}

// RetroDelete retracts the currency of the fact covering the target instant.
// Its transaction interval is closed and no successor is inserted; the row
// remains visible to history queries. Returns the closed fact's ID.
func (s *Service) RetroDelete(ctx context.Context, patientID uuid.UUID, loincNum string, target time.Time) (uuid.UUID, error) {
	now := s.clock.Now()

	pre, err := s.repo.FindCurrentContaining(ctx, patientID, loincNum, target)
	if err != nil {
		return uuid.Nil, s.noteInvariant(err, patientID, loincNum, target)
	}
	if pre == nil {
		return uuid.Nil, ErrNoMatchingFact
	}

	err = s.repo.InTx(ctx, func(ctx context.Context) error {
		cur, err := s.repo.FindCurrentContaining(ctx, patientID, loincNum, target)
		if err != nil {
			return s.noteInvariant(err, patientID, loincNum, target)
		}
		if cur == nil || cur.ID != pre.ID {
			return ErrConflict
		}
		if err := s.repo.CloseTransaction(ctx, cur.ID, now); err != nil {
			return s.noteInvariant(err, patientID, loincNum, target)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return pre.ID, nil
}

// noteInvariant logs invariant violations at error level before passing them
// through; store corruption needs operator attention, not a silent 500.
func (s *Service) noteInvariant(err error, patientID uuid.UUID, loincNum string, target time.Time) error {
	if errors.Is(err, ErrInvariantViolation) {
		s.log.Error().
			Err(err).
			Str("patient_id", patientID.String()).
			Str("loinc_num", loincNum).
			Time("target", target).
			Msg("fact store invariant violation")
	}
	return err
}
