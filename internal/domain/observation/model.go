// Package observation implements the bitemporal fact engine: every measured
// value carries a valid-time interval (when the fact is clinically true) and
// a transaction-time interval (when the store believed it). Corrections and
// retractions never overwrite; they close the transaction interval of the
// affected row and, for corrections, append a successor.
package observation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fact maps to the observation table: one bitemporal measurement row.
// A nil ValidEnd means the measurement is still in effect; a nil TxnEnd means
// the row is the current belief for its valid-time slice. Once TxnEnd is set
// the row is immutable and retained for audit.
type Fact struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	PatientID  uuid.UUID  `db:"patient_id" json:"patient_id"`
	LoincNum   string     `db:"loinc_num" json:"loinc_num"`
	Value      float64    `db:"value_num" json:"value_num"`
	ValidStart time.Time  `db:"valid_start" json:"valid_start"`
	ValidEnd   *time.Time `db:"valid_end" json:"valid_end,omitempty"`
	TxnStart   time.Time  `db:"txn_start" json:"txn_start"`
	TxnEnd     *time.Time `db:"txn_end" json:"txn_end,omitempty"`
}

// Current reports whether the row's transaction interval is still open.
func (f *Fact) Current() bool { return f.TxnEnd == nil }

// ContainsValid reports whether t falls in the half-open valid interval
// [ValidStart, ValidEnd). An unset ValidEnd is unbounded.
func (f *Fact) ContainsValid(t time.Time) bool {
	if t.Before(f.ValidStart) {
		return false
	}
	return f.ValidEnd == nil || t.Before(*f.ValidEnd)
}

// IntersectsValid reports whether the half-open valid interval intersects
// [windowStart, windowEnd). An empty window (windowStart == windowEnd) is an
// instant snapshot and uses containment.
func (f *Fact) IntersectsValid(windowStart, windowEnd time.Time) bool {
	if windowStart.Equal(windowEnd) {
		return f.ContainsValid(windowStart)
	}
	if !f.ValidStart.Before(windowEnd) {
		return false
	}
	return f.ValidEnd == nil || f.ValidEnd.After(windowStart)
}

// Validate checks the interval invariants before a row is persisted.
func (f *Fact) Validate() error {
	if f.PatientID == uuid.Nil {
		return fmt.Errorf("patient id is required")
	}
	if f.LoincNum == "" {
		return fmt.Errorf("loinc code is required")
	}
	if f.ValidStart.IsZero() {
		return fmt.Errorf("valid start is required")
	}
	if f.ValidEnd != nil && f.ValidEnd.Before(f.ValidStart) {
		return fmt.Errorf("valid interval inverted: start %s after end %s",
			f.ValidStart.Format(time.RFC3339), f.ValidEnd.Format(time.RFC3339))
	}
	if f.TxnEnd != nil && f.TxnEnd.Before(f.TxnStart) {
		return fmt.Errorf("transaction interval inverted: start %s after end %s",
			f.TxnStart.Format(time.RFC3339), f.TxnEnd.Format(time.RFC3339))
	}
	return nil
}
