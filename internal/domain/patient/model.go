// Package patient manages patient identity. Facts reference patients by ID
// only; nothing here participates in the temporal mutation protocol.
package patient

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Gender    string    `db:"gender" json:"gender"`
	BirthDate time.Time `db:"birth_date" json:"birth_date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

func (p *Patient) Validate() error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first and last name are required")
	}
	if p.Gender != "M" && p.Gender != "F" {
		return fmt.Errorf("gender must be M or F, got %q", p.Gender)
	}
	if p.BirthDate.IsZero() {
		return fmt.Errorf("birth date is required")
	}
	return nil
}
