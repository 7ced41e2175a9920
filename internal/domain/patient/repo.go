package patient

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	// GetByName finds a patient by exact first+last name match; nil when
	// there is none.
	GetByName(ctx context.Context, firstName, lastName string) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}
