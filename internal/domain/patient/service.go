package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	repo PatientRepository
}

func NewService(repo PatientRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Gender = strings.ToUpper(strings.TrimSpace(p.Gender))
	if err := p.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

// ResolveByFullName looks up a patient addressed as "First Last". The legacy
// terminal interface used this form for retro operations.
func (s *Service) ResolveByFullName(ctx context.Context, fullName string) (*Patient, error) {
	parts := strings.SplitN(strings.TrimSpace(fullName), " ", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("full name must be \"First Last\", got %q", fullName)
	}
	return s.repo.GetByName(ctx, parts[0], strings.TrimSpace(parts[1]))
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}
