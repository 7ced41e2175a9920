package loinc

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

type Service struct {
	repo ConceptRepository
	log  zerolog.Logger
}

func NewService(repo ConceptRepository, log zerolog.Logger) *Service {
	return &Service{repo: repo, log: log.With().Str("component", "loinc").Logger()}
}

// DisplayName returns the common name for a code, or the code itself when
// the dictionary has no entry. Unknown codes are not an error: observations
// may legitimately use codes that were never imported.
func (s *Service) DisplayName(ctx context.Context, loincNum string) (string, error) {
	c, err := s.repo.GetByCode(ctx, strings.TrimSpace(loincNum))
	if err != nil {
		return "", err
	}
	if c == nil {
		return loincNum, nil
	}
	return c.CommonName, nil
}

func (s *Service) Get(ctx context.Context, loincNum string) (*Concept, error) {
	return s.repo.GetByCode(ctx, strings.TrimSpace(loincNum))
}

func (s *Service) Search(ctx context.Context, query string, limit, offset int) ([]*Concept, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.Search(ctx, strings.TrimSpace(query), limit, offset)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) Add(ctx context.Context, c *Concept) error {
	c.LoincNum = strings.TrimSpace(c.LoincNum)
	c.CommonName = strings.TrimSpace(c.CommonName)
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid concept: %w", err)
	}
	return s.repo.Upsert(ctx, c)
}
