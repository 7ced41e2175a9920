package loinc

import "context"

type ConceptRepository interface {
	// Upsert inserts or replaces a dictionary entry.
	Upsert(ctx context.Context, c *Concept) error
	// BulkUpsert loads a batch of entries; used by the CSV importer.
	BulkUpsert(ctx context.Context, concepts []*Concept) error
	// GetByCode returns the entry for a code, or nil.
	GetByCode(ctx context.Context, loincNum string) (*Concept, error)
	// Search matches codes or names by substring, paginated.
	Search(ctx context.Context, query string, limit, offset int) ([]*Concept, int, error)
	// Count returns the dictionary size.
	Count(ctx context.Context) (int, error)
}
