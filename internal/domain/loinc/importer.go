package loinc

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const importBatchSize = 500

// Importer loads the LOINC dictionary from the official CSV export. Only the
// LOINC_NUM and LONG_COMMON_NAME columns are read; the rest of the export is
// ignored.
type Importer struct {
	repo ConceptRepository
	log  zerolog.Logger

	// Force reloads the dictionary even when rows already exist.
	Force bool
}

func NewImporter(repo ConceptRepository, log zerolog.Logger) *Importer {
	return &Importer{repo: repo, log: log.With().Str("component", "loinc-import").Logger()}
}

// ImportFile opens path and imports its contents. Returns the number of
// concepts loaded; zero with a nil error means the dictionary was already
// seeded and the import was skipped.
func (im *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open loinc csv: %w", err)
	}
	defer f.Close()
	return im.Import(ctx, f)
}

func (im *Importer) Import(ctx context.Context, r io.Reader) (int, error) {
	if !im.Force {
		n, err := im.repo.Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("check dictionary: %w", err)
		}
		if n > 0 {
			im.log.Info().Int("existing", n).Msg("dictionary already seeded, skipping import")
			return 0, nil
		}
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	codeIdx, nameIdx := -1, -1
	for i, col := range header {
		switch strings.ToUpper(strings.TrimSpace(col)) {
		case "LOINC_NUM":
			codeIdx = i
		case "LONG_COMMON_NAME":
			nameIdx = i
		}
	}
	if codeIdx < 0 || nameIdx < 0 {
		return 0, fmt.Errorf("csv missing LOINC_NUM or LONG_COMMON_NAME column")
	}

	total := 0
	batch := make([]*Concept, 0, importBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.repo.BulkUpsert(ctx, batch); err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, fmt.Errorf("read csv row: %w", err)
		}
		if codeIdx >= len(rec) || nameIdx >= len(rec) {
			continue
		}
		c := &Concept{
			LoincNum:   strings.TrimSpace(rec[codeIdx]),
			CommonName: strings.TrimSpace(rec[nameIdx]),
		}
		if c.Validate() != nil {
			continue
		}
		batch = append(batch, c)
		if len(batch) >= importBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}

	im.log.Info().Int("loaded", total).Msg("loinc dictionary imported")
	return total, nil
}
