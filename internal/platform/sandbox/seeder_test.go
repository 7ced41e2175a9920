package sandbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adamlmu/CDSS-mini-project-pt1/internal/domain/observation"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/domain/patient"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/clock"
)

type memPatientRepo struct {
	patients []*patient.Patient
}

func (m *memPatientRepo) Create(_ context.Context, p *patient.Patient) error {
	p.ID = uuid.New()
	cp := *p
	m.patients = append(m.patients, &cp)
	return nil
}

func (m *memPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	for _, p := range m.patients {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (m *memPatientRepo) GetByName(_ context.Context, first, last string) (*patient.Patient, error) {
	for _, p := range m.patients {
		if p.FirstName == first && p.LastName == last {
			return p, nil
		}
	}
	return nil, nil
}

func (m *memPatientRepo) List(_ context.Context, limit, offset int) ([]*patient.Patient, int, error) {
	return m.patients, len(m.patients), nil
}

type memFactRepo struct {
	facts []*observation.Fact
}

func (m *memFactRepo) Append(_ context.Context, f *observation.Fact) error {
	f.ID = uuid.New()
	cp := *f
	m.facts = append(m.facts, &cp)
	return nil
}

func (m *memFactRepo) FindCurrentContaining(_ context.Context, patientID uuid.UUID, loincNum string, at time.Time) (*observation.Fact, error) {
	for _, f := range m.facts {
		if f.PatientID == patientID && f.LoincNum == loincNum && f.Current() && f.ContainsValid(at) {
			return f, nil
		}
	}
	return nil, nil
}

func (m *memFactRepo) FindIntersecting(_ context.Context, patientID uuid.UUID, loincNum string, ws, we time.Time) ([]*observation.Fact, error) {
	var out []*observation.Fact
	for _, f := range m.facts {
		if f.PatientID == patientID && f.LoincNum == loincNum && f.IntersectsValid(ws, we) {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFactRepo) CloseTransaction(_ context.Context, id uuid.UUID, at time.Time) error {
	for _, f := range m.facts {
		if f.ID == id && f.TxnEnd == nil {
			f.TxnEnd = &at
			return nil
		}
	}
	return observation.ErrInvariantViolation
}

func (m *memFactRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestSeeder() (*Seeder, *memPatientRepo, *memFactRepo) {
	pr := &memPatientRepo{}
	fr := &memFactRepo{}
	clk := clock.Fixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	seeder := NewSeeder(
		patient.NewService(pr),
		observation.NewService(fr, clk, zerolog.Nop()),
		clk,
		zerolog.Nop(),
	)
	return seeder, pr, fr
}

func TestSeedCounts(t *testing.T) {
	seeder, pr, fr := newTestSeeder()
	cfg := DefaultSeedConfig()

	res, err := seeder.Seed(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if res.Patients != 10 {
		t.Errorf("seeded %d patients, want 10", res.Patients)
	}
	wantObs := 10 * len(defaultLabs) * cfg.MeasurementsPerLab
	if res.Observations != wantObs {
		t.Errorf("seeded %d observations, want %d", res.Observations, wantObs)
	}
	if len(pr.patients) != res.Patients || len(fr.facts) != res.Observations {
		t.Error("result counts do not match stored rows")
	}

	males, females := 0, 0
	for _, p := range pr.patients {
		switch p.Gender {
		case "M":
			males++
		case "F":
			females++
		}
	}
	if males != cfg.MalePatients || females != cfg.FemalePatients {
		t.Errorf("got %d male / %d female, want %d / %d", males, females, cfg.MalePatients, cfg.FemalePatients)
	}
}

func TestSeedIsDeterministic(t *testing.T) {
	fingerprint := func() string {
		seeder, pr, fr := newTestSeeder()
		if _, err := seeder.Seed(context.Background(), DefaultSeedConfig()); err != nil {
			t.Fatalf("Seed: %v", err)
		}
		var s string
		for _, p := range pr.patients {
			s += fmt.Sprintf("%s|%s|%s;", p.FullName(), p.Gender, p.BirthDate.Format("2006-01-02"))
		}
		for _, f := range fr.facts {
			s += fmt.Sprintf("%s|%.4f|%s;", f.LoincNum, f.Value, f.ValidStart.Format(time.RFC3339))
		}
		return s
	}

	if fingerprint() != fingerprint() {
		t.Error("same seed produced different data")
	}
}

func TestSeedCustomLabTable(t *testing.T) {
	seeder, _, fr := newTestSeeder()
	cfg := DefaultSeedConfig()
	cfg.Labs = []LabProfile{{LoincNum: "8310-5", Min: 36, Max: 38}}

	res, err := seeder.Seed(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if res.Observations != 10*cfg.MeasurementsPerLab {
		t.Errorf("seeded %d observations, want %d", res.Observations, 10*cfg.MeasurementsPerLab)
	}
	for _, f := range fr.facts {
		if f.LoincNum != "8310-5" {
			t.Fatalf("unexpected code %s with custom lab table", f.LoincNum)
		}
	}
}

func TestSeedValuesWithinProfileRanges(t *testing.T) {
	seeder, _, fr := newTestSeeder()
	if _, err := seeder.Seed(context.Background(), DefaultSeedConfig()); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	ranges := make(map[string]LabProfile, len(defaultLabs))
	for _, lab := range defaultLabs {
		ranges[lab.LoincNum] = lab
	}
	for _, f := range fr.facts {
		lab, ok := ranges[f.LoincNum]
		if !ok {
			t.Fatalf("unexpected code %s", f.LoincNum)
		}
		if f.Value < lab.Min || f.Value > lab.Max {
			t.Errorf("%s value %.2f outside [%.2f, %.2f]", f.LoincNum, f.Value, lab.Min, lab.Max)
		}
	}
}
