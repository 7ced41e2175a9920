// Package sandbox generates synthetic demo data: fake patients with a
// plausible history of lab measurements. The output is reproducible for a
// given seed, which makes demos and integration tests stable.
package sandbox

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamlmu/CDSS-mini-project-pt1/internal/domain/observation"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/domain/patient"
	"github.com/adamlmu/CDSS-mini-project-pt1/internal/platform/clock"
)

// SeedConfig controls the volume and shape of generated synthetic data.
type SeedConfig struct {
	MalePatients       int   `json:"male_patients"`
	FemalePatients     int   `json:"female_patients"`
	MeasurementsPerLab int   `json:"measurements_per_lab"`
	HistoryDays        int   `json:"history_days"`
	Seed               int64 `json:"seed"`

	// Labs overrides the built-in measurement table when non-empty.
	Labs []LabProfile `json:"labs,omitempty"`
}

func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		MalePatients:       5,
		FemalePatients:     5,
		MeasurementsPerLab: 4,
		HistoryDays:        30,
		Seed:               1,
	}
}

var (
	maleFirstNames   = []string{"David", "Yosef", "Moshe", "Daniel", "Avi", "Noam", "Eitan", "Omer"}
	femaleFirstNames = []string{"Sara", "Noa", "Maya", "Tamar", "Yael", "Shira", "Michal", "Dana"}
	lastNames        = []string{"Levi", "Cohen", "Mizrahi", "Peretz", "Biton", "Avraham", "Friedman", "Katz"}
)

// LabProfile describes one lab test the seeder generates values for.
type LabProfile struct {
	LoincNum string  `json:"loinc_num"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

// Common labs from the LOINC dictionary with physiologic value ranges.
var defaultLabs = []LabProfile{
	{LoincNum: "6690-2", Min: 4000, Max: 11000}, // leukocytes, cells/uL
	{LoincNum: "2019-8", Min: 32, Max: 48},      // PaCO2, mmHg
	{LoincNum: "30313-1", Min: 11, Max: 17},     // hemoglobin, g/dL
	{LoincNum: "2160-0", Min: 0.6, Max: 1.3},    // creatinine, mg/dL
}

// Seeder writes synthetic patients and observations through the regular
// domain services so generated data obeys the same validation as real input.
type Seeder struct {
	patients     *patient.Service
	observations *observation.Service
	clk          clock.Clock
	log          zerolog.Logger
}

func NewSeeder(patients *patient.Service, observations *observation.Service, clk clock.Clock, log zerolog.Logger) *Seeder {
	return &Seeder{
		patients:     patients,
		observations: observations,
		clk:          clk,
		log:          log.With().Str("component", "seeder").Logger(),
	}
}

// Result summarizes what a seeding run produced.
type Result struct {
	Patients     int `json:"patients"`
	Observations int `json:"observations"`
}

// Seed generates cfg.MalePatients + cfg.FemalePatients patients, each with
// MeasurementsPerLab observations per lab spread over the last HistoryDays
// days. The same seed always yields the same names, values, and timestamps.
func (s *Seeder) Seed(ctx context.Context, cfg SeedConfig) (*Result, error) {
	rng := rand.New(rand.NewSource(cfg.Seed))
	now := s.clk.Now()

	var res Result
	for i := 0; i < cfg.MalePatients+cfg.FemalePatients; i++ {
		gender := "M"
		first := maleFirstNames[rng.Intn(len(maleFirstNames))]
		if i >= cfg.MalePatients {
			gender = "F"
			first = femaleFirstNames[rng.Intn(len(femaleFirstNames))]
		}
		p := &patient.Patient{
			FirstName: first,
			LastName:  lastNames[rng.Intn(len(lastNames))],
			Gender:    gender,
			BirthDate: randomBirthDate(rng, now),
		}
		if err := s.patients.CreatePatient(ctx, p); err != nil {
			return &res, fmt.Errorf("seed patient %d: %w", i, err)
		}
		res.Patients++

		n, err := s.seedObservations(ctx, rng, p, cfg, now)
		if err != nil {
			return &res, err
		}
		res.Observations += n
	}

	s.log.Info().Int("patients", res.Patients).Int("observations", res.Observations).Msg("sandbox data seeded")
	return &res, nil
}

func (s *Seeder) seedObservations(ctx context.Context, rng *rand.Rand, p *patient.Patient, cfg SeedConfig, now time.Time) (int, error) {
	count := 0
	labs := cfg.Labs
	if len(labs) == 0 {
		labs = defaultLabs
	}
	for _, lab := range labs {
		for j := 0; j < cfg.MeasurementsPerLab; j++ {
			// Spread measurements back in time, newest last so each
			// append closes over the previous interval naturally.
			daysBack := cfg.HistoryDays * (cfg.MeasurementsPerLab - j) / (cfg.MeasurementsPerLab + 1)
			start := now.AddDate(0, 0, -daysBack).Add(time.Duration(rng.Intn(12)) * time.Hour)

			var end *time.Time
			if j < cfg.MeasurementsPerLab-1 {
				e := start.Add(time.Duration(24+rng.Intn(48)) * time.Hour)
				end = &e
			}

			value := lab.Min + rng.Float64()*(lab.Max-lab.Min)
			if _, err := s.observations.Create(ctx, p.ID, lab.LoincNum, value, start, end); err != nil {
				return count, fmt.Errorf("seed observation for %s: %w", p.FullName(), err)
			}
			count++
		}
	}
	return count, nil
}

func randomBirthDate(rng *rand.Rand, now time.Time) time.Time {
	age := 20 + rng.Intn(60)
	return now.AddDate(-age, 0, -rng.Intn(365)).Truncate(24 * time.Hour)
}
