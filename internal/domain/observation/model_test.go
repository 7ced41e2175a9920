package observation

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestContainsValid_HalfOpen(t *testing.T) {
	start := ts("2016-05-17T10:00:00Z")
	end := start.Add(time.Hour)
	bounded := &Fact{ValidStart: start, ValidEnd: &end}
	open := &Fact{ValidStart: start}

	tests := []struct {
		name string
		f    *Fact
		at   time.Time
		want bool
	}{
		{"bounded at start", bounded, start, true},
		{"bounded inside", bounded, start.Add(time.Minute), true},
		{"bounded at end excluded", bounded, end, false},
		{"bounded before start", bounded, start.Add(-time.Nanosecond), false},
		{"open at start", open, start, true},
		{"open far future", open, start.Add(24 * 365 * time.Hour), true},
		{"open before start", open, start.Add(-time.Second), false},
	}
	for _, tt := range tests {
		if got := tt.f.ContainsValid(tt.at); got != tt.want {
			t.Errorf("%s: ContainsValid = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIntersectsValid(t *testing.T) {
	start := ts("2016-05-17T10:00:00Z")
	end := start.Add(time.Hour)
	bounded := &Fact{ValidStart: start, ValidEnd: &end}
	open := &Fact{ValidStart: start}

	tests := []struct {
		name   string
		f      *Fact
		ws, we time.Time
		want   bool
	}{
		{"window covers interval", bounded, start.Add(-time.Hour), end.Add(time.Hour), true},
		{"window inside interval", bounded, start.Add(time.Minute), start.Add(2 * time.Minute), true},
		{"window ends at valid_start", bounded, start.Add(-time.Hour), start, false},
		{"window starts at valid_end", bounded, end, end.Add(time.Hour), false},
		{"window before", bounded, start.Add(-2 * time.Hour), start.Add(-time.Hour), false},
		{"open fact, late window", open, start.Add(100 * time.Hour), start.Add(101 * time.Hour), true},
		{"empty window inside", bounded, start.Add(time.Minute), start.Add(time.Minute), true},
		{"empty window at start", bounded, start, start, true},
		{"empty window at end", bounded, end, end, false},
		{"empty window before", bounded, start.Add(-time.Second), start.Add(-time.Second), false},
	}
	for _, tt := range tests {
		if got := tt.f.IntersectsValid(tt.ws, tt.we); got != tt.want {
			t.Errorf("%s: IntersectsValid = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFactValidate(t *testing.T) {
	start := ts("2016-05-17T10:00:00Z")
	end := start.Add(time.Hour)
	badEnd := start.Add(-time.Hour)
	patient := uuid.New()

	ok := Fact{PatientID: patient, LoincNum: wbc, ValidStart: start, ValidEnd: &end, TxnStart: start}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid fact rejected: %v", err)
	}

	tests := []struct {
		name string
		f    Fact
	}{
		{"missing patient", Fact{LoincNum: wbc, ValidStart: start, TxnStart: start}},
		{"missing code", Fact{PatientID: patient, ValidStart: start, TxnStart: start}},
		{"missing valid_start", Fact{PatientID: patient, LoincNum: wbc, TxnStart: start}},
		{"inverted valid interval", Fact{PatientID: patient, LoincNum: wbc, ValidStart: start, ValidEnd: &badEnd, TxnStart: start}},
		{"inverted txn interval", Fact{PatientID: patient, LoincNum: wbc, ValidStart: start, TxnStart: start, TxnEnd: &badEnd}},
	}
	for _, tt := range tests {
		if err := tt.f.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestCurrent(t *testing.T) {
	now := ts("2016-05-17T10:00:00Z")
	f := Fact{TxnStart: now}
	if !f.Current() {
		t.Error("fact with open txn interval should be current")
	}
	f.TxnEnd = &now
	if f.Current() {
		t.Error("fact with closed txn interval should not be current")
	}
}
