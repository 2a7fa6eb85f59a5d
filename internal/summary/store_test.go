package summary

import (
	"bytes"
	"encoding/csv"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/banshee-data/reservoir/internal/reserr"
)

var start2010 = time.Date(2010, time.January, 1, 0, 0, 0, 0, time.UTC)

// monthlyStore returns a store whose master axis holds the first of every
// month from start2010 for months+1 samples.
func monthlyStore(t *testing.T, months int) *Store {
	t.Helper()
	axis := make([]float64, months+1)
	for m := range axis {
		axis[m] = start2010.AddDate(0, m, 0).Sub(start2010).Hours() / 24
	}
	s, err := NewStore(start2010, axis)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

func TestNewStore_RejectsNonIncreasingAxis(t *testing.T) {
	for _, axis := range [][]float64{
		{0, 10, 10},
		{0, 5, 3},
		{0, math.NaN()},
	} {
		if _, err := NewStore(start2010, axis); !errors.Is(err, reserr.ErrMalformed) {
			t.Errorf("NewStore(%v) err = %v, want ErrMalformed", axis, err)
		}
	}
}

func TestResample_NoneIsIdentity(t *testing.T) {
	s := monthlyStore(t, 12)
	vals := ramp(13)
	if err := s.AddVector("FOPR", "SM3/DAY", vals); err != nil {
		t.Fatal(err)
	}
	got, err := s.Resample("FOPR", None)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(s.Axis(), got.Days); diff != "" {
		t.Errorf("days mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(vals, got.Values); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestResample_NoneSingleSample(t *testing.T) {
	s, err := NewStore(start2010, []float64{0})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddVector("X", "", []float64{3}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Resample("X", None)
	if err != nil {
		t.Fatalf("None with one sample: %v", err)
	}
	if got.Len() != 1 || got.Values[0] != 3 {
		t.Errorf("got %+v", got)
	}
	if _, err := s.Resample("X", Month); !errors.Is(err, reserr.ErrInsufficientData) {
		t.Errorf("Month with one sample err = %v, want ErrInsufficientData", err)
	}
}

func TestResample_YearCountsCalendarYears(t *testing.T) {
	end := time.Date(2012, time.June, 1, 0, 0, 0, 0, time.UTC)
	s, err := NewStore(start2010, []float64{0, end.Sub(start2010).Hours() / 24})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddVector("FOPT", "SM3", []float64{0, 100}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Resample("FOPT", Year)
	if err != nil {
		t.Fatal(err)
	}
	want := []time.Time{
		start2010,
		time.Date(2011, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2012, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, s.Dates(got)); diff != "" {
		t.Errorf("year boundaries (-want +got):\n%s", diff)
	}
}

func TestResample_MonthOverFiveYears(t *testing.T) {
	s := monthlyStore(t, 60)
	if err := s.AddVector("FOPR", "", ramp(61)); err != nil {
		t.Fatal(err)
	}
	got, err := s.Resample("FOPR", Month)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 61 {
		t.Fatalf("MONTH over 2010-01..2015-01 gave %d points, want 61", got.Len())
	}
	// Boundaries coincide with the stored samples.
	if diff := cmp.Diff(ramp(61), got.Values, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}

	q, err := s.Resample("FOPR", Quarter)
	if err != nil {
		t.Fatal(err)
	}
	if q.Len() != 21 {
		t.Errorf("QUARTER gave %d points, want 21", q.Len())
	}

	d, err := s.Resample("FOPR", Day)
	if err != nil {
		t.Fatal(err)
	}
	wantDays := int(time.Date(2015, time.January, 1, 0, 0, 0, 0, time.UTC).Sub(start2010).Hours()/24) + 1
	if d.Len() != wantDays {
		t.Errorf("DAY gave %d points, want %d", d.Len(), wantDays)
	}
}

func TestResample_InterpolatesAndClamps(t *testing.T) {
	// Stored from mid-January to mid-March; monthly boundaries start at
	// Jan 1 (before the first sample) and include Feb 1 and Mar 1.
	s, err := NewStore(start2010, []float64{14, 73})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddVector("WBHP", "BARSA", []float64{200, 259}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Resample("WBHP", Month)
	if err != nil {
		t.Fatal(err)
	}
	wantDays := []float64{0, 31, 59}
	wantVals := []float64{200, 217, 245}
	if diff := cmp.Diff(wantDays, got.Days); diff != "" {
		t.Errorf("days (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantVals, got.Values, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
	for _, v := range got.Values {
		if v < 200 || v > 259 {
			t.Errorf("value %g outside stored range", v)
		}
	}
}

func TestResample_Errors(t *testing.T) {
	s := monthlyStore(t, 3)
	if _, err := s.Resample("NOPE", Month); !errors.Is(err, reserr.ErrUnknownVector) {
		t.Errorf("unknown vector err = %v", err)
	}
	if _, err := s.Resample("NOPE", None); !errors.Is(err, reserr.ErrUnknownVector) {
		t.Errorf("unknown vector with None err = %v", err)
	}
	if err := s.AddVector("X", "", ramp(4)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Resample("X", Frequency(42)); !errors.Is(err, reserr.ErrMalformed) {
		t.Errorf("unsupported frequency err = %v", err)
	}
	if _, err := s.Resample("X", Frequency(-1)); !errors.Is(err, reserr.ErrMalformed) {
		t.Errorf("negative frequency err = %v", err)
	}
}

func TestResample_CacheInvalidatedByWrite(t *testing.T) {
	s := monthlyStore(t, 12)
	if err := s.AddVector("X", "", ramp(13)); err != nil {
		t.Fatal(err)
	}
	first, err := s.Resample("X", Quarter)
	if err != nil {
		t.Fatal(err)
	}
	// Mutating the returned series must not leak into the cache.
	first.Values[0] = -1

	again, err := s.Resample("X", Quarter)
	if err != nil {
		t.Fatal(err)
	}
	if again.Values[0] != 0 {
		t.Fatalf("cached series was aliased: %v", again.Values)
	}

	doubled := ramp(13)
	for i := range doubled {
		doubled[i] *= 2
	}
	if err := s.SetValues("X", "", doubled); err != nil {
		t.Fatal(err)
	}
	after, err := s.Resample("X", Quarter)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0, 6, 12, 18, 24}, after.Values, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("stale resample after SetValues (-want +got):\n%s", diff)
	}
}

func TestSetValues_RoundTrip(t *testing.T) {
	s := monthlyStore(t, 5)
	in := []float64{1, 2, 3, 4, 5, 6}
	if err := s.SetValues("WWCT:P1", "", in); err != nil {
		t.Fatal(err)
	}
	in[0] = 99 // caller keeps ownership

	got, err := s.VectorValues("WWCT:P1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1, 2, 3, 4, 5, 6}, got.Values); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
	v, err := s.Vector("WWCT:P1")
	if err != nil {
		t.Fatal(err)
	}
	if !v.Generated {
		t.Error("SetValues vector not marked generated")
	}

	if err := s.SetValues("SHORT", "", []float64{1}); !errors.Is(err, reserr.ErrLengthMismatch) {
		t.Errorf("short SetValues err = %v, want ErrLengthMismatch", err)
	}
	if err := s.SetValues("", "", in); !errors.Is(err, reserr.ErrMalformed) {
		t.Errorf("empty name err = %v, want ErrMalformed", err)
	}
}

func TestAvailableAddresses(t *testing.T) {
	s := monthlyStore(t, 1)
	for _, name := range []string{"FWCT", "FOPR", "WBHP:PROD1"} {
		if err := s.AddVector(name, "", []float64{0, 1}); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"FOPR", "FWCT", "WBHP:PROD1"}
	if diff := cmp.Diff(want, s.AvailableAddresses()); diff != "" {
		t.Errorf("addresses (-want +got):\n%s", diff)
	}
	if err := s.SetValues("AAA", "", []float64{0, 0}); err != nil {
		t.Fatal(err)
	}
	if got := s.AvailableAddresses(); got[0] != "AAA" || len(got) != 4 {
		t.Errorf("memoised address list not refreshed: %v", got)
	}
	if !s.Has("AAA") || s.Has("BBB") {
		t.Error("Has mismatch")
	}
}

func TestImportVector_IrregularAxis(t *testing.T) {
	s := monthlyStore(t, 2)
	if err := s.ImportVector("WOPR:P1", "SM3/DAY", []float64{10, 20, 40}, []float64{1, 2, 4}); err != nil {
		t.Fatal(err)
	}
	got, err := s.Resample("WOPR:P1", Month)
	if err != nil {
		t.Fatal(err)
	}
	// Jan 1 clamps to the first value, Feb 1 (day 31) sits between 20 and 40.
	if diff := cmp.Diff([]float64{1, 3.1}, got.Values, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
	if err := s.ImportVector("BAD", "", []float64{1, 1}, []float64{0, 0}); !errors.Is(err, reserr.ErrMalformed) {
		t.Errorf("duplicate time err = %v", err)
	}
	if err := s.ImportVector("BAD", "", []float64{1}, []float64{0, 0}); !errors.Is(err, reserr.ErrLengthMismatch) {
		t.Errorf("mismatch err = %v", err)
	}
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		in   string
		want Frequency
	}{
		{"", None},
		{"NONE", None},
		{"daily", Day},
		{"Month", Month},
		{"q", Quarter},
		{"annual", Year},
		{" year ", Year},
	}
	for _, tt := range tests {
		got, err := ParseFrequency(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFrequency(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseFrequency("fortnight"); !errors.Is(err, reserr.ErrMalformed) {
		t.Errorf("ParseFrequency(fortnight) err = %v", err)
	}
	for f := None; f <= Year; f++ {
		back, err := ParseFrequency(f.String())
		if err != nil || back != f {
			t.Errorf("ParseFrequency(%q) = %v, %v", f.String(), back, err)
		}
	}
}

func TestBoundaries_QuarterStartsInContainingPeriod(t *testing.T) {
	first := time.Date(2010, time.May, 17, 0, 0, 0, 0, time.UTC)
	last := time.Date(2011, time.January, 1, 0, 0, 0, 0, time.UTC)
	got := Quarter.Boundaries(first, last)
	want := []time.Time{
		time.Date(2010, time.April, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2010, time.July, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2010, time.October, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2011, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("boundaries (-want +got):\n%s", diff)
	}
	if None.Boundaries(first, last) != nil {
		t.Error("None should have no boundaries")
	}
}

func TestExportText(t *testing.T) {
	s := monthlyStore(t, 12)
	if err := s.AddVector("FOPR", "SM3/DAY", ramp(13)); err != nil {
		t.Fatal(err)
	}
	if err := s.AddVector("FWCT", "", ramp(13)); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := s.ExportText(&buf, Quarter); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"date", "days", "FOPR [SM3/DAY]", "FWCT"}, rows[0]); diff != "" {
		t.Errorf("header (-want +got):\n%s", diff)
	}
	if len(rows) != 1+5 {
		t.Fatalf("got %d rows, want header + 5 quarters", len(rows))
	}
	if rows[2][0] != "2010-04-01" || rows[2][2] != "3" {
		t.Errorf("second quarter row = %v", rows[2])
	}
}
