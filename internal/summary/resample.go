package summary

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/interp"

	"github.com/banshee-data/reservoir/internal/reserr"
)

// Resample returns a vector sampled at every calendar period start between
// its first and last stored time, inclusive. Values are interpolated
// linearly between the bracketing stored samples and held at the first or
// last stored value outside the stored range. None returns the stored axis
// unchanged.
func (s *Store) Resample(name string, freq Frequency) (Series, error) {
	v, err := s.vector(name)
	if err != nil {
		return Series{}, err
	}
	if freq == None {
		return Series{Days: slices.Clone(s.daysOf(v)), Values: slices.Clone(v.Values)}, nil
	}
	if freq < None || freq > Year {
		return Series{}, fmt.Errorf("resample %q: unsupported frequency %v: %w", name, freq, reserr.ErrMalformed)
	}

	key := resampleKey{name: name, freq: freq}
	s.mu.Lock()
	cached, ok := s.resampled[key]
	s.mu.Unlock()
	if ok {
		return cached.clone(), nil
	}

	days := s.daysOf(v)
	if len(days) < 2 {
		return Series{}, fmt.Errorf("resample %q: %d stored samples: %w", name, len(days), reserr.ErrInsufficientData)
	}

	targets := s.boundaryDays(days[0], days[len(days)-1], freq)
	values, err := sampleAt(days, v.Values, targets)
	if err != nil {
		return Series{}, fmt.Errorf("resample %q: %w", name, err)
	}
	out := Series{Days: targets, Values: values}

	s.mu.Lock()
	// Only publish if the vector was not replaced while we computed.
	if cur, ok := s.vectors[name]; ok && cur == v {
		s.resampled[key] = out
	}
	s.mu.Unlock()
	return out.clone(), nil
}

// boundaryDays converts the calendar boundaries spanning [first,last] into
// day offsets.
func (s *Store) boundaryDays(first, last float64, freq Frequency) []float64 {
	bounds := freq.Boundaries(s.Date(first), s.Date(last))
	out := make([]float64, len(bounds))
	for i, b := range bounds {
		out[i] = s.Days(b)
	}
	return out
}

// sampleAt evaluates the piecewise-linear curve through (days, values) at
// each target, clamping outside the stored range. A single stored sample
// yields a constant curve.
func sampleAt(days, values, targets []float64) ([]float64, error) {
	out := make([]float64, len(targets))
	if len(targets) == 0 {
		return out, nil
	}
	switch len(days) {
	case 0:
		return nil, fmt.Errorf("no stored samples: %w", reserr.ErrInsufficientData)
	case 1:
		for i := range out {
			out[i] = values[0]
		}
		return out, nil
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(days, values); err != nil {
		return nil, err
	}
	first, last := days[0], days[len(days)-1]
	for i, t := range targets {
		switch {
		case t <= first:
			out[i] = values[0]
		case t >= last:
			out[i] = values[len(values)-1]
		default:
			out[i] = pl.Predict(t)
		}
	}
	return out, nil
}
