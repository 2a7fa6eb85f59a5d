package summary

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/banshee-data/reservoir/internal/reserr"
)

// Vector is one named summary series. A nil Days means the vector lives on
// the store's master axis.
type Vector struct {
	Name      string
	Unit      string
	Days      []float64
	Values    []float64
	Generated bool // written through SetValues rather than loaded
}

// Series is a (days, values) pair handed to callers. It is always a copy.
type Series struct {
	Days   []float64 `json:"days"`
	Values []float64 `json:"values"`
}

// Len returns the number of samples.
func (s Series) Len() int { return len(s.Values) }

func (s Series) clone() Series {
	return Series{Days: slices.Clone(s.Days), Values: slices.Clone(s.Values)}
}

type resampleKey struct {
	name string
	freq Frequency
}

// Store holds the summary vectors of one case.
//
// Vectors are replaced whole, never edited in place. The address list and
// resampled series are memoised and dropped by Invalidate or by any write
// that touches the underlying vector.
type Store struct {
	start time.Time
	axis  []float64

	mu        sync.Mutex
	vectors   map[string]*Vector
	addresses []string
	resampled map[resampleKey]Series
}

// NewStore creates an empty store with the given start date and master
// report axis (days since start, strictly increasing).
func NewStore(start time.Time, axis []float64) (*Store, error) {
	if err := checkIncreasing(axis); err != nil {
		return nil, fmt.Errorf("master axis: %w", err)
	}
	return &Store{
		start:     start.UTC(),
		axis:      slices.Clone(axis),
		vectors:   make(map[string]*Vector),
		resampled: make(map[resampleKey]Series),
	}, nil
}

func checkIncreasing(days []float64) error {
	for i, d := range days {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("time %d is %v: %w", i, d, reserr.ErrMalformed)
		}
		if i > 0 && d <= days[i-1] {
			return fmt.Errorf("time %d (%g) not after %g: %w", i, d, days[i-1], reserr.ErrMalformed)
		}
	}
	return nil
}

// StartDate returns the case start date (UTC).
func (s *Store) StartDate() time.Time { return s.start }

// Axis returns a copy of the master report axis.
func (s *Store) Axis() []float64 { return slices.Clone(s.axis) }

// Date converts a day offset to a calendar time.
func (s *Store) Date(days float64) time.Time {
	return s.start.Add(time.Duration(math.Round(days * 24 * float64(time.Hour))))
}

// Days converts a calendar time to a day offset.
func (s *Store) Days(t time.Time) float64 {
	return t.Sub(s.start).Hours() / 24
}

// Dates converts every sample time of a series.
func (s *Store) Dates(series Series) []time.Time {
	out := make([]time.Time, len(series.Days))
	for i, d := range series.Days {
		out[i] = s.Date(d)
	}
	return out
}

// AddVector stores a loaded vector on the master axis.
func (s *Store) AddVector(name, unit string, values []float64) error {
	return s.put(name, unit, values, false)
}

// SetValues stores or replaces a generated vector on the master axis. The
// input slice is copied.
func (s *Store) SetValues(name, unit string, values []float64) error {
	return s.put(name, unit, values, true)
}

func (s *Store) put(name, unit string, values []float64, generated bool) error {
	if name == "" {
		return fmt.Errorf("empty vector name: %w", reserr.ErrMalformed)
	}
	if len(values) != len(s.axis) {
		return fmt.Errorf("vector %q has %d values, axis has %d: %w", name, len(values), len(s.axis), reserr.ErrLengthMismatch)
	}
	v := &Vector{Name: name, Unit: unit, Values: slices.Clone(values), Generated: generated}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swapLocked(v)
	return nil
}

// ImportVector stores a vector with its own irregular axis.
func (s *Store) ImportVector(name, unit string, days, values []float64) error {
	if name == "" {
		return fmt.Errorf("empty vector name: %w", reserr.ErrMalformed)
	}
	if len(days) != len(values) {
		return fmt.Errorf("vector %q has %d times and %d values: %w", name, len(days), len(values), reserr.ErrLengthMismatch)
	}
	if err := checkIncreasing(days); err != nil {
		return fmt.Errorf("vector %q: %w", name, err)
	}
	v := &Vector{Name: name, Unit: unit, Days: slices.Clone(days), Values: slices.Clone(values)}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swapLocked(v)
	return nil
}

func (s *Store) swapLocked(v *Vector) {
	if _, exists := s.vectors[v.Name]; !exists {
		s.addresses = nil
	}
	s.vectors[v.Name] = v
	for k := range s.resampled {
		if k.name == v.Name {
			delete(s.resampled, k)
		}
	}
}

// Invalidate drops every memoised result. Callers that swap the underlying
// data wholesale (a reload) must call it.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses = nil
	s.resampled = make(map[resampleKey]Series)
}

// AvailableAddresses returns the sorted names of all stored vectors.
func (s *Store) AvailableAddresses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addresses == nil {
		s.addresses = make([]string, 0, len(s.vectors))
		for name := range s.vectors {
			s.addresses = append(s.addresses, name)
		}
		slices.Sort(s.addresses)
	}
	return slices.Clone(s.addresses)
}

// Has reports whether a vector is stored.
func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.vectors[name]
	return ok
}

// Unit returns the unit string of a vector.
func (s *Store) Unit(name string) (string, error) {
	v, err := s.vector(name)
	if err != nil {
		return "", err
	}
	return v.Unit, nil
}

// Vector returns a copy of a stored vector including its metadata.
func (s *Store) Vector(name string) (Vector, error) {
	v, err := s.vector(name)
	if err != nil {
		return Vector{}, err
	}
	return Vector{
		Name:      v.Name,
		Unit:      v.Unit,
		Days:      slices.Clone(v.Days),
		Values:    slices.Clone(v.Values),
		Generated: v.Generated,
	}, nil
}

func (s *Store) vector(name string) (*Vector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vectors[name]
	if !ok {
		return nil, fmt.Errorf("vector %q: %w", name, reserr.ErrUnknownVector)
	}
	return v, nil
}

func (s *Store) daysOf(v *Vector) []float64 {
	if v.Days != nil {
		return v.Days
	}
	return s.axis
}

// VectorValues returns the stored samples of a vector.
func (s *Store) VectorValues(name string) (Series, error) {
	v, err := s.vector(name)
	if err != nil {
		return Series{}, err
	}
	return Series{Days: slices.Clone(s.daysOf(v)), Values: slices.Clone(v.Values)}, nil
}
