package summary

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// ExportText writes every vector as one CSV table sampled on a common axis:
// the master axis for None, otherwise the calendar boundaries spanning it.
// Vectors on irregular axes are interpolated onto the table axis.
func (s *Store) ExportText(w io.Writer, freq Frequency) error {
	names := s.AvailableAddresses()

	axis := s.Axis()
	if freq != None && len(axis) > 0 {
		axis = s.boundaryDays(axis[0], axis[len(axis)-1], freq)
	}

	columns := make([][]float64, len(names))
	header := []string{"date", "days"}
	for n, name := range names {
		v, err := s.vector(name)
		if err != nil {
			return err
		}
		col, err := sampleAt(s.daysOf(v), v.Values, axis)
		if err != nil {
			return fmt.Errorf("export %q: %w", name, err)
		}
		columns[n] = col
		if v.Unit != "" {
			header = append(header, fmt.Sprintf("%s [%s]", name, v.Unit))
		} else {
			header = append(header, name)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for r, d := range axis {
		row := make([]string, 0, len(header))
		row = append(row, s.Date(d).Format(time.DateOnly), strconv.FormatFloat(d, 'g', -1, 64))
		for _, col := range columns {
			row = append(row, strconv.FormatFloat(col[r], 'g', -1, 64))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
