package grid

import (
	"encoding/csv"
	"io"
	"strconv"
)

// ExportText writes one CSV row per active cell: active index, global index,
// i, j, k and the cell center.
func (g *Grid) ExportText(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"active", "global", "i", "j", "k", "x", "y", "z"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for a, gi := range g.ActiveCells() {
		i, j, k, _ := g.IJK(gi)
		c := meanPoint(g.corners(i, j, k))
		row := []string{
			strconv.Itoa(a), strconv.Itoa(gi),
			strconv.Itoa(i), strconv.Itoa(j), strconv.Itoa(k),
			f(c.X), f(c.Y), f(c.Z),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
