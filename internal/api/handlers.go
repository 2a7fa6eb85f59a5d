package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/httputil"
	"github.com/banshee-data/reservoir/internal/monitoring"
	"github.com/banshee-data/reservoir/internal/reserr"
	"github.com/banshee-data/reservoir/internal/selection"
	"github.com/banshee-data/reservoir/internal/simcase"
	"github.com/banshee-data/reservoir/internal/summary"
)

// maxBodyBytes caps POSTed vector payloads.
const maxBodyBytes = 8 << 20

type CaseListing struct {
	Cases []CaseInfo `json:"cases"`
}

type CaseInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	StartDate   string    `json:"start_date"`
	Dims        grid.Dims `json:"dims"`
	ActiveCount int       `json:"active_count"`
	LGRCount    int       `json:"lgr_count"`
	VectorCount int       `json:"vector_count"`
	Open        bool      `json:"open"`
}

func (s *Server) listCases(w http.ResponseWriter, r *http.Request) {
	stored, err := s.store.ListCases(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out := CaseListing{Cases: make([]CaseInfo, 0, len(stored))}
	for _, c := range stored {
		out.Cases = append(out.Cases, CaseInfo{
			ID:          c.ID,
			Name:        c.Name,
			StartDate:   c.StartDate.Format(time.DateOnly),
			Dims:        c.Dims,
			ActiveCount: c.ActiveCount,
			LGRCount:    c.LGRCount,
			VectorCount: c.VectorCount,
			Open:        s.cases.IsOpen(c.ID),
		})
	}
	httputil.WriteJSONOK(w, out)
}

type gridInfo struct {
	Name        string        `json:"name"`
	Dims        grid.Dims     `json:"dims"`
	CellCount   int           `json:"cell_count"`
	ActiveCount int           `json:"active_count"`
	ParentBox   *grid.Box     `json:"parent_box,omitempty"`
	BoundsLo    *grid.Point3D `json:"bounds_lo,omitempty"`
	BoundsHi    *grid.Point3D `json:"bounds_hi,omitempty"`
	LGRs        []gridInfo    `json:"lgrs,omitempty"`
}

func describeGrid(g *grid.Grid) gridInfo {
	info := gridInfo{
		Name:        g.Name(),
		Dims:        g.Dimensions(),
		CellCount:   g.CellCount(),
		ActiveCount: g.ActiveCount(),
	}
	if g.Parent() != nil {
		b := g.ParentBox()
		info.ParentBox = &b
	}
	if lo, hi, ok := g.BoundingBox(); ok {
		info.BoundsLo, info.BoundsHi = &lo, &hi
	}
	for n := range g.SubGridCount() {
		sub, err := g.SubGrid(n)
		if err != nil {
			continue
		}
		info.LGRs = append(info.LGRs, describeGrid(sub))
	}
	return info
}

func (s *Server) showGrid(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Case(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	g, err := c.Grid()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, describeGrid(g))
}

type cellInfo struct {
	Grid    string          `json:"grid"`
	I       int             `json:"i"`
	J       int             `json:"j"`
	K       int             `json:"k"`
	Global  int             `json:"global"`
	Active  int             `json:"active"`
	Center  grid.Point3D    `json:"center"`
	Corners [8]grid.Point3D `json:"corners"`
	Volume  float64         `json:"volume"`
}

// parseIJK parses "i,j,k".
func parseIJK(s string) (i, j, k int, err error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("cell %q is not i,j,k: %w", s, reserr.ErrMalformed)
	}
	var ijk [3]int
	for n, p := range parts {
		if ijk[n], err = strconv.Atoi(strings.TrimSpace(p)); err != nil {
			return 0, 0, 0, fmt.Errorf("cell %q: %w", s, reserr.ErrMalformed)
		}
	}
	return ijk[0], ijk[1], ijk[2], nil
}

func (s *Server) showCell(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Case(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	g, err := c.GridFor(simcase.PropertyKey{Grid: r.URL.Query().Get("lgr")})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	i, j, k, err := parseIJK(r.PathValue("ijk"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	global, err := g.GlobalIndex(i, j, k)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	active, err := g.PropertyDataIndexFromIJK(i, j, k)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	info := cellInfo{Grid: g.Name(), I: i, J: j, K: k, Global: global, Active: active}
	if info.Corners, err = g.CellCorners(active); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if info.Center, err = g.CellCenter(active); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if info.Volume, err = g.CellVolume(active); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, info)
}

type vectorRef struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

func (s *Server) listVectors(w http.ResponseWriter, r *http.Request) {
	st, err := s.summaryFor(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	names := st.AvailableAddresses()
	out := make([]vectorRef, 0, len(names))
	for _, name := range names {
		unit, err := st.Unit(name)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		out = append(out, vectorRef{Name: name, Unit: unit})
	}
	httputil.WriteJSONOK(w, out)
}

func (s *Server) summaryFor(r *http.Request) (*summary.Store, error) {
	c, err := s.cases.Case(r.Context(), r.PathValue("id"))
	if err != nil {
		return nil, err
	}
	return c.Summary()
}

// frequencyParam reads ?frequency=, falling back to the server default.
func (s *Server) frequencyParam(r *http.Request) (summary.Frequency, error) {
	raw := r.URL.Query().Get("frequency")
	if raw == "" {
		return s.frequency, nil
	}
	f, err := summary.ParseFrequency(raw)
	if err != nil {
		return 0, fmt.Errorf("%v: %w", err, reserr.ErrMalformed)
	}
	return f, nil
}

type VectorResponse struct {
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Frequency string    `json:"frequency"`
	Dates     []string  `json:"dates"`
	Days      []float64 `json:"days"`
	Values    []float64 `json:"values"`
}

func (s *Server) resampled(r *http.Request) (VectorResponse, error) {
	st, err := s.summaryFor(r)
	if err != nil {
		return VectorResponse{}, err
	}
	freq, err := s.frequencyParam(r)
	if err != nil {
		return VectorResponse{}, err
	}
	name := r.PathValue("name")
	series, err := st.Resample(name, freq)
	if err != nil {
		return VectorResponse{}, err
	}
	unit, err := st.Unit(name)
	if err != nil {
		return VectorResponse{}, err
	}
	out := VectorResponse{
		Name:      name,
		Unit:      unit,
		Frequency: freq.String(),
		Days:      series.Days,
		Values:    series.Values,
	}
	for _, d := range st.Dates(series) {
		out.Dates = append(out.Dates, d.Format(time.DateOnly))
	}
	return out, nil
}

func (s *Server) showVector(w http.ResponseWriter, r *http.Request) {
	out, err := s.resampled(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, out)
}

type setVectorRequest struct {
	Unit   string    `json:"unit"`
	Values []float64 `json:"values"`
}

// setVector writes a generated vector on the master axis and persists it.
func (s *Server) setVector(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Case(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	st, err := c.Summary()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req setVectorRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		httputil.BadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	name := r.PathValue("name")
	if err := st.SetValues(name, req.Unit, req.Values); err != nil {
		httputil.WriteError(w, err)
		return
	}
	v, err := st.Vector(name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := s.store.SaveVector(r.Context(), c.ID(), v); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, vectorRef{Name: v.Name, Unit: v.Unit})
}

type RegionResponse struct {
	Region   string  `json:"region"`
	Value    float64 `json:"value"`
	Of       string  `json:"of"`
	Op       string  `json:"op"`
	Count    int     `json:"count"`
	Result   float64 `json:"result"`
	GridName string  `json:"grid,omitempty"`
}

// regionAggregate reduces property ?of= over the cells where region
// property {prop} equals {value}.
func (s *Server) regionAggregate(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Case(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	op, err := selection.ParseOp(r.PathValue("op"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	target, err := strconv.ParseFloat(r.PathValue("value"), 64)
	if err != nil {
		httputil.BadRequest(w, "region value must be numeric")
		return
	}
	of := r.URL.Query().Get("of")
	if of == "" {
		httputil.BadRequest(w, "missing 'of' parameter")
		return
	}
	lgr := r.URL.Query().Get("lgr")
	regionKey := simcase.PropertyKey{Category: simcase.Static, Name: r.PathValue("prop"), Grid: lgr}
	valueKey := simcase.PropertyKey{Category: simcase.Static, Name: of, Grid: lgr}

	g, err := c.GridFor(regionKey)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	regions, err := c.Property(r.Context(), regionKey)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	values, err := c.Property(r.Context(), valueKey)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sel, err := selection.SelectEqual(g, regions, target)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := selection.Aggregate(sel, values, op)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSONOK(w, RegionResponse{
		Region: regionKey.Name, Value: target, Of: of, Op: op.String(),
		Count: sel.Len(), Result: result, GridName: lgr,
	})
}

func (s *Server) exportCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Case(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var exporter simcase.TextExporter = c
	if r.URL.Query().Has("frequency") {
		freq, err := s.frequencyParam(r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		st, err := c.Summary()
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		exporter = simcase.SummaryText{Store: st, Frequency: freq}
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.ID()+".csv"))
	if err := exporter.ExportText(w); err != nil {
		monitoring.Logf("export of case %s failed mid-stream: %v", c.ID(), err)
	}
}

func (s *Server) reloadCase(w http.ResponseWriter, r *http.Request) {
	c, err := s.cases.Case(r.Context(), r.PathValue("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := c.Reload(r.Context()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) closeCase(w http.ResponseWriter, r *http.Request) {
	if err := s.cases.Release(r.PathValue("id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
