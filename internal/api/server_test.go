package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/reservoir/internal/db"
	"github.com/banshee-data/reservoir/internal/grid"
	"github.com/banshee-data/reservoir/internal/httputil"
	"github.com/banshee-data/reservoir/internal/monitoring"
	"github.com/banshee-data/reservoir/internal/reserr"
	"github.com/banshee-data/reservoir/internal/simcase"
	"github.com/banshee-data/reservoir/internal/summary"
	"github.com/banshee-data/reservoir/internal/synth"
	"github.com/banshee-data/reservoir/internal/timeutil"
)

type testEnv struct {
	db  *db.DB
	reg *simcase.Registry
	res *simcase.Resolver
	ts  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := db.NewDB(cloneAPITestDB(t))
	require.NoError(t, err)
	reg := simcase.NewRegistry(store)
	res := simcase.NewResolver(reg)
	srv := NewServer(res, store, summary.None)
	ts := httptest.NewServer(LoggingMiddleware(timeutil.RealClock{}, srv.ServeMux()))
	t.Cleanup(func() {
		ts.Close()
		reg.CloseAll()
		store.Close()
	})
	return &testEnv{db: store, reg: reg, res: res, ts: ts}
}

func (e *testEnv) url(format string, args ...any) string {
	return e.ts.URL + fmt.Sprintf(format, args...)
}

// getJSON issues a GET and decodes the body into into, returning the status.
func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into), url)
	}
	return resp.StatusCode
}

func errorKind(t *testing.T, url string) (int, httputil.ErrorBody) {
	t.Helper()
	var body httputil.ErrorBody
	status := getJSON(t, url, &body)
	return status, body
}

func TestListCases(t *testing.T) {
	env := newTestEnv(t)

	var list CaseListing
	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases"), &list))
	require.Len(t, list.Cases, 1)
	c := list.Cases[0]
	assert.Equal(t, apiTestCaseID, c.ID)
	assert.Equal(t, "2010-01-01", c.StartDate)
	assert.Equal(t, grid.Dims{NX: 4, NY: 3, NZ: 2}, c.Dims)
	assert.Equal(t, 4, c.VectorCount)
	assert.False(t, c.Open)

	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases/%s/grid", apiTestCaseID), nil))
	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases"), &list))
	assert.True(t, list.Cases[0].Open)
	assert.Equal(t, 1, env.reg.Len())
}

func TestShowGrid(t *testing.T) {
	env := newTestEnv(t)

	var info gridInfo
	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases/%s/grid", apiTestCaseID), &info))
	assert.Equal(t, 24, info.CellCount)
	// Two dead cells at (0,0,*) and two LGR hosts.
	assert.Equal(t, 20, info.ActiveCount)
	assert.Nil(t, info.ParentBox)
	require.NotNil(t, info.BoundsLo)
	assert.InDelta(t, 0, info.BoundsLo.X, 1e-9)
	assert.InDelta(t, 400, info.BoundsHi.X, 1e-9)

	require.Len(t, info.LGRs, 1)
	lgr := info.LGRs[0]
	assert.Equal(t, "LGR1", lgr.Name)
	assert.Equal(t, grid.Dims{NX: 4, NY: 2, NZ: 2}, lgr.Dims)
	assert.Equal(t, 16, lgr.ActiveCount)
	require.NotNil(t, lgr.ParentBox)
	assert.Equal(t, grid.Box{I1: 2, I2: 3, J1: 1, J2: 1, K1: 1, K2: 1}, *lgr.ParentBox)

	status, body := errorKind(t, env.url("/api/cases/missing/grid"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, reserr.ErrUnknownCase.Error(), body.Kind)
}

func TestShowCell(t *testing.T) {
	env := newTestEnv(t)

	var cell cellInfo
	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases/%s/cells/1,0,0", apiTestCaseID), &cell))
	assert.Equal(t, 1, cell.Global)
	assert.Equal(t, 0, cell.Active, "first active cell after the dead column")
	assert.InDelta(t, 100*100*5, cell.Volume, 1e-6)
	assert.InDelta(t, 150, cell.Center.X, 1e-9)
	assert.InDelta(t, 50, cell.Center.Y, 1e-9)

	tests := []struct {
		name   string
		path   string
		status int
		kind   error
		text   string
	}{
		{"inactive", "/cells/0,0,0", http.StatusUnprocessableEntity, reserr.ErrInactiveCell, ""},
		{"lgr host", "/cells/2,1,1", http.StatusUnprocessableEntity, reserr.ErrInactiveCell, "LGR1"},
		{"outside", "/cells/9,0,0", http.StatusBadRequest, reserr.ErrOutOfRange, ""},
		{"malformed", "/cells/1,2", http.StatusBadRequest, reserr.ErrMalformed, ""},
		{"unknown lgr", "/cells/0,0,0?lgr=NOPE", http.StatusBadRequest, reserr.ErrOutOfRange, "NOPE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorKind(t, env.url("/api/cases/%s%s", apiTestCaseID, tt.path))
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind.Error(), body.Kind)
			assert.Contains(t, body.Error, tt.text)
		})
	}

	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases/%s/cells/3,1,1?lgr=LGR1", apiTestCaseID), &cell))
	assert.Equal(t, "LGR1", cell.Grid)
	assert.InDelta(t, 50*50*2.5, cell.Volume, 1e-6)
}

func TestVectors(t *testing.T) {
	env := newTestEnv(t)

	var refs []vectorRef
	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases/%s/vectors", apiTestCaseID), &refs))
	assert.Equal(t, []vectorRef{
		{Name: synth.VecFOPR, Unit: "SM3/DAY"},
		{Name: synth.VecFOPT, Unit: "SM3"},
		{Name: synth.VecFWCT, Unit: ""},
		{Name: synth.VecWBHP, Unit: "BARSA"},
	}, refs)

	var raw VectorResponse
	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases/%s/vectors/FOPR", apiTestCaseID), &raw))
	assert.Equal(t, "none", raw.Frequency)
	assert.Len(t, raw.Values, 25)

	var yearly VectorResponse
	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases/%s/vectors/WBHP:PROD1?frequency=yearly", apiTestCaseID), &yearly))
	assert.Equal(t, []string{"2010-01-01", "2011-01-01", "2012-01-01"}, yearly.Dates)
	assert.Equal(t, "BARSA", yearly.Unit)
	assert.Len(t, yearly.Values, 3)

	status, body := errorKind(t, env.url("/api/cases/%s/vectors/FOPR?frequency=fortnight", apiTestCaseID))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, reserr.ErrMalformed.Error(), body.Kind)

	status, body = errorKind(t, env.url("/api/cases/%s/vectors/FGPR", apiTestCaseID))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, reserr.ErrUnknownVector.Error(), body.Kind)
}

func postJSON(t *testing.T, url, body string) (int, httputil.ErrorBody) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out httputil.ErrorBody
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestSetVector(t *testing.T) {
	env := newTestEnv(t)
	values := make([]float64, 25)
	for n := range values {
		values[n] = float64(n)
	}
	payload, err := json.Marshal(setVectorRequest{Unit: "SM3/DAY", Values: values})
	require.NoError(t, err)

	status, _ := postJSON(t, env.url("/api/cases/%s/vectors/FOPR_SMOOTH", apiTestCaseID), string(payload))
	require.Equal(t, http.StatusCreated, status)

	var got VectorResponse
	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases/%s/vectors/FOPR_SMOOTH", apiTestCaseID), &got))
	assert.Equal(t, values, got.Values)

	// Persisted as a generated vector.
	st, err := env.db.LoadSummary(context.Background(), apiTestCaseID)
	require.NoError(t, err)
	v, err := st.Vector("FOPR_SMOOTH")
	require.NoError(t, err)
	assert.True(t, v.Generated)
	assert.Equal(t, values, v.Values)

	status, body := postJSON(t, env.url("/api/cases/%s/vectors/SHORT", apiTestCaseID), `{"values":[1,2,3]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, reserr.ErrLengthMismatch.Error(), body.Kind)

	status, _ = postJSON(t, env.url("/api/cases/%s/vectors/BROKEN", apiTestCaseID), `{"values":`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRegionAggregate(t *testing.T) {
	env := newTestEnv(t)

	gen := testGenerator()
	g, err := grid.New(gen.GridSpec())
	require.NoError(t, err)
	props := gen.Properties(g)
	var sum float64
	var n int
	for a, r := range props[synth.PropFIPNUM] {
		if r == 1 {
			sum += props[synth.PropPORO][a]
			n++
		}
	}
	require.NotZero(t, n)

	var mean RegionResponse
	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases/%s/regions/FIPNUM/1/mean?of=PORO", apiTestCaseID), &mean))
	assert.Equal(t, n, mean.Count)
	assert.InDelta(t, sum/float64(n), mean.Result, 1e-12)
	assert.Equal(t, "mean", strings.ToLower(mean.Op))

	var count RegionResponse
	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases/%s/regions/FIPNUM/1/count?of=PORO", apiTestCaseID), &count))
	assert.Equal(t, float64(n), count.Result)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"empty region", "/regions/FIPNUM/9/mean?of=PORO", http.StatusUnprocessableEntity},
		{"missing of", "/regions/FIPNUM/1/mean", http.StatusBadRequest},
		{"bad op", "/regions/FIPNUM/1/median?of=PORO", http.StatusBadRequest},
		{"bad value", "/regions/FIPNUM/one/mean?of=PORO", http.StatusBadRequest},
		{"unknown property", "/regions/SATNUM/1/mean?of=PORO", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := errorKind(t, env.url("/api/cases/%s%s", apiTestCaseID, tt.path))
			assert.Equal(t, tt.status, status)
		})
	}
}

func TestExportCase(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.url("/api/cases/%s/export", apiTestCaseID))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	text := string(body)
	assert.True(t, strings.HasPrefix(text, "active,global,i,j,k,x,y,z\n"))
	assert.Contains(t, text, "\n\ndate,days,FOPR [SM3/DAY]")

	resp, err = http.Get(env.url("/api/cases/%s/export?frequency=quarter", apiTestCaseID))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	assert.True(t, strings.HasPrefix(lines[0], "date,days,"))
	assert.Len(t, lines, 1+9, "header plus quarters 2010Q1..2012Q1")
}

func TestReloadAndClose(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.url("/api/cases/%s/reload", apiTestCaseID), "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, 1, env.reg.Len())

	for range 2 {
		req, err := http.NewRequest(http.MethodDelete, env.url("/api/cases/%s", apiTestCaseID), nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
	assert.Zero(t, env.reg.Len())

	// The next request reopens it.
	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases/%s/grid", apiTestCaseID), nil))
	assert.Equal(t, 1, env.reg.Len())
}

func TestAdopt(t *testing.T) {
	env := newTestEnv(t)
	handles, err := env.reg.OpenAll(context.Background(), []string{apiTestCaseID})
	require.NoError(t, err)
	require.NoError(t, env.res.Adopt(handles[0]))

	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/cases/%s/grid", apiTestCaseID), nil))
	assert.Equal(t, 1, env.reg.Len(), "adopted handle is reused")

	assert.ErrorIs(t, env.res.Adopt("nope"), reserr.ErrUnknownCase)
}

func TestVectorChart(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.url("/charts/%s/FOPT?frequency=quarter", apiTestCaseID))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, string(body), "FOPT (SM3)")

	status, _ := errorKind(t, env.url("/charts/%s/NOPE", apiTestCaseID))
	assert.Equal(t, http.StatusNotFound, status)
}

func TestLoggingMiddleware(t *testing.T) {
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) { lines = append(lines, fmt.Sprintf(format, v...)) })
	defer monitoring.SetLogger(nil)

	clock := timeutil.NewManualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	h := LoggingMiddleware(clock, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clock.Advance(1500 * time.Microsecond)
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cases?x=1", nil))

	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], statusCodeColor(http.StatusTeapot))
	assert.Contains(t, lines[0], "GET")
	assert.Contains(t, lines[0], "/api/cases?x=1")
	assert.Contains(t, lines[0], "1.5ms")
}

func TestClient(t *testing.T) {
	env := newTestEnv(t)
	client := NewClient(env.ts.URL)
	ctx := context.Background()

	cases, err := client.Cases(ctx)
	require.NoError(t, err)
	require.Len(t, cases, 1)

	v, err := client.Vector(ctx, apiTestCaseID, synth.VecFOPT, summary.Month)
	require.NoError(t, err)
	assert.Len(t, v.Values, 25)
	assert.Equal(t, "month", v.Frequency)

	_, err = client.Vector(ctx, apiTestCaseID, "NOPE", summary.None)
	assert.ErrorIs(t, err, reserr.ErrUnknownVector)
}

func TestClient_TransportErrors(t *testing.T) {
	mock := httputil.NewMockHTTPClient().
		AddErrorResponse(fmt.Errorf("connection refused")).
		AddResponse(http.StatusBadGateway, "<html>proxy</html>").
		AddResponse(http.StatusOK, "not json")
	client := &Client{BaseURL: "http://reservoir.invalid", HTTP: mock}
	ctx := context.Background()

	_, err := client.Cases(ctx)
	assert.ErrorContains(t, err, "connection refused")

	_, err = client.Cases(ctx)
	var se *httputil.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Status)

	_, err = client.Cases(ctx)
	assert.ErrorContains(t, err, "decode response")
	assert.Equal(t, 3, mock.RequestCount())
	assert.Equal(t, "/api/cases", mock.Requests[0].URL.Path)
}

func TestShowVersion(t *testing.T) {
	env := newTestEnv(t)
	var v map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, env.url("/api/version"), &v))
	assert.Equal(t, "dev", v["version"])
	assert.Contains(t, v, "git_sha")
}
