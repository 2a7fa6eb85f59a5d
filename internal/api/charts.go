package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/reservoir/internal/httputil"
)

// vectorChart renders one resampled vector as an HTML line chart.
func (s *Server) vectorChart(w http.ResponseWriter, r *http.Request) {
	v, err := s.resampled(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	data := make([]opts.LineData, len(v.Values))
	for n, val := range v.Values {
		data[n] = opts.LineData{Value: val}
	}
	yName := v.Name
	if v.Unit != "" {
		yName = fmt.Sprintf("%s (%s)", v.Name, v.Unit)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: v.Name, Width: "1000px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: v.Name, Subtitle: fmt.Sprintf("case=%s frequency=%s points=%d", r.PathValue("id"), v.Frequency, len(data))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Date", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: yName, NameLocation: "middle", NameGap: 50}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.SetXAxis(v.Dates).AddSeries(v.Name, data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(len(data) <= 120)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
