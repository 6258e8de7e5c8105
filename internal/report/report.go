// Package report renders run traces as HTML charts.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"github.com/cwbudde/imagebench/internal/store"
)

// TraceChart builds a line chart of best cost against evaluations. When the
// trace records sigma, it is drawn on a second y axis.
func TraceChart(title string, entries []store.TraceEntry) (*charts.Line, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("trace for %s is empty", title)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithInitializationOpts(opts.Initialization{
			Theme: types.ThemeWesteros,
		}),
		charts.WithXAxisOpts(opts.XAxis{
			Name: "evaluations",
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name:      "best cost",
			Scale:     opts.Bool(true),
			SplitLine: &opts.SplitLine{Show: opts.Bool(true)},
		}),
	)

	xs := make([]string, len(entries))
	costs := make([]opts.LineData, len(entries))
	sigmas := make([]opts.LineData, len(entries))
	hasSigma := false
	for i, e := range entries {
		xs[i] = strconv.Itoa(e.Evaluation)
		costs[i] = opts.LineData{Value: e.Cost}
		sigmas[i] = opts.LineData{Value: e.Sigma}
		if e.Sigma != 0 {
			hasSigma = true
		}
	}

	line.SetXAxis(xs).AddSeries("best cost", costs)
	if hasSigma {
		line.ExtendYAxis(opts.YAxis{Name: "sigma", Scale: opts.Bool(true)})
		line.AddSeries("sigma", sigmas, charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}))
	}
	line.SetSeriesOptions(
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(false)}),
	)
	return line, nil
}

// WriteTrace renders the chart of entries as an HTML page to w.
func WriteTrace(w io.Writer, title string, entries []store.TraceEntry) error {
	line, err := TraceChart(title, entries)
	if err != nil {
		return err
	}
	return line.Render(w)
}

// WriteTraceFile renders the chart of entries to the HTML file at path.
func WriteTraceFile(path, title string, entries []store.TraceEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTrace(f, title, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
