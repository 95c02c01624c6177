package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/promptsense/promptsense/internal/eval"
	"github.com/promptsense/promptsense/internal/models"
)

// heatColors runs red (disagreement) to teal (agreement).
var heatColors = []string{"#d94e5d", "#eac736", "#50a3ba"}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// HTML renders the interactive report page: a style-agreement heatmap
// per provider, a majority-agreement radar and valid-rate bars per
// task, and a model-agreement heatmap when several providers ran.
func HTML(w io.Writer, data *Data) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("promptsense: %s", data.Run.Name)
	page.SetLayout(components.PageFlexLayout)

	empty := true
	for _, ts := range data.Summary.Tasks {
		for _, ps := range ts.Providers {
			if hm := styleHeatmap(ts.Task, ps); hm != nil {
				page.AddCharts(hm)
				empty = false
			}
		}
		if radar := styleRadar(ts.Task, ts.Providers); radar != nil {
			page.AddCharts(radar)
			empty = false
		}
		if bar := validRateBar(ts.Task, ts.Providers); bar != nil {
			page.AddCharts(bar)
			empty = false
		}
		if hm := modelHeatmap(ts.Task, ts.ModelAgreements); hm != nil {
			page.AddCharts(hm)
			empty = false
		}
	}
	if empty {
		return fmt.Errorf("no metrics to chart for run %s", data.Run.ID)
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// styleHeatmap draws the symmetric style x style agreement matrix for
// one provider.
func styleHeatmap(task models.Task, ps eval.ProviderSummary) *charts.HeatMap {
	if len(ps.StylePairs) == 0 {
		return nil
	}

	styles := make([]string, 0, len(ps.Styles))
	idx := map[string]int{}
	for i, ss := range ps.Styles {
		styles = append(styles, ss.Style)
		idx[ss.Style] = i
	}

	items := make([]opts.HeatMapData, 0, len(styles)+2*len(ps.StylePairs))
	for i := range styles {
		items = append(items, opts.HeatMapData{Value: [3]interface{}{i, i, 1.0}})
	}
	for _, pair := range ps.StylePairs {
		i, j := idx[pair.A], idx[pair.B]
		v := round3(pair.Agreement)
		items = append(items,
			opts.HeatMapData{Value: [3]interface{}{i, j, v}},
			opts.HeatMapData{Value: [3]interface{}{j, i, v}},
		)
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Style agreement: %s / %s", task, ps.Provider),
			Subtitle: "share of reviews where two prompt styles yield the same label",
		}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: styles}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Min:     0,
			Max:     1,
			InRange: &opts.VisualMapInRange{Color: heatColors},
		}),
	)
	hm.SetXAxis(styles).AddSeries("agreement", items)
	return hm
}

// styleRadar compares providers on per-style majority agreement. Radar
// axes need at least three styles to read sensibly.
func styleRadar(task models.Task, providers []eval.ProviderSummary) *charts.Radar {
	styleSet := map[string]bool{}
	for _, ps := range providers {
		for _, ss := range ps.Styles {
			if ss.MajorityOK {
				styleSet[ss.Style] = true
			}
		}
	}
	if len(styleSet) < 3 {
		return nil
	}
	styles := make([]string, 0, len(styleSet))
	for s := range styleSet {
		styles = append(styles, s)
	}
	sort.Strings(styles)

	indicators := make([]*opts.Indicator, 0, len(styles))
	for _, s := range styles {
		indicators = append(indicators, &opts.Indicator{Name: s, Max: 1})
	}

	radar := charts.NewRadar()
	radar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Majority agreement by style: %s", task),
			Subtitle: "how often each style matches the cross-style majority label",
		}),
		charts.WithRadarComponentOpts(opts.RadarComponent{Indicator: indicators}),
	)

	for _, ps := range providers {
		byStyle := map[string]float64{}
		for _, ss := range ps.Styles {
			if ss.MajorityOK {
				byStyle[ss.Style] = ss.MajorityAgreement
			}
		}
		values := make([]float64, 0, len(styles))
		for _, s := range styles {
			values = append(values, round3(byStyle[s]))
		}
		radar.AddSeries(ps.Provider, []opts.RadarData{{Name: ps.Provider, Value: values}})
	}
	return radar
}

// validRateBar charts the share of usable answers per style.
func validRateBar(task models.Task, providers []eval.ProviderSummary) *charts.Bar {
	styleSet := map[string]bool{}
	for _, ps := range providers {
		for _, ss := range ps.Styles {
			styleSet[ss.Style] = true
		}
	}
	if len(styleSet) == 0 {
		return nil
	}
	styles := make([]string, 0, len(styleSet))
	for s := range styleSet {
		styles = append(styles, s)
	}
	sort.Strings(styles)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Valid answer rate: %s", task),
			Subtitle: "share of calls whose response parsed to a label",
		}),
	)
	bar.SetXAxis(styles)
	for _, ps := range providers {
		byStyle := map[string]float64{}
		for _, ss := range ps.Styles {
			byStyle[ss.Style] = ss.ValidRate
		}
		data := make([]opts.BarData, 0, len(styles))
		for _, s := range styles {
			data = append(data, opts.BarData{Value: round3(byStyle[s])})
		}
		bar.AddSeries(ps.Provider, data)
	}
	return bar
}

// modelHeatmap draws the provider x provider agreement matrix.
func modelHeatmap(task models.Task, pairs []eval.PairAgreement) *charts.HeatMap {
	if len(pairs) == 0 {
		return nil
	}

	nameSet := map[string]bool{}
	for _, pair := range pairs {
		nameSet[pair.A] = true
		nameSet[pair.B] = true
	}
	names := make([]string, 0, len(nameSet))
	for n := range nameSet {
		names = append(names, n)
	}
	sort.Strings(names)
	idx := map[string]int{}
	for i, n := range names {
		idx[n] = i
	}

	items := make([]opts.HeatMapData, 0, len(names)+2*len(pairs))
	for i := range names {
		items = append(items, opts.HeatMapData{Value: [3]interface{}{i, i, 1.0}})
	}
	for _, pair := range pairs {
		i, j := idx[pair.A], idx[pair.B]
		v := round3(pair.Agreement)
		items = append(items,
			opts.HeatMapData{Value: [3]interface{}{i, j, v}},
			opts.HeatMapData{Value: [3]interface{}{j, i, v}},
		)
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Model agreement: %s", task),
			Subtitle: "share of shared answers where two providers pick the same label",
		}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: names}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Min:     0,
			Max:     1,
			InRange: &opts.VisualMapInRange{Color: heatColors},
		}),
	)
	hm.SetXAxis(names).AddSeries("agreement", items)
	return hm
}
