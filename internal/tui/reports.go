package tui

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/lipgloss"
	"github.com/sadopc/statusdash/internal/report"
	"github.com/sadopc/statusdash/internal/source"
)

// timeChart draws one bar per category for the selected day.
type timeChart struct {
	width  int
	height int

	grouping source.Grouping
	rows     []report.TimeRow

	chart barchart.Model
}

func newTimeChart() timeChart {
	return timeChart{chart: barchart.New(60, 10), grouping: source.GroupProjects}
}

func (c *timeChart) setSize(w, h int) {
	c.width = w
	c.height = h
	c.build()
}

func (c *timeChart) setRows(rows []report.TimeRow, g source.Grouping) {
	c.rows = rows
	c.grouping = g
	c.build()
}

func (c *timeChart) build() {
	chartWidth := c.width - 8
	if chartWidth < 20 {
		chartWidth = 20
	}
	chartHeight := 10
	if c.height > 30 {
		chartHeight = 14
	}

	c.chart = barchart.New(chartWidth, chartHeight)
	if len(c.rows) == 0 {
		return
	}

	labelWidth := max(3, chartWidth/len(c.rows)-1)
	var bars []barchart.BarData
	for i, r := range c.rows {
		bars = append(bars, barchart.BarData{
			Label: truncate(r.Category, labelWidth),
			Values: []barchart.BarValue{{
				Name:  r.Category,
				Value: r.Hours,
				Style: barStyle(i),
			}},
		})
	}

	c.chart.PushAll(bars)
	c.chart.Draw()
}

func (c timeChart) view() string {
	if len(c.rows) == 0 {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left, c.chart.View(), "", c.renderLegend())
}

func (c timeChart) renderLegend() string {
	nameWidth := 8
	for _, r := range c.rows {
		nameWidth = max(nameWidth, len([]rune(r.Category)))
	}
	nameWidth = min(nameWidth, 32)

	var rows []string
	rows = append(rows, mutedStyle.Render(fmt.Sprintf("  %-*s %10s", nameWidth+2, c.grouping.Label(), "Duration")))
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", nameWidth+13)))
	for i, r := range c.rows {
		dot := barStyle(i).Render("●")
		rows = append(rows, fmt.Sprintf("  %s %-*s %10s", dot, nameWidth, truncate(r.Category, nameWidth), r.Label))
	}
	total := report.TotalHours(c.rows)
	rows = append(rows, mutedStyle.Render("  "+strings.Repeat("─", nameWidth+13)))
	rows = append(rows, fmt.Sprintf("  %-*s %10s", nameWidth+2, "Total", highlightStyle.Render(report.FormatHours(total))))
	return strings.Join(rows, "\n")
}
