// Package display renders dashboard cards and transcript messages for a
// terminal.
package display

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"vcanalyst/internal/card"
	"vcanalyst/internal/session"
)

const (
	smallWidth  = 36
	mediumWidth = 56
	largeWidth  = 76
	barWidth    = 24
)

var (
	cardStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED"))

	labelStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6B7280"))

	valueStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#10B981"))

	userStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#3B82F6")).
		Bold(true)

	agentStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F59E0B")).
		Bold(true)

	loadingStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#F59E0B"))

	successStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#EF4444")).
		Bold(true)
)

func widthFor(size card.Size) int {
	switch size {
	case card.SizeLarge:
		return largeWidth
	case card.SizeMedium:
		return mediumWidth
	default:
		return smallWidth
	}
}

// RenderCard draws one card in a bordered box sized by the card's Size.
func RenderCard(c card.Card) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(c.Title))
	b.WriteString("\n")
	b.WriteString(body(c))
	return cardStyle.Width(widthFor(c.Size)).Render(strings.TrimRight(b.String(), "\n"))
}

// RenderCards stacks cards in order, separated by a blank line.
func RenderCards(cards []card.Card) string {
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		out = append(out, RenderCard(c))
	}
	return strings.Join(out, "\n\n")
}

func body(c card.Card) string {
	switch c.Type {
	case card.TypePeople:
		if c.People != nil {
			return renderPeople(c.People.People)
		}
	case card.TypeText:
		if c.Text != nil {
			return renderText(*c.Text)
		}
	case card.TypeList:
		if c.List != nil {
			return renderList(c.List.Sections)
		}
	case card.TypeStat:
		if c.Stat != nil {
			return renderStat(*c.Stat)
		}
	case card.TypeBarChart:
		if d := c.BarChart; d != nil {
			return renderBars(d.ChartData, d.XAxisKey, d.DataKey)
		}
	case card.TypeLineChart:
		if d := c.LineChart; d != nil {
			return renderBars(d.ChartData, d.XAxisKey, d.DataKey)
		}
	case card.TypePieChart:
		if d := c.PieChart; d != nil {
			return renderPie(*d)
		}
	}
	return labelStyle.Render("(no data)")
}

func renderPeople(people []card.Person) string {
	var b strings.Builder
	for _, p := range people {
		fmt.Fprintf(&b, "[%s] %s", p.Avatar, valueStyle.Render(p.Name))
		if p.Role != "" {
			b.WriteString(" " + labelStyle.Render(p.Role))
		}
		b.WriteString("\n")
		if p.Background != "" {
			b.WriteString("    " + p.Background + "\n")
		}
	}
	return b.String()
}

func renderText(d card.TextData) string {
	var b strings.Builder
	if d.Text != "" {
		b.WriteString(d.Text + "\n")
	}
	for _, it := range d.Items {
		b.WriteString("• " + it + "\n")
	}
	for _, s := range d.Sections {
		b.WriteString(labelStyle.Render(s.Title) + "\n")
		if s.Description != "" {
			b.WriteString("  " + s.Description + "\n")
		}
		for _, it := range s.Items {
			b.WriteString("  • " + it + "\n")
		}
	}
	for _, m := range d.Mentions {
		line := fmt.Sprintf("“%s” (%s", m.Quote, m.Source)
		if m.Date != "" {
			line += ", " + m.Date
		}
		b.WriteString(line + ")\n")
	}
	if d.Footer != "" {
		b.WriteString(labelStyle.Render(d.Footer) + "\n")
	}
	return b.String()
}

func renderList(sections []card.ListSection) string {
	var b strings.Builder
	for _, s := range sections {
		b.WriteString(labelStyle.Render(s.Title) + "\n")
		for _, it := range s.Items {
			b.WriteString("  • " + it + "\n")
		}
	}
	return b.String()
}

func renderStat(d card.StatData) string {
	var b strings.Builder
	b.WriteString(valueStyle.Render(d.Value))
	if d.Change != "" {
		b.WriteString("  " + successStyle.Render(d.Change))
	}
	if d.Period != "" {
		b.WriteString(" " + labelStyle.Render("("+d.Period+")"))
	}
	b.WriteString("\n")
	if d.Description != "" {
		b.WriteString(d.Description + "\n")
	}
	return b.String()
}

// renderBars draws a horizontal bar per row, scaled to the largest value.
func renderBars(rows []card.Row, labelKey, valueKey string) string {
	if len(rows) == 0 {
		return labelStyle.Render("(no data)")
	}
	labels := make([]string, len(rows))
	values := make([]float64, len(rows))
	labelWidth := 0
	maxValue := 0.0
	for i, r := range rows {
		labels[i] = fmt.Sprint(r[labelKey])
		values[i] = number(r[valueKey])
		labelWidth = max(labelWidth, lipgloss.Width(labels[i]))
		maxValue = max(maxValue, values[i])
	}

	var b strings.Builder
	for i := range rows {
		n := 0
		if maxValue > 0 {
			n = int(values[i] / maxValue * barWidth)
		}
		fmt.Fprintf(&b, "%-*s %s %s\n", labelWidth, labels[i],
			valueStyle.Render(strings.Repeat("█", n)), formatNumber(values[i]))
	}
	return b.String()
}

func renderPie(d card.PieChartData) string {
	total := 0.0
	for _, r := range d.ChartData {
		total += number(r[d.DataKey])
	}
	var b strings.Builder
	for _, r := range d.ChartData {
		v := number(r[d.DataKey])
		share := 0.0
		if total > 0 {
			share = v / total * 100
		}
		fmt.Fprintf(&b, "%s %s\n", fmt.Sprint(r[d.NameKey]), labelStyle.Render(fmt.Sprintf("%.0f%%", share)))
	}
	if len(d.Analysis) > 0 {
		analysis := append([]card.Competitor(nil), d.Analysis...)
		sort.SliceStable(analysis, func(i, j int) bool { return analysis[i].Name < analysis[j].Name })
		for _, a := range analysis {
			fmt.Fprintf(&b, "%s: + %s / - %s\n", a.Name, a.Strengths, a.Weaknesses)
		}
	}
	return b.String()
}

func number(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case interface{ Float64() (float64, error) }:
		f, _ := x.Float64()
		return f
	default:
		return 0
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// RenderMessage prints one transcript entry with its status line.
func RenderMessage(m session.Message) string {
	var b strings.Builder
	switch m.Role {
	case session.RoleUser:
		b.WriteString(userStyle.Render("you"))
	default:
		b.WriteString(agentStyle.Render("analyst"))
	}
	if m.Heading != "" {
		b.WriteString(" · " + titleStyle.Render(m.Heading))
	}
	b.WriteString("\n")
	b.WriteString(m.Content.Text())
	if m.Status != nil && m.Status.Text != "" {
		b.WriteString("\n" + renderStatus(*m.Status))
	}
	return b.String()
}

func renderStatus(s session.Status) string {
	switch s.Icon {
	case session.IconLoading:
		return loadingStyle.Render("… " + s.Text)
	case session.IconError:
		return errorStyle.Render("✗ " + s.Text)
	default:
		return successStyle.Render("✓ " + s.Text)
	}
}

// RenderProgress draws a fixed-width progress bar followed by the message.
func RenderProgress(message string, percentage float64) string {
	pct := min(max(percentage, 0), 100)
	filled := int(pct / 100 * barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	return fmt.Sprintf("%s %3.0f%% %s", loadingStyle.Render(bar), pct, message)
}
