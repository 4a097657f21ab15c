package card

import "strings"

func newCard(t Type, title string, size Size) Card {
	if parsed, ok := ParseSize(string(size)); ok {
		size = parsed
	}
	c := Card{Title: strings.TrimSpace(title), Type: t, Size: size}
	c.ID = c.Key()
	return c
}

func NewPeople(title string, size Size, people []Person) Card {
	c := newCard(TypePeople, title, size)
	c.People = &PeopleData{People: append([]Person(nil), people...)}
	return c
}

func NewText(title string, size Size, d TextData) Card {
	c := newCard(TypeText, title, size)
	c.Text = &d
	return c
}

func NewList(title string, size Size, sections ...ListSection) Card {
	c := newCard(TypeList, title, size)
	c.List = &ListData{Sections: append([]ListSection(nil), sections...)}
	return c
}

func NewStat(title string, size Size, d StatData) Card {
	c := newCard(TypeStat, title, size)
	c.Stat = &d
	return c
}

func NewBarChart(title string, size Size, d BarChartData) Card {
	c := newCard(TypeBarChart, title, size)
	c.BarChart = &d
	return c
}

func NewLineChart(title string, size Size, d LineChartData) Card {
	c := newCard(TypeLineChart, title, size)
	c.LineChart = &d
	return c
}

func NewPieChart(title string, size Size, d PieChartData) Card {
	c := newCard(TypePieChart, title, size)
	c.PieChart = &d
	return c
}

// Clone copies c so callers can hold it while the registry keeps mutating.
func Clone(c Card) Card {
	out := c
	if c.People != nil {
		out.People = &PeopleData{People: append([]Person(nil), c.People.People...)}
	}
	if c.Text != nil {
		d := *c.Text
		d.Items = append([]string(nil), c.Text.Items...)
		d.Sections = append([]TextSection(nil), c.Text.Sections...)
		d.Mentions = append([]Mention(nil), c.Text.Mentions...)
		out.Text = &d
	}
	if c.List != nil {
		sections := make([]ListSection, len(c.List.Sections))
		for i, s := range c.List.Sections {
			sections[i] = ListSection{Title: s.Title, Items: append([]string(nil), s.Items...)}
		}
		out.List = &ListData{Sections: sections}
	}
	if c.Stat != nil {
		d := *c.Stat
		out.Stat = &d
	}
	if c.BarChart != nil {
		d := *c.BarChart
		d.ChartData = cloneRows(c.BarChart.ChartData)
		out.BarChart = &d
	}
	if c.LineChart != nil {
		d := *c.LineChart
		d.ChartData = cloneRows(c.LineChart.ChartData)
		out.LineChart = &d
	}
	if c.PieChart != nil {
		d := *c.PieChart
		d.ChartData = cloneRows(c.PieChart.ChartData)
		d.Analysis = append([]Competitor(nil), c.PieChart.Analysis...)
		out.PieChart = &d
	}
	return out
}

func cloneRows(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, r := range rows {
		cp := make(Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}
