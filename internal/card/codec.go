package card

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidCard = errors.New("invalid card")

type wireCard struct {
	ID    string          `json:"id,omitempty"`
	Title string          `json:"title"`
	Type  string          `json:"type"`
	Size  string          `json:"size,omitempty"`
	Data  json.RawMessage `json:"data"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCard, fmt.Sprintf(format, args...))
}

// Decode parses and validates one wire card. The returned card always
// carries its derived ID.
func Decode(raw []byte) (Card, error) {
	var c Card
	if err := json.Unmarshal(raw, &c); err != nil {
		return Card{}, err
	}
	return c, nil
}

func (c *Card) UnmarshalJSON(raw []byte) error {
	var w wireCard
	if err := json.Unmarshal(raw, &w); err != nil {
		return invalid("%v", err)
	}
	t, ok := ParseType(w.Type)
	if !ok {
		return invalid("unknown type %q", w.Type)
	}
	size, ok := ParseSize(w.Size)
	if !ok {
		return invalid("unknown size %q", w.Size)
	}
	out := Card{
		Title: strings.TrimSpace(w.Title),
		Type:  t,
		Size:  size,
	}
	data := bytes.TrimSpace(w.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return invalid("card %q has no data", out.Title)
	}
	if err := out.decodePayload(data); err != nil {
		return err
	}
	if err := out.Validate(); err != nil {
		return err
	}
	out.ID = out.Key()
	*c = out
	return nil
}

func (c *Card) decodePayload(data []byte) error {
	switch c.Type {
	case TypePeople:
		var p PeopleData
		if data[0] == '[' {
			if err := json.Unmarshal(data, &p.People); err != nil {
				return invalid("people data: %v", err)
			}
		} else {
			var obj struct {
				People []Person `json:"people"`
			}
			if err := json.Unmarshal(data, &obj); err != nil {
				return invalid("people data: %v", err)
			}
			p.People = obj.People
		}
		c.People = &p
	case TypeText:
		var d TextData
		if err := json.Unmarshal(data, &d); err != nil {
			return invalid("text data: %v", err)
		}
		c.Text = &d
	case TypeList:
		var l ListData
		if data[0] == '[' {
			if err := json.Unmarshal(data, &l.Sections); err != nil {
				return invalid("list data: %v", err)
			}
		} else {
			var obj struct {
				Sections []ListSection `json:"sections"`
			}
			if err := json.Unmarshal(data, &obj); err != nil {
				return invalid("list data: %v", err)
			}
			l.Sections = obj.Sections
		}
		c.List = &l
	case TypeStat:
		var d StatData
		if err := json.Unmarshal(data, &d); err != nil {
			return invalid("stat data: %v", err)
		}
		c.Stat = &d
	case TypeBarChart:
		var d BarChartData
		if err := json.Unmarshal(data, &d); err != nil {
			return invalid("bar chart data: %v", err)
		}
		c.BarChart = &d
	case TypeLineChart:
		var d LineChartData
		if err := json.Unmarshal(data, &d); err != nil {
			return invalid("line chart data: %v", err)
		}
		c.LineChart = &d
	case TypePieChart:
		var d PieChartData
		if err := json.Unmarshal(data, &d); err != nil {
			return invalid("pie chart data: %v", err)
		}
		c.PieChart = &d
	default:
		return invalid("unknown type %q", c.Type)
	}
	return nil
}

// Validate checks that the payload matching Type is present and well formed.
func (c Card) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return invalid("title is required")
	}
	if _, ok := ParseSize(string(c.Size)); !ok {
		return invalid("card %q: unknown size %q", c.Title, c.Size)
	}
	switch c.Type {
	case TypePeople:
		if c.People == nil {
			return invalid("card %q: missing people payload", c.Title)
		}
		for i, p := range c.People.People {
			if strings.TrimSpace(p.Name) == "" {
				return invalid("card %q: person %d has no name", c.Title, i)
			}
		}
	case TypeText:
		d := c.Text
		if d == nil {
			return invalid("card %q: missing text payload", c.Title)
		}
		if d.Text == "" && len(d.Items) == 0 && d.Footer == "" && len(d.Sections) == 0 && len(d.Mentions) == 0 {
			return invalid("card %q: text payload is empty", c.Title)
		}
	case TypeList:
		if c.List == nil {
			return invalid("card %q: missing list payload", c.Title)
		}
	case TypeStat:
		if c.Stat == nil {
			return invalid("card %q: missing stat payload", c.Title)
		}
		if strings.TrimSpace(c.Stat.Value) == "" {
			return invalid("card %q: stat value is required", c.Title)
		}
	case TypeBarChart:
		if c.BarChart == nil {
			return invalid("card %q: missing bar chart payload", c.Title)
		}
		return validateRows(c.Title, c.BarChart.ChartData, c.BarChart.XAxisKey, c.BarChart.DataKey)
	case TypeLineChart:
		if c.LineChart == nil {
			return invalid("card %q: missing line chart payload", c.Title)
		}
		return validateRows(c.Title, c.LineChart.ChartData, c.LineChart.XAxisKey, c.LineChart.DataKey)
	case TypePieChart:
		if c.PieChart == nil {
			return invalid("card %q: missing pie chart payload", c.Title)
		}
		return validateRows(c.Title, c.PieChart.ChartData, c.PieChart.NameKey, c.PieChart.DataKey)
	default:
		return invalid("card %q: unknown type %q", c.Title, c.Type)
	}
	return nil
}

func validateRows(title string, rows []Row, labelKey, valueKey string) error {
	if strings.TrimSpace(labelKey) == "" || strings.TrimSpace(valueKey) == "" {
		return invalid("card %q: chart keys are required", title)
	}
	for i, row := range rows {
		if _, ok := row[labelKey]; !ok {
			return invalid("card %q: row %d has no %q", title, i, labelKey)
		}
		switch row[valueKey].(type) {
		case float64, int, int64, json.Number:
		default:
			return invalid("card %q: row %d value %q is not numeric", title, i, valueKey)
		}
	}
	return nil
}

func (c Card) MarshalJSON() ([]byte, error) {
	var data any
	switch c.Type {
	case TypePeople:
		if c.People != nil {
			people := c.People.People
			if people == nil {
				people = []Person{}
			}
			data = people
		}
	case TypeText:
		data = c.Text
	case TypeList:
		if c.List != nil {
			sections := c.List.Sections
			if sections == nil {
				sections = []ListSection{}
			}
			data = sections
		}
	case TypeStat:
		data = c.Stat
	case TypeBarChart:
		data = c.BarChart
	case TypeLineChart:
		data = c.LineChart
	case TypePieChart:
		data = c.PieChart
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	id := c.ID
	if id == "" {
		id = c.Key()
	}
	return json.Marshal(wireCard{
		ID:    id,
		Title: c.Title,
		Type:  string(c.Type),
		Size:  string(c.Size),
		Data:  raw,
	})
}
