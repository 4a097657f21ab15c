// Package card defines the dashboard card: a self-describing unit of
// derived information with a type tag and exactly one payload matching it.
package card

import "strings"

type Type string

const (
	TypePeople    Type = "people"
	TypeText      Type = "text"
	TypeList      Type = "list"
	TypeStat      Type = "stat"
	TypeBarChart  Type = "bar-chart"
	TypeLineChart Type = "line-chart"
	TypePieChart  Type = "pie-chart"
)

var typeAliases = map[string]Type{
	"people":     TypePeople,
	"text":       TypeText,
	"list":       TypeList,
	"stat":       TypeStat,
	"bar-chart":  TypeBarChart,
	"barchart":   TypeBarChart,
	"bar_chart":  TypeBarChart,
	"line-chart": TypeLineChart,
	"linechart":  TypeLineChart,
	"line_chart": TypeLineChart,
	"pie-chart":  TypePieChart,
	"piechart":   TypePieChart,
	"pie_chart":  TypePieChart,
}

// ParseType maps wire spellings ("lineChart", "line-chart", "line_chart")
// onto the canonical type.
func ParseType(raw string) (Type, bool) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(raw))]
	return t, ok
}

func (t Type) IsChart() bool {
	return t == TypeBarChart || t == TypeLineChart || t == TypePieChart
}

type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// ParseSize defaults to small for an empty value.
func ParseSize(raw string) (Size, bool) {
	switch Size(strings.ToLower(strings.TrimSpace(raw))) {
	case "", SizeSmall:
		return SizeSmall, true
	case SizeMedium:
		return SizeMedium, true
	case SizeLarge:
		return SizeLarge, true
	default:
		return "", false
	}
}

type Person struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	Avatar     string `json:"avatar"`
	Background string `json:"background,omitempty"`
}

type PeopleData struct {
	People []Person
}

type TextSection struct {
	Title       string   `json:"title"`
	Items       []string `json:"items,omitempty"`
	Description string   `json:"description,omitempty"`
}

type Mention struct {
	Source string `json:"source"`
	Quote  string `json:"quote"`
	Date   string `json:"date"`
}

type TextData struct {
	Text     string        `json:"text,omitempty"`
	Items    []string      `json:"items,omitempty"`
	Footer   string        `json:"footer,omitempty"`
	Sections []TextSection `json:"sections,omitempty"`
	Mentions []Mention     `json:"mentions,omitempty"`
}

type ListSection struct {
	Title string   `json:"title"`
	Items []string `json:"items"`
}

type ListData struct {
	Sections []ListSection
}

type StatData struct {
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
	Change      string `json:"change,omitempty"`
	Period      string `json:"period,omitempty"`
}

type Series struct {
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// Row is one chart record, keyed by the chart's own DataKey / XAxisKey /
// NameKey. Numeric values are validated on decode.
type Row map[string]any

type BarChartData struct {
	ChartData []Row             `json:"chartData"`
	DataKey   string            `json:"dataKey"`
	XAxisKey  string            `json:"xAxisKey"`
	Layout    string            `json:"layout,omitempty"`
	Config    map[string]Series `json:"config,omitempty"`
	ConfigKey string            `json:"configKey,omitempty"`
}

type LineChartData struct {
	ChartData []Row             `json:"chartData"`
	DataKey   string            `json:"dataKey"`
	XAxisKey  string            `json:"xAxisKey"`
	Config    map[string]Series `json:"config,omitempty"`
	ConfigKey string            `json:"configKey,omitempty"`
}

type Competitor struct {
	Name       string `json:"name"`
	Strengths  string `json:"strengths"`
	Weaknesses string `json:"weaknesses"`
}

type PieChartData struct {
	ChartData []Row             `json:"chartData"`
	DataKey   string            `json:"dataKey"`
	NameKey   string            `json:"nameKey"`
	Config    map[string]Series `json:"config,omitempty"`
	ConfigKey string            `json:"configKey,omitempty"`
	Analysis  []Competitor      `json:"analysis,omitempty"`
}

// Card is a tagged union: Type selects which payload pointer is set.
type Card struct {
	ID        string
	Title     string
	Type      Type
	Size      Size
	People    *PeopleData
	Text      *TextData
	List      *ListData
	Stat      *StatData
	BarChart  *BarChartData
	LineChart *LineChartData
	PieChart  *PieChartData
}
