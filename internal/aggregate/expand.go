package aggregate

import (
	"strconv"
	"strings"

	"vcanalyst/internal/card"
	"vcanalyst/internal/research"
)

// ExpandResearchRecord turns a research record into dashboard cards. The
// result is deterministic: rules run in a fixed order and each produces at
// most one card. Missing fields produce nothing.
func ExpandResearchRecord(rec research.Record) []card.Card {
	var out []card.Card
	add := func(c card.Card, ok bool) {
		if ok {
			out = append(out, c)
		}
	}

	add(textCard("Company Overview", rec.CompanyDescription))
	add(textCard("Business Model", rec.BusinessModel))
	add(peopleCard(rec))
	add(techStackCard(rec.TechStack))
	add(competitorsCard(rec.Competitors))
	if rec.Competitors != nil {
		add(textCard("Competitive Advantage", rec.Competitors.CompetitiveAdvantage))
	}
	add(marketCard("Total Addressable Market", rec.TAM))
	add(marketCard("Serviceable Market", rec.SAM))
	if gm := rec.GrowthMetrics; gm != nil {
		add(growthCard("Revenue Growth", gm.RevenueGrowth))
		add(growthCard("User Growth", gm.UserGrowth))
		add(fundingSummaryCard(gm.Funding))
	}
	add(clientsCard(rec.Clients))
	add(mediaCard(rec.MediaMentions))
	add(foundedCard(rec))
	if f := rec.Funding; f != nil && f.Legacy {
		add(fundingHistoryCard(f.Rounds))
	}
	if industry := strings.TrimSpace(rec.Industry); industry != "" {
		add(card.NewStat("Industry", card.SizeSmall, card.StatData{Value: industry}), true)
	}
	if f := rec.Funding; f != nil && f.Legacy {
		if total := strings.TrimSpace(f.Total); total != "" {
			add(card.NewStat("Total Funding", card.SizeSmall, card.StatData{Value: total}), true)
		}
	}
	return out
}

// IngestRecord expands rec and ingests every card, returning how many new
// IDs were added.
func IngestRecord(reg *Registry, rec research.Record) int {
	added := 0
	for _, c := range ExpandResearchRecord(rec) {
		if _, inserted := reg.Ingest(c); inserted {
			added++
		}
	}
	return added
}

func textCard(title, text string) (card.Card, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return card.Card{}, false
	}
	return card.NewText(title, card.SizeMedium, card.TextData{Text: text}), true
}

func peopleCard(rec research.Record) (card.Card, bool) {
	if len(rec.KeyPeople) > 0 {
		people := make([]card.Person, 0, len(rec.KeyPeople))
		for _, p := range rec.KeyPeople {
			name := strings.TrimSpace(p.Name)
			if name == "" {
				continue
			}
			people = append(people, card.Person{
				Name:       name,
				Role:       strings.TrimSpace(p.Role),
				Avatar:     Initials(name),
				Background: strings.TrimSpace(p.Background),
			})
		}
		if len(people) > 0 {
			return card.NewPeople("Key People", card.SizeMedium, people), true
		}
		return card.Card{}, false
	}
	var founders []card.Person
	for _, name := range rec.Founders {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		founders = append(founders, card.Person{Name: name, Role: "Founder", Avatar: Initials(name)})
	}
	if len(founders) == 0 {
		return card.Card{}, false
	}
	return card.NewPeople("Key People", card.SizeSmall, founders), true
}

func techStackCard(stack []string) (card.Card, bool) {
	items := nonEmpty(stack)
	if len(items) == 0 {
		return card.Card{}, false
	}
	return card.NewList("Tech Stack", card.SizeSmall, card.ListSection{Title: "Technologies", Items: items}), true
}

func competitorsCard(c *research.Competitors) (card.Card, bool) {
	if c == nil {
		return card.Card{}, false
	}
	if c.Flat {
		names := nonEmpty(c.Names)
		if len(names) == 0 {
			return card.Card{}, false
		}
		return card.NewList("Competitors", card.SizeSmall, card.ListSection{Title: "Competitors", Items: names}), true
	}
	var sections []card.ListSection
	if direct := nonEmpty(c.Direct); len(direct) > 0 {
		sections = append(sections, card.ListSection{Title: "Direct", Items: direct})
	}
	if indirect := nonEmpty(c.Indirect); len(indirect) > 0 {
		sections = append(sections, card.ListSection{Title: "Indirect", Items: indirect})
	}
	if len(sections) == 0 {
		return card.Card{}, false
	}
	return card.NewList("Competitors", card.SizeMedium, sections...), true
}

func marketCard(title string, m *research.MarketSize) (card.Card, bool) {
	if m == nil {
		return card.Card{}, false
	}
	d := card.StatData{
		Value:       orPlaceholder(m.Size),
		Description: strings.TrimSpace(m.Description),
	}
	if cagr := strings.TrimSpace(m.CAGR); cagr != "" {
		if pct, ok := ExtractPercentage(cagr); ok {
			d.Change = pct
		} else {
			d.Change = cagr
		}
	}
	if y := m.Year.Int(); y > 0 {
		d.Period = strconv.Itoa(y)
	}
	return card.NewStat(title, card.SizeSmall, d), true
}

func growthCard(title, raw string) (card.Card, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return card.Card{}, false
	}
	if pct, ok := ExtractPercentage(raw); ok {
		return card.NewStat(title, card.SizeSmall, card.StatData{Value: pct, Description: raw}), true
	}
	return card.NewStat(title, card.SizeSmall, card.StatData{Value: raw}), true
}

func fundingSummaryCard(raw string) (card.Card, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return card.Card{}, false
	}
	if amount, ok := ExtractAmount(raw); ok {
		return card.NewStat("Total Funding", card.SizeSmall, card.StatData{Value: amount, Description: raw}), true
	}
	return card.NewStat("Total Funding", card.SizeSmall, card.StatData{Value: raw}), true
}

func clientsCard(c *research.Clients) (card.Card, bool) {
	if c == nil {
		return card.Card{}, false
	}
	var sections []card.ListSection
	if major := nonEmpty(c.MajorClients); len(major) > 0 {
		sections = append(sections, card.ListSection{Title: "Major Clients", Items: major})
	}
	if segments := nonEmpty(c.TargetSegments); len(segments) > 0 {
		sections = append(sections, card.ListSection{Title: "Target Segments", Items: segments})
	}
	if len(sections) == 0 {
		return card.Card{}, false
	}
	return card.NewList("Clients & Market Segments", card.SizeMedium, sections...), true
}

func mediaCard(mentions []research.MediaMention) (card.Card, bool) {
	out := make([]card.Mention, 0, len(mentions))
	for _, m := range mentions {
		quote := strings.TrimSpace(m.Summary)
		if quote == "" {
			quote = strings.TrimSpace(m.Title)
		}
		source := strings.TrimSpace(m.Source)
		if quote == "" && source == "" {
			continue
		}
		date := ""
		if y, ok := ExtractYear(m.Date); ok {
			date = strconv.Itoa(y)
		}
		out = append(out, card.Mention{Source: source, Quote: quote, Date: date})
	}
	if len(out) == 0 {
		return card.Card{}, false
	}
	return card.NewText("Media Mentions", card.SizeMedium, card.TextData{Mentions: out}), true
}

func foundedCard(rec research.Record) (card.Card, bool) {
	location := strings.TrimSpace(rec.Location)
	founding := strings.TrimSpace(rec.FoundingDate)
	if location != "" || rec.FoundedYear.Int() > 0 {
		value := Placeholder
		if y := rec.FoundedYear.Int(); y > 0 {
			value = strconv.Itoa(y)
		} else if y, ok := ExtractYear(founding); ok {
			value = strconv.Itoa(y)
		}
		return card.NewStat("Founded", card.SizeSmall, card.StatData{Value: value, Description: location}), true
	}
	if founding == "" {
		return card.Card{}, false
	}
	d := card.StatData{Value: founding}
	if y, ok := ExtractYear(founding); ok {
		d.Value = strconv.Itoa(y)
		d.Description = "Founded " + founding
	}
	return card.NewStat("Founded", card.SizeSmall, d), true
}

func fundingHistoryCard(rounds []research.FundingRound) (card.Card, bool) {
	if len(rounds) == 0 {
		return card.Card{}, false
	}
	rows := make([]card.Row, 0, len(rounds))
	for _, r := range rounds {
		date := strings.TrimSpace(r.Date)
		if y, ok := ExtractYear(date); ok {
			date = strconv.Itoa(y)
		}
		amount, _ := ParseAmountMillions(r.Amount)
		rows = append(rows, card.Row{
			"round":  strings.TrimSpace(r.Type),
			"date":   date,
			"amount": amount,
		})
	}
	return card.NewLineChart("Funding History", card.SizeLarge, card.LineChartData{
		ChartData: rows,
		DataKey:   "amount",
		XAxisKey:  "date",
		Config: map[string]card.Series{
			"amount": {Label: "Amount (USD M)"},
		},
	}), true
}

func nonEmpty(items []string) []string {
	var out []string
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
