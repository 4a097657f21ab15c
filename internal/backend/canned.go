package backend

import (
	"context"
	"fmt"
	"strings"

	"vcanalyst/internal/card"
	"vcanalyst/internal/research"
)

type researchStep struct {
	message    string
	percentage float64
}

var researchSteps = []researchStep{
	{"Searching public sources", 10},
	{"Reading company profile", 30},
	{"Collecting funding history", 55},
	{"Sizing the market", 75},
	{"Mapping competitors", 90},
}

// CannedResearcher answers every company with the same deterministic
// profile. It is meant for local runs and tests.
type CannedResearcher struct{}

func (CannedResearcher) Research(ctx context.Context, company string, progress func(string, float64)) (research.Record, error) {
	for _, step := range researchSteps {
		if err := ctx.Err(); err != nil {
			return research.Record{}, err
		}
		if progress != nil {
			progress(step.message, step.percentage)
		}
	}
	return cannedRecord(company), nil
}

func (CannedResearcher) Basics(ctx context.Context, company string) (research.Record, error) {
	if err := ctx.Err(); err != nil {
		return research.Record{}, err
	}
	full := cannedRecord(company)
	return research.Record{
		CompanyName:        full.CompanyName,
		CompanyDescription: full.CompanyDescription,
		CompanyWebsite:     full.CompanyWebsite,
		Industry:           full.Industry,
	}, nil
}

func cannedRecord(company string) research.Record {
	name := strings.TrimSpace(company)
	slug := strings.Join(strings.Fields(strings.ToLower(name)), "")
	founded := research.Year(2019)
	tamYear := research.Year(2028)

	return research.Record{
		CompanyName:        name,
		CompanyDescription: name + " builds workflow automation for mid-market logistics teams.",
		CompanyWebsite:     "https://" + slug + ".example.com",
		Industry:           "Logistics Software",
		FoundingDate:       "2019-03-14",
		FoundedYear:        &founded,
		Location:           "Berlin, Germany",
		BusinessModel:      "B2B SaaS with per-seat pricing",
		Founders:           []string{"Ada Brandt", "Jonas Keller"},
		TechStack:          []string{"Go", "PostgreSQL", "Kubernetes", "React"},
		KeyPeople: []research.Person{
			{Name: "Ada Brandt", Role: "CEO", Background: "Former operations lead at a freight marketplace"},
			{Name: "Jonas Keller", Role: "CTO", Background: "Built routing systems for last-mile delivery"},
		},
		TAM: &research.MarketSize{
			Size:        "$48.5 billion",
			Year:        &tamYear,
			CAGR:        "12.4% annually",
			Description: "Global logistics software spend",
		},
		Competitors: &research.Competitors{
			Direct:               []string{"Flexport", "project44"},
			Indirect:             []string{"SAP TM", "Oracle OTM"},
			CompetitiveAdvantage: "Setup in days rather than months for mid-market fleets",
		},
		GrowthMetrics: &research.GrowthMetrics{
			UserGrowth:    "3x year over year",
			RevenueGrowth: "180% in 2023",
		},
		Funding: &research.Funding{
			Legacy: true,
			Total:  "$27.5M",
			Rounds: []research.FundingRound{
				{Date: "2020-06-01", Amount: "$2.5M", Type: "Seed", Investors: []string{"Point Nine"}},
				{Date: "2022-09-15", Amount: "$25M", Type: "Series A", Investors: []string{"Atomico", "Point Nine"}},
			},
		},
		Clients: &research.Clients{
			MajorClients:   []string{"Nordfracht", "Rhein Cargo"},
			TargetSegments: []string{"Regional carriers", "3PL providers"},
		},
		SocialMedia: &research.SocialMedia{
			LinkedIn: "https://linkedin.com/company/" + slug,
		},
		MediaMentions: []research.MediaMention{
			{Title: name + " raises Series A", Source: "TechCrunch", Date: "2022-09-15", Summary: "The round was led by Atomico."},
		},
	}
}

// CannedResponder answers from the research context the client sends and
// attaches one notes card per turn.
type CannedResponder struct{}

func (CannedResponder) Respond(ctx context.Context, turn Turn) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	rec := turn.Record
	name := firstNonEmpty(rec.CompanyName, "this company")

	var b strings.Builder
	fmt.Fprintf(&b, "Here is what I know about %s.", name)
	if rec.Industry != "" {
		fmt.Fprintf(&b, " It operates in %s.", rec.Industry)
	}
	if rec.Funding != nil && rec.Funding.Legacy && rec.Funding.Total != "" {
		fmt.Fprintf(&b, " Total funding so far is %s.", rec.Funding.Total)
	}
	if len(turn.History) > 0 {
		fmt.Fprintf(&b, " We have exchanged %d messages so far.", len(turn.History))
	}

	notes := card.NewText("Analyst Notes", card.SizeMedium, card.TextData{
		Text:  "Question: " + strings.TrimSpace(turn.Message),
		Items: []string{b.String()},
	})
	return Reply{Text: b.String(), Cards: []card.Card{notes}}, nil
}
