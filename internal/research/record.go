// Package research holds the structured result of researching one company.
//
// Every field except CompanyName is optional and stays nil/empty when the
// backend omits it. Nothing is defaulted on decode.
package research

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrMissingCompanyName = errors.New("research: company_name is required")

type Record struct {
	CompanyName        string         `json:"company_name"`
	CompanyDescription string         `json:"company_description,omitempty"`
	CompanyWebsite     string         `json:"company_website,omitempty"`
	Industry           string         `json:"industry,omitempty"`
	FoundingDate       string         `json:"founding_date,omitempty"`
	FoundedYear        *Year          `json:"founded_year,omitempty"`
	Location           string         `json:"location,omitempty"`
	BusinessModel      string         `json:"business_model,omitempty"`
	Founders           []string       `json:"founders,omitempty"`
	TechStack          []string       `json:"tech_stack,omitempty"`
	KeyPeople          []Person       `json:"key_people,omitempty"`
	TAM                *MarketSize    `json:"tam,omitempty"`
	SAM                *MarketSize    `json:"sam,omitempty"`
	Competitors        *Competitors   `json:"competitors,omitempty"`
	GrowthMetrics      *GrowthMetrics `json:"growth_metrics,omitempty"`
	Funding            *Funding       `json:"funding,omitempty"`
	Clients            *Clients       `json:"clients,omitempty"`
	SocialMedia        *SocialMedia   `json:"social_media,omitempty"`
	MediaMentions      []MediaMention `json:"media_mentions,omitempty"`
}

type Person struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	Background string `json:"background,omitempty"`
}

type MarketSize struct {
	Size        string   `json:"size"`
	Year        *Year    `json:"year,omitempty"`
	CAGR        string   `json:"cagr,omitempty"`
	Description string   `json:"description,omitempty"`
	Sources     []string `json:"sources,omitempty"`
}

type GrowthMetrics struct {
	UserGrowth    string `json:"user_growth,omitempty"`
	RevenueGrowth string `json:"revenue_growth,omitempty"`
	Funding       string `json:"funding,omitempty"`
	OtherMetrics  string `json:"other_metrics,omitempty"`
}

type FundingRound struct {
	Date      string   `json:"date"`
	Amount    string   `json:"amount"`
	Type      string   `json:"type"`
	Investors []string `json:"investors,omitempty"`
}

type Clients struct {
	MajorClients   []string `json:"major_clients,omitempty"`
	TargetSegments []string `json:"target_segments,omitempty"`
	CaseStudies    []string `json:"case_studies,omitempty"`
}

type SocialMedia struct {
	Twitter        string `json:"twitter,omitempty"`
	LinkedIn       string `json:"linkedin,omitempty"`
	OtherPlatforms string `json:"other_platforms,omitempty"`
}

type MediaMention struct {
	Title   string `json:"title"`
	Source  string `json:"source"`
	Date    string `json:"date,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Validate reports whether the record carries its identity.
func (r Record) Validate() error {
	if strings.TrimSpace(r.CompanyName) == "" {
		return ErrMissingCompanyName
	}
	return nil
}

// Stub returns the minimal context record used when a chat turn starts
// before research has settled.
func Stub(companyName string) Record {
	return Record{CompanyName: strings.TrimSpace(companyName)}
}

// Decode parses a record and validates its identity.
func Decode(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, err
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}
