package research

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Year accepts a JSON number or a numeric string. Anything else decodes to
// zero, which callers treat as absent.
type Year int

func (y *Year) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		*y = 0
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if v, err := n.Float64(); err == nil {
			*y = Year(int(v))
			return nil
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			*y = Year(v)
			return nil
		}
	}
	*y = 0
	return nil
}

// Int returns the year, or 0 when y is nil.
func (y *Year) Int() int {
	if y == nil {
		return 0
	}
	return int(*y)
}

// Competitors is either a flat list of names or the structured
// direct/indirect breakdown. Flat reports which form was decoded.
type Competitors struct {
	Flat                 bool
	Names                []string
	Direct               []string
	Indirect             []string
	CompetitiveAdvantage string
}

type competitorsObject struct {
	Direct               []string `json:"direct,omitempty"`
	Indirect             []string `json:"indirect,omitempty"`
	CompetitiveAdvantage string   `json:"competitive_advantage,omitempty"`
}

func (c *Competitors) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	*c = Competitors{}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch raw[0] {
	case '[':
		var names []string
		if err := json.Unmarshal(raw, &names); err != nil {
			return fmt.Errorf("competitors list: %w", err)
		}
		c.Flat = true
		c.Names = names
		return nil
	case '{':
		var obj competitorsObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("competitors object: %w", err)
		}
		c.Direct = obj.Direct
		c.Indirect = obj.Indirect
		c.CompetitiveAdvantage = obj.CompetitiveAdvantage
		return nil
	default:
		return fmt.Errorf("competitors: unsupported shape %q", string(raw[:1]))
	}
}

func (c Competitors) MarshalJSON() ([]byte, error) {
	if c.Flat {
		names := c.Names
		if names == nil {
			names = []string{}
		}
		return json.Marshal(names)
	}
	return json.Marshal(competitorsObject{
		Direct:               c.Direct,
		Indirect:             c.Indirect,
		CompetitiveAdvantage: c.CompetitiveAdvantage,
	})
}

// Funding is the legacy {total, rounds} object. Some backends send a bare
// summary string instead; it is kept in Summary and Legacy stays false.
type Funding struct {
	Legacy  bool
	Total   string
	Rounds  []FundingRound
	Summary string
}

type fundingObject struct {
	Total  string         `json:"total"`
	Rounds []FundingRound `json:"rounds"`
}

func (f *Funding) UnmarshalJSON(raw []byte) error {
	raw = bytes.TrimSpace(raw)
	*f = Funding{}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch raw[0] {
	case '{':
		var obj fundingObject
		if err := json.Unmarshal(raw, &obj); err != nil {
			return fmt.Errorf("funding object: %w", err)
		}
		f.Legacy = true
		f.Total = obj.Total
		f.Rounds = obj.Rounds
		return nil
	case '"':
		return json.Unmarshal(raw, &f.Summary)
	default:
		return fmt.Errorf("funding: unsupported shape %q", string(raw[:1]))
	}
}

func (f Funding) MarshalJSON() ([]byte, error) {
	if !f.Legacy {
		return json.Marshal(f.Summary)
	}
	rounds := f.Rounds
	if rounds == nil {
		rounds = []FundingRound{}
	}
	return json.Marshal(fundingObject{Total: f.Total, Rounds: rounds})
}
