// Package snapshot persists settled dashboards so a research session can
// be reopened without asking the backend again.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"vcanalyst/internal/card"
	"vcanalyst/internal/research"
	"vcanalyst/internal/session"
)

var ErrNotFound = errors.New("snapshot not found")

// Store defines operations for persisting dashboard snapshots.
type Store interface {
	Save(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, id string) (Snapshot, error)
	// List returns summaries for company, newest first.
	List(ctx context.Context, company string) ([]Summary, error)
}

type Snapshot struct {
	ID         string            `json:"id"`
	Company    string            `json:"company"`
	CreatedAt  time.Time         `json:"created_at"`
	Record     *research.Record  `json:"record,omitempty"`
	Cards      []card.Card       `json:"cards"`
	Transcript []session.Message `json:"transcript"`
}

type Summary struct {
	ID        string    `json:"id"`
	Company   string    `json:"company"`
	CreatedAt time.Time `json:"created_at"`
	CardCount int       `json:"card_count"`
}

func (s Snapshot) Summary() Summary {
	return Summary{ID: s.ID, Company: s.Company, CreatedAt: s.CreatedAt, CardCount: len(s.Cards)}
}

// FromView captures the settled parts of a dashboard view. In-progress
// placeholder messages are left out.
func FromView(v session.View) (Snapshot, error) {
	company := strings.TrimSpace(v.Company)
	if company == "" {
		return Snapshot{}, fmt.Errorf("snapshot: view has no company")
	}
	s := Snapshot{
		ID:        uuid.NewString(),
		Company:   company,
		CreatedAt: time.Now().UTC(),
		Cards:     make([]card.Card, 0, len(v.Cards)),
	}
	if v.Record != nil {
		r := *v.Record
		s.Record = &r
	}
	for _, c := range v.Cards {
		s.Cards = append(s.Cards, card.Clone(c))
	}
	for _, m := range v.Transcript {
		if m.Transient {
			continue
		}
		s.Transcript = append(s.Transcript, m)
	}
	return s, nil
}

// CompanyKey normalizes a company name for grouping: lower-cased, with
// whitespace runs collapsed to '-'.
func CompanyKey(company string) string {
	return strings.Join(strings.Fields(strings.ToLower(company)), "-")
}

func validate(s Snapshot) error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("snapshot id is required")
	}
	if CompanyKey(s.Company) == "" {
		return fmt.Errorf("snapshot company is required")
	}
	return nil
}

func clone(s Snapshot) Snapshot {
	out := s
	if s.Record != nil {
		r := *s.Record
		out.Record = &r
	}
	out.Cards = make([]card.Card, len(s.Cards))
	for i, c := range s.Cards {
		out.Cards[i] = card.Clone(c)
	}
	out.Transcript = append([]session.Message(nil), s.Transcript...)
	return out
}

func sortNewestFirst(out []Summary) {
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}
