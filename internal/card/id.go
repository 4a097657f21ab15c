package card

import "strings"

// DeriveID returns "{type}-{normalized title}". The title is lower-cased and
// every whitespace run becomes a single hyphen, so re-emitting the same
// logical card always lands on the same identifier.
func DeriveID(t Type, title string) string {
	if canon, ok := ParseType(string(t)); ok {
		t = canon
	}
	slug := strings.Join(strings.Fields(strings.ToLower(title)), "-")
	return string(t) + "-" + slug
}

// Key returns the derived identifier for c, ignoring whatever ID it carries.
func (c Card) Key() string {
	return DeriveID(c.Type, c.Title)
}
