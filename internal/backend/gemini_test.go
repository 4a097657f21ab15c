package backend

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReplyKeepsValidCards(t *testing.T) {
	raw := `{
		"reply": "Acme raised a Series A.",
		"cards": [
			{"title": "Total Funding", "type": "stat", "size": "small", "data": {"value": "$25M"}},
			{"title": "Broken", "type": "hologram", "data": {}}
		]
	}`
	reply, err := parseReply([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Acme raised a Series A.", reply.Text)
	require.Len(t, reply.Cards, 1)
	assert.Equal(t, "stat-total-funding", reply.Cards[0].ID)
}

func TestParseReplyAcceptsDoubleEncodedJSON(t *testing.T) {
	reply, err := parseReply([]byte(`"{\"reply\":\"hello\"}"`))
	require.NoError(t, err)
	assert.Equal(t, "hello", reply.Text)
	assert.Empty(t, reply.Cards)
}

func TestParseReplyRejectsEmpty(t *testing.T) {
	_, err := parseReply([]byte(`{"reply": "  "}`))
	assert.ErrorIs(t, err, errEmptyCompletion)

	_, err = parseReply([]byte(`not json`))
	assert.Error(t, err)
}

func TestFragmentsRejoin(t *testing.T) {
	text := "Here is what I know about Acme."
	parts := fragments(text)
	assert.Equal(t, text, strings.Join(parts, ""))
	assert.Len(t, parts, 7)
	assert.Empty(t, fragments(""))
}
