package research

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeKeepsAbsentFieldsAbsent(t *testing.T) {
	rec, err := Decode([]byte(`{"company_name":"Acme","tam":{"size":"$2B"},"founders":["Jo Lee"]}`))
	require.NoError(t, err)

	assert.Equal(t, "Acme", rec.CompanyName)
	require.NotNil(t, rec.TAM)
	assert.Equal(t, "$2B", rec.TAM.Size)
	assert.Nil(t, rec.TAM.Year)
	assert.Nil(t, rec.SAM)
	assert.Nil(t, rec.Competitors)
	assert.Nil(t, rec.Funding)
	assert.Nil(t, rec.FoundedYear)
	assert.Empty(t, rec.KeyPeople)
	assert.Equal(t, []string{"Jo Lee"}, rec.Founders)
}

func TestDecodeRequiresCompanyName(t *testing.T) {
	_, err := Decode([]byte(`{"industry":"AI"}`))
	assert.ErrorIs(t, err, ErrMissingCompanyName)
}

func TestCompetitorsAcceptsBothShapes(t *testing.T) {
	var flat Record
	require.NoError(t, json.Unmarshal([]byte(`{"company_name":"A","competitors":["B","C"]}`), &flat))
	require.NotNil(t, flat.Competitors)
	assert.True(t, flat.Competitors.Flat)
	assert.Equal(t, []string{"B", "C"}, flat.Competitors.Names)

	var obj Record
	require.NoError(t, json.Unmarshal([]byte(`{"company_name":"A","competitors":{"direct":["B"],"competitive_advantage":"speed"}}`), &obj))
	require.NotNil(t, obj.Competitors)
	assert.False(t, obj.Competitors.Flat)
	assert.Equal(t, []string{"B"}, obj.Competitors.Direct)
	assert.Equal(t, "speed", obj.Competitors.CompetitiveAdvantage)

	out, err := json.Marshal(flat.Competitors)
	require.NoError(t, err)
	assert.JSONEq(t, `["B","C"]`, string(out))
}

func TestFundingLegacyAndSummary(t *testing.T) {
	var legacy Record
	require.NoError(t, json.Unmarshal([]byte(`{"company_name":"A","funding":{"total":"$10M","rounds":[{"date":"2021-03-01","amount":"$2M","type":"Seed"}]}}`), &legacy))
	require.NotNil(t, legacy.Funding)
	assert.True(t, legacy.Funding.Legacy)
	assert.Len(t, legacy.Funding.Rounds, 1)

	var summary Record
	require.NoError(t, json.Unmarshal([]byte(`{"company_name":"A","funding":"Series B, $40M"}`), &summary))
	require.NotNil(t, summary.Funding)
	assert.False(t, summary.Funding.Legacy)
	assert.Equal(t, "Series B, $40M", summary.Funding.Summary)
}

func TestYearIsLenient(t *testing.T) {
	var rec Record
	require.NoError(t, json.Unmarshal([]byte(`{"company_name":"A","founded_year":"2015","tam":{"size":"x","year":"soon"}}`), &rec))
	assert.Equal(t, 2015, rec.FoundedYear.Int())
	assert.Equal(t, 0, rec.TAM.Year.Int())
}

func TestDecodeToleratesMistypedFields(t *testing.T) {
	raw := `{
		"company_name": "Acme",
		"company_description": "Rockets",
		"location": {"city": "Berlin"},
		"tech_stack": "Go, React",
		"founders": ["Jo Lee", 42, {"name": "x"}],
		"key_people": [{"name": "Jo Lee", "role": 7}, "not a person"],
		"tam": {"size": "$2B", "cagr": 12.5, "year": 2030},
		"competitors": "everyone",
		"funding": {"total": 10000000, "rounds": [{"date": "2020", "amount": 5000000, "type": "Seed", "investors": "Sequoia"}]},
		"social_media": {"linkedin": true}
	}`
	rec, err := Decode([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "Acme", rec.CompanyName)
	assert.Equal(t, "Rockets", rec.CompanyDescription)
	assert.Empty(t, rec.Location)
	assert.Equal(t, []string{"Go, React"}, rec.TechStack)
	assert.Equal(t, []string{"Jo Lee", "42"}, rec.Founders)
	require.Len(t, rec.KeyPeople, 1)
	assert.Equal(t, "7", rec.KeyPeople[0].Role)

	require.NotNil(t, rec.TAM)
	assert.Equal(t, "12.5", rec.TAM.CAGR)
	assert.Equal(t, 2030, rec.TAM.Year.Int())

	assert.Nil(t, rec.Competitors)

	require.NotNil(t, rec.Funding)
	assert.True(t, rec.Funding.Legacy)
	assert.Equal(t, "10000000", rec.Funding.Total)
	require.Len(t, rec.Funding.Rounds, 1)
	assert.Equal(t, "5000000", rec.Funding.Rounds[0].Amount)
	assert.Equal(t, []string{"Sequoia"}, rec.Funding.Rounds[0].Investors)

	require.NotNil(t, rec.SocialMedia)
	assert.Equal(t, "true", rec.SocialMedia.LinkedIn)
}

func TestDecodeDropsUnusableFundingShape(t *testing.T) {
	rec, err := Decode([]byte(`{"company_name":"Acme","funding":12,"industry":"AI"}`))
	require.NoError(t, err)
	assert.Nil(t, rec.Funding)
	assert.Equal(t, "AI", rec.Industry)
}

func TestDecodeRejectsNonObject(t *testing.T) {
	_, err := Decode([]byte(`["Acme"]`))
	assert.Error(t, err)
}
