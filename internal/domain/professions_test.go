package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProfessionsForms(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []Profession
	}{
		{
			name: "native array of objects",
			raw:  `[{"id":"mining","rank":4,"name":"Grandmaster Miner"},{"id":"logging","rank":2}]`,
			want: []Profession{{ID: "mining", Rank: 4, Name: "Grandmaster Miner"}, {ID: "logging", Rank: 2}},
		},
		{
			name: "string encoded array",
			raw:  `"[{\"id\":\"mining\",\"rank\":4,\"name\":\"Grandmaster Miner\"}]"`,
			want: []Profession{{ID: "mining", Rank: 4, Name: "Grandmaster Miner"}},
		},
		{
			name: "bare identifiers default to rank one",
			raw:  `["fishing","skinning"]`,
			want: []Profession{{ID: "fishing", Rank: 1}, {ID: "skinning", Rank: 1}},
		},
		{
			name: "mixed entries and string ranks",
			raw:  `["fishing",{"id":"smelting","rank":"3"},{"id":"weaving"}]`,
			want: []Profession{{ID: "fishing", Rank: 1}, {ID: "smelting", Rank: 3}, {ID: "weaving", Rank: 1}},
		},
		{
			name: "ids are lower-cased",
			raw:  `[{"id":" Mining ","rank":4},"FISHING"]`,
			want: []Profession{{ID: "mining", Rank: 4}, {ID: "fishing", Rank: 1}},
		},
		{name: "empty", raw: ``, want: nil},
		{name: "null", raw: `null`, want: nil},
		{name: "empty string", raw: `""`, want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseProfessions([]byte(tc.raw))
			require.NoError(t, err)
			if tc.want == nil {
				assert.Empty(t, got)
				return
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParseProfessions() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseProfessionsRejectsNonArray(t *testing.T) {
	_, err := ParseProfessions([]byte(`{"id":"mining"}`))
	require.Error(t, err)

	_, err = ParseProfessions([]byte(`"not json"`))
	require.Error(t, err)

	_, err = ParseProfessions([]byte(`[{"id":"mining","rank":"high"}]`))
	require.Error(t, err)
}

func TestMarshalProfessionsRoundTripsThroughParser(t *testing.T) {
	in := []Profession{{ID: "armoring", Rank: 4, Name: "Grandmaster Armorer"}}
	encoded, err := MarshalProfessions(in)
	require.NoError(t, err)
	out, err := ParseProfessions([]byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	empty, err := MarshalProfessions(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)
}
