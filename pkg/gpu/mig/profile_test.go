package mig

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfileName__GiSlices(t *testing.T) {
	assert.Equal(t, 3, Profile3g20gb.GiSlices())
	assert.Equal(t, 7, Profile7g80gb.GiSlices())
}

func TestProfileName__MemoryGB(t *testing.T) {
	assert.Equal(t, 20, Profile3g20gb.MemoryGB())
	assert.Equal(t, 5, Profile1g5gb.MemoryGB())
}

func TestParseProfileName(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected ProfileName
		errors   bool
	}{
		{
			name:     "valid profile",
			raw:      "2g.10gb",
			expected: Profile2g10gb,
		},
		{
			name:     "upper case and whitespace are normalized",
			raw:      " 1G.5GB ",
			expected: Profile1g5gb,
		},
		{
			name:   "missing memory suffix",
			raw:    "2g",
			errors: true,
		},
		{
			name:   "empty string",
			raw:    "",
			errors: true,
		},
		{
			name:   "arbitrary string",
			raw:    "all-of-it",
			errors: true,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseProfileName(tt.raw)
			if tt.errors {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, p)
		})
	}
}

func TestProfileNameList__MaxGiSlices(t *testing.T) {
	allowed := ProfileNameList{Profile1g5gb, Profile2g10gb, Profile7g40gb}
	assert.Equal(t, 7, allowed.MaxGiSlices())
	assert.Equal(t, 0, ProfileNameList{}.MaxGiSlices())
}

func TestWeight(t *testing.T) {
	allowed := ProfileNameList{Profile1g5gb, Profile2g10gb, Profile7g40gb}
	assert.InDelta(t, 1.0/7.0, Weight(Profile1g5gb, allowed), 1e-9)
	assert.InDelta(t, 2.0/7.0, Weight(Profile2g10gb, allowed), 1e-9)
	assert.InDelta(t, 1.0, Weight(Profile7g40gb, allowed), 1e-9)
	assert.Zero(t, Weight(Profile1g5gb, ProfileNameList{}))
}
