package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandidates(t *testing.T) {
	raw := `{"facts": [
		{"name": "Paris", "type": "Location", "verb": "lives_in", "confidence": 0.95},
		{"name": "Hiking", "type": "Hobby", "verb": "enjoys", "confidence": 0.9}
	]}`

	candidates, err := parseCandidates(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "Paris", candidates[0].Name)
	assert.Equal(t, "Location", candidates[0].Type)
	assert.Equal(t, "lives_in", candidates[0].Verb)
	assert.Equal(t, 0.95, candidates[0].Confidence)
}

func TestParseCandidates_DropsMalformedEntries(t *testing.T) {
	raw := `{"facts": [
		{"name": "", "type": "Location", "verb": "lives_in", "confidence": 0.9},
		{"name": "Paris", "type": "", "verb": "lives_in", "confidence": 0.9},
		{"name": "Paris", "type": "Location", "verb": "", "confidence": 0.9},
		{"name": "Paris", "type": "Location", "verb": "lives_in", "confidence": 1.7}
	]}`

	candidates, err := parseCandidates(raw)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	// Out-of-range confidence is clamped, not dropped
	assert.Equal(t, 1.0, candidates[0].Confidence)
}

func TestParseCandidates_EmptyAndInvalid(t *testing.T) {
	candidates, err := parseCandidates(`{"facts": []}`)
	require.NoError(t, err)
	assert.Empty(t, candidates)

	_, err = parseCandidates(`not json`)
	assert.Error(t, err)
}
