package bots

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeadlineTone(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"positive words", "apple beats estimates as shares surge", 0.5},
		{"negative words", "lawsuit filed after recall announcement", -0.5},
		{"mixed cancels out", "shares jump despite weak guidance", 0.0},
		{"no lexicon hits", "company announces quarterly report date", 0.0},
		{"saturates at one", "record surge rally jump gain strong profit", 1.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, headlineTone(tc.text), 0.001)
		})
	}
}

func TestHeadlineToneWholeWordsOnly(t *testing.T) {
	// "cut" must not match inside "executive" or "haircut-adjacent" words.
	assert.Zero(t, headlineTone("company executes plan without shortcuts"))
	assert.InDelta(t, -0.25, headlineTone("company cuts dividend"), 0.001)
}

func TestCatalystDirection(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantDir float64
		wantHit bool
	}{
		{"bullish catalyst", "fda approval clears path for launch", 1, true},
		{"bearish catalyst", "sec investigation widens", -1, true},
		{"both directions net zero", "earnings beat overshadowed by sec investigation", 0, true},
		{"no catalyst", "shares trade sideways in quiet session", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir, hit := catalystDirection(tc.text)
			assert.InDelta(t, tc.wantDir, dir, 0.001)
			assert.Equal(t, tc.wantHit, hit)
		})
	}
}

func TestContainsWord(t *testing.T) {
	assert.True(t, containsWord("shares fall sharply", "fall"))
	assert.True(t, containsWord("fall expected", "fall"))
	assert.False(t, containsWord("rainfall expected", "fall"))
	assert.False(t, containsWord("falling knives", "fall"))
	assert.True(t, containsWord("windfall, then fall", "fall"))
}
