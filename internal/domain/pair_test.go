package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTokenIdentifier(t *testing.T) {
	valid := "So11111111111111111111111111111111111111112"
	tok, err := ParseTokenIdentifier(valid)
	require.NoError(t, err)
	assert.Equal(t, valid, tok.String())

	cases := map[string]string{
		"too short":     strings.Repeat("a", 31),
		"too long":      strings.Repeat("a", 45),
		"zero":          strings.Repeat("a", 31) + "0",
		"capital O":     strings.Repeat("a", 31) + "O",
		"capital I":     strings.Repeat("a", 31) + "I",
		"lowercase l":   strings.Repeat("a", 31) + "l",
		"punctuation":   strings.Repeat("a", 31) + "-",
		"empty":         "",
		"non-ascii run": strings.Repeat("é", 20),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTokenIdentifier(in)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestPairSnapshot_AddPriceKeepsWindow(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var snap PairSnapshot
	for i := 0; i < 15; i++ {
		snap.AddPrice(HistoryPoint{At: base.Add(time.Duration(i) * time.Second), Value: float64(i)}, 10)
	}

	require.Len(t, snap.PriceHistory, 10)
	assert.Equal(t, 5.0, snap.PriceHistory[0].Value)
	assert.Equal(t, 14.0, snap.PriceHistory[9].Value)
}

func TestPairSnapshot_AddVolumeOutOfOrder(t *testing.T) {
	base := time.Unix(1700000000, 0)
	var snap PairSnapshot
	snap.AddVolume(HistoryPoint{At: base.Add(2 * time.Second), Value: 3}, 3)
	snap.AddVolume(HistoryPoint{At: base, Value: 1}, 3)
	snap.AddVolume(HistoryPoint{At: base.Add(time.Second), Value: 2}, 3)
	snap.AddVolume(HistoryPoint{At: base.Add(-time.Second), Value: 0}, 3)

	assert.Equal(t, []float64{1, 2, 3}, snap.Volumes())
}

func TestPairSnapshot_Normalize(t *testing.T) {
	base := time.Unix(1700000000, 0)
	snap := PairSnapshot{
		PriceHistory: []HistoryPoint{
			{At: base.Add(3 * time.Second), Value: 4},
			{At: base, Value: 1},
			{At: base.Add(2 * time.Second), Value: 3},
			{At: base.Add(time.Second), Value: 2},
		},
	}

	out := snap.Normalize(3)
	assert.Equal(t, []float64{2, 3, 4}, out.Prices())
	// The source snapshot is not mutated.
	assert.Equal(t, 4.0, snap.PriceHistory[0].Value)
}

func TestSafetyVerdict_Passed(t *testing.T) {
	all := SafetyVerdict{true, true, true, true}
	assert.True(t, all.Passed())

	one := all
	one.SwapSimulationOK = false
	assert.False(t, one.Passed())
}
