package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"$450,000", 450000},
		{"$13.45M", 13450000},
		{"1.5 million", 1500000},
		{"$85k", 85000},
		{"$2.3mm", 2300000},
		{"USD 120,500", 120500},
		{"750 thousand", 750000},
		{"$1.2bn", 1200000000},
		{"3 billion", 3000000000},
		{"9800", 9800},
		{"$50,000 found", 50000},
		{"revised fee of $85k for phase two", 85000},
		{"around $2.5M sounds right", 2500000},
		{"the total is 120,500.", 120500},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "$", "TBD", "1e9", "$12.5.3", "call me"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
		})
	}
}

func TestParseFirst(t *testing.T) {
	v, raw, err := ParseFirst([]string{"around", "$475,000", "$450,000"})
	require.NoError(t, err)
	assert.Equal(t, 475000.0, v)
	assert.Equal(t, "$475,000", raw)

	_, _, err = ParseFirst([]string{"soon", "maybe"})
	require.Error(t, err)
}

func TestParseFirstPrefersEarlierProseCandidate(t *testing.T) {
	v, raw, err := ParseFirst([]string{"$50,000 found", "12000"})
	require.NoError(t, err)
	assert.Equal(t, 50000.0, v)
	assert.Equal(t, "$50,000 found", raw)
}
