package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerritoryKey(t *testing.T) {
	tests := []struct {
		name    string
		region  string
		segment string
		want    string
	}{
		{"standard pair", "Northeast", "Institutional", "NOR_INS"},
		{"short parts pass through", "NE", "HN", "NE_HN"},
		{"whitespace is trimmed", "  West ", " Retail", "WES_RET"},
		{"empty segment drops the separator", "Northeast", "", "NOR"},
		{"multi-byte region keeps whole runes", "Östlich", "Privat", "ÖST_PRI"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TerritoryKey(tt.region, tt.segment))
		})
	}
}

func TestSegmentTerritoryKey(t *testing.T) {
	assert.Equal(t, "GEN_INS", SegmentTerritoryKey("Institutional"))
	assert.Equal(t, "GEN_ÜBR", SegmentTerritoryKey("übrige"))
}

func TestTierTerritoryKey(t *testing.T) {
	assert.Equal(t, "NOR_PLT", TierTerritoryKey("Northeast", "plt"))
	assert.Equal(t, "ÖST_PLT", TierTerritoryKey("Östlich", "PLT"))
}
