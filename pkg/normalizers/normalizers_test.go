package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "casey@example.com", NormalizeEmail("  Casey@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestNormalizeOrgName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"legal suffix dropped", "Atlas Capital Partners Inc.", "atlas capital partners"},
		{"punctuation removed", "Beacon, Wealth & Advisors", "beacon wealth advisors"},
		{"whitespace collapsed", "  Atlas   Capital ", "atlas capital"},
		{"llc suffix", "Summit Holdings LLC", "summit holdings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeOrgName(tt.in))
		})
	}
}
