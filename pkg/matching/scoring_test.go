package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameSimilarity(t *testing.T) {
	scorer := NewScorer()

	t.Run("identical names score 100", func(t *testing.T) {
		assert.Equal(t, 100.0, scorer.NameSimilarity("Atlas Capital Partners", "Atlas Capital Partners"))
	})

	t.Run("case and whitespace differences score 100", func(t *testing.T) {
		assert.Equal(t, 100.0, scorer.NameSimilarity("  atlas CAPITAL partners ", "Atlas Capital Partners"))
	})

	t.Run("legal suffix differences score 100", func(t *testing.T) {
		assert.Equal(t, 100.0, scorer.NameSimilarity("Atlas Capital Partners LLC", "Atlas Capital Partners"))
	})

	t.Run("empty input scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.NameSimilarity("", "Atlas Capital Partners"))
		assert.Equal(t, 0.0, scorer.NameSimilarity("Atlas Capital Partners", ""))
		assert.Equal(t, 0.0, scorer.NameSimilarity("", ""))
	})

	t.Run("edit distance 1 stays above merge threshold", func(t *testing.T) {
		score := scorer.NameSimilarity("Atlas Capital Partners", "Atlas Capital Partner")
		assert.GreaterOrEqual(t, score, 95.0)
	})

	t.Run("word order does not penalize", func(t *testing.T) {
		assert.Equal(t, 100.0, scorer.NameSimilarity("Capital Atlas Partners", "Atlas Capital Partners"))
	})

	t.Run("unrelated names score low", func(t *testing.T) {
		score := scorer.NameSimilarity("Atlas Capital Partners", "Meridian Wealth Group")
		assert.Less(t, score, 50.0)
	})

	t.Run("symmetric", func(t *testing.T) {
		tests := [][2]string{
			{"Atlas Capital", "Atlass Capital"},
			{"Northstar Advisors", "North Star Advisors"},
			{"Acme", "Acme Inc"},
		}
		for _, pair := range tests {
			assert.Equal(t, scorer.NameSimilarity(pair[0], pair[1]), scorer.NameSimilarity(pair[1], pair[0]))
		}
	})

	t.Run("bounded in 0..100", func(t *testing.T) {
		score := scorer.NameSimilarity("a", "zzzzzzzzzzzzzzzzzzzz")
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
	})
}

func TestLevenshteinDistance(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		a, b     string
		expected int
	}{
		{"identical", "atlas", "atlas", 0},
		{"single substitution", "atlas", "atlaz", 1},
		{"single deletion", "atlas", "atla", 1},
		{"empty left", "", "atlas", 5},
		{"empty right", "atlas", "", 5},
		{"transposed word", "abc", "cab", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scorer.LevenshteinDistance(tt.a, tt.b))
		})
	}
}

func TestSoundex(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"classic example", "Robert", "R163"},
		{"phonetic equivalent", "Rupert", "R163"},
		{"short word padded", "Lee", "L000"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, scorer.Soundex(tt.input))
		})
	}
}

func TestJaroWinkler(t *testing.T) {
	scorer := NewScorer()

	t.Run("identical strings score 1", func(t *testing.T) {
		assert.Equal(t, 1.0, scorer.JaroWinkler("martha", "martha"))
	})

	t.Run("shared prefix boosts score", func(t *testing.T) {
		plain := scorer.Jaro("martha", "marhta")
		boosted := scorer.JaroWinkler("martha", "marhta")
		assert.Greater(t, boosted, plain)
	})

	t.Run("no overlap scores 0", func(t *testing.T) {
		assert.Equal(t, 0.0, scorer.Jaro("abc", "xyz"))
	})
}
