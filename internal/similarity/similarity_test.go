package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaccardBounds(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"AI", "ML"}, []string{"ML", "AI"}, 1},
		{"disjoint", []string{"AI"}, []string{"PM"}, 0},
		{"half", []string{"AI", "ML"}, []string{"AI", "PM"}, 1.0 / 3.0},
		{"empty left", nil, []string{"AI"}, 0},
		{"empty right", []string{"AI"}, nil, 0},
		{"both empty", nil, nil, 0},
		{"duplicates ignored", []string{"AI", "AI"}, []string{"AI"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Jaccard(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestJaccardSymmetric(t *testing.T) {
	a := []string{"AI", "ML", "PM"}
	b := []string{"ML", "DEVOPS"}
	assert.Equal(t, Jaccard(a, b), Jaccard(b, a))
}

func TestPurposeSimilarityTokenizes(t *testing.T) {
	assert.InDelta(t, 1.0, PurposeSimilarity("Talk about AI, startups!", "talk ABOUT ai startups"), 1e-9)
	assert.Equal(t, 0.0, PurposeSimilarity("", "anything"))
	assert.Equal(t, 0.0, PurposeSimilarity("!!!", "anything"))
	assert.InDelta(t, 1.0/3.0, PurposeSimilarity("창업 이야기", "창업 투자"), 1e-9)
}

func TestCompositeMonotonic(t *testing.T) {
	steps := []float64{0, 0.1, 0.25, 0.5, 0.75, 1}
	for _, fixed := range steps {
		prev := -1.0
		for _, s := range steps {
			got := Composite(s, fixed)
			assert.GreaterOrEqual(t, got, prev, "interest %v purpose %v", s, fixed)
			prev = got
		}
		prev = -1.0
		for _, s := range steps {
			got := Composite(fixed, s)
			assert.GreaterOrEqual(t, got, prev, "interest %v purpose %v", fixed, s)
			prev = got
		}
	}
	assert.InDelta(t, 1.0, Composite(1, 1), 1e-9)
	assert.InDelta(t, 0.7, Composite(1, 0), 1e-9)
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, Tokens("Hello, WORLD... 42!"))
	assert.Equal(t, []string{"백엔드", "개발자"}, Tokens("백엔드/개발자"))
	assert.Empty(t, Tokens("  ...  "))
}
