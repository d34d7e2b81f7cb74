package version

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var corpus = []string{
	"1.0.0", "1.0", "1", "0.9.9", "1.0.1", "1.10.0", "1.2.0", "2.0.0-beta.1",
	"2.0.0", "2.0.0-rc.1", "v2.0.0", "0.0.1", "10.0", "3.1.4.1", "nightly",
	"latest", "", "1.8.6", "1.8.10",
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.1", -1},
		{"1.10.0", "1.2.0", 1},
		{"2.0.0-beta.1", "2.0.0", -1},
		{"2.0.0-beta.1", "2.0.0-rc.1", -1},
		{"1.8.10", "1.8.6", 1},
		{"1.0.0", "1.0.0", 0},
		{"nightly", "0.0.1", -1},
		{"0.0.1", "nightly", 1},
		{"latest", "nightly", -1},
		// equal precedence is broken lexically
		{"1.0", "1.0.0", -1},
		{"v2.0.0", "2.0.0", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
			assert.Equal(t, -tt.want, Compare(tt.b, tt.a))
		})
	}
}

func TestCompareIsTotalOrder(t *testing.T) {
	for _, a := range corpus {
		assert.Equal(t, 0, Compare(a, a), "reflexive for %q", a)
		for _, b := range corpus {
			ab := Compare(a, b)
			assert.Equal(t, -ab, Compare(b, a), "antisymmetric for %q, %q", a, b)
			if a != b {
				assert.NotEqual(t, 0, ab, "total for %q, %q", a, b)
			}
			for _, c := range corpus {
				if ab <= 0 && Compare(b, c) <= 0 {
					assert.LessOrEqual(t, Compare(a, c), 0, "transitive for %q, %q, %q", a, b, c)
				}
			}
		}
	}
}

func TestSortDescendingIsStableUnderShuffle(t *testing.T) {
	want := SortDescending(corpus)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 50; i++ {
		shuffled := append([]string(nil), corpus...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		assert.Equal(t, want, SortDescending(shuffled))
	}
}

func TestSortDescending(t *testing.T) {
	got := SortDescending([]string{"1.2.0", "1.10.0", "1.2.0", "0.1.0"})

	assert.Equal(t, []string{"1.10.0", "1.2.0", "0.1.0"}, got)
	assert.Empty(t, SortDescending(nil))
}

func TestLatest(t *testing.T) {
	assert.Equal(t, "", Latest(nil))
	assert.Equal(t, "1.10.0", Latest([]string{"1.2.0", "1.10.0", "1.9.9"}))

	sorted := SortDescending(corpus)
	require.NotEmpty(t, sorted)
	assert.Equal(t, sorted[0], Latest(corpus))
}

func TestIsOutdated(t *testing.T) {
	assert.True(t, IsOutdated("1.0.0", "1.0.1"))
	assert.False(t, IsOutdated("1.0.1", "1.0.1"))
	assert.False(t, IsOutdated("1.1.0", "1.0.1"))
	assert.False(t, IsOutdated("", "1.0.1"))
	assert.False(t, IsOutdated("1.0.0", ""))
}
