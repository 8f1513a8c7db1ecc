package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayout(t *testing.T) {
	tests := []struct {
		in   string
		want Layout
	}{
		{"1", LayoutSingle},
		{"single", LayoutSingle},
		{"2h", Layout2H},
		{" 2V ", Layout2V},
		{"vertical", Layout2V},
		{"3", LayoutThree},
		{"grid", LayoutFour},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLayout(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLayout("6")
	assert.ErrorIs(t, err, ErrUnknownLayout)
}

func TestLayoutRequired(t *testing.T) {
	assert.Equal(t, 1, LayoutSingle.Required())
	assert.Equal(t, 2, Layout2H.Required())
	assert.Equal(t, 2, Layout2V.Required())
	assert.Equal(t, 3, LayoutThree.Required())
	assert.Equal(t, 4, LayoutFour.Required())
}

func TestLayoutNextCycles(t *testing.T) {
	l := LayoutSingle
	seen := make([]Layout, 0, len(Layouts))
	for range Layouts {
		seen = append(seen, l)
		l = l.Next()
	}
	assert.Equal(t, Layouts, seen)
	assert.Equal(t, LayoutSingle, l)
}

func TestFitLayout(t *testing.T) {
	assert.Equal(t, LayoutFour, fitLayout(LayoutFour, 5))
	assert.Equal(t, LayoutThree, fitLayout(LayoutFour, 3))
	assert.Equal(t, Layout2H, fitLayout(LayoutThree, 2))
	assert.Equal(t, Layout2V, fitLayout(Layout2V, 2))
	assert.Equal(t, LayoutSingle, fitLayout(Layout2V, 1))
	assert.Equal(t, Layout2H, fitLayout(Layout2H, 3), "a layout that fits is kept")
}
