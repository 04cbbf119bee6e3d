package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGrid(t *testing.T) {
	src := `; test map
R..#
...#
.#.G
`
	g, err := ParseGrid(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 4, g.Width)
	assert.Equal(t, 3, g.Height)
	assert.True(t, g.Occupied(3, 0))
	assert.True(t, g.Occupied(1, 2))
	assert.False(t, g.Occupied(0, 0))
	assert.True(t, g.Occupied(-1, 0), "off-grid cells are blocked")
	require.NotNil(t, g.Start)
	require.NotNil(t, g.Goal)
	assert.Equal(t, Point{X: 0.5, Y: 0.5}, *g.Start)
	assert.Equal(t, Point{X: 3.5, Y: 2.5}, *g.Goal)
}

func TestParseGridErrors(t *testing.T) {
	_, err := ParseGrid(strings.NewReader(""))
	assert.Error(t, err)
	_, err = ParseGrid(strings.NewReader("..x\n"))
	assert.Error(t, err)
}

func TestGridClone(t *testing.T) {
	g := NewGrid(2, 2)
	c := g.Clone()
	c.SetOccupied(1, 1, true)
	assert.False(t, g.Occupied(1, 1))
	assert.True(t, c.Occupied(1, 1))
}
