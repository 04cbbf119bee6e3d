package model

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

// Grid is an occupancy grid. Cell (x, y) covers [x, x+1) x [y, y+1) in grid units.
type Grid struct {
	Width    int
	Height   int
	occupied []bool

	// Start and Goal are set when the map file carries R and G markers.
	Start *Point
	Goal  *Point
}

// NewGrid returns an empty grid of the given size.
func NewGrid(width, height int) *Grid {
	return &Grid{Width: width, Height: height, occupied: make([]bool, width*height)}
}

// InBounds reports whether cell (x, y) lies on the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.Width && y < g.Height
}

// Occupied reports whether cell (x, y) holds an obstacle. Cells off the grid
// count as occupied.
func (g *Grid) Occupied(x, y int) bool {
	if !g.InBounds(x, y) {
		return true
	}
	return g.occupied[y*g.Width+x]
}

// SetOccupied marks or clears an obstacle at cell (x, y).
func (g *Grid) SetOccupied(x, y int, v bool) {
	if g.InBounds(x, y) {
		g.occupied[y*g.Width+x] = v
	}
}

// Cell returns the grid cell containing p.
func (g *Grid) Cell(p Point) (int, int) {
	return int(math.Floor(p.X)), int(math.Floor(p.Y))
}

// Clone returns a deep copy of g.
func (g *Grid) Clone() *Grid {
	c := *g
	c.occupied = append([]bool(nil), g.occupied...)
	return &c
}

// ParseGrid reads a text map: '#' is an obstacle, '.' or ' ' free space,
// 'R' marks the robot start and 'G' the goal. Rows may have different lengths;
// the grid is as wide as the longest row.
func ParseGrid(r io.Reader) (*Grid, error) {
	var rows []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.HasPrefix(line, ";") {
			continue
		}
		rows = append(rows, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for len(rows) > 0 && strings.TrimSpace(rows[len(rows)-1]) == "" {
		rows = rows[:len(rows)-1]
	}
	if len(rows) == 0 {
		return nil, errors.New("empty map")
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	g := NewGrid(width, len(rows))
	for y, row := range rows {
		for x, c := range row {
			switch c {
			case '#':
				g.SetOccupied(x, y, true)
			case '.', ' ':
			case 'R':
				g.Start = &Point{X: float64(x) + 0.5, Y: float64(y) + 0.5}
			case 'G':
				g.Goal = &Point{X: float64(x) + 0.5, Y: float64(y) + 0.5}
			default:
				return nil, fmt.Errorf("map row %d col %d: unexpected %q", y, x, c)
			}
		}
	}
	return g, nil
}

// LoadGrid reads a text map from disk.
func LoadGrid(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := ParseGrid(f)
	if err != nil {
		return nil, fmt.Errorf("parse map %s: %w", path, err)
	}
	return g, nil
}

// Environment is the world snapshot handed to the planner and avoider.
type Environment struct {
	Grid    *Grid
	Robot   Pose
	Goal    Point
	Sensors SensorSnapshot
}
