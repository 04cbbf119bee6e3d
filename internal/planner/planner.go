// Package planner computes checkpoint paths on the occupancy grid.
package planner

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"ThymioNav/internal/model"
)

var (
	ErrNoMap       = errors.New("no occupancy grid")
	ErrOutOfBounds = errors.New("position outside the grid")
	ErrGoalBlocked = errors.New("goal lies in an obstacle")
	ErrNoPath      = errors.New("no path to goal")
)

// Flags tune a single planning request.
type Flags struct {
	AllowDiagonal bool
}

// AStar plans over a grid with gonum's A* search. Obstacles are inflated by
// half the robot size so the path keeps the robot body clear of them.
type AStar struct {
	Grid *model.Grid
}

// New returns a planner for grid. A grid carried in the Environment takes
// precedence.
func New(grid *model.Grid) *AStar {
	return &AStar{Grid: grid}
}

// Plan returns the cell-centre checkpoints from the robot to the goal, the
// robot's own cell excluded and the exact goal last.
func (a *AStar) Plan(ctx context.Context, env model.Environment, robotSize float64, flags Flags) ([]model.Point, error) {
	grid := env.Grid
	if grid == nil {
		grid = a.Grid
	}
	if grid == nil {
		return nil, ErrNoMap
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sx, sy := grid.Cell(env.Robot.Point)
	gx, gy := grid.Cell(env.Goal)
	if !grid.InBounds(sx, sy) {
		return nil, fmt.Errorf("%w: robot at %v", ErrOutOfBounds, env.Robot.Point)
	}
	if !grid.InBounds(gx, gy) {
		return nil, fmt.Errorf("%w: goal at %v", ErrOutOfBounds, env.Goal)
	}
	if grid.Occupied(gx, gy) {
		return nil, fmt.Errorf("%w: %v", ErrGoalBlocked, env.Goal)
	}

	free := Inflate(grid, robotSize)
	// The robot may sit inside an inflated margin; it still has to get out.
	free.SetOccupied(sx, sy, false)
	if free.Occupied(gx, gy) {
		free.SetOccupied(gx, gy, false)
	}

	g, err := buildGraph(ctx, free, flags)
	if err != nil {
		return nil, err
	}

	start, goal := simple.Node(nodeID(free, sx, sy)), simple.Node(nodeID(free, gx, gy))
	shortest, _ := path.AStar(start, goal, g, heuristic(free))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nodes, _ := shortest.To(goal.ID())
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: from %v to %v", ErrNoPath, env.Robot.Point, env.Goal)
	}

	out := make([]model.Point, 0, len(nodes))
	for _, n := range nodes[1:] {
		x, y := cellOf(free, n.ID())
		out = append(out, model.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5})
	}
	if len(out) == 0 {
		return []model.Point{env.Goal}, nil
	}
	out[len(out)-1] = env.Goal
	return out, nil
}

// Inflate returns a copy of grid with every obstacle grown by a disc of radius
// ceil(robotSize/2) cells.
func Inflate(grid *model.Grid, robotSize float64) *model.Grid {
	out := grid.Clone()
	r := int(math.Ceil(robotSize / 2))
	if r <= 0 {
		return out
	}
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			if !grid.Occupied(x, y) {
				continue
			}
			for dy := -r; dy <= r; dy++ {
				for dx := -r; dx <= r; dx++ {
					if dx*dx+dy*dy <= r*r {
						out.SetOccupied(x+dx, y+dy, true)
					}
				}
			}
		}
	}
	return out
}

func buildGraph(ctx context.Context, grid *model.Grid, flags Flags) (*simple.WeightedUndirectedGraph, error) {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			if !grid.Occupied(x, y) {
				g.AddNode(simple.Node(nodeID(grid, x, y)))
			}
		}
	}
	for y := 0; y < grid.Height; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for x := 0; x < grid.Width; x++ {
			if grid.Occupied(x, y) {
				continue
			}
			connect(g, grid, x, y, x+1, y, 1)
			connect(g, grid, x, y, x, y+1, 1)
			if flags.AllowDiagonal {
				// no corner cutting: both orthogonal neighbours must be free
				if !grid.Occupied(x+1, y) && !grid.Occupied(x, y+1) {
					connect(g, grid, x, y, x+1, y+1, math.Sqrt2)
				}
				if !grid.Occupied(x-1, y) && !grid.Occupied(x, y+1) {
					connect(g, grid, x, y, x-1, y+1, math.Sqrt2)
				}
			}
		}
	}
	return g, nil
}

func connect(g *simple.WeightedUndirectedGraph, grid *model.Grid, x, y, nx, ny int, w float64) {
	if grid.Occupied(nx, ny) {
		return
	}
	g.SetWeightedEdge(g.NewWeightedEdge(simple.Node(nodeID(grid, x, y)), simple.Node(nodeID(grid, nx, ny)), w))
}

func heuristic(grid *model.Grid) path.Heuristic {
	return func(u, v graph.Node) float64 {
		ux, uy := cellOf(grid, u.ID())
		vx, vy := cellOf(grid, v.ID())
		return math.Hypot(float64(ux-vx), float64(uy-vy))
	}
}

func nodeID(grid *model.Grid, x, y int) int64 { return int64(y*grid.Width + x) }

func cellOf(grid *model.Grid, id int64) (int, int) {
	return int(id) % grid.Width, int(id) / grid.Width
}
