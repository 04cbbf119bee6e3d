package control

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ThymioNav/internal/model"
)

func TestComputeVelocitiesGoalReachedStops(t *testing.T) {
	pos := model.Point{X: 1, Y: 2}
	goal := model.Point{X: 7, Y: -3}
	for h := -179.0; h <= 180.0; h += 0.5 {
		cmd := ComputeVelocities(pos, goal, 30, 8, h, true)
		require.Equal(t, model.Stop, cmd, "heading %v", h)
	}
}

func TestMixingLawInvariant(t *testing.T) {
	goals := []model.Point{{X: 10}, {X: -4, Y: 3}, {X: 0.5, Y: -9}, {X: 1, Y: 1}}
	for _, goal := range goals {
		for h := -180.0; h <= 180.0; h += 15 {
			terms := ComputeTerms(model.Point{}, goal, 12, 10, h)
			cmd := ComputeVelocities(model.Point{}, goal, 12, 10, h, false)
			assert.InDelta(t, 2*terms.Positional, cmd.Left+cmd.Right, 1e-9)
			assert.InDelta(t, 2*terms.Angular, cmd.Left-cmd.Right, 1e-9)
			assert.Greater(t, terms.AngleError, -180.0)
			assert.LessOrEqual(t, terms.AngleError, 180.0)
		}
	}
}

func TestTermsMonotonicInAngleError(t *testing.T) {
	goal := model.Point{X: 10}
	prev := ComputeTerms(model.Point{}, goal, 12, 10, 0)
	for h := 1.0; h <= 180; h++ {
		cur := ComputeTerms(model.Point{}, goal, 12, 10, h)
		assert.Less(t, cur.Positional, prev.Positional, "heading %v", h)
		assert.Greater(t, math.Abs(cur.Angular), math.Abs(prev.Angular), "heading %v", h)
		prev = cur
	}
}

func TestWrapBoundaryDoesNotFlip(t *testing.T) {
	// goal straight behind: heading 0, bearing 180
	goal := model.Point{X: -10}
	a := ComputeTerms(model.Point{}, goal, 1, 1, 0)
	// same physical situation expressed with a heading a full turn away
	b := ComputeTerms(model.Point{}, goal, 1, 1, 360)
	assert.InDelta(t, 180, math.Abs(a.AngleError), 1e-9)
	assert.InDelta(t, math.Abs(a.Angular), math.Abs(b.Angular), 1e-9)
	assert.InDelta(t, a.Positional, b.Positional, 1e-9)

	// tiny heading changes on either side of the boundary keep small steering changes
	left := ComputeTerms(model.Point{}, goal, 1, 1, 0.5)
	right := ComputeTerms(model.Point{}, goal, 1, 1, -0.5)
	assert.InDelta(t, 179.5, math.Abs(left.AngleError), 1e-9)
	assert.InDelta(t, 179.5, math.Abs(right.AngleError), 1e-9)
}

func TestScenarioAlignedDrivesStraight(t *testing.T) {
	gains, err := SelectGains(10, 3, 0.1)
	require.NoError(t, err)

	terms := ComputeTerms(model.Point{}, model.Point{X: 10}, gains.Angular, gains.Positional, 0)
	assert.Zero(t, terms.Angular)
	cmd := terms.Mix()
	assert.Equal(t, cmd.Left, cmd.Right)
	assert.Greater(t, cmd.Left, 0.0)
	assert.InDelta(t, 8*180, cmd.Left, 1e-9)
}

func TestScenarioGoalBehindTurnsInPlace(t *testing.T) {
	gains, err := SelectGains(10, 3, 0.1)
	require.NoError(t, err)

	terms := ComputeTerms(model.Point{}, model.Point{X: -10}, gains.Angular, gains.Positional, 0)
	assert.InDelta(t, 0, terms.Positional, 1e-9)
	assert.InDelta(t, gains.Angular*180, math.Abs(terms.Angular), 1e-9)

	cmd := terms.Mix()
	assert.InDelta(t, -cmd.Left, cmd.Right, 1e-9)
}

func TestSteeringSignMatchesHeadingConvention(t *testing.T) {
	// goal above the robot on the image: bearing +90, robot faces 0.
	// The robot must turn counter-clockwise, i.e. right wheel faster.
	cmd := ComputeVelocities(model.Point{}, model.Point{Y: -10}, 1, 0.1, 0, false)
	assert.Greater(t, cmd.Right, cmd.Left)

	cmd = ComputeVelocities(model.Point{}, model.Point{Y: 10}, 1, 0.1, 0, false)
	assert.Greater(t, cmd.Left, cmd.Right)
}

func TestGoalAtPosition(t *testing.T) {
	// atan2(0, 0) is 0, so the error is the heading itself
	terms := ComputeTerms(model.Point{X: 3, Y: 3}, model.Point{X: 3, Y: 3}, 1, 1, 30)
	assert.Equal(t, 30.0, terms.AngleError)
}
