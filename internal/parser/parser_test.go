package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ThymioNav/internal/model"
)

func TestNew(t *testing.T) {
	p, err := New("CSV")
	require.NoError(t, err)
	assert.IsType(t, &CSVParser{}, p)

	p, err = New("json")
	require.NoError(t, err)
	assert.IsType(t, &JSONParser{}, p)

	_, err = New("xml")
	assert.Error(t, err)
}

func TestCSVCommand(t *testing.T) {
	p := NewCSVParser()
	line, err := p.EncodeCommand(model.MotorCommand{Left: 120.4, Right: -80.6})
	require.NoError(t, err)
	assert.Equal(t, "M,120,-81", line)

	cmd, err := p.DecodeCommand(" M, 120 ,-81\r\n")
	require.NoError(t, err)
	assert.Equal(t, model.MotorCommand{Left: 120, Right: -81}, cmd)

	for _, bad := range []string{"", "M,1", "X,1,2", "M,a,2", "M,1,b"} {
		_, err := p.DecodeCommand(bad)
		assert.Error(t, err, "line %q", bad)
	}
}

func TestCSVSensors(t *testing.T) {
	p := NewCSVParser()
	s, err := p.DecodeSensors("S,100,98,0,1200,3000,0,0,0,0")
	require.NoError(t, err)
	assert.Equal(t, 100.0, s.MotorLeft)
	assert.Equal(t, 98.0, s.MotorRight)
	assert.Equal(t, []float64{0, 1200, 3000, 0, 0, 0, 0}, s.Proximity)

	line, err := p.EncodeSensors(s)
	require.NoError(t, err)
	assert.Equal(t, "S,100,98,0,1200,3000,0,0,0,0", line)

	s, err = p.DecodeSensors("S,1,2")
	require.NoError(t, err)
	assert.Empty(t, s.Proximity)

	_, err = p.DecodeSensors("S,1,2,x")
	assert.Error(t, err)
	_, err = p.DecodeSensors("M,1,2")
	assert.Error(t, err)
}

func TestCSVDetection(t *testing.T) {
	p := NewCSVParser()
	d, err := p.DecodeDetection("1,12.5,3.25,270,0,0,0")
	require.NoError(t, err)
	assert.True(t, d.RobotFound)
	assert.False(t, d.GoalFound)
	assert.Equal(t, model.Point{X: 12.5, Y: 3.25}, d.Robot.Point)
	assert.Equal(t, -90.0, d.Robot.Heading, "heading normalized")

	d, err = p.DecodeDetection("true,1,2,0,yes,30,40")
	require.NoError(t, err)
	assert.True(t, d.GoalFound)
	assert.Equal(t, model.Point{X: 30, Y: 40}, d.Goal)

	line, err := p.EncodeDetection(d)
	require.NoError(t, err)
	assert.Equal(t, "1,1.000,2.000,0.00,1,30.000,40.000", line)

	_, err = p.DecodeDetection("maybe,1,2,0,1,3,4")
	assert.Error(t, err)
	_, err = p.DecodeDetection("1,2,3")
	assert.Error(t, err)
}

func TestJSONParser(t *testing.T) {
	p := NewJSONParser()

	cmd, err := p.DecodeCommand(`{"left":10,"right":-5}`)
	require.NoError(t, err)
	assert.Equal(t, model.MotorCommand{Left: 10, Right: -5}, cmd)

	d, err := p.DecodeDetection(`{"robot_found":true,"robot":{"x":1,"y":2,"heading":190},"goal_found":false}`)
	require.NoError(t, err)
	assert.Equal(t, -170.0, d.Robot.Heading)
	assert.Equal(t, model.Point{X: 1, Y: 2}, d.Robot.Point)

	line, err := p.EncodeSensors(model.SensorSnapshot{MotorLeft: 3, Proximity: []float64{1}})
	require.NoError(t, err)
	assert.Contains(t, line, `"motor_left":3`)

	_, err = p.DecodeSensors("{")
	assert.Error(t, err)
}
