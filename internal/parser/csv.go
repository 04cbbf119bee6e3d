package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"ThymioNav/internal/model"
)

// CSVParser implements Parser using comma-separated values.
type CSVParser struct{}

// NewCSVParser creates a new CSV parser instance.
func NewCSVParser() *CSVParser { return &CSVParser{} }

// EncodeCommand converts a MotorCommand into "M,LEFT,RIGHT". Motor units are
// integers on the robot, so values are rounded.
func (p *CSVParser) EncodeCommand(c model.MotorCommand) (string, error) {
	return fmt.Sprintf("M,%.0f,%.0f", c.Left, c.Right), nil
}

// DecodeCommand parses "M,LEFT,RIGHT".
func (p *CSVParser) DecodeCommand(line string) (model.MotorCommand, error) {
	fields := split(line)
	if len(fields) != 3 || fields[0] != "M" {
		return model.MotorCommand{}, fmt.Errorf("expected M,LEFT,RIGHT, got %q", line)
	}
	left, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return model.MotorCommand{}, errors.New("invalid left")
	}
	right, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return model.MotorCommand{}, errors.New("invalid right")
	}
	return model.MotorCommand{Left: left, Right: right}, nil
}

// EncodeSensors converts a SensorSnapshot into "S,ML,MR,P0,...".
func (p *CSVParser) EncodeSensors(s model.SensorSnapshot) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "S,%.0f,%.0f", s.MotorLeft, s.MotorRight)
	for _, v := range s.Proximity {
		fmt.Fprintf(&b, ",%.0f", v)
	}
	return b.String(), nil
}

// DecodeSensors parses a sensor report. Proximity values are optional.
func (p *CSVParser) DecodeSensors(line string) (model.SensorSnapshot, error) {
	fields := split(line)
	if len(fields) < 3 || fields[0] != "S" {
		return model.SensorSnapshot{}, fmt.Errorf("expected S,MOTOR_LEFT,MOTOR_RIGHT[,PROX...], got %q", line)
	}
	left, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return model.SensorSnapshot{}, errors.New("invalid motor_left")
	}
	right, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return model.SensorSnapshot{}, errors.New("invalid motor_right")
	}
	s := model.SensorSnapshot{MotorLeft: left, MotorRight: right}
	for i, f := range fields[3:] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return model.SensorSnapshot{}, fmt.Errorf("invalid proximity %d", i)
		}
		s.Proximity = append(s.Proximity, v)
	}
	return s, nil
}

// EncodeDetection converts a Detection into its 7-field CSV form.
func (p *CSVParser) EncodeDetection(d model.Detection) (string, error) {
	return fmt.Sprintf("%d,%.3f,%.3f,%.2f,%d,%.3f,%.3f",
		b2i(d.RobotFound), d.Robot.X, d.Robot.Y, d.Robot.Heading,
		b2i(d.GoalFound), d.Goal.X, d.Goal.Y), nil
}

// DecodeDetection parses a 7-field detection line.
func (p *CSVParser) DecodeDetection(line string) (model.Detection, error) {
	fields := split(line)
	if len(fields) != 7 {
		return model.Detection{}, fmt.Errorf("expected 7 fields, got %d", len(fields))
	}
	robotFound, err := parseBoolLoose(fields[0])
	if err != nil {
		return model.Detection{}, err
	}
	goalFound, err := parseBoolLoose(fields[4])
	if err != nil {
		return model.Detection{}, err
	}
	var nums [5]float64
	for i, idx := range []int{1, 2, 3, 5, 6} {
		v, err := strconv.ParseFloat(fields[idx], 64)
		if err != nil {
			return model.Detection{}, fmt.Errorf("invalid field %d: %q", idx, fields[idx])
		}
		nums[i] = v
	}
	return model.Detection{
		RobotFound: robotFound,
		Robot:      model.NewPose(nums[0], nums[1], nums[2]),
		GoalFound:  goalFound,
		Goal:       model.Point{X: nums[3], Y: nums[4]},
	}, nil
}

func split(line string) []string {
	fields := strings.Split(strings.TrimSpace(line), ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseBoolLoose accepts 1/0, true/false, yes/no.
func parseBoolLoose(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "t", "yes", "y":
		return true, nil
	case "0", "false", "f", "no", "n":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool %q", s)
	}
}
