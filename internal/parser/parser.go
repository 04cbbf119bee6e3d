// Package parser converts the navigator's wire formats to structured types and
// vice-versa. Two encodings are supported, CSV and JSON; both carry the same
// three message kinds.
//
// CSV motor command (host -> robot):
//
//	M,LEFT,RIGHT
//
// CSV sensor report (robot -> host):
//
//	S,MOTOR_LEFT,MOTOR_RIGHT,PROX_0,...,PROX_N
//
// CSV camera detection (vision -> host):
//
//	ROBOT_FOUND,X,Y,HEADING,GOAL_FOUND,GX,GY
package parser

import (
	"fmt"
	"strings"

	"ThymioNav/internal/model"
)

// Parser encodes and decodes every message kind exchanged with the robot and
// the vision pipeline.
type Parser interface {
	EncodeCommand(c model.MotorCommand) (string, error)
	DecodeCommand(line string) (model.MotorCommand, error)
	EncodeSensors(s model.SensorSnapshot) (string, error)
	DecodeSensors(line string) (model.SensorSnapshot, error)
	EncodeDetection(d model.Detection) (string, error)
	DecodeDetection(line string) (model.Detection, error)
}

// New returns the parser for a wire format name ("csv" or "json").
func New(format string) (Parser, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return NewCSVParser(), nil
	case "json":
		return NewJSONParser(), nil
	default:
		return nil, fmt.Errorf("unknown wire format %q", format)
	}
}
