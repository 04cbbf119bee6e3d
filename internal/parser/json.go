package parser

import (
	"encoding/json"

	"ThymioNav/internal/model"
)

// JSONParser implements Parser using JSON serialization.
type JSONParser struct{}

// NewJSONParser creates a new JSON parser.
func NewJSONParser() *JSONParser { return &JSONParser{} }

// EncodeCommand encodes a MotorCommand into JSON.
func (p *JSONParser) EncodeCommand(c model.MotorCommand) (string, error) {
	return encode(c)
}

// DecodeCommand decodes a JSON MotorCommand.
func (p *JSONParser) DecodeCommand(s string) (model.MotorCommand, error) {
	var c model.MotorCommand
	err := json.Unmarshal([]byte(s), &c)
	return c, err
}

// EncodeSensors encodes a SensorSnapshot into JSON.
func (p *JSONParser) EncodeSensors(v model.SensorSnapshot) (string, error) {
	return encode(v)
}

// DecodeSensors decodes a JSON SensorSnapshot.
func (p *JSONParser) DecodeSensors(s string) (model.SensorSnapshot, error) {
	var v model.SensorSnapshot
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}

// EncodeDetection encodes a Detection into JSON.
func (p *JSONParser) EncodeDetection(d model.Detection) (string, error) {
	return encode(d)
}

// DecodeDetection decodes a JSON Detection and normalizes the robot heading.
func (p *JSONParser) DecodeDetection(s string) (model.Detection, error) {
	var d model.Detection
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return d, err
	}
	d.Robot.Heading = model.NormalizeAngle(d.Robot.Heading)
	return d, nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	return string(b), err
}
