// Package model defines shared configuration structures used to initialize the navigator.
package model

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the root structure loaded from configs/config.yml.
type Config struct {
	Navigation NavigationConfig `yaml:"navigation"`
	Gains      GainsConfig      `yaml:"gains"`
	Robot      RobotConfig      `yaml:"robot"`
	Camera     CameraConfig     `yaml:"camera"`
	Map        MapConfig        `yaml:"map"`
	Estimator  EstimatorConfig  `yaml:"estimator"`
	Avoidance  AvoidanceConfig  `yaml:"avoidance"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
}

// NavigationConfig holds the supervisor thresholds and timing.
type NavigationConfig struct {
	Period           time.Duration `yaml:"period"`            // control loop period
	LostThreshold    float64       `yaml:"lost_threshold"`    // grid units
	ReachThreshold   float64       `yaml:"reach_threshold"`   // grid units
	ArrivalTolerance float64       `yaml:"arrival_tolerance"` // grid units
	SlowingDistance  float64       `yaml:"slowing_distance"`  // gain scheduling threshold
	SpeedScale       float64       `yaml:"speed_scale"`       // control units -> motor units
	RobotSize        float64       `yaml:"robot_size"`        // robot footprint in grid cells
	AllowDiagonal    bool          `yaml:"allow_diagonal"`
	PlanTimeout      time.Duration `yaml:"plan_timeout"`
	PlanBackoff      time.Duration `yaml:"plan_backoff"`
	MaxStaleTicks    int           `yaml:"max_stale_ticks"` // ticks without fresh vision before escalating
	MaxReplans       int           `yaml:"max_replans"`     // 0 = unbounded
	Goal             *Point        `yaml:"goal"`            // optional fixed goal
	GoalWait         time.Duration `yaml:"goal_wait"`       // how long to wait for a camera goal
}

// GainsConfig holds the two gain regimes before speed scaling.
type GainsConfig struct {
	FarAngular     float64 `yaml:"far_angular"`
	FarPositional  float64 `yaml:"far_positional"`
	NearAngular    float64 `yaml:"near_angular"`
	NearPositional float64 `yaml:"near_positional"`
}

// RobotConfig describes the robot link and its kinematics.
type RobotConfig struct {
	ID           string        `yaml:"id"`
	Device       string        `yaml:"device"` // serial device; empty selects the simulator
	Baud         int           `yaml:"baud"`
	WireFormat   string        `yaml:"wire_format"` // csv/json
	PollInterval time.Duration `yaml:"poll_interval"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	MaxSpeed     float64       `yaml:"max_speed"`      // motor units
	SpeedPerUnit float64       `yaml:"speed_per_unit"` // grid units per second per motor unit
	Wheelbase    float64       `yaml:"wheelbase"`      // grid units
}

// CameraConfig controls the UDP receiver for vision detections.
type CameraConfig struct {
	UDPAddr    string `yaml:"udp_addr"`
	ReadBuffer int    `yaml:"read_buffer"`
	WireFormat string `yaml:"wire_format"`
}

// MapConfig points to the occupancy grid.
type MapConfig struct {
	Path string `yaml:"path"`
}

// EstimatorConfig holds Kalman filter noise parameters.
type EstimatorConfig struct {
	ProcessPosition     float64 `yaml:"process_position"`
	ProcessHeading      float64 `yaml:"process_heading"`
	MeasurementPosition float64 `yaml:"measurement_position"`
	MeasurementHeading  float64 `yaml:"measurement_heading"`
}

// AvoidanceConfig controls the proximity-based obstacle avoidance.
type AvoidanceConfig struct {
	Enabled      bool      `yaml:"enabled"`
	Threshold    float64   `yaml:"threshold"`
	Scale        float64   `yaml:"scale"`
	WeightsLeft  []float64 `yaml:"weights_left"`
	WeightsRight []float64 `yaml:"weights_right"`
	Override     bool      `yaml:"override"`
}

// TelemetryConfig controls the snapshot server.
type TelemetryConfig struct {
	Addr     string        `yaml:"addr"` // empty disables the server
	Interval time.Duration `yaml:"interval"`
}

// LogConfig controls console logging.
type LogConfig struct {
	Verbose bool   `yaml:"verbose"`
	File    string `yaml:"file"`
}

// DefaultConfig returns the configuration used when a field is absent from the file.
func DefaultConfig() Config {
	return Config{
		Navigation: NavigationConfig{
			Period:           100 * time.Millisecond,
			LostThreshold:    10,
			ReachThreshold:   3,
			ArrivalTolerance: 0.1,
			SlowingDistance:  3,
			SpeedScale:       0.1,
			RobotSize:        2,
			PlanTimeout:      2 * time.Second,
			PlanBackoff:      500 * time.Millisecond,
			MaxStaleTicks:    10,
			GoalWait:         10 * time.Second,
		},
		Gains: GainsConfig{
			FarAngular:     3.0,
			FarPositional:  0.8,
			NearAngular:    1.2,
			NearPositional: 1.0,
		},
		Robot: RobotConfig{
			ID:           "thymio-1",
			Baud:         115200,
			WireFormat:   "csv",
			PollInterval: 100 * time.Millisecond,
			ReadTimeout:  500 * time.Millisecond,
			MaxSpeed:     500,
			SpeedPerUnit: 0.004,
			Wheelbase:    1.0,
		},
		Camera: CameraConfig{
			ReadBuffer: 2048,
			WireFormat: "csv",
		},
		Estimator: EstimatorConfig{
			ProcessPosition:     0.01,
			ProcessHeading:      1.0,
			MeasurementPosition: 0.05,
			MeasurementHeading:  4.0,
		},
		Avoidance: AvoidanceConfig{
			Enabled:      true,
			Threshold:    1000,
			Scale:        0.05,
			WeightsLeft:  []float64{4, 2, -2, -2, -4},
			WeightsRight: []float64{-4, -2, -2, 2, 4},
		},
		Telemetry: TelemetryConfig{
			Interval: 200 * time.Millisecond,
		},
	}
}

// LoadConfig reads the YAML config at path on top of DefaultConfig and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ErrConfig marks a configuration that must not enter the control loop.
var ErrConfig = errors.New("invalid configuration")

// Validate rejects configurations the navigator cannot run with.
func (c Config) Validate() error {
	n := c.Navigation
	switch {
	case n.Period <= 0:
		return fmt.Errorf("%w: navigation.period must be > 0", ErrConfig)
	case !(n.SpeedScale > 0) || math.IsInf(n.SpeedScale, 0):
		return fmt.Errorf("%w: navigation.speed_scale must be > 0, got %v", ErrConfig, n.SpeedScale)
	case n.ReachThreshold <= 0:
		return fmt.Errorf("%w: navigation.reach_threshold must be > 0", ErrConfig)
	case n.LostThreshold <= n.ReachThreshold:
		return fmt.Errorf("%w: navigation.lost_threshold (%v) must exceed reach_threshold (%v)",
			ErrConfig, n.LostThreshold, n.ReachThreshold)
	case n.ArrivalTolerance <= 0:
		return fmt.Errorf("%w: navigation.arrival_tolerance must be > 0", ErrConfig)
	case n.MaxStaleTicks < 0 || n.MaxReplans < 0:
		return fmt.Errorf("%w: navigation.max_stale_ticks and max_replans must be >= 0", ErrConfig)
	case n.PlanTimeout <= 0:
		return fmt.Errorf("%w: navigation.plan_timeout must be > 0", ErrConfig)
	case c.Robot.MaxSpeed <= 0:
		return fmt.Errorf("%w: robot.max_speed must be > 0", ErrConfig)
	case c.Robot.PollInterval <= 0:
		return fmt.Errorf("%w: robot.poll_interval must be > 0", ErrConfig)
	case c.Robot.ReadTimeout <= 0:
		return fmt.Errorf("%w: robot.read_timeout must be > 0", ErrConfig)
	}
	return nil
}
