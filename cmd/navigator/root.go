package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ThymioNav/internal/model"
	"ThymioNav/internal/util"
)

// RootOptions holds flags shared by every subcommand.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the navigator command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "navigator",
		Short: "Thymio grid navigator",
		Long: `Navigator steers a differential-drive Thymio robot to a goal.

It fuses camera detections with wheel odometry, plans an A* path over an
occupancy grid and follows it checkpoint by checkpoint, re-planning when the
robot drifts too far from the path.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "configs/config.yml", "path to the YAML config")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log every control tick")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSimulateCommand(opts))
	cmd.AddCommand(NewPlanCommand(opts))

	return cmd
}

// loadConfig reads the config file and applies the verbose override.
func (o *RootOptions) loadConfig() (model.Config, error) {
	cfg, err := model.LoadConfig(o.ConfigPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if o.Verbose {
		cfg.Log.Verbose = true
	}
	return cfg, nil
}

// setupLogging configures the shared logger from cfg.
func setupLogging(cfg model.Config) (io.Closer, error) {
	return util.SetupLogger(cfg.Log.File, cfg.Log.Verbose)
}

// parseFloats splits a comma separated list of exactly n numbers.
func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%q: want %d comma separated values", s, n)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

func parsePoint(s string) (model.Point, error) {
	v, err := parseFloats(s, 2)
	if err != nil {
		return model.Point{}, err
	}
	return model.Point{X: v[0], Y: v[1]}, nil
}

func parsePose(s string) (model.Pose, error) {
	v, err := parseFloats(s, 3)
	if err != nil {
		return model.Pose{}, err
	}
	return model.NewPose(v[0], v[1], v[2]), nil
}
