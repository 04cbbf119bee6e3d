package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"ThymioNav/internal/model"
	"ThymioNav/internal/planner"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	From string
	To   string
}

// NewPlanCommand creates the plan command, which prints the checkpoints the
// navigator would follow without moving the robot.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the planned checkpoints for the configured map",
		Long: `Plan a path on the configured map and print one checkpoint per line.
Endpoints default to the R and G markers of the map file.

Example:
  navigator plan
  navigator plan --from 1.5,1.5 --to 8.5,3.5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "start position as x,y (default: map R marker)")
	cmd.Flags().StringVar(&opts.To, "to", "", "goal position as x,y (default: map G marker or navigation.goal)")

	return cmd
}

func runPlan(cmd *cobra.Command, opts *PlanOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Map.Path == "" {
		return errors.New("map.path is not configured")
	}
	grid, err := model.LoadGrid(cfg.Map.Path)
	if err != nil {
		return err
	}

	from, err := endpoint(opts.From, grid.Start, "--from")
	if err != nil {
		return err
	}
	goal := grid.Goal
	if goal == nil {
		goal = cfg.Navigation.Goal
	}
	to, err := endpoint(opts.To, goal, "--to")
	if err != nil {
		return err
	}

	env := model.Environment{Grid: grid, Robot: model.Pose{Point: from}, Goal: to}
	path, err := planner.New(grid).Plan(cmd.Context(), env, cfg.Navigation.RobotSize,
		planner.Flags{AllowDiagonal: cfg.Navigation.AllowDiagonal})
	if err != nil {
		return fmt.Errorf("plan %v -> %v: %w", from, to, err)
	}

	out := cmd.OutOrStdout()
	for _, p := range path {
		fmt.Fprintf(out, "%.2f,%.2f\n", p.X, p.Y)
	}
	return nil
}

func endpoint(flag string, fallback *model.Point, name string) (model.Point, error) {
	if flag != "" {
		p, err := parsePoint(flag)
		if err != nil {
			return model.Point{}, fmt.Errorf("%s: %w", name, err)
		}
		return p, nil
	}
	if fallback == nil {
		return model.Point{}, fmt.Errorf("%s is required when the map has no marker", name)
	}
	return *fallback, nil
}
