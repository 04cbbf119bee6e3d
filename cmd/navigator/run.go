package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ThymioNav/internal/core"
	"ThymioNav/internal/util"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	VirtualSerial bool
	Start         string
}

// NewRunCommand creates the run command, which drives the real robot.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Drive the robot over its serial link",
		Long: `Drive the robot configured under robot.device, using camera detections
received on camera.udp_addr.

Example:
  navigator run --config configs/config.yml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSystem(cmd, rootOpts, core.Options{})
		},
	}
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a simulated robot",
		Long: `Run the navigator against a kinematic simulator. With --virtual-serial the
simulator is reached through a socat pty pair using the same wire protocol as
the real robot.

Example:
  navigator simulate --start 1.5,1.5,0
  navigator simulate --virtual-serial`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o := core.Options{Simulate: true, VirtualSerial: opts.VirtualSerial}
			if opts.Start != "" {
				p, err := parsePose(opts.Start)
				if err != nil {
					return fmt.Errorf("--start: %w", err)
				}
				o.Start = &p
			}
			return runSystem(cmd, rootOpts, o)
		},
	}

	cmd.Flags().BoolVar(&opts.VirtualSerial, "virtual-serial", false, "serve the simulator over a socat pty pair")
	cmd.Flags().StringVar(&opts.Start, "start", "", "initial pose as x,y,heading")

	return cmd
}

func runSystem(cmd *cobra.Command, rootOpts *RootOptions, o core.Options) error {
	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}
	closer, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := core.NewSystem(ctx, cfg, o)
	if err != nil {
		return err
	}
	err = sys.Run(ctx)
	snap, _ := sys.Snapshots.Value()
	fmt.Fprintf(cmd.OutOrStdout(), "run %s: %s after %d ticks (%d replans)\n",
		snap.RunID, snap.State, snap.Tick, snap.Replans)
	if errors.Is(err, context.Canceled) {
		util.Info("[navigator] interrupted")
		return nil
	}
	return err
}
