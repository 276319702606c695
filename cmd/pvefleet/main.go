// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pvefleet/internal/action"
	"pvefleet/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if ctx.Err() != nil {
		fmt.Fprintln(os.Stderr, "Interrupted")
		os.Exit(1)
	}
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pvefleet",
		Short: "Apply lifecycle actions to batches of Proxmox VMs and containers",
		Long: `Pvefleet addresses batches of guests (QEMU virtual machines and LXC
containers) across a Proxmox cluster by VMID or by owning node and applies a
lifecycle action to all of them, isolating per-guest failures so one bad guest
never aborts the batch.`,
		SilenceUsage: true,
	}

	config.BindFlags(rootCmd)

	rootCmd.AddCommand(
		newStatusCmd(),
		newLifecycleCmd(action.Start, "Start the selected guests"),
		newLifecycleCmd(action.Stop, "Stop the selected guests immediately"),
		newLifecycleCmd(action.Shutdown, "Shut the selected guests down cleanly"),
		newLifecycleCmd(action.Reboot, "Reboot the selected guests"),
		newLifecycleCmd(action.Resume, "Resume the selected paused guests"),
		newLifecycleCmd(action.Suspend, "Suspend the selected guests"),
		newDestroyCmd(),
		newSnapshotCmd(),
		newDelSnapshotCmd(),
		newListSnapshotCmd(),
		newVZDumpCmd(),
		newHAStatusCmd(),
		newHASetCmd(),
		newHAClearCmd(),
		newReplicationStatusCmd(),
		newReplicationScheduleNowCmd(),
	)
	return rootCmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [ids...]",
		Short: "Show the status of the selected guests",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runStatus(cmd.Context(), args)
		},
	}
}

func newLifecycleCmd(kind action.Kind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   fmt.Sprintf("%s [ids...]", kind),
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runLifecycle(cmd.Context(), kind, args)
		},
	}
}

func newDestroyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destroy [ids...]",
		Short: "Destroy the selected guests",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runDestroy(cmd.Context(), args)
		},
	}
}

func newSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot [ids...]",
		Short: "Snapshot the selected guests (requires --name)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runSnapshot(cmd.Context(), args)
		},
	}
}

func newDelSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delsnapshot [ids...]",
		Short: "Delete a named snapshot on the selected guests (requires --name)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runDelSnapshot(cmd.Context(), args)
		},
	}
}

func newListSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listsnapshot [ids...]",
		Short: "List snapshots of the selected guests",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runListSnapshot(cmd.Context(), args)
		},
	}
}

func newVZDumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vzdump [ids...]",
		Short: "Back the selected guests up with vzdump",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runVZDump(cmd.Context(), args)
		},
	}
}

func newHAStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ha-status [ids...]",
		Short: "Show the HA desired state of the selected guests",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runHAStatus(cmd.Context(), args)
		},
	}
}

func newHASetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ha-set [ids...]",
		Short: "Set the HA desired state of the selected guests (requires --ha-state)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runHASet(cmd.Context(), args)
		},
	}
}

func newHAClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ha-clear [ids...]",
		Short: "Remove the HA records of the selected guests",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runHAClear(cmd.Context(), args)
		},
	}
}

func newReplicationStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replication-status [ids...]",
		Short: "Show replication job status for the selected guests or nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runReplicationStatus(cmd.Context(), args)
		},
	}
}

func newReplicationScheduleNowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replication-schedule-now [ids...]",
		Short: "Trigger replication jobs of the selected guests or nodes now",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runReplicationScheduleNow(cmd.Context(), args)
		},
	}
}
