// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

// Package action defines the lifecycle actions a batch can apply and the
// per-resource functions that carry them out. Every function catches
// remote failures at the action boundary and reports them as printed
// diagnostics; a failing guest never takes down the rest of the batch.
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"pvefleet/internal/pvesh"
	"pvefleet/internal/resource"
)

// Kind enumerates every supported action.
type Kind string

const (
	Status       Kind = "status"
	Start        Kind = "start"
	Stop         Kind = "stop"
	Shutdown     Kind = "shutdown"
	Reboot       Kind = "reboot"
	Resume       Kind = "resume"
	Suspend      Kind = "suspend"
	Destroy      Kind = "destroy"
	Snapshot     Kind = "snapshot"
	DelSnapshot  Kind = "delsnapshot"
	ListSnapshot Kind = "listsnapshot"
	VZDump       Kind = "vzdump"

	HAStatus Kind = "ha-status"
	HASet    Kind = "ha-set"
	HAClear  Kind = "ha-clear"

	ReplicationStatus      Kind = "replication-status"
	ReplicationScheduleNow Kind = "replication-schedule-now"
)

// BroadcastSafe reports whether the action may run against every guest
// cluster-wide when the operator gave no selector. Only read-only and
// listing actions qualify; everything else gets an empty selection so a
// bare command can never touch the whole fleet by accident.
func (k Kind) BroadcastSafe() bool {
	switch k {
	case Status, ListSnapshot, HAStatus, ReplicationStatus:
		return true
	}
	return false
}

// Allowed gates an action against the guest's current lifecycle status.
// It only rejects calls the cluster would refuse anyway: stopping a
// stopped guest, starting a running one. Unknown statuses pass through;
// the cluster is the final arbiter. Rejections print a reason and are
// never fatal.
func Allowed(w io.Writer, id resource.ID, kind Kind, status string) bool {
	if status == resource.StatusStopped && (kind == Stop || kind == Shutdown) {
		fmt.Fprintf(w, "VM %d is already stopped. Only 'start' is allowed.\n", id.VMID)
		return false
	}
	if status == resource.StatusRunning && kind == Start {
		fmt.Fprintf(w, "VM %d is already running. Only 'stop' or 'shutdown' are allowed.\n", id.VMID)
		return false
	}
	return true
}

// reportFailure prints a remote-call diagnostic at the action boundary.
func reportFailure(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
}

// capitalize upper-cases the first letter, matching the operator-facing
// "Start command sent" phrasing.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Lifecycle returns the action function for a plain state transition
// (start, stop, shutdown, reboot, resume, suspend). The precondition gate
// runs per guest immediately before dispatch.
func Lifecycle(client pvesh.Client, kind Kind, w io.Writer) func(context.Context, resource.Resource) error {
	return func(ctx context.Context, r resource.Resource) error {
		if !Allowed(w, r.ID, kind, r.Status) {
			return nil
		}
		path := fmt.Sprintf("%s/status/%s", r.PathPrefix(), kind)
		fmt.Fprintf(w, "%s command sent for %s.\n", capitalize(string(kind)), r.ID)
		if _, err := client.Invoke(ctx, pvesh.VerbCreate, path, nil); err != nil {
			reportFailure(w, err)
			return err
		}
		return nil
	}
}

// DestroyOpts carries the destroy flags. Purging and unreferenced-disk
// removal are on unless explicitly switched off.
type DestroyOpts struct {
	Purge             bool
	UnreferencedDisks bool
}

// Destroyer returns the action function that deletes a guest.
func Destroyer(client pvesh.Client, opts DestroyOpts, w io.Writer) func(context.Context, resource.Resource) error {
	return func(ctx context.Context, r resource.Resource) error {
		var options []string
		if opts.Purge {
			options = append(options, "--purge")
		}
		if opts.UnreferencedDisks {
			options = append(options, "--destroy-unreferenced-disks")
		}
		fmt.Fprintf(w, "Destroying %s.\n", r.ID)
		if _, err := client.Invoke(ctx, pvesh.VerbDelete, r.PathPrefix(), options); err != nil {
			reportFailure(w, err)
			return err
		}
		return nil
	}
}

// Snapshotter returns the action function that creates a named snapshot.
func Snapshotter(client pvesh.Client, name, description string, w io.Writer) func(context.Context, resource.Resource) error {
	return func(ctx context.Context, r resource.Resource) error {
		path := r.PathPrefix() + "/snapshot"
		options := []string{"--snapname", name}
		if description != "" {
			options = append(options, "--description", description)
		}
		fmt.Fprintf(w, "Snapshotting %s.\n", r.ID)
		if _, err := client.Invoke(ctx, pvesh.VerbCreate, path, options); err != nil {
			reportFailure(w, err)
			return err
		}
		return nil
	}
}

// SnapshotDeleter returns the action function that removes a named
// snapshot. force removes the config entry even when disk snapshot
// removal fails.
func SnapshotDeleter(client pvesh.Client, name string, force bool, w io.Writer) func(context.Context, resource.Resource) error {
	return func(ctx context.Context, r resource.Resource) error {
		path := fmt.Sprintf("%s/snapshot/%s", r.PathPrefix(), name)
		var options []string
		if force {
			options = append(options, "--force", "true")
		}
		fmt.Fprintf(w, "Delete Snapshot %s.\n", r.ID)
		if _, err := client.Invoke(ctx, pvesh.VerbDelete, path, options); err != nil {
			reportFailure(w, err)
			return err
		}
		return nil
	}
}

// snapshotEntry is one element of a per-guest snapshot listing.
type snapshotEntry struct {
	Name string `json:"name"`
}

// SnapshotLister returns the action function that prints every snapshot
// of a guest, one "<id>: <name>" line each.
func SnapshotLister(client pvesh.Client, w io.Writer) func(context.Context, resource.Resource) error {
	return func(ctx context.Context, r resource.Resource) error {
		path := r.PathPrefix() + "/snapshot"
		raw, err := client.Invoke(ctx, pvesh.VerbList, path, nil)
		if err != nil {
			reportFailure(w, err)
			return err
		}
		var snapshots []snapshotEntry
		if err := json.Unmarshal(raw, &snapshots); err != nil {
			reportFailure(w, fmt.Errorf("decoding snapshots for %s: %w", r.ID, err))
			return err
		}
		for _, s := range snapshots {
			fmt.Fprintf(w, "%s: %s\n", r.ID, s.Name)
		}
		return nil
	}
}

// Dumper returns the action function that starts a vzdump backup of a
// guest on its owning node.
func Dumper(client pvesh.Client, w io.Writer) func(context.Context, resource.Resource) error {
	return func(ctx context.Context, r resource.Resource) error {
		path := fmt.Sprintf("/nodes/%s/vzdump", r.Node)
		options := []string{"--vmid", strconv.Itoa(r.ID.VMID), "--compress", "zstd"}
		fmt.Fprintf(w, "Vzdump %s.\n", r.ID)
		if _, err := client.Invoke(ctx, pvesh.VerbCreate, path, options); err != nil {
			reportFailure(w, err)
			return err
		}
		return nil
	}
}
