// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pvefleet/internal/action"
	"pvefleet/internal/audit"
	"pvefleet/internal/config"
	"pvefleet/internal/dispatch"
	"pvefleet/internal/format"
	"pvefleet/internal/ha"
	"pvefleet/internal/logging"
	"pvefleet/internal/pvesh"
	"pvefleet/internal/replication"
	"pvefleet/internal/resource"
	"pvefleet/internal/selector"
)

// app bundles one invocation's collaborators. The client and auditor are
// injectable so tests can drive the full flow with scripted responses.
type app struct {
	cfg     *config.Config
	client  pvesh.Client
	auditor audit.Auditor
	out     io.Writer
	errOut  io.Writer
	in      io.Reader

	// missingCount carries the last resolution's missing-identifier count
	// into the audit record.
	missingCount int
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logging.Init(cfg.Verbose)

	var auditor audit.Auditor = audit.NoOpAuditor{}
	if cfg.AuditEnabled {
		a, err := audit.NewSQLiteAuditor(cfg.AuditDBPath)
		if err != nil {
			return nil, fmt.Errorf("opening audit database: %w", err)
		}
		auditor = a
	}

	return &app{
		cfg:     cfg,
		client:  &pvesh.ExecClient{Binary: cfg.PveshBinary},
		auditor: auditor,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		in:      cmd.InOrStdin(),
	}, nil
}

func (a *app) close() {
	if err := a.auditor.Close(); err != nil {
		logging.S().Warnw("closing auditor", "error", err)
	}
}

// printSelectorError reports a fatal selector problem the way the rest of
// the diagnostics read, e.g. "Missing node ids".
func (a *app) printSelectorError(reason string) {
	if reason != "" {
		reason = strings.ToUpper(reason[:1]) + reason[1:]
	}
	fmt.Fprintln(a.out, reason)
}

// selectorFor classifies the positional identifiers per the shared rules.
func (a *app) selectorFor(ids []string) selector.Selector {
	return selector.New(a.cfg.NodeScoped, ids)
}

func modeName(m selector.Mode) string {
	switch m {
	case selector.ByNodes:
		return "nodes"
	case selector.ByIDs:
		return "ids"
	default:
		return "all"
	}
}

// resolve runs the selector, prints the missing report, and applies the
// empty-set safety rail. A fatal selector error is printed and swallowed:
// the invocation aborts before any dispatch but still exits cleanly.
func (a *app) resolve(ctx context.Context, ids []string, kind action.Kind) ([]resource.Resource, selector.Selector, bool) {
	sel := a.selectorFor(ids)
	resources, missing, err := selector.Resolve(ctx, a.client, sel, kind.BroadcastSafe())
	if err != nil {
		var selErr *selector.Error
		if errors.As(err, &selErr) {
			a.printSelectorError(selErr.Reason)
		} else {
			fmt.Fprintf(a.errOut, "Error: %v\n", err)
		}
		return nil, sel, false
	}
	missing.Print(a.out)
	if len(resources) == 0 {
		fmt.Fprintln(a.out, "No resources found")
		return nil, sel, false
	}
	a.missingCount = 0
	if missing != nil {
		a.missingCount = len(missing.IDs)
	}
	logging.S().Debugw("resolved selection",
		"mode", modeName(sel.Mode), "resolved", len(resources), "missing", a.missingCount)
	return resources, sel, true
}

// dispatchOpts applies the shared dispatch policy: sync mode from config,
// and the VMID re-filter when the operator selected by explicit IDs.
func (a *app) dispatchOpts(sel selector.Selector) dispatch.Options[resource.Resource] {
	opts := dispatch.Options[resource.Resource]{Sync: a.cfg.Sync}
	if sel.Mode == selector.ByIDs {
		opts.FilterIDs = sel.IDs
		opts.Key = func(r resource.Resource) string { return fmt.Sprintf("%d", r.ID.VMID) }
	}
	return opts
}

// runBatch dispatches fn over the resources and records every outcome in
// the audit trail. Audit failures are warnings only.
func (a *app) runBatch(ctx context.Context, kind action.Kind, sel selector.Selector, resources []resource.Resource, fn dispatch.Func[resource.Resource]) []dispatch.Outcome[resource.Resource] {
	invID, _, err := a.auditor.StartInvocation(ctx, audit.Invocation{
		Command:      string(kind),
		SelectorMode: modeName(sel.Mode),
		Identifiers:  sel.IDs,
		SyncMode:     a.cfg.Sync,
	})
	if err != nil {
		logging.S().Warnw("starting audit invocation", "error", err)
	}
	if err := a.auditor.RecordResolution(ctx, invID, len(resources), a.missingCount); err != nil {
		logging.S().Warnw("recording resolution", "error", err)
	}

	outcomes := dispatch.Run(ctx, resources, fn, a.dispatchOpts(sel))

	for _, o := range outcomes {
		rec := audit.OutcomeRecord{
			ResourceID: o.Item.ID.String(),
			Node:       o.Item.Node,
			Action:     string(kind),
			Status:     "ok",
		}
		if o.Err != nil {
			rec.Status = "failed"
			rec.ErrorDetail = o.Err.Error()
		}
		if err := a.auditor.RecordOutcome(ctx, invID, rec); err != nil {
			logging.S().Warnw("recording outcome", "error", err)
		}
	}

	status := "completed"
	summary := ""
	if n := dispatch.Failed(outcomes); n > 0 {
		status = "completed_with_failures"
		summary = fmt.Sprintf("%d of %d actions failed", n, len(outcomes))
	}
	if err := a.auditor.CompleteInvocation(ctx, invID, status, summary); err != nil {
		logging.S().Warnw("completing audit invocation", "error", err)
	}
	return outcomes
}

func (a *app) runStatus(ctx context.Context, ids []string) error {
	resources, _, ok := a.resolve(ctx, ids, action.Status)
	if !ok {
		return nil
	}
	for _, r := range resources {
		fmt.Fprintln(a.out, format.Status(r))
	}
	return nil
}

func (a *app) runLifecycle(ctx context.Context, kind action.Kind, ids []string) error {
	resources, sel, ok := a.resolve(ctx, ids, kind)
	if !ok {
		return nil
	}
	a.runBatch(ctx, kind, sel, resources, action.Lifecycle(a.client, kind, a.out))
	return nil
}

func (a *app) runDestroy(ctx context.Context, ids []string) error {
	resources, sel, ok := a.resolve(ctx, ids, action.Destroy)
	if !ok {
		return nil
	}

	// Node-scoped destroys always prompt; skip-confirm only applies to
	// explicitly enumerated guests.
	skipConfirm := a.cfg.SkipConfirm && sel.Mode != selector.ByNodes
	if !skipConfirm {
		if !dispatch.Confirm(a.out, a.in, resources) {
			fmt.Fprintln(a.out, "Cancelled destroying resources")
			return nil
		}
	}

	opts := action.DestroyOpts{
		Purge:             !a.cfg.DoNotPurgeJobs,
		UnreferencedDisks: !a.cfg.DoNotDestroyUnreferencedDisks,
	}
	a.runBatch(ctx, action.Destroy, sel, resources, action.Destroyer(a.client, opts, a.out))
	return nil
}

func (a *app) runSnapshot(ctx context.Context, ids []string) error {
	if a.cfg.SnapshotName == "" {
		fmt.Fprintln(a.out, "--name argument is required")
		return nil
	}
	resources, sel, ok := a.resolve(ctx, ids, action.Snapshot)
	if !ok {
		return nil
	}
	a.runBatch(ctx, action.Snapshot, sel, resources,
		action.Snapshotter(a.client, a.cfg.SnapshotName, a.cfg.SnapshotDescription, a.out))
	return nil
}

func (a *app) runDelSnapshot(ctx context.Context, ids []string) error {
	if a.cfg.SnapshotName == "" {
		fmt.Fprintln(a.out, "--name argument is required")
		return nil
	}
	resources, sel, ok := a.resolve(ctx, ids, action.DelSnapshot)
	if !ok {
		return nil
	}
	a.runBatch(ctx, action.DelSnapshot, sel, resources,
		action.SnapshotDeleter(a.client, a.cfg.SnapshotName, a.cfg.Force, a.out))
	return nil
}

func (a *app) runListSnapshot(ctx context.Context, ids []string) error {
	resources, sel, ok := a.resolve(ctx, ids, action.ListSnapshot)
	if !ok {
		return nil
	}
	a.runBatch(ctx, action.ListSnapshot, sel, resources, action.SnapshotLister(a.client, a.out))
	return nil
}

func (a *app) runVZDump(ctx context.Context, ids []string) error {
	resources, sel, ok := a.resolve(ctx, ids, action.VZDump)
	if !ok {
		return nil
	}
	a.runBatch(ctx, action.VZDump, sel, resources, action.Dumper(a.client, a.out))
	return nil
}

func (a *app) runHAStatus(ctx context.Context, ids []string) error {
	resources, _, ok := a.resolve(ctx, ids, action.HAStatus)
	if !ok {
		return nil
	}
	joined, err := ha.Join(ctx, a.client, resources)
	if err != nil {
		fmt.Fprintf(a.errOut, "Error: %v\n", err)
		return nil
	}
	ha.PrintStatus(a.out, resources, joined)
	return nil
}

func (a *app) runHASet(ctx context.Context, ids []string) error {
	state := a.cfg.HAState
	if !ha.ValidState(state) {
		fmt.Fprintln(a.out, "--ha-state argument is required (started/stopped/disabled/ignored)")
		return nil
	}
	resources, sel, ok := a.resolve(ctx, ids, action.HASet)
	if !ok {
		return nil
	}
	joined, err := ha.Join(ctx, a.client, resources)
	if err != nil {
		fmt.Fprintf(a.errOut, "Error: %v\n", err)
		return nil
	}
	a.runBatch(ctx, action.HASet, sel, resources,
		func(ctx context.Context, r resource.Resource) error {
			return ha.Set(ctx, a.client, r, state, joined, a.out)
		})
	return nil
}

func (a *app) runHAClear(ctx context.Context, ids []string) error {
	resources, sel, ok := a.resolve(ctx, ids, action.HAClear)
	if !ok {
		return nil
	}
	joined, err := ha.Join(ctx, a.client, resources)
	if err != nil {
		fmt.Fprintf(a.errOut, "Error: %v\n", err)
		return nil
	}
	a.runBatch(ctx, action.HAClear, sel, resources,
		func(ctx context.Context, r resource.Resource) error {
			return ha.Clear(ctx, a.client, r, joined, a.out)
		})
	return nil
}

// discoverReplications runs the low-fidelity pass and the shared
// empty-result handling for both replication commands.
func (a *app) discoverReplications(ctx context.Context, kind action.Kind, ids []string) ([]replication.Record, selector.Selector, bool) {
	sel := a.selectorFor(ids)
	jobs, missing, err := replication.Discover(ctx, a.client, sel, kind.BroadcastSafe())
	if err != nil {
		var selErr *selector.Error
		if errors.As(err, &selErr) {
			a.printSelectorError(selErr.Reason)
		} else {
			fmt.Fprintf(a.errOut, "Error: %v\n", err)
		}
		return nil, sel, false
	}
	missing.Print(a.out)
	if len(jobs) == 0 {
		fmt.Fprintln(a.out, "No replications found")
		return nil, sel, false
	}
	return jobs, sel, true
}

func (a *app) runReplicationStatus(ctx context.Context, ids []string) error {
	jobs, _, ok := a.discoverReplications(ctx, action.ReplicationStatus, ids)
	if !ok {
		return nil
	}
	detailed := replication.Detail(ctx, a.client, jobs, a.errOut)
	replication.PrintList(a.out, detailed, time.Now())
	return nil
}

func (a *app) runReplicationScheduleNow(ctx context.Context, ids []string) error {
	jobs, sel, ok := a.discoverReplications(ctx, action.ReplicationScheduleNow, ids)
	if !ok {
		return nil
	}
	active := replication.Active(jobs)
	if len(active) == 0 {
		fmt.Fprintln(a.out, "No replications found")
		return nil
	}
	opts := dispatch.Options[replication.Record]{Sync: a.cfg.Sync}
	if sel.Mode == selector.ByIDs {
		opts.FilterIDs = sel.IDs
		opts.Key = replication.Record.GuestID
	}
	dispatch.Run(ctx, active, replication.ScheduleNow(a.client, a.out), opts)
	return nil
}
