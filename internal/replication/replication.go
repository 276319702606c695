// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

// Package replication reconciles storage-replication jobs against the
// selected guests. Job configuration is only available cluster-wide while
// run status is only available per node, so resolution is two-pass: a
// cheap cluster-wide pass discovers which nodes host relevant jobs, then
// per-node detail calls fan out across exactly those nodes.
package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pvefleet/internal/constants"
	"pvefleet/internal/format"
	"pvefleet/internal/pvesh"
	"pvefleet/internal/selector"
)

// Record is one replication job. The config listing fills identity and
// schedule; the per-node detail pass adds run timestamps and duration.
type Record struct {
	JobID    string  `json:"id"`
	Guest    int     `json:"guest"`
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Schedule string  `json:"schedule"`
	Disabled int     `json:"disable"`
	LastSync int64   `json:"last_sync"`
	LastTry  int64   `json:"last_try"`
	NextSync int64   `json:"next_sync"`
	Duration float64 `json:"duration"`
	Comment  string  `json:"comment"`
}

// GuestID returns the stringified guest VMID, the dispatcher's match key.
func (r Record) GuestID() string {
	return strconv.Itoa(r.Guest)
}

// Discover is the low-fidelity pass: one cluster-wide config call,
// filtered per the selector. Node mode matches the job's source node;
// ID mode matches the guest. Identifiers with no job populate the
// missing report, non-fatally, like guest resolution does. broadcastSafe
// gates the cluster-wide default exactly as guest resolution does.
func Discover(ctx context.Context, client pvesh.Client, sel selector.Selector, broadcastSafe bool) ([]Record, *selector.MissingReport, error) {
	if sel.Mode == selector.ByNodes && len(sel.IDs) == 0 {
		return nil, nil, &selector.Error{Reason: "missing node ids"}
	}
	if sel.Mode == selector.All && !broadcastSafe {
		return nil, nil, nil
	}

	raw, err := client.Invoke(ctx, pvesh.VerbGet, constants.ClusterReplicationPath, nil)
	if err != nil {
		return nil, nil, err
	}
	var all []Record
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, nil, fmt.Errorf("decoding replication jobs: %w", err)
	}

	switch sel.Mode {
	case selector.ByNodes:
		requested := selector.NewPresence(sel.IDs)
		var selected []Record
		for _, job := range all {
			if requested.Has(job.Source) {
				requested.Mark(job.Source)
				selected = append(selected, job)
			}
		}
		return selected, &selector.MissingReport{Label: "Nodes", IDs: requested.Missing()}, nil

	case selector.ByIDs:
		requested := selector.NewPresence(sel.IDs)
		var selected []Record
		for _, job := range all {
			if requested.Has(job.GuestID()) {
				requested.Mark(job.GuestID())
				selected = append(selected, job)
			}
		}
		return selected, &selector.MissingReport{Label: "VMs", IDs: requested.Missing()}, nil

	default:
		return all, nil, nil
	}
}

// Detail is the high-fidelity pass: concurrent per-node status calls
// across exactly the nodes discovered by the config pass, restricted to
// the discovered jobs. A node whose call fails is reported and skipped;
// the other nodes still contribute.
func Detail(ctx context.Context, client pvesh.Client, jobs []Record, w io.Writer) []Record {
	wanted := make(map[string]struct{}, len(jobs))
	nodes := make(map[string]struct{})
	for _, job := range jobs {
		wanted[job.JobID] = struct{}{}
		nodes[job.Source] = struct{}{}
	}

	var mu sync.Mutex
	var detailed []Record
	g := new(errgroup.Group)
	for node := range nodes {
		node := node
		g.Go(func() error {
			path := fmt.Sprintf("/nodes/%s/replication", node)
			raw, err := client.Invoke(ctx, pvesh.VerbGet, path, nil)
			if err != nil {
				mu.Lock()
				fmt.Fprintf(w, "Error: %v\n", err)
				mu.Unlock()
				return nil
			}
			var records []Record
			if err := json.Unmarshal(raw, &records); err != nil {
				mu.Lock()
				fmt.Fprintf(w, "Error: decoding replication status for node %s: %v\n", node, err)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			for _, rec := range records {
				if _, ok := wanted[rec.JobID]; ok {
					detailed = append(detailed, rec)
				}
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	Aggregate(detailed)
	return detailed
}

// Aggregate orders records for display: grouped by guest ascending, each
// guest's jobs sorted by target node ascending. The order is a display
// contract, not a convenience.
func Aggregate(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Guest != records[j].Guest {
			return records[i].Guest < records[j].Guest
		}
		return records[i].Target < records[j].Target
	})
}

// Active returns the jobs eligible for "trigger now" dispatch: disabled
// jobs are listed but never triggered.
func Active(jobs []Record) []Record {
	var out []Record
	for _, job := range jobs {
		if job.Disabled == 0 {
			out = append(out, job)
		}
	}
	return out
}

// ScheduleNow returns the action function that triggers one job's sync
// immediately on its source node.
func ScheduleNow(client pvesh.Client, w io.Writer) func(context.Context, Record) error {
	return func(ctx context.Context, job Record) error {
		path := fmt.Sprintf("/nodes/%s/replication/%s/schedule_now", job.Source, job.JobID)
		fmt.Fprintf(w, "Replication %d %s -> %s\n", job.Guest, job.Source, job.Target)
		if _, err := client.Invoke(ctx, pvesh.VerbCreate, path, nil); err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			return err
		}
		return nil
	}
}

// PrintList writes one line per job in aggregate order, annotating
// disabled jobs and humanizing elapsed times.
func PrintList(w io.Writer, records []Record, now time.Time) {
	for _, job := range records {
		line := fmt.Sprintf("%s: guest %d %s -> %s schedule %s",
			job.JobID, job.Guest, job.Source, job.Target, job.Schedule)
		if job.Disabled != 0 {
			line += " (disabled)"
		}
		if s := format.Since(job.LastSync, now); s != "" {
			line += " last-sync " + s + " ago"
		}
		if d := format.Seconds(int64(job.Duration)); d != "" {
			line += " took " + d
		}
		if job.Comment != "" {
			line += " # " + job.Comment
		}
		fmt.Fprintln(w, line)
	}
}
