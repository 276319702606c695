// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

// Package ha reconciles high-availability policy records against the
// selected guests. HA records are keyed by sid ("ct:<vmid>" / "vm:<vmid>");
// the join to a guest strips the prefix.
package ha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"pvefleet/internal/constants"
	"pvefleet/internal/pvesh"
	"pvefleet/internal/resource"
)

// Valid desired states for an HA record.
var States = []string{"started", "stopped", "disabled", "ignored"}

// ValidState reports whether s is an accepted desired state.
func ValidState(s string) bool {
	for _, v := range States {
		if v == s {
			return true
		}
	}
	return false
}

// Record is one HA policy entry.
type Record struct {
	SID     string `json:"sid"`
	State   string `json:"state"`
	Group   string `json:"group"`
	Comment string `json:"comment"`
}

// fetch retrieves every HA record in the cluster.
func fetch(ctx context.Context, client pvesh.Client) ([]Record, error) {
	raw, err := client.Invoke(ctx, pvesh.VerbGet, constants.HAResourcesPath, nil)
	if err != nil {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decoding HA resources: %w", err)
	}
	return records, nil
}

// Join fetches all HA records once and returns those belonging to the
// given guests, keyed by VMID. Records whose sid does not parse, or whose
// guest was not selected, are dropped; resolving HA state for the whole
// fleet when only a few guests were requested would be wasted work anyway.
func Join(ctx context.Context, client pvesh.Client, resources []resource.Resource) (map[int]Record, error) {
	records, err := fetch(ctx, client)
	if err != nil {
		return nil, err
	}

	selected := make(map[int]struct{}, len(resources))
	for _, r := range resources {
		selected[r.ID.VMID] = struct{}{}
	}

	joined := make(map[int]Record)
	for _, rec := range records {
		id, err := resource.ParseSID(rec.SID)
		if err != nil {
			continue
		}
		if _, ok := selected[id.VMID]; ok {
			joined[id.VMID] = rec
		}
	}
	return joined, nil
}

// Set drives a guest's HA record to the desired state. Setting a state
// the record already holds is a no-op that reports "already <state>";
// a guest with no record gets one created, with the display name carried
// as the record comment.
func Set(ctx context.Context, client pvesh.Client, r resource.Resource, state string, existing map[int]Record, w io.Writer) error {
	sid := r.ID.SID()

	if rec, ok := existing[r.ID.VMID]; ok {
		if rec.State == state {
			fmt.Fprintf(w, "%s already %s\n", sid, state)
			return nil
		}
		path := constants.HAResourcesPath + "/" + sid
		fmt.Fprintf(w, "Setting %s to %s\n", sid, state)
		if _, err := client.Invoke(ctx, pvesh.VerbSet, path, []string{"--state", state}); err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			return err
		}
		return nil
	}

	options := []string{"--sid", sid, "--state", state, "--comment", r.Name}
	fmt.Fprintf(w, "Creating HA record %s (%s)\n", sid, state)
	if _, err := client.Invoke(ctx, pvesh.VerbCreate, constants.HAResourcesPath, options); err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return err
	}
	return nil
}

// Clear removes a guest's HA record. Clearing a guest with no record is
// a reported no-op.
func Clear(ctx context.Context, client pvesh.Client, r resource.Resource, existing map[int]Record, w io.Writer) error {
	sid := r.ID.SID()
	if _, ok := existing[r.ID.VMID]; !ok {
		fmt.Fprintf(w, "%s has no HA record\n", sid)
		return nil
	}
	fmt.Fprintf(w, "Clearing HA record %s\n", sid)
	if _, err := client.Invoke(ctx, pvesh.VerbDelete, constants.HAResourcesPath+"/"+sid, nil); err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return err
	}
	return nil
}

// PrintStatus writes one line per selected guest: the HA desired state
// when a record exists, "no HA record" otherwise.
func PrintStatus(w io.Writer, resources []resource.Resource, joined map[int]Record) {
	for _, r := range resources {
		if rec, ok := joined[r.ID.VMID]; ok {
			fmt.Fprintf(w, "%s: %s ha=%s\n", r.ID, r.Name, rec.State)
		} else {
			fmt.Fprintf(w, "%s: %s no HA record\n", r.ID, r.Name)
		}
	}
}
