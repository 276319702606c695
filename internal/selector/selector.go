// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

// Package selector resolves operator-supplied identifiers (explicit VMIDs,
// node names, or nothing at all) into the set of live cluster guests an
// action targets, reporting exactly which identifiers did not resolve.
package selector

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"pvefleet/internal/constants"
	"pvefleet/internal/pvesh"
	"pvefleet/internal/resource"
)

// Mode picks how raw identifiers are interpreted.
type Mode int

const (
	// ByIDs treats identifiers as numeric VMIDs.
	ByIDs Mode = iota
	// ByNodes treats identifiers as node names.
	ByNodes
	// All selects every guest cluster-wide. Only permitted for actions
	// that are safe to broadcast.
	All
)

// Selector is one invocation's resource query.
type Selector struct {
	Mode Mode
	// Raw identifiers in operator order, duplicates included.
	IDs []string
}

// New classifies the positional identifiers. Explicit IDs win over the
// cluster-wide default; nodeScoped flips interpretation to node names.
func New(nodeScoped bool, ids []string) Selector {
	if nodeScoped {
		return Selector{Mode: ByNodes, IDs: ids}
	}
	if len(ids) > 0 {
		return Selector{Mode: ByIDs, IDs: ids}
	}
	return Selector{Mode: All}
}

// Error is a fatal selector problem: the invocation cannot proceed at all.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

// MissingReport lists requested identifiers that matched no live guest,
// in order of first appearance. Missing identifiers are non-fatal.
type MissingReport struct {
	// Label names what the identifiers are, for the report heading.
	Label string
	IDs   []string
}

// Empty reports whether every requested identifier resolved.
func (m *MissingReport) Empty() bool {
	return m == nil || len(m.IDs) == 0
}

// Print writes the report as a 1-indexed list, matching the operator's
// view of the original arguments.
func (m *MissingReport) Print(w io.Writer) {
	if m.Empty() {
		return
	}
	fmt.Fprintf(w, "%s do not exist:\n", m.Label)
	for i, id := range m.IDs {
		fmt.Fprintf(w, "%d. %s\n", i+1, id)
	}
}

// Presence tracks requested identifiers with set semantics: duplicates
// collapse, first-appearance order is preserved for the missing report.
type Presence struct {
	order []string
	seen  map[string]bool
}

// NewPresence builds a tracker over the raw identifier list.
func NewPresence(ids []string) *Presence {
	p := &Presence{seen: make(map[string]bool, len(ids))}
	for _, id := range ids {
		if _, ok := p.seen[id]; !ok {
			p.order = append(p.order, id)
			p.seen[id] = false
		}
	}
	return p
}

// Mark records that the identifier matched a live record.
func (p *Presence) Mark(id string) {
	p.seen[id] = true
}

// Has reports whether the identifier was requested at all.
func (p *Presence) Has(id string) bool {
	_, ok := p.seen[id]
	return ok
}

// Missing returns the requested identifiers that never matched, in order
// of first appearance.
func (p *Presence) Missing() []string {
	var out []string
	for _, id := range p.order {
		if !p.seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// Resolve fetches the live cluster resource collection once and filters it
// per the selector. broadcastSafe gates the cluster-wide default: actions
// that mutate state get an empty result instead of the whole fleet.
//
// Identifiers with no match populate the returned MissingReport; whatever
// did resolve is still returned. Only a structurally invalid selector
// (node mode with no node names) is fatal.
func Resolve(ctx context.Context, client pvesh.Client, sel Selector, broadcastSafe bool) ([]resource.Resource, *MissingReport, error) {
	switch sel.Mode {
	case ByNodes:
		if len(sel.IDs) == 0 {
			return nil, nil, &Error{Reason: "missing node ids"}
		}
	case ByIDs:
		if len(sel.IDs) == 0 {
			return nil, nil, &Error{Reason: "missing resource ids"}
		}
	case All:
		if !broadcastSafe {
			return nil, nil, nil
		}
	}

	raw, err := client.Invoke(ctx, pvesh.VerbGet, constants.ClusterResourcesPath, nil)
	if err != nil {
		return nil, nil, err
	}
	all, err := resource.DecodeCluster(raw)
	if err != nil {
		return nil, nil, err
	}

	switch sel.Mode {
	case ByNodes:
		requested := NewPresence(sel.IDs)
		var selected []resource.Resource
		for _, r := range all {
			if requested.Has(r.Node) {
				requested.Mark(r.Node)
				selected = append(selected, r)
			}
		}
		return selected, &MissingReport{Label: "Nodes", IDs: requested.Missing()}, nil

	case ByIDs:
		requested := NewPresence(sel.IDs)
		var selected []resource.Resource
		for _, r := range all {
			vmid := strconv.Itoa(r.ID.VMID)
			if requested.Has(vmid) {
				requested.Mark(vmid)
				selected = append(selected, r)
			}
		}
		return selected, &MissingReport{Label: "VMs", IDs: requested.Missing()}, nil

	default:
		return all, nil, nil
	}
}
