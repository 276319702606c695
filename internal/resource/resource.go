// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

// Package resource defines the cluster resource model shared by every
// command: a guest (container or virtual machine) identified by its
// namespace and numeric VMID, as reported by /cluster/resources.
package resource

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Namespace distinguishes containers from virtual machines. The values
// match the "type" field of /cluster/resources entries.
type Namespace string

const (
	NamespaceLXC  Namespace = "lxc"
	NamespaceQemu Namespace = "qemu"
)

// SIDPrefix returns the HA subsystem prefix for this namespace
// ("ct" for containers, "vm" for virtual machines).
func (n Namespace) SIDPrefix() string {
	if n == NamespaceLXC {
		return "ct"
	}
	return "vm"
}

// Lifecycle statuses reported by the cluster. Anything else is passed
// through untouched; only these two gate actions.
const (
	StatusRunning = "running"
	StatusStopped = "stopped"
)

// ID identifies a guest by namespace and numeric VMID.
type ID struct {
	Namespace Namespace
	VMID      int
}

// String renders the ID the way the cluster does, e.g. "qemu/101".
func (id ID) String() string {
	return fmt.Sprintf("%s/%d", id.Namespace, id.VMID)
}

// SID renders the HA composite identifier, e.g. "vm:101" or "ct:200".
func (id ID) SID() string {
	return fmt.Sprintf("%s:%d", id.Namespace.SIDPrefix(), id.VMID)
}

// ParseSID inverts SID: "vm:101" -> ID{qemu, 101}, "ct:200" -> ID{lxc, 200}.
func ParseSID(sid string) (ID, error) {
	prefix, rest, ok := strings.Cut(sid, ":")
	if !ok {
		return ID{}, fmt.Errorf("malformed sid %q", sid)
	}
	vmid, err := strconv.Atoi(rest)
	if err != nil {
		return ID{}, fmt.Errorf("malformed sid %q: %w", sid, err)
	}
	switch prefix {
	case "ct":
		return ID{Namespace: NamespaceLXC, VMID: vmid}, nil
	case "vm":
		return ID{Namespace: NamespaceQemu, VMID: vmid}, nil
	default:
		return ID{}, fmt.Errorf("unknown sid prefix %q", sid)
	}
}

// Resource is an immutable snapshot of one guest, fetched fresh per
// invocation and never persisted.
type Resource struct {
	ID     ID
	Node   string
	Name   string
	Status string
	// Uptime in seconds; only meaningful while the guest is running.
	Uptime int64
}

// PathPrefix returns the per-guest API path root,
// e.g. "/nodes/pve1/qemu/101".
func (r Resource) PathPrefix() string {
	return fmt.Sprintf("/nodes/%s/%s/%d", r.Node, r.ID.Namespace, r.ID.VMID)
}

// clusterResource mirrors one entry of /cluster/resources. The listing
// mixes guests with nodes, storages and pools; only lxc/qemu entries
// carry a vmid.
type clusterResource struct {
	Type   string `json:"type"`
	VMID   int    `json:"vmid"`
	Node   string `json:"node"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Uptime int64  `json:"uptime"`
}

// DecodeCluster parses a /cluster/resources response and keeps only
// guest entries, in the order the cluster returned them.
func DecodeCluster(raw json.RawMessage) ([]Resource, error) {
	var entries []clusterResource
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding cluster resources: %w", err)
	}

	var out []Resource
	for _, e := range entries {
		ns := Namespace(e.Type)
		if ns != NamespaceLXC && ns != NamespaceQemu {
			continue
		}
		out = append(out, Resource{
			ID:     ID{Namespace: ns, VMID: e.VMID},
			Node:   e.Node,
			Name:   e.Name,
			Status: e.Status,
			Uptime: e.Uptime,
		})
	}
	return out, nil
}
