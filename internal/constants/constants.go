// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

package constants

// Cluster API paths consumed by the orchestration core.
const (
	ClusterResourcesPath   = "/cluster/resources"
	ClusterReplicationPath = "/cluster/replication"
	HAResourcesPath        = "/cluster/ha/resources"
)

// Configuration defaults.
const (
	EnvPrefix          = "PVEFLEET"
	DefaultPveshBinary = "pvesh"
	DefaultAuditDBPath = "pvefleet-audit.db"
)
