// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared helpers for unit and E2E tests. This
// package has no build tags — it is a pure library imported only by test
// files.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"pvefleet/internal/pvesh"
)

// Call records one Invoke made against the fake client.
type Call struct {
	Verb    string
	Path    string
	Options []string
}

// FakeClient is a pvesh.Client returning scripted responses keyed by
// path. It records every call and is safe for concurrent use, matching
// the dispatcher's fan-out.
type FakeClient struct {
	mu sync.Mutex

	// Responses maps an API path to the JSON body returned for it.
	Responses map[string]string
	// Failures maps an API path to the error returned for it. Failures
	// win over responses.
	Failures map[string]*pvesh.CallError

	calls []Call
}

var _ pvesh.Client = (*FakeClient)(nil)

// NewFakeClient builds an empty fake. Populate Responses and Failures
// before use.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		Responses: make(map[string]string),
		Failures:  make(map[string]*pvesh.CallError),
	}
}

// Invoke returns the scripted response for the path. Paths with no
// script yield an empty collection, mirroring the real client's handling
// of empty bodies.
func (f *FakeClient) Invoke(_ context.Context, verb, path string, options []string) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Verb: verb, Path: path, Options: options})
	f.mu.Unlock()

	if err, ok := f.Failures[path]; ok {
		return nil, err
	}
	if verb == pvesh.VerbDelete {
		return nil, nil
	}
	if body, ok := f.Responses[path]; ok {
		return json.RawMessage(body), nil
	}
	return json.RawMessage("[]"), nil
}

// Calls returns a snapshot of every recorded call.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo returns the recorded calls against one path.
func (f *FakeClient) CallsTo(path string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// ClusterGuest renders one /cluster/resources guest entry.
func ClusterGuest(vmType string, vmid int, node, name, status string, uptime int64) string {
	return fmt.Sprintf(`{"type":%q,"vmid":%d,"node":%q,"name":%q,"status":%q,"uptime":%d,"id":"%s/%d"}`,
		vmType, vmid, node, name, status, uptime, vmType, vmid)
}

// ClusterResources renders a /cluster/resources body from entries,
// prepending a node entry so decoding has non-guest rows to skip.
func ClusterResources(entries ...string) string {
	body := `[{"type":"node","node":"pve1","id":"node/pve1"}`
	for _, e := range entries {
		body += "," + e
	}
	return body + "]"
}
