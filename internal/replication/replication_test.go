// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

package replication_test

import (
	"bytes"
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pvefleet/internal/constants"
	"pvefleet/internal/pvesh"
	"pvefleet/internal/replication"
	"pvefleet/internal/selector"
	"pvefleet/internal/testutil"
)

const configBody = `[
	{"id":"100-0","guest":100,"source":"pve1","target":"pve2","schedule":"*/15"},
	{"id":"100-1","guest":100,"source":"pve1","target":"pve3","schedule":"*/15"},
	{"id":"200-0","guest":200,"source":"pve2","target":"pve1","schedule":"*/30","disable":1}
]`

var _ = Describe("Discover", func() {
	var (
		ctx    context.Context
		client *testutil.FakeClient
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = testutil.NewFakeClient()
		client.Responses[constants.ClusterReplicationPath] = configBody
	})

	It("returns every job in broadcast mode", func() {
		jobs, missing, err := replication.Discover(ctx, client, selector.Selector{Mode: selector.All}, true)
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(BeNil())
		Expect(jobs).To(HaveLen(3))
	})

	It("returns nothing for an unsafe broadcast without calling the cluster", func() {
		jobs, missing, err := replication.Discover(ctx, client, selector.Selector{Mode: selector.All}, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(missing).To(BeNil())
		Expect(jobs).To(BeEmpty())
		Expect(client.Calls()).To(BeEmpty())
	})

	It("matches node mode against the source node", func() {
		sel := selector.Selector{Mode: selector.ByNodes, IDs: []string{"pve1", "ghost"}}
		jobs, missing, err := replication.Discover(ctx, client, sel, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(jobs).To(HaveLen(2))
		Expect(missing.IDs).To(Equal([]string{"ghost"}))
		Expect(missing.Label).To(Equal("Nodes"))
	})

	It("matches id mode against the guest", func() {
		sel := selector.Selector{Mode: selector.ByIDs, IDs: []string{"200", "999"}}
		jobs, missing, err := replication.Discover(ctx, client, sel, false)
		Expect(err).NotTo(HaveOccurred())
		Expect(jobs).To(HaveLen(1))
		Expect(jobs[0].JobID).To(Equal("200-0"))
		Expect(missing.IDs).To(Equal([]string{"999"}))
		Expect(missing.Label).To(Equal("VMs"))
	})

	It("rejects node mode with no identifiers", func() {
		_, _, err := replication.Discover(ctx, client, selector.Selector{Mode: selector.ByNodes}, false)
		var selErr *selector.Error
		Expect(err).To(BeAssignableToTypeOf(selErr))
	})
})

var _ = Describe("Detail", func() {
	It("fans out per source node and keeps only discovered jobs", func() {
		client := testutil.NewFakeClient()
		client.Responses["/nodes/pve1/replication"] = `[
			{"id":"100-0","guest":100,"source":"pve1","target":"pve2","last_sync":1000,"duration":45},
			{"id":"100-1","guest":100,"source":"pve1","target":"pve3","last_sync":1000,"duration":12},
			{"id":"300-0","guest":300,"source":"pve1","target":"pve2"}
		]`
		client.Responses["/nodes/pve2/replication"] = `[
			{"id":"200-0","guest":200,"source":"pve2","target":"pve1","last_sync":2000,"duration":3}
		]`

		jobs := []replication.Record{
			{JobID: "100-0", Guest: 100, Source: "pve1"},
			{JobID: "100-1", Guest: 100, Source: "pve1"},
			{JobID: "200-0", Guest: 200, Source: "pve2"},
		}
		buf := &bytes.Buffer{}
		detailed := replication.Detail(context.Background(), client, jobs, buf)

		Expect(client.CallsTo("/nodes/pve1/replication")).To(HaveLen(1))
		Expect(client.CallsTo("/nodes/pve2/replication")).To(HaveLen(1))
		Expect(detailed).To(HaveLen(3))
		Expect(detailed[0].JobID).To(Equal("100-0"))
		Expect(detailed[1].JobID).To(Equal("100-1"))
		Expect(detailed[2].JobID).To(Equal("200-0"))
		Expect(buf.String()).To(BeEmpty())
	})

	It("reports a failing node and keeps the rest", func() {
		client := testutil.NewFakeClient()
		client.Failures["/nodes/pve1/replication"] = &pvesh.CallError{
			Path: "/nodes/pve1/replication", ExitCode: 2, Stderr: "node offline",
		}
		client.Responses["/nodes/pve2/replication"] = `[
			{"id":"200-0","guest":200,"source":"pve2","target":"pve1"}
		]`

		jobs := []replication.Record{
			{JobID: "100-0", Guest: 100, Source: "pve1"},
			{JobID: "200-0", Guest: 200, Source: "pve2"},
		}
		buf := &bytes.Buffer{}
		detailed := replication.Detail(context.Background(), client, jobs, buf)

		Expect(detailed).To(HaveLen(1))
		Expect(detailed[0].JobID).To(Equal("200-0"))
		Expect(buf.String()).To(ContainSubstring("node offline"))
	})
})

var _ = Describe("Aggregate", func() {
	It("groups by guest ascending then target ascending", func() {
		records := []replication.Record{
			{JobID: "200-0", Guest: 200, Target: "c"},
			{JobID: "100-1", Guest: 100, Target: "b"},
			{JobID: "100-0", Guest: 100, Target: "a"},
		}
		replication.Aggregate(records)
		Expect(records[0].JobID).To(Equal("100-0"))
		Expect(records[1].JobID).To(Equal("100-1"))
		Expect(records[2].JobID).To(Equal("200-0"))
	})
})

var _ = Describe("Active", func() {
	It("excludes disabled jobs", func() {
		jobs := []replication.Record{
			{JobID: "100-0", Guest: 100},
			{JobID: "200-0", Guest: 200, Disabled: 1},
		}
		active := replication.Active(jobs)
		Expect(active).To(HaveLen(1))
		Expect(active[0].JobID).To(Equal("100-0"))
	})
})

var _ = Describe("ScheduleNow", func() {
	It("triggers the job on its source node", func() {
		client := testutil.NewFakeClient()
		buf := &bytes.Buffer{}
		fn := replication.ScheduleNow(client, buf)
		job := replication.Record{JobID: "100-0", Guest: 100, Source: "pve1", Target: "pve2"}
		Expect(fn(context.Background(), job)).To(Succeed())

		calls := client.Calls()
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].Verb).To(Equal(pvesh.VerbCreate))
		Expect(calls[0].Path).To(Equal("/nodes/pve1/replication/100-0/schedule_now"))
		Expect(buf.String()).To(Equal("Replication 100 pve1 -> pve2\n"))
	})
})

var _ = Describe("PrintList", func() {
	It("annotates disabled jobs and humanizes times", func() {
		now := time.Unix(10_000, 0)
		records := []replication.Record{
			{JobID: "100-0", Guest: 100, Source: "pve1", Target: "pve2", Schedule: "*/15",
				LastSync: 9_875, Duration: 45, Comment: "nightly"},
			{JobID: "200-0", Guest: 200, Source: "pve2", Target: "pve1", Schedule: "*/30", Disabled: 1},
		}
		buf := &bytes.Buffer{}
		replication.PrintList(buf, records, now)
		Expect(buf.String()).To(Equal(
			"100-0: guest 100 pve1 -> pve2 schedule */15 last-sync 2m 5s ago took 45s # nightly\n" +
				"200-0: guest 200 pve2 -> pve1 schedule */30 (disabled)\n"))
	})
})
