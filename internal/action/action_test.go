// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

package action_test

import (
	"bytes"
	"context"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pvefleet/internal/action"
	"pvefleet/internal/pvesh"
	"pvefleet/internal/resource"
	"pvefleet/internal/testutil"
)

func guest(ns resource.Namespace, vmid int, node, name, status string) resource.Resource {
	return resource.Resource{
		ID:     resource.ID{Namespace: ns, VMID: vmid},
		Node:   node,
		Name:   name,
		Status: status,
	}
}

var _ = Describe("Allowed", func() {
	id := resource.ID{Namespace: resource.NamespaceQemu, VMID: 101}

	DescribeTable("gates actions against lifecycle status",
		func(status string, kind action.Kind, want bool) {
			Expect(action.Allowed(io.Discard, id, kind, status)).To(Equal(want))
		},
		Entry("stop a stopped guest", "stopped", action.Stop, false),
		Entry("shut a stopped guest down", "stopped", action.Shutdown, false),
		Entry("start a stopped guest", "stopped", action.Start, true),
		Entry("start a running guest", "running", action.Start, false),
		Entry("shut a running guest down", "running", action.Shutdown, true),
		Entry("stop a running guest", "running", action.Stop, true),
		Entry("anything from an unknown status", "paused", action.Start, true),
	)

	It("explains the rejection", func() {
		var buf bytes.Buffer
		action.Allowed(&buf, id, action.Stop, "stopped")
		Expect(buf.String()).To(ContainSubstring("VM 101 is already stopped"))
	})
})

var _ = Describe("BroadcastSafe", func() {
	It("permits only read-only and listing actions", func() {
		Expect(action.Status.BroadcastSafe()).To(BeTrue())
		Expect(action.ListSnapshot.BroadcastSafe()).To(BeTrue())
		Expect(action.HAStatus.BroadcastSafe()).To(BeTrue())
		Expect(action.ReplicationStatus.BroadcastSafe()).To(BeTrue())

		Expect(action.Start.BroadcastSafe()).To(BeFalse())
		Expect(action.Destroy.BroadcastSafe()).To(BeFalse())
		Expect(action.VZDump.BroadcastSafe()).To(BeFalse())
	})
})

var _ = Describe("Lifecycle", func() {
	var (
		ctx    context.Context
		client *testutil.FakeClient
		buf    *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = testutil.NewFakeClient()
		buf = &bytes.Buffer{}
	})

	It("posts the status transition and reports it", func() {
		fn := action.Lifecycle(client, action.Start, buf)
		err := fn(ctx, guest(resource.NamespaceQemu, 101, "pve1", "web", "stopped"))
		Expect(err).NotTo(HaveOccurred())

		calls := client.Calls()
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].Verb).To(Equal(pvesh.VerbCreate))
		Expect(calls[0].Path).To(Equal("/nodes/pve1/qemu/101/status/start"))
		Expect(buf.String()).To(ContainSubstring("Start command sent for qemu/101."))
	})

	It("skips a redundant transition without calling the cluster", func() {
		fn := action.Lifecycle(client, action.Stop, buf)
		err := fn(ctx, guest(resource.NamespaceLXC, 200, "pve2", "db", "stopped"))
		Expect(err).NotTo(HaveOccurred())
		Expect(client.Calls()).To(BeEmpty())
		Expect(buf.String()).To(ContainSubstring("already stopped"))
	})

	It("turns a remote failure into a printed diagnostic", func() {
		client.Failures["/nodes/pve1/qemu/101/status/start"] = &pvesh.CallError{
			Path: "/nodes/pve1/qemu/101/status/start", ExitCode: 2, Stderr: "no permission",
		}
		fn := action.Lifecycle(client, action.Start, buf)
		err := fn(ctx, guest(resource.NamespaceQemu, 101, "pve1", "web", "stopped"))
		Expect(err).To(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("no permission"))
	})
})

var _ = Describe("Destroyer", func() {
	var (
		ctx    context.Context
		client *testutil.FakeClient
		buf    *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = testutil.NewFakeClient()
		buf = &bytes.Buffer{}
	})

	It("deletes with purge and unreferenced-disk removal on by default", func() {
		fn := action.Destroyer(client, action.DestroyOpts{Purge: true, UnreferencedDisks: true}, buf)
		Expect(fn(ctx, guest(resource.NamespaceQemu, 101, "pve1", "web", "stopped"))).To(Succeed())

		calls := client.Calls()
		Expect(calls).To(HaveLen(1))
		Expect(calls[0].Verb).To(Equal(pvesh.VerbDelete))
		Expect(calls[0].Path).To(Equal("/nodes/pve1/qemu/101"))
		Expect(calls[0].Options).To(Equal([]string{"--purge", "--destroy-unreferenced-disks"}))
		Expect(buf.String()).To(ContainSubstring("Destroying qemu/101."))
	})

	It("omits inverted options when switched off", func() {
		fn := action.Destroyer(client, action.DestroyOpts{}, buf)
		Expect(fn(ctx, guest(resource.NamespaceLXC, 200, "pve2", "db", "stopped"))).To(Succeed())
		Expect(client.Calls()[0].Options).To(BeEmpty())
	})
})

var _ = Describe("Snapshotter", func() {
	It("creates a named snapshot with optional description", func() {
		client := testutil.NewFakeClient()
		buf := &bytes.Buffer{}
		fn := action.Snapshotter(client, "nightly", "before upgrade", buf)
		Expect(fn(context.Background(), guest(resource.NamespaceQemu, 101, "pve1", "web", "running"))).To(Succeed())

		calls := client.Calls()
		Expect(calls[0].Path).To(Equal("/nodes/pve1/qemu/101/snapshot"))
		Expect(calls[0].Options).To(Equal([]string{"--snapname", "nightly", "--description", "before upgrade"}))
	})
})

var _ = Describe("SnapshotDeleter", func() {
	It("deletes by name and forwards the force flag", func() {
		client := testutil.NewFakeClient()
		buf := &bytes.Buffer{}
		fn := action.SnapshotDeleter(client, "nightly", true, buf)
		Expect(fn(context.Background(), guest(resource.NamespaceQemu, 101, "pve1", "web", "running"))).To(Succeed())

		calls := client.Calls()
		Expect(calls[0].Verb).To(Equal(pvesh.VerbDelete))
		Expect(calls[0].Path).To(Equal("/nodes/pve1/qemu/101/snapshot/nightly"))
		Expect(calls[0].Options).To(Equal([]string{"--force", "true"}))
	})
})

var _ = Describe("SnapshotLister", func() {
	It("prints one line per snapshot", func() {
		client := testutil.NewFakeClient()
		client.Responses["/nodes/pve1/qemu/101/snapshot"] = `[{"name":"nightly"},{"name":"current"}]`
		buf := &bytes.Buffer{}
		fn := action.SnapshotLister(client, buf)
		Expect(fn(context.Background(), guest(resource.NamespaceQemu, 101, "pve1", "web", "running"))).To(Succeed())
		Expect(buf.String()).To(Equal("qemu/101: nightly\nqemu/101: current\n"))
	})
})

var _ = Describe("Dumper", func() {
	It("starts a vzdump on the owning node", func() {
		client := testutil.NewFakeClient()
		buf := &bytes.Buffer{}
		fn := action.Dumper(client, buf)
		Expect(fn(context.Background(), guest(resource.NamespaceLXC, 200, "pve2", "db", "running"))).To(Succeed())

		calls := client.Calls()
		Expect(calls[0].Path).To(Equal("/nodes/pve2/vzdump"))
		Expect(calls[0].Options).To(Equal([]string{"--vmid", "200", "--compress", "zstd"}))
	})
})
