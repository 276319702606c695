// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

package selector_test

import (
	"bytes"
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pvefleet/internal/constants"
	"pvefleet/internal/selector"
	"pvefleet/internal/testutil"
)

var _ = Describe("New", func() {
	It("prefers node scope over explicit IDs", func() {
		sel := selector.New(true, []string{"pve1"})
		Expect(sel.Mode).To(Equal(selector.ByNodes))
	})

	It("prefers explicit IDs over the cluster-wide default", func() {
		sel := selector.New(false, []string{"101"})
		Expect(sel.Mode).To(Equal(selector.ByIDs))
	})

	It("defaults to cluster-wide with no identifiers", func() {
		sel := selector.New(false, nil)
		Expect(sel.Mode).To(Equal(selector.All))
	})
})

var _ = Describe("Resolve", func() {
	var (
		ctx    context.Context
		client *testutil.FakeClient
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = testutil.NewFakeClient()
		client.Responses[constants.ClusterResourcesPath] = testutil.ClusterResources(
			testutil.ClusterGuest("qemu", 101, "pve1", "web", "running", 3700),
			testutil.ClusterGuest("lxc", 200, "pve2", "db", "stopped", 0),
			testutil.ClusterGuest("qemu", 102, "pve1", "cache", "running", 90),
		)
	})

	Describe("by IDs", func() {
		It("resolves matching guests in remote order", func() {
			resources, missing, err := selector.Resolve(ctx, client,
				selector.Selector{Mode: selector.ByIDs, IDs: []string{"102", "101"}}, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(missing.Empty()).To(BeTrue())
			Expect(resources).To(HaveLen(2))
			Expect(resources[0].ID.VMID).To(Equal(101))
			Expect(resources[1].ID.VMID).To(Equal(102))
		})

		It("reports unknown IDs in original order and still returns matches", func() {
			resources, missing, err := selector.Resolve(ctx, client,
				selector.Selector{Mode: selector.ByIDs, IDs: []string{"999", "101", "888"}}, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resources).To(HaveLen(1))
			Expect(missing.IDs).To(Equal([]string{"999", "888"}))
		})

		It("collapses duplicate identifiers", func() {
			resources, missing, err := selector.Resolve(ctx, client,
				selector.Selector{Mode: selector.ByIDs, IDs: []string{"999", "999", "101", "101"}}, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resources).To(HaveLen(1))
			Expect(missing.IDs).To(Equal([]string{"999"}))
		})

		It("returns an empty set and every ID missing when nothing matches", func() {
			resources, missing, err := selector.Resolve(ctx, client,
				selector.Selector{Mode: selector.ByIDs, IDs: []string{"300", "400"}}, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resources).To(BeEmpty())
			Expect(missing.IDs).To(Equal([]string{"300", "400"}))
		})
	})

	Describe("by nodes", func() {
		It("resolves every guest on the requested nodes", func() {
			resources, missing, err := selector.Resolve(ctx, client,
				selector.Selector{Mode: selector.ByNodes, IDs: []string{"pve1"}}, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(missing.Empty()).To(BeTrue())
			Expect(resources).To(HaveLen(2))
			for _, r := range resources {
				Expect(r.Node).To(Equal("pve1"))
			}
		})

		It("reports nodes with no matching guests but keeps other matches", func() {
			resources, missing, err := selector.Resolve(ctx, client,
				selector.Selector{Mode: selector.ByNodes, IDs: []string{"pve2", "ghost"}}, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resources).To(HaveLen(1))
			Expect(missing.IDs).To(Equal([]string{"ghost"}))
		})

		It("fails without node names", func() {
			_, _, err := selector.Resolve(ctx, client,
				selector.Selector{Mode: selector.ByNodes}, false)
			var selErr *selector.Error
			Expect(err).To(HaveOccurred())
			Expect(err).To(BeAssignableToTypeOf(selErr))
		})
	})

	Describe("cluster-wide", func() {
		It("returns every guest for a broadcast-safe action", func() {
			resources, missing, err := selector.Resolve(ctx, client,
				selector.Selector{Mode: selector.All}, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(missing).To(BeNil())
			Expect(resources).To(HaveLen(3))
		})

		It("returns nothing for an unsafe action, without calling the cluster", func() {
			resources, _, err := selector.Resolve(ctx, client,
				selector.Selector{Mode: selector.All}, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(resources).To(BeEmpty())
			Expect(client.Calls()).To(BeEmpty())
		})
	})
})

var _ = Describe("MissingReport", func() {
	It("prints a 1-indexed list", func() {
		var buf bytes.Buffer
		m := &selector.MissingReport{Label: "Nodes", IDs: []string{"a", "b"}}
		m.Print(&buf)
		Expect(buf.String()).To(Equal("Nodes do not exist:\n1. a\n2. b\n"))
	})

	It("prints nothing when empty", func() {
		var buf bytes.Buffer
		(&selector.MissingReport{Label: "VMs"}).Print(&buf)
		Expect(buf.String()).To(BeEmpty())
	})
})
