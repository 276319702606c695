// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

// Package dispatch fans a per-item action out over a resolved batch.
// One item's failure never prevents the others from being attempted, and
// the batch call is always a full barrier: it returns only after every
// launched action has resolved.
package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"pvefleet/internal/resource"
)

// Func applies one action to one item. Remote failures are reported as
// printed diagnostics at the action boundary; the returned error exists
// only so callers can tally outcomes.
type Func[T any] func(ctx context.Context, item T) error

// Outcome records one item's result.
type Outcome[T any] struct {
	Item T
	Err  error
}

// Options controls a batch run over items of type T.
type Options[T any] struct {
	// Sync processes items strictly one at a time in resolver order;
	// the default launches every action concurrently.
	Sync bool
	// FilterIDs, when non-empty, restricts dispatch to items whose Key
	// matches one of the raw identifiers. The resolved set may be shared
	// with secondary joins that iterate differently, so the dispatcher
	// re-filters rather than trusting it.
	FilterIDs []string
	// Key derives the identifier an item is matched by (stringified
	// VMID for guests, guest ID for replication jobs).
	Key func(T) string
}

// Run applies fn to every item in the batch and returns the outcomes in
// resolver order. Context cancellation stops launching new actions in
// sync mode; in-flight actions always run to completion.
func Run[T any](ctx context.Context, items []T, fn Func[T], opts Options[T]) []Outcome[T] {
	targets := filter(items, opts.FilterIDs, opts.Key)
	outcomes := make([]Outcome[T], len(targets))

	if opts.Sync {
		for i, item := range targets {
			if ctx.Err() != nil {
				outcomes[i] = Outcome[T]{Item: item, Err: ctx.Err()}
				continue
			}
			outcomes[i] = Outcome[T]{Item: item, Err: fn(ctx, item)}
		}
		return outcomes
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	for i, item := range targets {
		i, item := i, item
		g.Go(func() error {
			err := fn(ctx, item)
			mu.Lock()
			outcomes[i] = Outcome[T]{Item: item, Err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// filter keeps items whose key matches one of the raw identifiers.
// An empty identifier list (or a nil key) keeps everything.
func filter[T any](items []T, ids []string, key func(T) string) []T {
	if len(ids) == 0 || key == nil {
		return items
	}
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []T
	for _, item := range items {
		if _, ok := wanted[key(item)]; ok {
			out = append(out, item)
		}
	}
	return out
}

// Failed counts the outcomes that carry an error.
func Failed[T any](outcomes []Outcome[T]) int {
	n := 0
	for _, o := range outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Confirm prompts the operator before a destructive batch, listing every
// targeted guest. It returns true only on an explicit "y" or "yes".
func Confirm(w io.Writer, in io.Reader, resources []resource.Resource) bool {
	fmt.Fprintln(w, "Are you sure you want to destroy the following resources?")
	for i, r := range resources {
		fmt.Fprintf(w, "%d. %s: %s\n", i+1, r.ID, r.Name)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, "Enter 'y' to confirm: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
