// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

// Package format renders resource status lines and elapsed-time values.
package format

import (
	"fmt"
	"strings"
	"time"

	"pvefleet/internal/resource"
)

// Seconds humanizes a second count: coarsest units first, leading zero
// units dropped. Zero or negative input renders as the empty string so
// callers can omit absent durations entirely.
func Seconds(n int64) string {
	if n <= 0 {
		return ""
	}
	minutes, seconds := n/60, n%60
	hours, minutes := minutes/60, minutes%60
	if hours > 24 {
		days, hours := hours/24, hours%24
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// Since humanizes the elapsed time between an epoch timestamp and now.
// A zero timestamp renders as the empty string.
func Since(epoch int64, now time.Time) string {
	if epoch <= 0 {
		return ""
	}
	return Seconds(now.Unix() - epoch)
}

// Status renders the one-line status of a guest:
// "qemu/101: web running 2d 3h 14m". Uptime is shown only while running.
func Status(r resource.Resource) string {
	uptime := ""
	if r.Status == resource.StatusRunning {
		uptime = Seconds(r.Uptime)
	}
	return strings.TrimSpace(fmt.Sprintf("%s: %s %s %s", r.ID, r.Name, r.Status, uptime))
}
