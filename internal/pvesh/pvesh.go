// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

// Package pvesh wraps the Proxmox pvesh command-line API client behind a
// small injectable interface so the orchestration core can be exercised
// against scripted responses.
package pvesh

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"pvefleet/internal/constants"
)

// Verbs accepted by pvesh.
const (
	VerbGet    = "get"
	VerbCreate = "create"
	VerbSet    = "set"
	VerbDelete = "delete"
	VerbList   = "ls"
)

// Client executes one API call against the cluster. Implementations must
// return either parsed JSON or a *CallError; delete calls never carry a
// body and yield nil JSON on success.
type Client interface {
	Invoke(ctx context.Context, verb, path string, options []string) (json.RawMessage, error)
}

// CallError is a failed remote call: non-zero exit from pvesh, or a body
// that could not be parsed.
type CallError struct {
	Path     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CallError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("pvesh call on %s failed: %s", e.Path, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("pvesh call on %s failed: %v", e.Path, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// ExecClient invokes the pvesh binary as a subprocess. The zero value is
// usable; Binary defaults to "pvesh".
type ExecClient struct {
	Binary string
}

// Invoke runs `pvesh <verb> <path> <options...> --output-format json` and
// parses the response. Some state-changing calls return an empty body on
// success; those decode as an empty collection rather than failing.
func (c *ExecClient) Invoke(ctx context.Context, verb, path string, options []string) (json.RawMessage, error) {
	binary := c.Binary
	if binary == "" {
		binary = constants.DefaultPveshBinary
	}

	args := append([]string{verb}, strings.Fields(path)...)
	args = append(args, options...)
	args = append(args, "--output-format", "json")

	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return nil, &CallError{Path: path, ExitCode: exitCode, Stderr: stderr.String(), Err: err}
	}

	if verb == VerbDelete {
		return nil, nil
	}

	body := bytes.TrimSpace(stdout.Bytes())
	if len(body) == 0 {
		return json.RawMessage("[]"), nil
	}
	if !json.Valid(body) {
		return nil, &CallError{Path: path, Err: fmt.Errorf("malformed JSON response")}
	}
	return json.RawMessage(body), nil
}
