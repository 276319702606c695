// Copyright 2026 Red Hat
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
)

var (
	builtBinaryPath string
	buildOnce       sync.Once
	buildErr        error
)

// BinaryPath returns the path to the pvefleet binary. It checks the
// PVEFLEET_BINARY environment variable first, then falls back to building
// the binary on first call. The build is performed only once per test run.
func BinaryPath() (string, error) {
	if p := os.Getenv("PVEFLEET_BINARY"); p != "" {
		return p, nil
	}
	buildOnce.Do(func() {
		builtBinaryPath, buildErr = buildBinary()
	})
	return builtBinaryPath, buildErr
}

// buildBinary compiles the pvefleet binary into a temp directory and
// returns its path.
func buildBinary() (string, error) {
	tmpDir, err := os.MkdirTemp("", "pvefleet-e2e-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}

	binaryName := "pvefleet"
	if runtime.GOOS == "windows" {
		binaryName = "pvefleet.exe"
	}
	outputPath := filepath.Join(tmpDir, binaryName)

	// Find the module root by walking up from this file's directory
	_, thisFile, _, _ := runtime.Caller(0)
	moduleRoot := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))

	// CGO stays enabled: the audit trail uses the sqlite3 driver.
	cmd := exec.Command("go", "build", "-o", outputPath, "./cmd/pvefleet")
	cmd.Dir = moduleRoot

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("building pvefleet binary: %w\nstderr: %s", err, stderr.String())
	}

	return outputPath, nil
}

// RunPvefleet executes the pvefleet binary with the given arguments and
// returns stdout, stderr, and the exit code. The binary is built on first
// call if not provided via PVEFLEET_BINARY.
func RunPvefleet(args ...string) (stdout string, stderr string, exitCode int, err error) {
	binaryPath, err := BinaryPath()
	if err != nil {
		return "", "", -1, fmt.Errorf("getting binary path: %w", err)
	}

	cmd := exec.Command(binaryPath, args...)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	runErr := cmd.Run()

	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
			return stdout, stderr, exitCode, nil
		}
		return stdout, stderr, -1, runErr
	}

	return stdout, stderr, 0, nil
}

// StubPvesh writes an executable shell script that serves canned JSON per
// API path, for driving the real binary in E2E tests. The script reads
// its verb and path arguments and prints the body registered for the
// path, or exits 2 for unknown paths.
func StubPvesh(dir string, bodies map[string]string) (string, error) {
	script := "#!/bin/sh\nverb=\"$1\"\npath=\"$2\"\ncase \"$path\" in\n"
	for path, body := range bodies {
		script += fmt.Sprintf("%s) printf '%%s' '%s' ;;\n", path, body)
	}
	script += "*) if [ \"$verb\" = delete ] || [ \"$verb\" = create ] || [ \"$verb\" = set ]; then printf ''; else echo \"no such resource: $path\" >&2; exit 2; fi ;;\nesac\n"

	scriptPath := filepath.Join(dir, "pvesh")
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("writing pvesh stub: %w", err)
	}
	return scriptPath, nil
}
