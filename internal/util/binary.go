// Package util provides shared utility functions.
package util

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FindBinary searches for an executable binary by name.
// Search order:
//  1. configured (an explicit path from config, if non-empty)
//  2. Environment variable (if envVar is non-empty and set)
//  3. ./bin/name and ./name (useful for development and containers)
//  4. name on PATH (via exec.LookPath)
//
// An explicit configured path that is not executable is an error rather than
// falling through, so a typo in the config file is not silently ignored.
func FindBinary(name, envVar, configured string) (string, error) {
	if configured != "" {
		if isExecutable(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("binary %s not executable at %s", name, configured)
	}

	if envVar != "" {
		if envPath := os.Getenv(envVar); envPath != "" && isExecutable(envPath) {
			return envPath, nil
		}
	}

	for _, local := range []string{filepath.Join(".", "bin", name), "./" + name} {
		if isExecutable(local) {
			return local, nil
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("binary %s not found", name)
}

// isExecutable checks if a regular file exists and has any executable bit set.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}
