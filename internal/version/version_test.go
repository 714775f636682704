package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	if info.Version == "" {
		t.Error("expected non-empty version")
	}
	if !strings.Contains(info.Platform, runtime.GOOS) {
		t.Errorf("expected platform to contain %s, got %s", runtime.GOOS, info.Platform)
	}
}

func TestString(t *testing.T) {
	originalCommit := Commit
	defer func() { Commit = originalCommit }()

	Commit = "unknown"
	if s := String(); !strings.HasPrefix(s, "shiden version ") {
		t.Errorf("unexpected version string %q", s)
	}

	Commit = "0123456789abcdef"
	if s := String(); !strings.Contains(s, "commit: 01234567") {
		t.Errorf("expected abbreviated commit, got %q", s)
	}
}

func TestShort(t *testing.T) {
	originalVersion, originalCommit := Version, Commit
	defer func() { Version, Commit = originalVersion, originalCommit }()

	Version = "1.0.0"
	Commit = "unknown"
	if s := Short(); s != "1.0.0" {
		t.Errorf("expected 1.0.0, got %s", s)
	}

	Commit = "abcdef0123"
	if s := Short(); s != "1.0.0 (abcdef01)" {
		t.Errorf("expected commit suffix, got %s", s)
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent(); !strings.HasPrefix(ua, ApplicationName+"/") {
		t.Errorf("expected user agent to start with %s/, got %s", ApplicationName, ua)
	}
}

func TestUptime(t *testing.T) {
	if Uptime() <= 0 {
		t.Error("expected positive uptime")
	}
}
