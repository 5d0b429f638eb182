package version

import (
	"strings"
	"testing"
)

func override(t *testing.T, v, commit, built string) {
	t.Helper()
	origV, origC, origB := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = v, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = origV, origC, origB })
}

func TestGetUsesLdflags(t *testing.T) {
	override(t, "1.2.3", "abcdef0123456", "2026-01-02T03:04:05Z")

	info := Get()
	if info.Version != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %q", info.Version)
	}
	if info.GitCommit != "abcdef0" {
		t.Errorf("expected commit truncated to 7, got %q", info.GitCommit)
	}
	if info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Errorf("unexpected build time %q", info.BuildTime)
	}
}

func TestShort(t *testing.T) {
	override(t, "0.4.0", "1234567", "")
	got := Short()
	if !strings.HasPrefix(got, "0.4.0-1234567") {
		t.Errorf("unexpected short version %q", got)
	}
}

func TestString(t *testing.T) {
	override(t, "0.4.0", "", "2026-01-02T03:04:05Z")
	got := String()
	if !strings.HasPrefix(got, "sonago 0.4.0") {
		t.Errorf("unexpected version string %q", got)
	}
	if !strings.Contains(got, "built 2026-01-02T03:04:05Z") {
		t.Errorf("expected build time in %q", got)
	}
}

func TestUserAgent(t *testing.T) {
	override(t, "0.9.1", "", "")
	if got := UserAgent(); got != "sonago/0.9.1" {
		t.Errorf("expected sonago/0.9.1, got %q", got)
	}
}
