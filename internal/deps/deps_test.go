package deps

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	present := writeStub(t, t.TempDir(), "present", "exit 0")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
		{Name: "Extra", Command: "another-missing-binary", Optional: true},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected blank command detail: %q", results[2].Detail)
	}

	missing := Missing(results)
	if len(missing) != 2 || missing[0].Name != "Missing" || missing[1].Name != "Blank" {
		t.Fatalf("unexpected missing set: %#v", missing)
	}
}

func TestRequirements(t *testing.T) {
	reqs := Requirements("/opt/ffmpeg", "/opt/ffprobe")
	if len(reqs) != 2 || reqs[0].Command != "/opt/ffmpeg" || reqs[1].Command != "/opt/ffprobe" {
		t.Fatalf("unexpected requirements: %#v", reqs)
	}
}

func TestDescribeVersion(t *testing.T) {
	stub := writeStub(t, t.TempDir(), "ffmpeg", `echo "ffmpeg version 7.1 Copyright"; echo "built with gcc"`)
	status := DescribeVersion(context.Background(), Status{Name: "FFmpeg", Command: stub, Available: true})
	if status.Detail != "ffmpeg version 7.1 Copyright" {
		t.Fatalf("unexpected detail %q", status.Detail)
	}

	failing := writeStub(t, t.TempDir(), "ffmpeg", "exit 3")
	status = DescribeVersion(context.Background(), Status{Command: failing, Available: true})
	if !strings.HasPrefix(status.Detail, "version probe failed") {
		t.Fatalf("unexpected detail %q", status.Detail)
	}

	status = DescribeVersion(context.Background(), Status{Command: "x", Detail: "binary \"x\" not found"})
	if status.Detail != "binary \"x\" not found" {
		t.Fatalf("unavailable status should be unchanged, got %q", status.Detail)
	}
}
