package main

import (
	"strings"
	"testing"

	"unplug/internal/sampler"
)

func TestParsePIDs(t *testing.T) {
	pids, err := parsePIDs([]string{"100", "4321"})
	if err != nil {
		t.Fatalf("parsePIDs: %v", err)
	}
	if len(pids) != 2 || pids[0] != 100 || pids[1] != 4321 {
		t.Fatalf("pids = %v", pids)
	}

	if _, err := parsePIDs([]string{"abc"}); err == nil {
		t.Fatal("expected error for non-numeric pid")
	}
	if pids, err := parsePIDs(nil); err != nil || len(pids) != 0 {
		t.Fatalf("empty args: pids=%v err=%v", pids, err)
	}
}

func TestDisplayLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "(no label)"},
		{"USB DRIVE", "Usb Drive"},
		{"Backup", "Backup"},
	}
	for _, tc := range cases {
		if got := displayLabel(tc.in); got != tc.want {
			t.Fatalf("displayLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRenderDrives(t *testing.T) {
	out := renderDrives([]sampler.Volume{
		{MountPoint: "E:", Label: "STICK", FreeBytes: 1 << 30, TotalBytes: 16 << 30, Removable: true},
	})
	for _, want := range []string{"E:", "Stick", "GiB", "removable"} {
		if !strings.Contains(out, want) {
			t.Fatalf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"eject", "force", "dismount", "kill", "drives", "status", "daemon", "config"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Fatalf("command %q not wired: %v", name, err)
		}
	}
}
