package eject

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"unplug/internal/occupancy"
	"unplug/internal/volume"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"access denied", fmt.Errorf("open: %w", volume.ErrAccessDenied), ClassAccessDenied},
		{"not found", fmt.Errorf("open: %w", volume.ErrNotFound), ClassNotFound},
		{"facility", fmt.Errorf("rm: %w", occupancy.ErrFacilityUnavailable), ClassFacilityUnavailable},
		{"veto", &volume.VetoError{Code: 2}, ClassHardwareVeto},
		{"unknown", errors.New("boom"), ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsRebootVeto(t *testing.T) {
	if !IsRebootVeto(&volume.VetoError{Code: 6}) {
		t.Fatal("veto type 6 must be the reboot class")
	}
	if !IsRebootVeto(&volume.VetoError{Code: 1, Status: 23}) {
		t.Fatal("remove-vetoed status must be the reboot class")
	}
	if IsRebootVeto(&volume.VetoError{Code: 2, Status: 5}) {
		t.Fatal("other veto codes are not the reboot class")
	}
	if IsRebootVeto(errors.New("boom")) {
		t.Fatal("non-veto errors are never the reboot class")
	}
	if !IsRebootVeto(fmt.Errorf("eject: %w", &volume.VetoError{Code: 6})) {
		t.Fatal("wrapped veto must still classify")
	}
}

func TestFailureMessageRewritesRebootVeto(t *testing.T) {
	msg := FailureMessage("E", &volume.VetoError{Code: 6, Name: "explorer.exe"})
	if !strings.Contains(msg, "reboot") {
		t.Fatalf("reboot veto not rewritten: %q", msg)
	}
	if strings.Contains(msg, "6") {
		t.Fatalf("raw veto code leaked into message: %q", msg)
	}
	if !strings.HasPrefix(msg, "❌") {
		t.Fatalf("failure message missing marker: %q", msg)
	}
}

func TestMessagesCarryDriveAndMarkers(t *testing.T) {
	ok := SuccessMessage("I")
	if !strings.HasPrefix(ok, "✅") || !strings.Contains(ok, "I:") {
		t.Fatalf("unexpected success message %q", ok)
	}
	bad := FailureMessage("I", errors.New("boom"))
	if !strings.HasPrefix(bad, "❌") || !strings.Contains(bad, "I:") {
		t.Fatalf("unexpected failure message %q", bad)
	}
}
