package eject

import (
	"errors"
	"fmt"

	"unplug/internal/occupancy"
	"unplug/internal/volume"
)

// ErrDriveBusy rejects a submit for a drive that already has a queued or
// in-flight request.
var ErrDriveBusy = errors.New("drive already has a request in flight")

// FailureClass buckets every OS-layer failure the policy can see.
type FailureClass int

const (
	ClassUnknown FailureClass = iota
	ClassAccessDenied
	ClassNotFound
	ClassFacilityUnavailable
	ClassHardwareVeto
)

// Classify maps an arbitrary error from the device or occupancy layers onto
// the failure taxonomy.
func Classify(err error) FailureClass {
	switch {
	case errors.Is(err, volume.ErrAccessDenied):
		return ClassAccessDenied
	case errors.Is(err, volume.ErrNotFound):
		return ClassNotFound
	case errors.Is(err, occupancy.ErrFacilityUnavailable):
		return ClassFacilityUnavailable
	case errors.Is(err, volume.ErrHardwareVeto):
		return ClassHardwareVeto
	default:
		return ClassUnknown
	}
}

// The PNP veto type reported when outstanding open handles block removal,
// and the configuration-manager status for a removal vetoed at the bus.
const (
	vetoTypeOutstandingOpen = 6
	statusRemoveVetoed      = 23
)

// IsRebootVeto reports whether err is the veto class that only a reboot (or
// closing the windows holding the device) resolves.
func IsRebootVeto(err error) bool {
	var veto *volume.VetoError
	if !errors.As(err, &veto) {
		return false
	}
	return veto.Code == vetoTypeOutstandingOpen || veto.Status == statusRemoveVetoed
}

// SuccessMessage is the user-facing completion text for a detached drive.
func SuccessMessage(drive string) string {
	return fmt.Sprintf("✅ Drive %s ejected. Safe to unplug.", volume.Prefix(drive))
}

// FailureMessage translates a classified failure into actionable user-facing
// text. Raw veto codes never reach the user unrewritten.
func FailureMessage(drive string, err error) string {
	prefix := volume.Prefix(drive)
	if IsRebootVeto(err) {
		return fmt.Sprintf("❌ Drive %s is still held by the system. Close Explorer windows using it, or reboot to release it (reboot required).", prefix)
	}
	switch Classify(err) {
	case ClassAccessDenied:
		return fmt.Sprintf("❌ Access denied while ejecting drive %s. Run with administrator rights and try again.", prefix)
	case ClassNotFound:
		return fmt.Sprintf("❌ Drive %s was not found. It may already be unplugged.", prefix)
	case ClassFacilityUnavailable:
		return fmt.Sprintf("❌ Could not inspect drive %s: the system facility is unavailable.", prefix)
	case ClassHardwareVeto:
		var veto *volume.VetoError
		if errors.As(err, &veto) && veto.Name != "" {
			return fmt.Sprintf("❌ The device refused removal of drive %s: blocked by %s.", prefix, veto.Name)
		}
		return fmt.Sprintf("❌ The device refused removal of drive %s.", prefix)
	default:
		return fmt.Sprintf("❌ Could not eject drive %s: %v", prefix, err)
	}
}
