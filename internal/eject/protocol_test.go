package eject

import (
	"errors"
	"testing"
	"time"

	"unplug/internal/logging"
	"unplug/internal/volume"
)

type fakeDevices struct {
	calls []string

	openErr     error
	identityErr error
	identity    volume.Identity

	lockFailures int
	lockErr      error

	interfaces   []volume.DiskInterface
	enumErr      error
	removalErrs  []error
	removalCalls int

	ejectByLetterErr error
	notified         int
}

func (f *fakeDevices) OpenVolume(letter string) (volume.Handle, error) {
	f.calls = append(f.calls, "open")
	if f.openErr != nil {
		return 0, f.openErr
	}
	return volume.Handle(1), nil
}

func (f *fakeDevices) QueryIdentity(volume.Handle) (volume.Identity, error) {
	f.calls = append(f.calls, "identity")
	if f.identityErr != nil {
		return volume.Identity{}, f.identityErr
	}
	return f.identity, nil
}

func (f *fakeDevices) Flush(volume.Handle) error {
	f.calls = append(f.calls, "flush")
	return nil
}

func (f *fakeDevices) Lock(volume.Handle) error {
	f.calls = append(f.calls, "lock")
	if f.lockFailures > 0 {
		f.lockFailures--
		if f.lockErr != nil {
			return f.lockErr
		}
		return errors.New("locked by someone else")
	}
	return nil
}

func (f *fakeDevices) Dismount(volume.Handle) error {
	f.calls = append(f.calls, "dismount")
	return nil
}

func (f *fakeDevices) CloseVolume(volume.Handle) error {
	f.calls = append(f.calls, "close")
	return nil
}

func (f *fakeDevices) DiskInterfaces() ([]volume.DiskInterface, error) {
	f.calls = append(f.calls, "enumerate")
	return f.interfaces, f.enumErr
}

func (f *fakeDevices) RequestRemoval(volume.DiskInterface) error {
	f.calls = append(f.calls, "remove")
	idx := f.removalCalls
	f.removalCalls++
	if idx < len(f.removalErrs) {
		return f.removalErrs[idx]
	}
	return nil
}

func (f *fakeDevices) EjectByLetter(string) error {
	f.calls = append(f.calls, "eject-letter")
	return f.ejectByLetterErr
}

func (f *fakeDevices) NotifyDriveChange(string) {
	f.calls = append(f.calls, "notify")
	f.notified++
}

func newTestProtocol(devices *fakeDevices) *Protocol {
	p := NewProtocol(devices, logging.NewNop(), ProtocolOptions{
		LockAttempts:    3,
		RemovalAttempts: 3,
	})
	p.sleep = func(time.Duration) {}
	return p
}

func matchedInterface(identity volume.Identity) []volume.DiskInterface {
	return []volume.DiskInterface{
		{Path: `\\?\usbstor#disk`, Identity: identity},
		{Path: `\\?\scsi#disk`, Identity: volume.Identity{DeviceType: 7, DeviceNumber: 0}},
	}
}

func assertCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("calls = %v, want %v", got, want)
		}
	}
}

func TestSmartEjectHappyPathOrder(t *testing.T) {
	identity := volume.Identity{DeviceType: 7, DeviceNumber: 2}
	devices := &fakeDevices{identity: identity, interfaces: matchedInterface(identity)}

	if err := newTestProtocol(devices).SmartEject("E"); err != nil {
		t.Fatalf("SmartEject: %v", err)
	}
	assertCalls(t, devices.calls, []string{
		"open", "identity", "flush", "lock", "dismount", "close",
		"enumerate", "remove", "notify",
	})
}

func TestSmartEjectOpenFailureAborts(t *testing.T) {
	devices := &fakeDevices{openErr: volume.ErrAccessDenied}

	err := newTestProtocol(devices).SmartEject("E")
	if !errors.Is(err, volume.ErrAccessDenied) {
		t.Fatalf("error = %v", err)
	}
	assertCalls(t, devices.calls, []string{"open"})
}

func TestSmartEjectProceedsWhenLockNeverAcquired(t *testing.T) {
	identity := volume.Identity{DeviceNumber: 2}
	devices := &fakeDevices{
		identity:     identity,
		interfaces:   matchedInterface(identity),
		lockFailures: 99,
	}

	if err := newTestProtocol(devices).SmartEject("E"); err != nil {
		t.Fatalf("SmartEject: %v", err)
	}
	assertCalls(t, devices.calls, []string{
		"open", "identity", "flush", "lock", "lock", "lock",
		"dismount", "close", "enumerate", "remove", "notify",
	})
}

func TestSmartEjectRetriesRemoval(t *testing.T) {
	identity := volume.Identity{DeviceNumber: 2}
	devices := &fakeDevices{
		identity:    identity,
		interfaces:  matchedInterface(identity),
		removalErrs: []error{&volume.VetoError{Code: 2}, &volume.VetoError{Code: 2}},
	}

	if err := newTestProtocol(devices).SmartEject("E"); err != nil {
		t.Fatalf("SmartEject: %v", err)
	}
	if devices.removalCalls != 3 {
		t.Fatalf("removal attempted %d times, want 3", devices.removalCalls)
	}
	if devices.notified != 1 {
		t.Fatal("shell not notified after success")
	}
}

func TestSmartEjectPersistentVetoSurfaces(t *testing.T) {
	identity := volume.Identity{DeviceNumber: 2}
	veto := &volume.VetoError{Code: 6, Name: "explorer.exe"}
	devices := &fakeDevices{
		identity:    identity,
		interfaces:  matchedInterface(identity),
		removalErrs: []error{veto, veto, veto},
	}

	err := newTestProtocol(devices).SmartEject("E")
	if !errors.Is(err, volume.ErrHardwareVeto) {
		t.Fatalf("error = %v", err)
	}
	if devices.notified != 0 {
		t.Fatal("shell must not be notified on failure")
	}
}

func TestSmartEjectDegradesWithoutIdentity(t *testing.T) {
	devices := &fakeDevices{identityErr: errors.New("ioctl failed")}

	if err := newTestProtocol(devices).SmartEject("E"); err != nil {
		t.Fatalf("SmartEject: %v", err)
	}
	assertCalls(t, devices.calls, []string{
		"open", "identity", "flush", "lock", "dismount", "close",
		"eject-letter", "notify",
	})
}

func TestSmartEjectDegradesWhenNoInterfaceMatches(t *testing.T) {
	devices := &fakeDevices{
		identity:   volume.Identity{DeviceNumber: 9},
		interfaces: matchedInterface(volume.Identity{DeviceNumber: 1}),
	}

	if err := newTestProtocol(devices).SmartEject("E"); err != nil {
		t.Fatalf("SmartEject: %v", err)
	}
	last := devices.calls[len(devices.calls)-2]
	if last != "eject-letter" {
		t.Fatalf("expected media-eject fallback, calls = %v", devices.calls)
	}
}

func TestCheapEjectSkipsFilesystemSteps(t *testing.T) {
	identity := volume.Identity{DeviceNumber: 2}
	devices := &fakeDevices{identity: identity, interfaces: matchedInterface(identity)}

	if err := newTestProtocol(devices).CheapEject("E"); err != nil {
		t.Fatalf("CheapEject: %v", err)
	}
	assertCalls(t, devices.calls, []string{
		"open", "identity", "close", "enumerate", "remove", "notify",
	})
}
