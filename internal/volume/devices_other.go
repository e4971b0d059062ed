//go:build !windows

package volume

import (
	"errors"
	"fmt"
	"log/slog"
)

type unsupportedDevices struct{}

// NewSystemDevices returns a stub on platforms without removable-volume
// support. Every operation fails with errors.ErrUnsupported so the daemon
// still starts and the policy layer stays testable.
func NewSystemDevices(_ *slog.Logger) Devices {
	return unsupportedDevices{}
}

func unsupported(op string) error {
	return fmt.Errorf("%s: %w on this platform", op, errors.ErrUnsupported)
}

func (unsupportedDevices) OpenVolume(letter string) (Handle, error) {
	return 0, unsupported("open volume " + letter)
}

func (unsupportedDevices) QueryIdentity(Handle) (Identity, error) {
	return Identity{}, unsupported("query identity")
}

func (unsupportedDevices) Flush(Handle) error { return unsupported("flush volume") }

func (unsupportedDevices) Lock(Handle) error { return unsupported("lock volume") }

func (unsupportedDevices) Dismount(Handle) error { return unsupported("dismount volume") }

func (unsupportedDevices) CloseVolume(Handle) error { return unsupported("close volume") }

func (unsupportedDevices) DiskInterfaces() ([]DiskInterface, error) {
	return nil, unsupported("enumerate disk interfaces")
}

func (unsupportedDevices) RequestRemoval(DiskInterface) error {
	return unsupported("request device removal")
}

func (unsupportedDevices) EjectByLetter(letter string) error {
	return unsupported("eject media " + letter)
}

func (unsupportedDevices) NotifyDriveChange(string) {}
