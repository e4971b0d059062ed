package volume

import (
	"errors"
	"fmt"
)

// Handle is an opaque open volume handle returned by Devices.OpenVolume.
type Handle uintptr

// Identity identifies the physical storage unit backing a volume. Two device
// paths refer to the same unit when their identities match.
type Identity struct {
	DeviceType   uint32
	DeviceNumber uint32
}

// DiskInterface is one enumerated disk-class device interface, carrying the
// OS handle needed to request hardware removal of the device (or its parent).
type DiskInterface struct {
	Path     string
	Identity Identity

	devInst uint32
}

// Devices is the OS capability surface consumed by the eject protocol.
// All letters passed in must already be normalized by NormalizeLetter.
type Devices interface {
	// OpenVolume opens the raw volume device for flushing and locking.
	OpenVolume(letter string) (Handle, error)
	// QueryIdentity resolves the physical identity behind an open volume.
	QueryIdentity(h Handle) (Identity, error)
	// Flush forces buffered writes on the open volume to stable storage.
	Flush(h Handle) error
	// Lock takes an exclusive filesystem lock on the open volume. Fails
	// while any other handle to the volume is open.
	Lock(h Handle) error
	// Dismount invalidates all open handles and detaches the filesystem.
	Dismount(h Handle) error
	// CloseVolume releases the handle.
	CloseVolume(h Handle) error

	// DiskInterfaces enumerates the present disk-class device interfaces.
	DiskInterfaces() ([]DiskInterface, error)
	// RequestRemoval asks the device tree to eject the interface's device,
	// preferring its parent bus device. A denial is returned as *VetoError.
	RequestRemoval(di DiskInterface) error
	// EjectByLetter is the degraded removal path used when the backing
	// interface cannot be identified. It ejects media via the volume handle.
	EjectByLetter(letter string) error

	// NotifyDriveChange tells the shell the drive's mount state changed.
	NotifyDriveChange(letter string)
}

// Sentinel errors surfaced by Devices implementations.
var (
	// ErrAccessDenied reports missing privileges on a raw device operation.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound reports that the volume or device does not exist.
	ErrNotFound = errors.New("device not found")
	// ErrHardwareVeto reports that a removal request was denied. Concrete
	// denials are a *VetoError wrapping this sentinel.
	ErrHardwareVeto = errors.New("hardware removal vetoed")
)

// VetoError is a hardware removal denial. Code is the PNP veto type reported
// by the device tree, Name the vetoing component (when known), and Status the
// raw configuration-manager return value.
type VetoError struct {
	Code   int
	Name   string
	Status int
}

func (e *VetoError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("hardware removal vetoed (type %d, status %d): %s", e.Code, e.Status, e.Name)
	}
	return fmt.Sprintf("hardware removal vetoed (type %d, status %d)", e.Code, e.Status)
}

func (e *VetoError) Unwrap() error { return ErrHardwareVeto }
