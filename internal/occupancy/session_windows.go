//go:build windows

package occupancy

import (
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/windows"

	"unplug/internal/logging"
	"unplug/internal/volume"
)

const (
	sessionKeyLen = 33 // CCH_RM_SESSION_KEY + 1

	rmForceShutdown = 0x1

	errorMoreData = 234
)

var (
	modrstrtmgr = windows.NewLazySystemDLL("rstrtmgr.dll")

	procRmStartSession      = modrstrtmgr.NewProc("RmStartSession")
	procRmRegisterResources = modrstrtmgr.NewProc("RmRegisterResources")
	procRmGetList           = modrstrtmgr.NewProc("RmGetList")
	procRmShutdown          = modrstrtmgr.NewProc("RmShutdown")
	procRmEndSession        = modrstrtmgr.NewProc("RmEndSession")
)

type rmUniqueProcess struct {
	ProcessID        uint32
	ProcessStartTime windows.Filetime
}

type rmProcessInfo struct {
	Process          rmUniqueProcess
	AppName          [256]uint16 // CCH_RM_MAX_APP_NAME + 1
	ServiceShortName [64]uint16  // CCH_RM_MAX_SVC_NAME + 1
	ApplicationType  uint32
	AppStatus        uint32
	TSSessionID      uint32
	Restartable      int32
}

type restartManagerSessions struct {
	logger *slog.Logger
}

// NewSystemSessions returns the Restart Manager backed Sessions
// implementation.
func NewSystemSessions(logger *slog.Logger) Sessions {
	return &restartManagerSessions{logger: logging.NewComponentLogger(logger, "occupancy-session")}
}

func (s *restartManagerSessions) Open() (Session, error) {
	var handle uint32
	var key [sessionKeyLen]uint16
	ret, _, _ := procRmStartSession.Call(
		uintptr(unsafe.Pointer(&handle)), 0,
		uintptr(unsafe.Pointer(&key[0])))
	if ret != 0 {
		return nil, fmt.Errorf("%w: RmStartSession returned %d", ErrFacilityUnavailable, ret)
	}
	return &restartManagerSession{handle: handle, logger: s.logger}, nil
}

type restartManagerSession struct {
	handle uint32
	logger *slog.Logger
}

func (s *restartManagerSession) Register(paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	encoded := make([]*uint16, 0, len(paths))
	for _, path := range paths {
		p, err := windows.UTF16PtrFromString(path)
		if err != nil {
			return fmt.Errorf("encode resource path %q: %w", path, err)
		}
		encoded = append(encoded, p)
	}
	ret, _, _ := procRmRegisterResources.Call(uintptr(s.handle),
		uintptr(len(encoded)), uintptr(unsafe.Pointer(&encoded[0])),
		0, 0, 0, 0)
	if ret != 0 {
		return fmt.Errorf("%w: RmRegisterResources returned %d", ErrFacilityUnavailable, ret)
	}
	return nil
}

func (s *restartManagerSession) List() ([]Occupant, error) {
	// RmGetList sizes and fills in one call when the buffer is large
	// enough; ERROR_MORE_DATA means the process set grew between the size
	// query and the fill, so go around again.
	var needed, count, reasons uint32
	ret, _, _ := procRmGetList.Call(uintptr(s.handle),
		uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&count)),
		0, uintptr(unsafe.Pointer(&reasons)))
	if ret != 0 && ret != errorMoreData {
		return nil, fmt.Errorf("%w: RmGetList returned %d", ErrFacilityUnavailable, ret)
	}
	for needed > 0 {
		infos := make([]rmProcessInfo, needed)
		count = needed
		ret, _, _ = procRmGetList.Call(uintptr(s.handle),
			uintptr(unsafe.Pointer(&needed)), uintptr(unsafe.Pointer(&count)),
			uintptr(unsafe.Pointer(&infos[0])), uintptr(unsafe.Pointer(&reasons)))
		if ret == errorMoreData {
			continue
		}
		if ret != 0 {
			return nil, fmt.Errorf("%w: RmGetList returned %d", ErrFacilityUnavailable, ret)
		}
		out := make([]Occupant, 0, count)
		for _, info := range infos[:count] {
			out = append(out, Occupant{
				PID:    int32(info.Process.ProcessID),
				Name:   windows.UTF16ToString(info.AppName[:]),
				Detail: "holding files open",
			})
		}
		return out, nil
	}
	return nil, nil
}

func (s *restartManagerSession) ForceRelease(force bool) error {
	var flags uintptr
	if force {
		flags = rmForceShutdown
	}
	ret, _, _ := procRmShutdown.Call(uintptr(s.handle), flags, 0)
	if ret != 0 {
		return fmt.Errorf("%w: RmShutdown returned %d", ErrFacilityUnavailable, ret)
	}
	return nil
}

func (s *restartManagerSession) Close() error {
	ret, _, _ := procRmEndSession.Call(uintptr(s.handle))
	if ret != 0 {
		return fmt.Errorf("RmEndSession returned %d", ret)
	}
	return nil
}

// DrivePaths returns the resource paths to register for a drive: the drive
// root plus the canonical volume GUID root when the mount point resolves.
// Holders that opened files through the GUID path are invisible to a session
// that only registered the letter root.
func DrivePaths(letter string) []string {
	root := volume.Root(letter)
	paths := []string{root}
	rootp, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return paths
	}
	var buf [50]uint16
	if err := windows.GetVolumeNameForVolumeMountPoint(rootp, &buf[0], uint32(len(buf))); err != nil {
		return paths
	}
	if guid := windows.UTF16ToString(buf[:]); guid != "" && guid != root {
		paths = append(paths, guid)
	}
	return paths
}
