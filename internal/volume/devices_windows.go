//go:build windows

package volume

import (
	"fmt"
	"log/slog"
	"unsafe"

	"golang.org/x/sys/windows"

	"unplug/internal/logging"
)

const (
	fsctlLockVolume             = 0x00090018
	fsctlDismountVolume         = 0x00090020
	ioctlStorageGetDeviceNumber = 0x002d1080
	ioctlStorageMediaRemoval    = 0x002d4804
	ioctlStorageEjectMedia      = 0x002d4808

	digcfPresent         = 0x00000002
	digcfDeviceInterface = 0x00000010

	crSuccess = 0

	shcneUpdateItem = 0x00002000
	shcnfPathW      = 0x0005
)

// GUID_DEVINTERFACE_DISK
var guidDevinterfaceDisk = windows.GUID{
	Data1: 0x53f56307,
	Data2: 0xb6bf,
	Data3: 0x11d0,
	Data4: [8]byte{0x94, 0xf2, 0x00, 0xa0, 0xc9, 0x1e, 0xfb, 0x8b},
}

var (
	modsetupapi = windows.NewLazySystemDLL("setupapi.dll")
	modcfgmgr32 = windows.NewLazySystemDLL("cfgmgr32.dll")
	modshell32  = windows.NewLazySystemDLL("shell32.dll")

	procSetupDiGetClassDevsW             = modsetupapi.NewProc("SetupDiGetClassDevsW")
	procSetupDiEnumDeviceInterfaces      = modsetupapi.NewProc("SetupDiEnumDeviceInterfaces")
	procSetupDiGetDeviceInterfaceDetailW = modsetupapi.NewProc("SetupDiGetDeviceInterfaceDetailW")
	procSetupDiDestroyDeviceInfoList     = modsetupapi.NewProc("SetupDiDestroyDeviceInfoList")
	procCMGetParent                      = modcfgmgr32.NewProc("CM_Get_Parent")
	procCMRequestDeviceEjectW            = modcfgmgr32.NewProc("CM_Request_Device_EjectW")
	procSHChangeNotify                   = modshell32.NewProc("SHChangeNotify")
)

type storageDeviceNumber struct {
	DeviceType      uint32
	DeviceNumber    uint32
	PartitionNumber int32
}

type spDeviceInterfaceData struct {
	cbSize             uint32
	interfaceClassGUID windows.GUID
	flags              uint32
	reserved           uintptr
}

type spDevinfoData struct {
	cbSize    uint32
	classGUID windows.GUID
	devInst   uint32
	reserved  uintptr
}

type spDeviceInterfaceDetailData struct {
	cbSize     uint32
	devicePath [1]uint16
}

type systemDevices struct {
	logger *slog.Logger
}

// NewSystemDevices returns the Devices implementation backed by the Windows
// storage and configuration-manager APIs.
func NewSystemDevices(logger *slog.Logger) Devices {
	return &systemDevices{logger: logging.NewComponentLogger(logger, "volume-devices")}
}

func (d *systemDevices) OpenVolume(letter string) (Handle, error) {
	return d.open(letter, windows.GENERIC_READ|windows.GENERIC_WRITE)
}

func (d *systemDevices) open(letter string, access uint32) (Handle, error) {
	pathp, err := windows.UTF16PtrFromString(DevicePath(letter))
	if err != nil {
		return 0, fmt.Errorf("encode device path for %s: %w", letter, err)
	}
	h, err := windows.CreateFile(pathp, access,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, nil,
		windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("open volume %s: %w", letter, classifyWinError(err))
	}
	return Handle(h), nil
}

func (d *systemDevices) QueryIdentity(h Handle) (Identity, error) {
	var sdn storageDeviceNumber
	var returned uint32
	err := windows.DeviceIoControl(windows.Handle(h), ioctlStorageGetDeviceNumber,
		nil, 0, (*byte)(unsafe.Pointer(&sdn)), uint32(unsafe.Sizeof(sdn)), &returned, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("query device number: %w", classifyWinError(err))
	}
	return Identity{DeviceType: sdn.DeviceType, DeviceNumber: sdn.DeviceNumber}, nil
}

func (d *systemDevices) Flush(h Handle) error {
	if err := windows.FlushFileBuffers(windows.Handle(h)); err != nil {
		return fmt.Errorf("flush volume: %w", classifyWinError(err))
	}
	return nil
}

func (d *systemDevices) Lock(h Handle) error {
	if err := d.control(h, fsctlLockVolume); err != nil {
		return fmt.Errorf("lock volume: %w", err)
	}
	return nil
}

func (d *systemDevices) Dismount(h Handle) error {
	if err := d.control(h, fsctlDismountVolume); err != nil {
		return fmt.Errorf("dismount volume: %w", err)
	}
	return nil
}

func (d *systemDevices) control(h Handle, code uint32) error {
	var returned uint32
	if err := windows.DeviceIoControl(windows.Handle(h), code, nil, 0, nil, 0, &returned, nil); err != nil {
		return classifyWinError(err)
	}
	return nil
}

func (d *systemDevices) CloseVolume(h Handle) error {
	if err := windows.CloseHandle(windows.Handle(h)); err != nil {
		return fmt.Errorf("close volume handle: %w", err)
	}
	return nil
}

func (d *systemDevices) DiskInterfaces() ([]DiskInterface, error) {
	set, _, callErr := procSetupDiGetClassDevsW.Call(
		uintptr(unsafe.Pointer(&guidDevinterfaceDisk)), 0, 0,
		digcfPresent|digcfDeviceInterface)
	if set == uintptr(windows.InvalidHandle) {
		return nil, fmt.Errorf("enumerate disk interfaces: %w", callErr)
	}
	defer procSetupDiDestroyDeviceInfoList.Call(set)

	var out []DiskInterface
	for index := uint32(0); ; index++ {
		var ifaceData spDeviceInterfaceData
		ifaceData.cbSize = uint32(unsafe.Sizeof(ifaceData))
		ok, _, _ := procSetupDiEnumDeviceInterfaces.Call(set, 0,
			uintptr(unsafe.Pointer(&guidDevinterfaceDisk)),
			uintptr(index), uintptr(unsafe.Pointer(&ifaceData)))
		if ok == 0 {
			break
		}

		di, err := d.interfaceDetail(set, &ifaceData)
		if err != nil {
			d.logger.Debug("skipping disk interface",
				logging.Int("index", int(index)), logging.Error(err))
			continue
		}
		out = append(out, di)
	}
	return out, nil
}

func (d *systemDevices) interfaceDetail(set uintptr, ifaceData *spDeviceInterfaceData) (DiskInterface, error) {
	var required uint32
	procSetupDiGetDeviceInterfaceDetailW.Call(set,
		uintptr(unsafe.Pointer(ifaceData)), 0, 0,
		uintptr(unsafe.Pointer(&required)), 0)
	if required == 0 {
		return DiskInterface{}, fmt.Errorf("interface detail size query failed")
	}

	buf := make([]byte, required)
	detail := (*spDeviceInterfaceDetailData)(unsafe.Pointer(&buf[0]))
	detail.cbSize = detailDataSize()
	var devinfo spDevinfoData
	devinfo.cbSize = uint32(unsafe.Sizeof(devinfo))
	ok, _, callErr := procSetupDiGetDeviceInterfaceDetailW.Call(set,
		uintptr(unsafe.Pointer(ifaceData)),
		uintptr(unsafe.Pointer(detail)), uintptr(required),
		0, uintptr(unsafe.Pointer(&devinfo)))
	if ok == 0 {
		return DiskInterface{}, fmt.Errorf("interface detail: %w", callErr)
	}

	path := windows.UTF16PtrToString(&detail.devicePath[0])
	identity, err := d.interfaceIdentity(path)
	if err != nil {
		return DiskInterface{}, fmt.Errorf("identify %s: %w", path, err)
	}
	return DiskInterface{Path: path, Identity: identity, devInst: devinfo.devInst}, nil
}

func (d *systemDevices) interfaceIdentity(path string) (Identity, error) {
	pathp, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return Identity{}, err
	}
	// Zero access is enough for metadata queries and avoids privilege
	// failures on system disks.
	h, err := windows.CreateFile(pathp, 0,
		windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE, nil,
		windows.OPEN_EXISTING, 0, 0)
	if err != nil {
		return Identity{}, classifyWinError(err)
	}
	defer windows.CloseHandle(h)
	return d.QueryIdentity(Handle(h))
}

func (d *systemDevices) RequestRemoval(di DiskInterface) error {
	// Ejecting the parent detaches the whole bus device, which is what
	// physical unplug preparation needs. Fall back to the disk itself.
	var parent uint32
	ret, _, _ := procCMGetParent.Call(uintptr(unsafe.Pointer(&parent)), uintptr(di.devInst), 0)
	if ret == crSuccess {
		err := requestDeviceEject(parent)
		if err == nil {
			return nil
		}
		d.logger.Debug("parent eject denied, retrying on disk node",
			logging.String("path", di.Path), logging.Error(err))
	}
	return requestDeviceEject(di.devInst)
}

func requestDeviceEject(devInst uint32) error {
	var vetoType int32
	var vetoName [260]uint16
	ret, _, _ := procCMRequestDeviceEjectW.Call(uintptr(devInst),
		uintptr(unsafe.Pointer(&vetoType)),
		uintptr(unsafe.Pointer(&vetoName[0])),
		uintptr(len(vetoName)), 0)
	if ret == crSuccess {
		return nil
	}
	return &VetoError{
		Code:   int(vetoType),
		Name:   windows.UTF16ToString(vetoName[:]),
		Status: int(ret),
	}
}

func (d *systemDevices) EjectByLetter(letter string) error {
	h, err := d.open(letter, windows.GENERIC_READ)
	if err != nil {
		return err
	}
	defer windows.CloseHandle(windows.Handle(h))

	var returned uint32
	allow := byte(0)
	if err := windows.DeviceIoControl(windows.Handle(h), ioctlStorageMediaRemoval,
		&allow, 1, nil, 0, &returned, nil); err != nil {
		d.logger.Debug("media removal unlock failed",
			logging.String(logging.FieldDrive, letter), logging.Error(err))
	}
	if err := d.control(h, ioctlStorageEjectMedia); err != nil {
		return fmt.Errorf("eject media %s: %w", letter, err)
	}
	return nil
}

func (d *systemDevices) NotifyDriveChange(letter string) {
	rootp, err := windows.UTF16PtrFromString(Root(letter))
	if err != nil {
		return
	}
	procSHChangeNotify.Call(shcneUpdateItem, shcnfPathW,
		uintptr(unsafe.Pointer(rootp)), 0)
}

// detailDataSize is the cbSize the detail struct must carry: 8 on 64-bit
// builds (4-byte size plus WCHAR alignment padding), 6 on 32-bit.
func detailDataSize() uint32 {
	if unsafe.Sizeof(uintptr(0)) == 8 {
		return 8
	}
	return 6
}

func classifyWinError(err error) error {
	switch err {
	case windows.ERROR_ACCESS_DENIED:
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND, windows.ERROR_NOT_READY:
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	default:
		return err
	}
}
