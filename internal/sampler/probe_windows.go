//go:build windows

package sampler

import "golang.org/x/sys/windows"

type systemProbe struct{}

func (systemProbe) Label(root string) string {
	rootp, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return ""
	}
	var name [windows.MAX_PATH + 1]uint16
	var serial, maxLen, flags uint32
	err = windows.GetVolumeInformation(rootp, &name[0], uint32(len(name)),
		&serial, &maxLen, &flags, nil, 0)
	if err != nil {
		return ""
	}
	return windows.UTF16ToString(name[:])
}

func (systemProbe) Removable(root string) bool {
	rootp, err := windows.UTF16PtrFromString(root)
	if err != nil {
		return false
	}
	return windows.GetDriveType(rootp) == windows.DRIVE_REMOVABLE
}
