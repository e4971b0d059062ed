//go:build !windows

package occupancy

import (
	"errors"
	"fmt"
	"log/slog"

	"unplug/internal/volume"
)

type unsupportedSessions struct{}

// NewSystemSessions returns a stub on platforms without an occupant-tracking
// facility. Open fails with ErrFacilityUnavailable so the Scanner degrades to
// sweep-only discovery.
func NewSystemSessions(_ *slog.Logger) Sessions {
	return unsupportedSessions{}
}

func (unsupportedSessions) Open() (Session, error) {
	return nil, fmt.Errorf("%w: %w on this platform", ErrFacilityUnavailable, errors.ErrUnsupported)
}

// DrivePaths returns the resource paths to register for a drive.
func DrivePaths(letter string) []string {
	return []string{volume.Root(letter)}
}
