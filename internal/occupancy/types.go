package occupancy

import "errors"

// Occupant is one process currently holding the volume. Detail explains how
// the process was attributed to the drive.
type Occupant struct {
	PID    int32
	Name   string
	Detail string
}

// Sessions opens occupant-tracking sessions. The real implementation is
// backed by the Windows Restart Manager.
type Sessions interface {
	Open() (Session, error)
}

// Session is one occupant-tracking session. Callers must Close it on every
// exit path.
type Session interface {
	// Register adds filesystem paths whose holders the session tracks.
	Register(paths ...string) error
	// List returns the processes currently holding registered resources.
	// An empty list is not proof of non-occupancy.
	List() ([]Occupant, error)
	// ForceRelease asks the tracked holders to shut down and release the
	// registered resources.
	ForceRelease(force bool) error
	Close() error
}

// ErrFacilityUnavailable reports that the occupant-tracking facility could
// not be used. Callers degrade to sweep-only discovery.
var ErrFacilityUnavailable = errors.New("occupant tracking unavailable")
