package eject

import "github.com/google/uuid"

// Mode selects which command sequence a request runs.
type Mode string

const (
	// ModeSoft tries a cheap eject and falls back to occupant discovery.
	ModeSoft Mode = "soft"
	// ModeForce releases, terminates and ejects without asking.
	ModeForce Mode = "force"
	// ModeDismount runs the OS dismount utility, then a full eject.
	ModeDismount Mode = "dismount"
	// ModeKillOne ends a single occupant, then ejects if the drive cleared.
	ModeKillOne Mode = "kill-one"
)

// Request is one unit of work on the coordinator's queue. Drive is already
// normalized; ID correlates the request's log lines and events.
type Request struct {
	ID    uuid.UUID
	Drive string
	Mode  Mode
	PIDs  []int32
}
