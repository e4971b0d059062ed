package eject

import (
	"time"

	"unplug/internal/occupancy"
)

// StateKind names the coordinator's externally observable states.
type StateKind string

const (
	StateIdle     StateKind = "idle"
	StateScanning StateKind = "scanning"
	StateOccupied StateKind = "occupied"
	StateEjecting StateKind = "ejecting"
	StateDone     StateKind = "done"
)

// State is one point in the eject lifecycle. The coordinator owns it;
// observers receive immutable copies.
type State struct {
	Kind      StateKind            `json:"kind"`
	Drive     string               `json:"drive,omitempty"`
	Message   string               `json:"message,omitempty"`
	Occupants []occupancy.Occupant `json:"occupants,omitempty"`
	OK        bool                 `json:"ok,omitempty"`
	At        time.Time            `json:"at"`
}

func idleState() State {
	return State{Kind: StateIdle, At: time.Now()}
}

func scanningState(drive, message string) State {
	return State{Kind: StateScanning, Drive: drive, Message: message, At: time.Now()}
}

func occupiedState(drive string, occupants []occupancy.Occupant) State {
	return State{Kind: StateOccupied, Drive: drive, Occupants: occupants, At: time.Now()}
}

func ejectingState(drive string) State {
	return State{Kind: StateEjecting, Drive: drive, At: time.Now()}
}

func doneState(drive, message string, ok bool) State {
	return State{Kind: StateDone, Drive: drive, Message: message, OK: ok, At: time.Now()}
}
