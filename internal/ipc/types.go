package ipc

import (
	"time"

	"unplug/internal/eject"
	"unplug/internal/sampler"
)

// ScanRequest asks for a soft eject of a drive.
type ScanRequest struct {
	Drive string `json:"drive"`
}

// ForceEjectRequest asks for a disruptive eject, terminating the listed pids
// plus every discovered occupant.
type ForceEjectRequest struct {
	Drive string  `json:"drive"`
	PIDs  []int32 `json:"pids"`
}

// DismountRequest asks for a dismount-utility run followed by a full eject.
type DismountRequest struct {
	Drive string `json:"drive"`
}

// KillRequest asks for the termination of a single occupant of a drive.
type KillRequest struct {
	Drive string `json:"drive"`
	PID   int32  `json:"pid"`
}

// SubmitResponse acknowledges a queued request.
type SubmitResponse struct {
	RequestID string `json:"request_id"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse combines daemon identity with the current eject state.
type StatusResponse struct {
	PID        int         `json:"pid"`
	StartedAt  time.Time   `json:"started_at"`
	SocketPath string      `json:"socket_path"`
	LockPath   string      `json:"lock_path"`
	State      eject.State `json:"state"`
}

// DrivesRequest fetches the volume snapshot.
type DrivesRequest struct {
	// RemovableOnly restricts the response to ejectable drives.
	RemovableOnly bool `json:"removable_only"`
}

// DrivesResponse carries the sampled volumes.
type DrivesResponse struct {
	Volumes []sampler.Volume `json:"volumes"`
	TakenAt time.Time        `json:"taken_at"`
}

// StopRequest asks the daemon to shut down.
type StopRequest struct{}

// StopResponse acknowledges a shutdown request.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}
