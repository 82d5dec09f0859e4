package model

import "time"

// RunState is the lifecycle state of the runs of one (level, algorithm) key.
type RunState string

// Run states. A key starts IDLE; RUNNING ends in COMPLETE or FAILED.
const (
	RunIdle     RunState = "IDLE"
	RunRunning  RunState = "RUNNING"
	RunComplete RunState = "COMPLETE"
	RunFailed   RunState = "FAILED"
)

// RunKey identifies the stored result of a run.
type RunKey struct {
	Level     Level
	Algorithm Algorithm
}

func (k RunKey) String() string { return string(k.Level) + "/" + string(k.Algorithm) }

// RunStatus describes the latest run of a key.
type RunStatus struct {
	Level      Level     `json:"level"`
	Algorithm  Algorithm `json:"algorithm"`
	State      RunState  `json:"state"`
	RunID      string    `json:"run_id,omitempty"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Reason     string    `json:"reason,omitempty"`
}

// RunRequest is the unit of work flowing through the run queue.
type RunRequest struct {
	RunID     string
	Level     Level
	Algorithm Algorithm
	Requested time.Time
	// Done receives exactly one outcome. It must be buffered.
	Done chan RunOutcome
}

// Key returns the result key of the request.
func (r RunRequest) Key() RunKey { return RunKey{Level: r.Level, Algorithm: r.Algorithm} }

// RunOutcome is delivered on RunRequest.Done when the run ends.
type RunOutcome struct {
	RunID string
	Err   error
}
