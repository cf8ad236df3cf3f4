package service

import (
	"time"

	"house_screens/internal/models"
)

// LogFilter narrows the reconciliation event log by time range, type and house.
type LogFilter struct {
	From    time.Time // inclusive; zero means no lower bound
	To      time.Time // inclusive; zero means no upper bound
	Type    string    // "", "ACTIVATE", "REMOVE_ENVIRONMENT", "LADDER", ...
	HouseID string    // "" matches every house and house-less events
}

// Phase is the controller state.
type Phase string

const (
	PhaseIdle              Phase = "IDLE"
	PhaseFetching          Phase = "FETCHING"
	PhaseClassifying       Phase = "CLASSIFYING"
	PhaseConverged         Phase = "CONVERGED"
	PhaseRepairing         Phase = "REPAIRING"
	PhaseWaitingDimensions Phase = "WAITING_DIMENSIONS"
	PhaseEscalating        Phase = "ESCALATING"
	PhaseFailed            Phase = "FAILED"
)

// Result summarises how a run ended.
type Result string

const (
	ResultConverged  Result = "converged"
	ResultRepaired   Result = "repaired"
	ResultEscalated  Result = "escalated"
	ResultExhausted  Result = "exhausted"
	ResultSkipped    Result = "skipped"
	ResultSyncError  Result = "sync_error"
	ResultSuperseded Result = "superseded"
)

// LadderStep is the escalation applied after a failed dimension wait.
type LadderStep string

const (
	LadderNeedsRefresh  LadderStep = "needs_refresh"
	LadderSecondRefresh LadderStep = "second_refresh"
	LadderExhausted     LadderStep = "exhausted"
)

// Outcome describes one reconciliation run.
type Outcome struct {
	RunID              string         `json:"run_id"`
	Generation         uint64         `json:"generation"`
	Forced             bool           `json:"forced"`
	Result             Result         `json:"result"`
	Houses             []HouseOutcome `json:"houses,omitempty"`
	NeedsSecondRefresh bool           `json:"needs_second_refresh"`
	Error              string         `json:"error,omitempty"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         time.Time      `json:"finished_at"`
}

// HouseOutcome lists what a run did for one house.
type HouseOutcome struct {
	HouseID           string     `json:"house_id"`
	ContentCopied     bool       `json:"content_copied,omitempty"`
	EnvironmentNeeded bool       `json:"environment_needed,omitempty"`
	CreatedScreens    []string   `json:"created_screens,omitempty"` // environment ids
	Activated         []string   `json:"activated,omitempty"`       // screen ids
	Removed           []string   `json:"removed,omitempty"`         // environment ids
	Wait              WaitResult `json:"wait,omitempty"`
	Ladder            LadderStep `json:"ladder,omitempty"`
	Converged         bool       `json:"converged"`
}

// Status is the in-memory controller view.
type Status struct {
	Phase       Phase    `json:"phase"`
	Generation  uint64   `json:"generation"`
	LastOutcome *Outcome `json:"last_outcome,omitempty"`
}

// StateSnapshot is what the UI reads: persisted flags plus controller status.
type StateSnapshot struct {
	Flags      models.RefreshState `json:"flags"`
	Controller Status              `json:"controller"`
}

// PairResult is returned by Pairing.Pair.
type PairResult struct {
	HouseID       string  `json:"house_id"`
	EnvironmentID string  `json:"environment_id"`
	Outcome       Outcome `json:"outcome"`
}
