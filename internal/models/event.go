package models

import "time"

// Event types recorded in the reconciliation log.
const (
	EventCopyContent  = "COPY_CONTENT"
	EventCreateScreen = "CREATE_SCREEN"
	EventActivate     = "ACTIVATE"
	EventReactivate   = "REACTIVATE"
	EventRemoveEnv    = "REMOVE_ENVIRONMENT"
	EventPairing      = "PAIRING"
	EventEnvNeeded    = "ENVIRONMENT_NEEDED"
	EventConverged    = "CONVERGED"
	EventLadder       = "LADDER"
	EventExhausted    = "EXHAUSTED"
	EventSyncError    = "SYNC_ERROR"
	EventSetupReset   = "SETUP_RESET"
	EventRefreshShown = "REFRESH_SHOWN"
)

// ReconcileEvent is a single entry of the reconciliation log.
type ReconcileEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	HouseID     string    `json:"house_id,omitempty"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
