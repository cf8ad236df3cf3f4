package models

// Persisted flag keys. Values are strings; booleans are "true"/"false".
const (
	KeyNeedsRefresh              = "needsRefresh"
	KeyNeedsSecondRefresh        = "needsSecondRefresh"
	KeyRefreshShown              = "refreshShown"
	KeyRefreshAttempts           = "refreshAttempts"
	KeyActivationComplete        = "activationComplete"
	KeyAccountJustCreated        = "accountJustCreated"
	KeyNewAccountHouseID         = "newAccountHouseId"
	KeyCopiedHouses              = "copiedHouses"
	KeyEnvironmentCreationNeeded = "environmentCreationNeeded"
	KeyScreenSetupFailed         = "screenSetupFailed"
	KeyLastSyncError             = "lastSyncError"
)

// RefreshState is the reload-durable reconciliation state of one device.
type RefreshState struct {
	NeedsRefresh              bool     `json:"needs_refresh"`
	NeedsSecondRefresh        bool     `json:"needs_second_refresh"`
	RefreshShown              bool     `json:"refresh_shown"`
	RefreshAttempts           int      `json:"refresh_attempts"`
	ActivationComplete        bool     `json:"activation_complete"`
	AccountJustCreated        bool     `json:"account_just_created"`
	NewAccountHouseID         string   `json:"new_account_house_id,omitempty"`
	CopiedHouses              []string `json:"copied_houses,omitempty"`
	EnvironmentCreationNeeded bool     `json:"environment_creation_needed"`
	ScreenSetupFailed         bool     `json:"screen_setup_failed"`
	LastSyncError             string   `json:"last_sync_error,omitempty"`
}

// HasCopied reports whether default content was already copied into houseID.
func (s RefreshState) HasCopied(houseID string) bool {
	for _, id := range s.CopiedHouses {
		if id == houseID {
			return true
		}
	}
	return false
}
