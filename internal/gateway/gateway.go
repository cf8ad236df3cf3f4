// Package gateway is the boundary to the remote provisioning backend.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"house_screens/internal/models"
)

// BackendGateway lists the remote operations the reconciler relies on. All
// of them are safe to retry; callers must not assume ordering between two
// outstanding calls.
type BackendGateway interface {
	FetchGraph(ctx context.Context, forceRefresh bool) ([]models.House, error)
	ActivateScreen(ctx context.Context, screenID string, on bool, dims models.Dimensions, session models.Session) error
	CreateEnvironment(ctx context.Context, houseID string) (string, error)
	CreateScreen(ctx context.Context, environmentID string) error
	RemoveEnvironment(ctx context.Context, environmentID string) error
	CopyDefaultContent(ctx context.Context, domain string, session models.Session, houseID string) (models.CopyResult, error)
}

// Operation names used in NetworkError and logs.
const (
	OpFetchGraph         = "fetch_graph"
	OpActivateScreen     = "activate_screen"
	OpCreateEnvironment  = "create_environment"
	OpCreateScreen       = "create_screen"
	OpRemoveEnvironment  = "remove_environment"
	OpCopyDefaultContent = "copy_default_content"
)

// NetworkError reports a failed gateway call.
type NetworkError struct {
	Op         string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AsNetworkError unwraps err into a *NetworkError if it is one.
func AsNetworkError(err error) (*NetworkError, bool) {
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}

// wrap tags err with the operation unless it already is a NetworkError.
func wrap(op string, status int, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsNetworkError(err); ok {
		return err
	}
	return &NetworkError{Op: op, StatusCode: status, Err: err}
}
