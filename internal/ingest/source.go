// Package ingest moves presence signals from the chat gateway into the
// session tracker and exposes the gateway's point-in-time presence counts to
// the snapshot poller.
package ingest

//go:generate mockgen -package=mocks -destination=mocks/mock_ingest.go github.com/graaaaa/playpulse/internal/ingest SessionRecorder,EventResolver,SnapshotSource

import (
	"context"
	"fmt"

	"github.com/graaaaa/playpulse/internal/derive"
	"github.com/graaaaa/playpulse/internal/model"
)

// PresenceChange is one user starting or stopping one game.
type PresenceChange = derive.Change

// PresenceSource produces presence changes.
// Implementations close both channels when ctx is cancelled or on fatal error.
type PresenceSource interface {
	// Start begins producing changes. The error channel may carry multiple
	// non-fatal errors during operation.
	Start(ctx context.Context) (<-chan PresenceChange, <-chan error, error)
}

// SnapshotSource reports the gateway's current presence counts.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (model.PresenceSnapshot, error)
}

// GatewayError wraps a non-fatal gateway failure with the operation that hit it.
type GatewayError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
	}
	return "gateway " + e.Op
}

// Unwrap returns the underlying error.
func (e *GatewayError) Unwrap() error {
	return e.Err
}
