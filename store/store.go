package store

import (
	"context"
	"errors"
	"time"

	"reelsmith/types"
)

// ErrNotFound is returned when the requested row does not exist
var ErrNotFound = errors.New("not found")

// ErrStatusConflict is returned by AdvanceSessionStatus when the session is
// not in the expected prior status. Callers treat this as a failed
// precondition, not a storage fault.
var ErrStatusConflict = errors.New("session status conflict")

// Store is the durable record of sessions, assets, costs, and scripts.
// The orchestrator is the only writer of session status and stage-produced
// rows; reviewer actions only flip asset approval.
type Store interface {
	CreateSession(ctx context.Context, s *types.Session) error
	GetSession(ctx context.Context, id, userID string) (*types.Session, error)

	// AdvanceSessionStatus atomically moves a session from one status to
	// another. It returns ErrStatusConflict if the session is not currently
	// in the from status (check-then-set in a single statement).
	AdvanceSessionStatus(ctx context.Context, id string, from, to types.SessionStatus) error

	// FailSession marks the session failed with an error message. Failing an
	// already-terminal session is a no-op.
	FailSession(ctx context.Context, id, message string) error

	SetSessionVideoURL(ctx context.Context, id, url string) error
	ListStaleSessions(ctx context.Context, olderThan time.Time, statuses []types.SessionStatus) ([]*types.Session, error)

	CreateAsset(ctx context.Context, a *types.Asset) error
	ListAssets(ctx context.Context, sessionID, kind string) ([]*types.Asset, error)
	ApproveAsset(ctx context.Context, assetID string, approved bool) error

	CreateCost(ctx context.Context, c *types.GenerationCost) error
	ListCosts(ctx context.Context, sessionID string) ([]*types.GenerationCost, error)
	TotalCost(ctx context.Context, sessionID string) (float64, error)

	CreateScript(ctx context.Context, s *types.Script) error
	GetScript(ctx context.Context, id, userID string) (*types.Script, error)
}
