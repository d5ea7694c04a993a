package navigation

import (
	"context"
	"time"
)

// Snapshot is the persisted view of one client's navigation.
type Snapshot struct {
	ID        string          `json:"session_id"`
	State     State           `json:"state"`
	Endpoints *RouteEndpoints `json:"endpoints,omitempty"`
	LastFix   *GeoFix         `json:"last_fix,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type SessionCache interface {
	SetSession(ctx context.Context, snapshot *Snapshot) error
	GetSession(ctx context.Context, sessionID string) (*Snapshot, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// RouteStore keeps the most recent route calculation of each session.
// LastRoute returns (nil, nil) when none is stored.
type RouteStore interface {
	SetLastRoute(ctx context.Context, sessionID string, result *RouteResult) error
	LastRoute(ctx context.Context, sessionID string) (*RouteResult, error)
	ClearLastRoute(ctx context.Context, sessionID string) error
}
