// Package state persists poller progress so an agent can resume from its last
// watermark after a restart instead of re-anchoring at the current time.
package state

import (
	"context"

	xerrors "github.com/pinai-network/agent-sdk-go/pkg/errors"
)

// Record is the per-agent progress snapshot owned by the poller.
type Record struct {
	Watermark string `json:"watermark"`
	SessionID string `json:"session_id,omitempty"`
}

// Store abstracts where agent progress lives.
type Store interface {
	Load(ctx context.Context, agentID int64) (Record, error)
	Save(ctx context.Context, agentID int64, rec Record) error
	Close() error
}

// ErrNotFound is returned by Load when no record exists for the agent.
var ErrNotFound = xerrors.New(xerrors.CodeNotFound, "agent state not found")
