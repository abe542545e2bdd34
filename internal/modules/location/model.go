// README: Position updates, source errors and snapshots for persistence and replay.
package location

import (
	"errors"
	"time"

	"arrivo/internal/types"
)

var ErrInvalidPosition = errors.New("invalid position")

// Update is one fix pushed by a position source.
type Update struct {
	SessionID  types.ID
	Position   types.Point
	RecordedAt time.Time
}

// Snapshot is a persisted fix used for trip history.
type Snapshot struct {
	ID         int64       `json:"id"`
	SessionID  types.ID    `json:"session_id"`
	Position   types.Point `json:"position"`
	RecordedAt time.Time   `json:"recorded_at"`
}
