// README: Location store backed by Redis GEO (last known fix) and Postgres snapshots.
package location

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"arrivo/internal/types"
)

const sessionGeoKey = "geo:sessions"

type Store struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewStore(db *pgxpool.Pool, redis *redis.Client) *Store {
	return &Store{db: db, redis: redis}
}

// SetGeo caches the latest fix of a session.
func (s *Store) SetGeo(ctx context.Context, id types.ID, pos types.Point) error {
	return s.redis.GeoAdd(ctx, sessionGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	}).Err()
}

// LastKnown returns the cached fix of a session, if any.
func (s *Store) LastKnown(ctx context.Context, id types.ID) (types.Point, bool, error) {
	res, err := s.redis.GeoPos(ctx, sessionGeoKey, string(id)).Result()
	if err != nil {
		return types.Point{}, false, err
	}
	if len(res) == 0 || res[0] == nil {
		return types.Point{}, false, nil
	}
	return types.Point{Lat: res[0].Latitude, Lng: res[0].Longitude}, true, nil
}

// RemoveGeo drops the cached fix of a session.
func (s *Store) RemoveGeo(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, sessionGeoKey, string(id)).Err()
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO position_snapshots (session_id, latitude, longitude, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		string(snap.SessionID),
		snap.Position.Lat,
		snap.Position.Lng,
		snap.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns the most recent snapshots of a session, newest first.
func (s *Store) ListSnapshots(ctx context.Context, id types.ID, limit int) ([]Snapshot, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, latitude, longitude, recorded_at
		FROM position_snapshots
		WHERE session_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`, string(id), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		if err := rows.Scan(&snap.ID, &snap.SessionID, &snap.Position.Lat, &snap.Position.Lng, &snap.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
