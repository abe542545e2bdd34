// README: Saved location store backed by PostgreSQL.
package savedlocation

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const locationColumns = `id, user_id, name, address, latitude, longitude, is_active, early_notification, arrival_radius`

func scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	err := row.Scan(
		&l.ID, &l.UserID, &l.Name, &l.Address,
		&l.Latitude, &l.Longitude,
		&l.IsActive, &l.EarlyNotification, &l.ArrivalRadius,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *Store) ListByUser(ctx context.Context, userID int64) ([]Location, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+locationColumns+`
		FROM saved_locations
		WHERE user_id = $1
		ORDER BY id`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Location{}
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id int64) (*Location, error) {
	return scanLocation(s.db.QueryRow(ctx, `
		SELECT `+locationColumns+`
		FROM saved_locations
		WHERE id = $1`, id,
	))
}

// Create inserts l and fills in its generated id.
func (s *Store) Create(ctx context.Context, l *Location) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO saved_locations (
			user_id, name, address, latitude, longitude,
			is_active, early_notification, arrival_radius
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		l.UserID, l.Name, l.Address, l.Latitude, l.Longitude,
		l.IsActive, l.EarlyNotification, l.ArrivalRadius,
	).Scan(&l.ID)
}

func (s *Store) Update(ctx context.Context, l *Location) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE saved_locations
		SET name = $2, address = $3, latitude = $4, longitude = $5,
		    is_active = $6, early_notification = $7, arrival_radius = $8
		WHERE id = $1`,
		l.ID, l.Name, l.Address, l.Latitude, l.Longitude,
		l.IsActive, l.EarlyNotification, l.ArrivalRadius,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM saved_locations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
