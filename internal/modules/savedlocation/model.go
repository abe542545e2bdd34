// README: Saved locations a user can pick as alarm destinations.
package savedlocation

import (
	"errors"

	"arrivo/internal/modules/proximity"
	"arrivo/internal/types"
)

var (
	ErrNotFound        = errors.New("location not found")
	ErrInvalidLocation = errors.New("invalid location data")
)

const (
	// DefaultUserID is used for every request until accounts exist.
	DefaultUserID int64 = 1

	defaultEarlyNotificationMin = 30
	defaultArrivalRadiusM       = 500
)

type Location struct {
	ID                int64   `json:"id"`
	UserID            int64   `json:"user_id"`
	Name              string  `json:"name"`
	Address           string  `json:"address"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	IsActive          bool    `json:"is_active"`
	EarlyNotification int     `json:"early_notification"` // minutes
	ArrivalRadius     int     `json:"arrival_radius"`     // meters
}

// Destination converts the saved location into an alarm destination.
func (l Location) Destination() proximity.Destination {
	return proximity.Destination{
		Name:       l.Name,
		Address:    l.Address,
		Coordinate: types.Point{Lat: l.Latitude, Lng: l.Longitude},
	}
}

// Input carries the fields of a create or partial update. Nil fields are
// left unchanged on update and take their defaults on create.
type Input struct {
	Name              *string  `json:"name"`
	Address           *string  `json:"address"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	IsActive          *bool    `json:"is_active"`
	EarlyNotification *int     `json:"early_notification"`
	ArrivalRadius     *int     `json:"arrival_radius"`
}

func (in Input) apply(l *Location) {
	if in.Name != nil {
		l.Name = *in.Name
	}
	if in.Address != nil {
		l.Address = *in.Address
	}
	if in.Latitude != nil {
		l.Latitude = *in.Latitude
	}
	if in.Longitude != nil {
		l.Longitude = *in.Longitude
	}
	if in.IsActive != nil {
		l.IsActive = *in.IsActive
	}
	if in.EarlyNotification != nil {
		l.EarlyNotification = *in.EarlyNotification
	}
	if in.ArrivalRadius != nil {
		l.ArrivalRadius = *in.ArrivalRadius
	}
}
