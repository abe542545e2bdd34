// README: Saved location service validates input and applies defaults before persisting.
package savedlocation

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Repository is the persistence the service needs; *Store satisfies it.
type Repository interface {
	ListByUser(ctx context.Context, userID int64) ([]Location, error)
	Get(ctx context.Context, id int64) (*Location, error)
	Create(ctx context.Context, l *Location) error
	Update(ctx context.Context, l *Location) error
	Delete(ctx context.Context, id int64) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, userID int64) ([]Location, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, id int64) (*Location, error) {
	return s.repo.Get(ctx, id)
}

// Create requires name, address and coordinates. The owner is always userID.
func (s *Service) Create(ctx context.Context, userID int64, in Input) (*Location, error) {
	switch {
	case in.Name == nil:
		return nil, fmt.Errorf("%w: name is required", ErrInvalidLocation)
	case in.Address == nil:
		return nil, fmt.Errorf("%w: address is required", ErrInvalidLocation)
	case in.Latitude == nil || in.Longitude == nil:
		return nil, fmt.Errorf("%w: latitude and longitude are required", ErrInvalidLocation)
	}

	l := &Location{
		UserID:            userID,
		EarlyNotification: defaultEarlyNotificationMin,
		ArrivalRadius:     defaultArrivalRadiusM,
	}
	in.apply(l)
	if err := validate(l); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// Update applies the non-nil fields of in.
func (s *Service) Update(ctx context.Context, id int64, in Input) (*Location, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(l)
	if err := validate(l); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}

func validate(l *Location) error {
	if strings.TrimSpace(l.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidLocation)
	}
	if math.IsNaN(l.Latitude) || l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude out of range", ErrInvalidLocation)
	}
	if math.IsNaN(l.Longitude) || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude out of range", ErrInvalidLocation)
	}
	if l.EarlyNotification < 0 {
		return fmt.Errorf("%w: early_notification must not be negative", ErrInvalidLocation)
	}
	if l.ArrivalRadius <= 0 {
		return fmt.Errorf("%w: arrival_radius must be positive", ErrInvalidLocation)
	}
	return nil
}
