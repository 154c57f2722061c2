package trip

import (
	"context"
	"errors"
	"fmt"

	"backend-tripalarm/internal/alarm"
	"backend-tripalarm/internal/db"
	"backend-tripalarm/internal/shared/geo"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var ErrInvalidPlan = errors.New("invalid trip plan")

var validate = validator.New()

// Validate checks that a plan can start navigation. A zero early radius is
// replaced by the default before validation.
func Validate(p *Plan) error {
	if p.Alarm.NotifyEarlyRadiusMeters == 0 {
		p.Alarm.NotifyEarlyRadiusMeters = alarm.DefaultEarlyRadius
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return nil
}

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) CreatePlan(ctx context.Context, input Plan) (Plan, error) {
	if err := Validate(&input); err != nil {
		return Plan{}, err
	}
	input.ID = uuid.NewString()

	row := s.db.QueryRow(ctx, `
		INSERT INTO saved_routes (id, user_id, name, origin, destination, sound_id, vibration_enabled, notify_early_radius_m)
		VALUES ($1,$2,$3,
		        ST_SetSRID(ST_MakePoint($4,$5), 4326)::geography,
		        ST_SetSRID(ST_MakePoint($6,$7), 4326)::geography,
		        $8,$9,$10)
		RETURNING created_at
	`, input.ID, input.UserID, input.Name,
		input.Origin.Lng, input.Origin.Lat,
		input.Destination.Lng, input.Destination.Lat,
		input.Alarm.SoundID, input.Alarm.VibrationEnabled, input.Alarm.NotifyEarlyRadiusMeters)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Plan{}, err
	}

	for i, cp := range input.Checkpoints {
		_, err := s.db.Exec(ctx, `
			INSERT INTO saved_route_checkpoints (route_id, position, location)
			VALUES ($1,$2, ST_SetSRID(ST_MakePoint($3,$4), 4326)::geography)
		`, input.ID, i, cp.Lng, cp.Lat)
		if err != nil {
			return Plan{}, err
		}
	}
	return input, nil
}

func (s *Service) GetPlan(ctx context.Context, id string) (Plan, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, name,
		       ST_Y(origin::geometry), ST_X(origin::geometry),
		       ST_Y(destination::geometry), ST_X(destination::geometry),
		       sound_id, vibration_enabled, notify_early_radius_m, created_at
		FROM saved_routes WHERE id=$1
	`, id)

	var p Plan
	var origin, destination geo.GeoPoint
	if err := row.Scan(&p.ID, &p.UserID, &p.Name,
		&origin.Lat, &origin.Lng, &destination.Lat, &destination.Lng,
		&p.Alarm.SoundID, &p.Alarm.VibrationEnabled, &p.Alarm.NotifyEarlyRadiusMeters, &p.CreatedAt); err != nil {
		return Plan{}, err
	}
	p.Origin = &origin
	p.Destination = &destination

	checkpoints, err := s.checkpoints(ctx, id)
	if err != nil {
		return Plan{}, err
	}
	p.Checkpoints = checkpoints
	return p, nil
}

func (s *Service) checkpoints(ctx context.Context, routeID string) ([]geo.GeoPoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ST_Y(location::geometry), ST_X(location::geometry)
		FROM saved_route_checkpoints WHERE route_id=$1
		ORDER BY position
	`, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []geo.GeoPoint
	for rows.Next() {
		var p geo.GeoPoint
		if err := rows.Scan(&p.Lat, &p.Lng); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ListPlans returns a user's saved routes without their checkpoints.
func (s *Service) ListPlans(ctx context.Context, userID string) ([]Plan, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, name,
		       ST_Y(origin::geometry), ST_X(origin::geometry),
		       ST_Y(destination::geometry), ST_X(destination::geometry),
		       sound_id, vibration_enabled, notify_early_radius_m, created_at
		FROM saved_routes WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var p Plan
		var origin, destination geo.GeoPoint
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name,
			&origin.Lat, &origin.Lng, &destination.Lat, &destination.Lng,
			&p.Alarm.SoundID, &p.Alarm.VibrationEnabled, &p.Alarm.NotifyEarlyRadiusMeters, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Origin = &origin
		p.Destination = &destination
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (s *Service) DeletePlan(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM saved_routes WHERE id=$1`, id)
	return err
}
