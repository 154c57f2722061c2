package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"backend-tripalarm/internal/db"
	"backend-tripalarm/internal/shared/geo"
	"backend-tripalarm/internal/stream"

	"github.com/jackc/pgx/v5"
)

// Recorder keeps the trip history of navigation sessions in PostGIS.
type Recorder struct {
	db  db.Querier
	hub *stream.Hub
}

func NewRecorder(db db.Querier, hub *stream.Hub) *Recorder {
	return &Recorder{db: db, hub: hub}
}

func (s *Recorder) StartSession(ctx context.Context, input Session) (Session, error) {
	if input.StartedAt.IsZero() {
		input.StartedAt = time.Now()
	}
	if input.Status == "" {
		input.Status = "active"
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO track_sessions (id, plan_id, user_id, started_at, status)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING started_at, status
	`, input.ID, input.PlanID, input.UserID, input.StartedAt, input.Status)
	if err := row.Scan(&input.StartedAt, &input.Status); err != nil {
		return Session{}, err
	}
	return input, nil
}

func (s *Recorder) AddPoint(ctx context.Context, sessionID string, input TrackPoint) (TrackPoint, error) {
	if input.RecordedAt.IsZero() {
		input.RecordedAt = time.Now()
	}

	var lastLat, lastLng float64
	err := s.db.QueryRow(ctx, `
		SELECT ST_Y(location::geometry), ST_X(location::geometry)
		FROM track_points
		WHERE session_id=$1
		ORDER BY recorded_at DESC
		LIMIT 1
	`, sessionID).Scan(&lastLat, &lastLng)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("session %s: last track point lookup error: %v", sessionID, err)
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO track_points (session_id, location, accuracy_m, recorded_at)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2,$3), 4326)::geography, $4, $5)
		RETURNING id, created_at
	`, sessionID, input.Lng, input.Lat, input.AccuracyM, input.RecordedAt)
	if err := row.Scan(&input.ID, &input.CreatedAt); err != nil {
		return TrackPoint{}, err
	}
	input.SessionID = sessionID

	if lastLat != 0 || lastLng != 0 {
		deltaM := geo.HaversineKm(lastLat, lastLng, input.Lat, input.Lng) * 1000
		_, err := s.db.Exec(ctx, `
			UPDATE track_sessions
			SET total_distance_m = COALESCE(total_distance_m,0) + $2
			WHERE id=$1
		`, sessionID, deltaM)
		if err != nil {
			log.Printf("session %s: distance update error: %v", sessionID, err)
		}
	}

	if s.hub != nil {
		payload, _ := json.Marshal(input)
		s.hub.Publish(sessionID, stream.KindTrackPoint, payload)
	}
	return input, nil
}

// EndSession closes a history record with its terminal status.
func (s *Recorder) EndSession(ctx context.Context, sessionID, status string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE track_sessions
		SET ended_at = $2, status = $3
		WHERE id=$1
	`, sessionID, time.Now(), status)
	return err
}

func (s *Recorder) Summary(ctx context.Context, sessionID string) (Summary, error) {
	var session Session
	var ended bool
	var endedAt time.Time
	row := s.db.QueryRow(ctx, `
		SELECT id, started_at, ended_at IS NOT NULL, COALESCE(ended_at, started_at), COALESCE(total_distance_m,0), status
		FROM track_sessions WHERE id=$1
	`, sessionID)
	if err := row.Scan(&session.ID, &session.StartedAt, &ended, &endedAt, &session.TotalDistanceM, &session.Status); err != nil {
		return Summary{}, err
	}
	if ended {
		session.EndedAt = endedAt
	}

	var pointCount int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM track_points WHERE session_id=$1`, sessionID).Scan(&pointCount); err != nil {
		return Summary{}, err
	}

	duration := time.Since(session.StartedAt)
	if !session.EndedAt.IsZero() {
		duration = session.EndedAt.Sub(session.StartedAt)
	}
	avgSpeed := 0.0
	if duration.Seconds() > 0 {
		avgSpeed = session.TotalDistanceM / duration.Seconds()
	}

	return Summary{
		SessionID:     session.ID,
		Status:        session.Status,
		PointCount:    pointCount,
		DistanceM:     session.TotalDistanceM,
		DurationSec:   int64(duration.Seconds()),
		AverageSpeedM: avgSpeed,
	}, nil
}

func (s *Recorder) Points(ctx context.Context, sessionID string) ([]TrackPoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, ST_Y(location::geometry), ST_X(location::geometry), COALESCE(accuracy_m,0), recorded_at, created_at
		FROM track_points WHERE session_id=$1
		ORDER BY recorded_at
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []TrackPoint
	for rows.Next() {
		var p TrackPoint
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Lat, &p.Lng, &p.AccuracyM, &p.RecordedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
