package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ngmaloney/vessel-forecast/internal/models"
	"github.com/ngmaloney/vessel-forecast/internal/projection"
)

// Fixed-width UTC timestamps so that text order is time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SavedState is the persisted part of the controller state
type SavedState struct {
	Motion     models.MotionState
	Engaged    bool
	LastUpdate time.Time
	Status     string
	SavedAt    time.Time
}

// RunRecord is one entry of the run log
type RunRecord struct {
	ID         int64
	FinishedAt time.Time
	Status     string
	Latitude   *float64
	Longitude  *float64
	Engaged    bool
}

// SaveState stores snap, replacing the previous state
func (s *Store) SaveState(ctx context.Context, snap projection.Snapshot) error {
	var (
		lat, lon, heading, speed sql.NullFloat64
		posTime, lastUpdate      sql.NullString
	)
	if p := snap.Motion.CurrentPosition; p != nil {
		lat = sql.NullFloat64{Float64: p.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: p.Longitude, Valid: true}
		posTime = formatTime(p.Timestamp)
	}
	if snap.Motion.Heading != nil {
		heading = sql.NullFloat64{Float64: *snap.Motion.Heading, Valid: true}
	}
	if snap.Motion.SpeedOverGround != nil {
		speed = sql.NullFloat64{Float64: *snap.Motion.SpeedOverGround, Valid: true}
	}
	lastUpdate = formatTime(snap.LastUpdate)

	query := `
		INSERT INTO vessel_state (id, latitude, longitude, position_time, heading, speed, engaged, last_update, status, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			position_time = excluded.position_time,
			heading = excluded.heading,
			speed = excluded.speed,
			engaged = excluded.engaged,
			last_update = excluded.last_update,
			status = excluded.status,
			saved_at = excluded.saved_at
	`

	_, err := s.db.ExecContext(ctx, query,
		lat,
		lon,
		posTime,
		heading,
		speed,
		snap.Engaged,
		lastUpdate,
		snap.Status,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving state: %w", err)
	}

	return nil
}

// LoadState returns the stored state; ok is false when nothing was saved yet
func (s *Store) LoadState(ctx context.Context) (state SavedState, ok bool, err error) {
	var (
		lat, lon, heading, speed sql.NullFloat64
		posTime, lastUpdate      sql.NullString
		savedAt                  string
	)

	row := s.db.QueryRowContext(ctx, `
		SELECT latitude, longitude, position_time, heading, speed, engaged, last_update, status, saved_at
		FROM vessel_state WHERE id = 1
	`)
	err = row.Scan(&lat, &lon, &posTime, &heading, &speed, &state.Engaged, &lastUpdate, &state.Status, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SavedState{}, false, nil
	}
	if err != nil {
		return SavedState{}, false, fmt.Errorf("loading state: %w", err)
	}

	if lat.Valid && lon.Valid {
		state.Motion.CurrentPosition = &models.Position{
			Latitude:  lat.Float64,
			Longitude: lon.Float64,
			Timestamp: parseTime(posTime),
		}
	}
	if heading.Valid {
		state.Motion.Heading = &heading.Float64
	}
	if speed.Valid {
		state.Motion.SpeedOverGround = &speed.Float64
	}
	state.LastUpdate = parseTime(lastUpdate)
	state.SavedAt = parseTime(sql.NullString{String: savedAt, Valid: true})

	return state, true, nil
}

// RecordRun appends the outcome of a run to the log
func (s *Store) RecordRun(ctx context.Context, snap projection.Snapshot, finishedAt time.Time) error {
	var lat, lon sql.NullFloat64
	if p := snap.Motion.CurrentPosition; p != nil {
		lat = sql.NullFloat64{Float64: p.Latitude, Valid: true}
		lon = sql.NullFloat64{Float64: p.Longitude, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forecast_runs (finished_at, status, latitude, longitude, engaged) VALUES (?, ?, ?, ?, ?)`,
		finishedAt.UTC().Format(timeLayout),
		snap.Status,
		lat,
		lon,
		snap.Engaged,
	)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, finished_at, status, latitude, longitude, engaged
		FROM forecast_runs
		ORDER BY finished_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r          RunRecord
			finishedAt string
			lat, lon   sql.NullFloat64
		)
		if err := rows.Scan(&r.ID, &finishedAt, &r.Status, &lat, &lon, &r.Engaged); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.FinishedAt = parseTime(sql.NullString{String: finishedAt, Valid: true})
		if lat.Valid && lon.Valid {
			r.Latitude = &lat.Float64
			r.Longitude = &lon.Float64
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}

// PruneRuns deletes runs finished before cutoff
func (s *Store) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM forecast_runs WHERE finished_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
