package repository

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"CineFM/db"
	"CineFM/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(track *model.Track) (int64, error)
	GetTrackByID(id int64) (*model.Track, error)
	GetTracksByIDs(ids []int64) ([]*model.Track, error)
	ListRecentTracks(limit int) ([]*model.Track, error)
	DeleteTrack(id int64) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

const trackColumns = `id, title, artist, album, object_key, cover_url, duration, state, created_at, updated_at`

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	track := &model.Track{}
	err := row.Scan(&track.ID, &track.Title, &track.Artist, &track.Album, &track.ObjectKey,
		&track.CoverURL, &track.Duration, &track.State, &track.CreatedAt, &track.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return track, nil
}

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (title, artist, album, object_key, cover_url, duration, state, created_at, updated_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	state := track.State
	if state == 0 {
		state = 1
	}
	res, err := stmt.Exec(track.Title, track.Artist, track.Album, track.ObjectKey, track.CoverURL, track.Duration, state, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	log.Printf("Track created with ID: %d, Title: %s", id, track.Title)
	return id, nil
}

// GetTrackByID retrieves a track by its ID.
func (r *mysqlTrackRepository) GetTrackByID(id int64) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE id = ? AND state = 1`
	track, err := scanTrack(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Track not found
		}
		return nil, fmt.Errorf("failed to scan track by ID %d: %w", id, err)
	}
	return track, nil
}

// GetTracksByIDs retrieves multiple tracks in one query; missing IDs are skipped.
func (r *mysqlTrackRepository) GetTracksByIDs(ids []int64) ([]*model.Track, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := `SELECT ` + trackColumns + ` FROM tracks WHERE state = 1 AND id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks by ids: %w", err)
	}
	defer rows.Close()

	var tracks []*model.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// ListRecentTracks returns the most recently added playable tracks.
func (r *mysqlTrackRepository) ListRecentTracks(limit int) ([]*model.Track, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + trackColumns + ` FROM tracks WHERE state = 1 ORDER BY created_at DESC LIMIT ?`
	rows, err := r.DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*model.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, rows.Err()
}

// DeleteTrack soft-deletes a track.
func (r *mysqlTrackRepository) DeleteTrack(id int64) error {
	stmt, err := r.DB.Prepare(`UPDATE tracks SET state = 0, updated_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for DeleteTrack: %w", err)
	}
	defer stmt.Close()

	if _, err := stmt.Exec(time.Now(), id); err != nil {
		return fmt.Errorf("failed to execute DeleteTrack: %w", err)
	}
	return nil
}
