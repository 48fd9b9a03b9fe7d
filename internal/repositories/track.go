package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
)

const trackColumns = `id, sequence, provider, provider_id, title, artist, album, duration, isrc, uri, created_at`

// CachedTrack is a provider track stored for ISRC lookups.
type CachedTrack struct {
	ID        string
	Sequence  int
	Provider  models.Provider
	Track     models.Track
	CreatedAt time.Time
}

// TrackRepository caches provider tracks keyed by provider and provider ID.
//
// Tracks are cached as transfers resolve them so later runs can match by ISRC without searching.
type TrackRepository struct {
	db *sql.DB
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db *sql.DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Create inserts a track for provider with generated ID and sequence
func (r *TrackRepository) Create(provider models.Provider, track models.Track) (*CachedTrack, error) {
	if track.ID == "" {
		return nil, fmt.Errorf("%w: track id is required", shared.ErrInvalidInput)
	}
	if track.Title == "" {
		return nil, fmt.Errorf("%w: track title is required", shared.ErrInvalidInput)
	}

	sequence, err := NextSequence(r.db, "tracks")
	if err != nil {
		return nil, fmt.Errorf("failed to generate sequence: %w", err)
	}

	cached := &CachedTrack{
		ID:        shared.GenerateID(),
		Sequence:  sequence,
		Provider:  provider,
		Track:     track,
		CreatedAt: time.Now(),
	}

	query := `INSERT INTO tracks (` + trackColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Exec(query,
		cached.ID,
		sequence,
		provider,
		track.ID,
		track.Title,
		track.Artist,
		track.Album,
		track.Duration,
		track.ISRC,
		track.URI,
		cached.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert track: %w", err)
	}

	return cached, nil
}

// GetByProviderID retrieves a cached track by provider and provider ID
func (r *TrackRepository) GetByProviderID(provider models.Provider, providerID string) (*CachedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE provider = ? AND provider_id = ?`
	return r.scanOne(r.db.QueryRow(query, provider, providerID))
}

// GetByISRC retrieves a cached track for provider by ISRC code
func (r *TrackRepository) GetByISRC(provider models.Provider, isrc string) (*CachedTrack, error) {
	query := `
		SELECT ` + trackColumns + `
		FROM tracks
		WHERE provider = ? AND isrc = ? AND isrc != ''
		ORDER BY sequence DESC
		LIMIT 1
	`
	return r.scanOne(r.db.QueryRow(query, provider, isrc))
}

// List retrieves cached tracks ordered by sequence.
//
// Supported criteria: "provider" and "isrc".
func (r *TrackRepository) List(criteria map[string]any) ([]*CachedTrack, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE 1 = 1`
	args := []any{}

	if provider := criteriaString(criteria, "provider"); provider != "" {
		query += " AND provider = ?"
		args = append(args, provider)
	}

	if isrc := criteriaString(criteria, "isrc"); isrc != "" {
		query += " AND isrc = ?"
		args = append(args, isrc)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	var tracks []*CachedTrack
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return tracks, nil
}

func (r *TrackRepository) scanOne(row *sql.Row) (*CachedTrack, error) {
	track, err := scanTrack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: track", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}
	return track, nil
}

func scanTrack(s scanner) (*CachedTrack, error) {
	var (
		c        CachedTrack
		provider string
	)

	err := s.Scan(&c.ID, &c.Sequence, &provider, &c.Track.ID, &c.Track.Title, &c.Track.Artist, &c.Track.Album,
		&c.Track.Duration, &c.Track.ISRC, &c.Track.URI, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Provider = models.Provider(provider)
	return &c, nil
}
