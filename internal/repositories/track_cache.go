package repositories

import (
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
)

// TrackCacheAdapter implements tasks.TrackCacher using TrackRepository.
//
// Provides track caching with deduplication via provider+provider_id constraints.
// Duplicate tracks are silently ignored (UNIQUE constraint violations).
type TrackCacheAdapter struct {
	repo *TrackRepository
}

// NewTrackCacheAdapter creates a new TrackCacheAdapter with the given repository
func NewTrackCacheAdapter(repo *TrackRepository) *TrackCacheAdapter {
	return &TrackCacheAdapter{repo: repo}
}

// CacheTrack caches a track from a provider.
// Returns nil if the track already exists or carries no provider ID.
func (a *TrackCacheAdapter) CacheTrack(provider models.Provider, track models.Track) error {
	if track.ID == "" {
		return nil
	}

	if existing, err := a.repo.GetByProviderID(provider, track.ID); err == nil && existing != nil {
		return nil
	}

	if _, err := a.repo.Create(provider, track); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil
		}
		return fmt.Errorf("failed to cache track: %w", err)
	}

	return nil
}

// LookupISRC returns the cached provider track with isrc, or [shared.ErrNotFound].
func (a *TrackCacheAdapter) LookupISRC(provider models.Provider, isrc string) (*models.Track, error) {
	if isrc == "" {
		return nil, fmt.Errorf("%w: empty isrc", shared.ErrNotFound)
	}
	cached, err := a.repo.GetByISRC(provider, isrc)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to look up isrc: %w", err)
	}
	track := cached.Track
	return &track, nil
}
