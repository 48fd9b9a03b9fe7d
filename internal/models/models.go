package models

import (
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for all persistent models.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error                      // Create inserts a new model into the database
	Get(id string) (T, error)                  // Get retrieves a model by its ID
	Update(model T) error                      // Update modifies an existing model in the database
	Delete(id string) error                    // Delete removes a model from the database by its ID
	List(criteria map[string]any) ([]T, error) // List retrieves all models matching the given criteria
}

// Provider names a music streaming service.
type Provider string

const (
	Spotify Provider = "spotify"
	Deezer  Provider = "deezer"
)

// Providers lists every supported provider.
var Providers = []Provider{Spotify, Deezer}

// ParseProvider converts a user supplied name into a [Provider].
func ParseProvider(s string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "spotify", "spot":
		return Spotify, nil
	case "deezer", "dz":
		return Deezer, nil
	default:
		return "", fmt.Errorf("unknown provider %q (must be 'spotify' or 'deezer')", s)
	}
}

// String returns the provider's display name.
func (p Provider) String() string {
	switch p {
	case Spotify:
		return "Spotify"
	case Deezer:
		return "Deezer"
	default:
		return string(p)
	}
}

// Playlist represents a music playlist from any provider
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	TrackCount  int    `json:"track_count"`
	Public      bool   `json:"public"`
	Owner       string `json:"owner,omitempty"`
	URL         string `json:"url,omitempty"`
}

// PlaylistExport represents a playlist with all its tracks for transfer
type PlaylistExport struct {
	Playlist Playlist `json:"playlist"`
	Tracks   []Track  `json:"tracks"`
}

// Track represents a music track from any provider
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	Duration int    `json:"duration"`       // Duration in seconds
	ISRC     string `json:"isrc,omitempty"` // International Standard Recording Code for matching
	URI      string `json:"uri,omitempty"`  // Provider URI used when adding to playlists
}

// Key returns the stable identifier used to select a track in a listing.
//
// Provider IDs are preferred; tracks without one (local files) fall back to title, artist and album.
func (t Track) Key() string {
	if t.ID != "" {
		return t.ID
	}
	parts := []string{t.Title, t.Artist, t.Album}
	for i, p := range parts {
		parts[i] = strings.Join(strings.Fields(strings.ToLower(p)), " ")
	}
	return strings.Join(parts, "|")
}

// TrackKey is a [selection.KeyFunc] for tracks.
func TrackKey(t Track) string { return t.Key() }
