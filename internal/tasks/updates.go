package tasks

import (
	"fmt"

	"github.com/desertthunder/sonikswap/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchSource Phase = iota
	FetchDest
	Compare
	SearchTracks
	CreatePlaylist
	ExportPlaylist
)

func (p Phase) String() string {
	switch p {
	case FetchSource:
		return "fetch_source"
	case FetchDest:
		return "fetch_dest"
	case Compare:
		return "compare"
	case SearchTracks:
		return "search_tracks"
	case CreatePlaylist:
		return "create_playlist"
	case ExportPlaylist:
		return "export_playlist"
	default:
		return ""
	}
}

func newUpdate(phase Phase, step, total int, data any, format string, args ...any) ProgressUpdate {
	return ProgressUpdate{Phase: phase, Step: step, Total: total, Message: fmt.Sprintf(format, args...), Data: data}
}

func fetchingSourceUpdate(step, total int, service string) ProgressUpdate {
	return newUpdate(FetchSource, step, total, nil, "Fetching source playlist from %s...", service)
}

func fetchSourceUpdate(step, total int, name string) ProgressUpdate {
	return newUpdate(FetchSource, step, total, nil, "Fetching source playlist (%s)...", name)
}

func fetchDestUpdate(step, total int, name string) ProgressUpdate {
	return newUpdate(FetchDest, step, total, nil, "Fetching destination playlist (%s)...", name)
}

func buildDestMapUpdate(step, total int) ProgressUpdate {
	return newUpdate(Compare, step, total, nil, "Building track comparison maps...")
}

func missingTrackUpdate(step, total int) ProgressUpdate {
	return newUpdate(Compare, step, total, nil, "Comparing tracks...")
}

// foundPlaylistUpdate carries the export so views can show the whole playlist next to the selection.
func foundPlaylistUpdate(step, total int, export *models.PlaylistExport, selected int) ProgressUpdate {
	if selected < len(export.Tracks) {
		return newUpdate(FetchSource, step, total, export,
			"Found playlist: %s (%d of %d tracks selected)", export.Playlist.Name, selected, len(export.Tracks))
	}
	return newUpdate(FetchSource, step, total, export, "Found playlist: %s (%d tracks)", export.Playlist.Name, selected)
}

// searchTracksUpdate announces the search phase when tr is nil, then reports each track.
func searchTracksUpdate(step, total int, tr *models.Track, service string) ProgressUpdate {
	if tr == nil {
		return newUpdate(SearchTracks, step, total, nil, "Searching for tracks on %s...", service)
	}
	return newUpdate(SearchTracks, step, total, *tr, "[%d/%d] %s - %s", step, total, tr.Artist, tr.Title)
}

func createDestinationUpdate(step, total int, service string, tracks int) ProgressUpdate {
	return newUpdate(CreatePlaylist, step, total, nil, "Creating playlist on %s with %d tracks...", service, tracks)
}

func createPlaylistUpdate(step, total int, pl *models.Playlist) ProgressUpdate {
	return newUpdate(CreatePlaylist, step, total, pl, "Playlist created: %s (ID: %s)", pl.Name, pl.ID)
}

func exportingPlaylistUpdate(step, total int, name string) ProgressUpdate {
	return newUpdate(ExportPlaylist, step, total, nil, "[%d/%d] Exporting: %s...", step, total, name)
}

func exportCompletedUpdate(step, total int, name string, filesCount int) ProgressUpdate {
	return newUpdate(ExportPlaylist, step, total, nil, "[%d/%d] ✓ %s (%d files)", step, total, name, filesCount)
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return newUpdate(ExportPlaylist, step, total, err, "[%d/%d] ✗ %s: %v", step, total, name, err)
}
