package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/services"
	"github.com/desertthunder/sonikswap/internal/shared"
)

// TrackMatchResult represents the result of attempting to match a single track.
type TrackMatchResult struct {
	Original models.Track  // Original track from source
	Matched  *models.Track // Matched track (nil if not found)
	Cached   bool          // Matched through the ISRC cache without a search
	Error    error         // Error if match failed
}

// TransferRunResult contains all data from a full transfer operation.
type TransferRunResult struct {
	SourcePlaylist  *models.PlaylistExport // Source playlist with all of its tracks
	DestPlaylist    *models.Playlist       // Created destination playlist
	Transfer        *models.Transfer       // Recorded history entry
	TrackMatches    []TrackMatchResult     // Individual track match results
	SuccessCount    int                    // Number of successfully matched tracks
	FailedCount     int                    // Number of failed matches
	TotalTracks     int                    // Tracks sent to the engine (the selection)
	MatchPercentage float64                // Success rate as percentage
}

// ComparisonResult contains track comparison details between two playlists.
type ComparisonResult struct {
	SourcePlaylist *models.PlaylistExport // Source playlist
	DestPlaylist   *models.PlaylistExport // Destination playlist
	MatchedCount   int                    // Tracks found in both
	MissingInDest  []models.Track         // Tracks in source but not in dest
	ExtraInDest    []models.Track         // Tracks in dest but not in source
}

// TransferDiffResult contains the results of comparing two playlists.
type TransferDiffResult struct {
	Comparison ComparisonResult
}

// TransferRequest describes one transfer.
//
// Export is optional; when nil the engine resolves SourceID on Source.
// An empty Selected transfers every track of the playlist.
type TransferRequest struct {
	Source   services.Service
	Dest     services.Service
	Export   *models.PlaylistExport
	SourceID string
	Selected []models.Track
	Name     string
	Public   bool
}

// TrackCacher stores provider tracks and finds them again by ISRC.
type TrackCacher interface {
	CacheTrack(provider models.Provider, track models.Track) error
	LookupISRC(provider models.Provider, isrc string) (*models.Track, error)
}

// TransferRecorder persists transfer history.
type TransferRecorder interface {
	Create(transfer *models.Transfer) error
	Update(transfer *models.Transfer) error
}

// SyncEngine defines operations for moving playlists between services.
type SyncEngine interface {
	// Transfer searches the requested tracks on the destination and creates a playlist from the matches.
	Transfer(ctx context.Context, req TransferRequest, progress chan<- ProgressUpdate) (*TransferRunResult, error)

	// Diff compares two playlists across services by identifying matched tracks, missing tracks, and extra tracks.
	Diff(ctx context.Context, sourceSvc, destSvc services.Service, sourceID, destID string, progress chan<- ProgressUpdate) (*TransferDiffResult, error)
}

// PlaylistEngine implements SyncEngine for playlist operations.
type PlaylistEngine struct {
	recorder TransferRecorder
	cache    TrackCacher
	logger   *log.Logger
}

// NewPlaylistEngine creates a new PlaylistEngine. recorder and cache may be nil.
func NewPlaylistEngine(recorder TransferRecorder, cache TrackCacher, logger *log.Logger) *PlaylistEngine {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &PlaylistEngine{recorder: recorder, cache: cache, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
func (e *PlaylistEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// ResolvePlaylist exports idOrName from svc, falling back to an exact name match over the user's playlists.
func ResolvePlaylist(ctx context.Context, svc services.Service, idOrName string) (*models.PlaylistExport, error) {
	if idOrName == "" {
		return nil, fmt.Errorf("%w: playlist id or name", shared.ErrMissingArgument)
	}

	export, err := svc.ExportPlaylist(ctx, idOrName)
	if err == nil {
		return export, nil
	}
	if errors.Is(err, shared.ErrTokenExpired) || errors.Is(err, shared.ErrNotAuthenticated) || ctx.Err() != nil {
		return nil, err
	}

	playlists, playlistsErr := svc.GetPlaylists(ctx)
	if playlistsErr != nil {
		return nil, fmt.Errorf("%w: failed to get playlists: %v", shared.ErrAPIRequest, playlistsErr)
	}

	for _, pl := range playlists {
		if pl.Name == idOrName {
			export, err = svc.ExportPlaylist(ctx, pl.ID)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to export playlist: %v", shared.ErrAPIRequest, err)
			}
			return export, nil
		}
	}

	return nil, fmt.Errorf("%w: no playlist found with id or name '%s'", shared.ErrPlaylistNotFound, idOrName)
}

// Transfer copies the requested tracks to a new playlist on req.Dest.
//
// A run that matches nothing fails before any playlist is created.
func (e *PlaylistEngine) Transfer(ctx context.Context, req TransferRequest, progress chan<- ProgressUpdate) (*TransferRunResult, error) {
	if req.Source == nil {
		return nil, fmt.Errorf("%w: source service not initialized", shared.ErrServiceUnavailable)
	}
	if req.Dest == nil {
		return nil, fmt.Errorf("%w: destination service not initialized", shared.ErrServiceUnavailable)
	}
	if req.Source.Provider() == req.Dest.Provider() {
		return nil, fmt.Errorf("%w: source and destination are both %s", shared.ErrInvalidArgument, req.Source.Name())
	}

	srcPlaylist := req.Export
	if srcPlaylist == nil {
		e.sendProgress(progress, fetchingSourceUpdate(1, 1, req.Source.Name()))
		export, err := ResolvePlaylist(ctx, req.Source, req.SourceID)
		if err != nil {
			return nil, err
		}
		srcPlaylist = export
	}

	tracks := req.Selected
	if len(tracks) == 0 {
		tracks = srcPlaylist.Tracks
	}
	total := len(tracks)

	name := req.Name
	if name == "" {
		name = srcPlaylist.Playlist.Name
	}

	logger := shared.WithLogger(e.logger, "from", req.Source.Provider(), "to", req.Dest.Provider(), "playlist", srcPlaylist.Playlist.ID)

	result := &TransferRunResult{SourcePlaylist: srcPlaylist, TotalTracks: total}
	sourceID := srcPlaylist.Playlist.ID
	if sourceID == "" {
		sourceID = req.SourceID
	}
	transfer := models.NewTransfer(req.Source.Provider(), req.Dest.Provider(), sourceID, name, total)
	result.Transfer = transfer
	e.record(logger, transfer, true)

	e.sendProgress(progress, foundPlaylistUpdate(1, 1, srcPlaylist, total))
	e.sendProgress(progress, searchTracksUpdate(0, total, nil, req.Dest.Name()))

	matches := make([]TrackMatchResult, total)
	successCount := 0

	for i, track := range tracks {
		if err := ctx.Err(); err != nil {
			result.TrackMatches = matches[:i]
			return result, e.fail(logger, result, successCount, err)
		}

		e.sendProgress(progress, searchTracksUpdate(i+1, total, &track, req.Dest.Name()))
		matches[i] = e.matchTrack(ctx, req, track)
		if matches[i].Error == nil {
			successCount++
		} else {
			logger.Debug("no match", "title", track.Title, "artist", track.Artist, "err", matches[i].Error)
		}
	}

	result.TrackMatches = matches
	result.SuccessCount = successCount
	result.FailedCount = total - successCount
	if result.TotalTracks > 0 {
		result.MatchPercentage = float64(successCount) / float64(result.TotalTracks) * 100
	}

	if successCount == 0 {
		return result, e.fail(logger, result, 0, fmt.Errorf("%w: no tracks were matched - cannot create empty playlist", shared.ErrNoMatches))
	}

	e.sendProgress(progress, createDestinationUpdate(1, 1, req.Dest.Name(), successCount))

	matchedTracks := make([]models.Track, 0, successCount)
	for _, match := range matches {
		if match.Matched != nil {
			matchedTracks = append(matchedTracks, *match.Matched)
		}
	}
	destExport := &models.PlaylistExport{
		Playlist: models.Playlist{
			Name:        name,
			Description: fmt.Sprintf("Transferred from %s: %s", req.Source.Name(), srcPlaylist.Playlist.Name),
			Public:      req.Public,
		},
		Tracks: matchedTracks,
	}

	importedPl, err := req.Dest.ImportPlaylist(ctx, destExport)
	if err != nil {
		return result, e.fail(logger, result, successCount, fmt.Errorf("%w: failed to create playlist: %v", shared.ErrAPIRequest, err))
	}

	result.DestPlaylist = importedPl
	transfer.Complete(importedPl.ID, successCount, result.FailedCount)
	e.record(logger, transfer, false)
	logger.Info("transfer completed", "dest", importedPl.ID, "matched", successCount, "failed", result.FailedCount)

	e.sendProgress(progress, createPlaylistUpdate(1, 1, importedPl))
	return result, nil
}

// matchTrack finds track on the destination, consulting the ISRC cache before searching.
func (e *PlaylistEngine) matchTrack(ctx context.Context, req TransferRequest, track models.Track) TrackMatchResult {
	e.cacheTrack(req.Source.Provider(), track)

	if e.cache != nil && track.ISRC != "" {
		if cached, err := e.cache.LookupISRC(req.Dest.Provider(), track.ISRC); err == nil && cached != nil {
			return TrackMatchResult{Original: track, Matched: cached, Cached: true}
		}
	}

	matched, err := req.Dest.SearchTrack(ctx, track)
	if err != nil {
		return TrackMatchResult{Original: track, Error: err}
	}
	if matched == nil {
		return TrackMatchResult{Original: track, Error: fmt.Errorf("%w: %s - %s", shared.ErrTrackNotFound, track.Artist, track.Title)}
	}
	e.cacheTrack(req.Dest.Provider(), *matched)
	return TrackMatchResult{Original: track, Matched: matched}
}

func (e *PlaylistEngine) cacheTrack(provider models.Provider, track models.Track) {
	if e.cache == nil {
		return
	}
	if err := e.cache.CacheTrack(provider, track); err != nil {
		e.logger.Debug("track cache write failed", "provider", provider, "track", track.ID, "err", err)
	}
}

func (e *PlaylistEngine) fail(logger *log.Logger, result *TransferRunResult, matched int, err error) error {
	failed := result.TotalTracks - matched
	result.SuccessCount = matched
	result.FailedCount = failed
	result.Transfer.Fail(matched, failed, err)
	e.record(logger, result.Transfer, false)
	logger.Error("transfer failed", "err", err)
	return err
}

// record writes transfer history. Failures are logged and never abort the transfer.
func (e *PlaylistEngine) record(logger *log.Logger, transfer *models.Transfer, create bool) {
	if e.recorder == nil {
		return
	}

	var err error
	if create {
		err = e.recorder.Create(transfer)
	} else if transfer.ID() != "" {
		err = e.recorder.Update(transfer)
	}
	if err != nil {
		logger.Warn("failed to record transfer", "err", err)
	}
}

// trackIndex finds tracks by ISRC and by normalized title|artist.
type trackIndex struct {
	isrc map[string]struct{}
	keys map[string]struct{}
}

func newTrackIndex(tracks []models.Track) trackIndex {
	idx := trackIndex{isrc: make(map[string]struct{}), keys: make(map[string]struct{})}
	for _, track := range tracks {
		if track.ISRC != "" {
			idx.isrc[track.ISRC] = struct{}{}
		}
		idx.keys[shared.NormalizeTrackKey(track.Title, track.Artist)] = struct{}{}
	}
	return idx
}

func (idx trackIndex) contains(track models.Track) bool {
	if track.ISRC != "" {
		if _, ok := idx.isrc[track.ISRC]; ok {
			return true
		}
	}
	_, ok := idx.keys[shared.NormalizeTrackKey(track.Title, track.Artist)]
	return ok
}

// Diff compares two playlists and identifies differences.
func (e *PlaylistEngine) Diff(ctx context.Context, sourceSvc, destSvc services.Service, sourceID, destID string, progress chan<- ProgressUpdate) (*TransferDiffResult, error) {
	if sourceSvc == nil || destSvc == nil {
		return nil, fmt.Errorf("%w: service not initialized", shared.ErrServiceUnavailable)
	}

	result := &TransferDiffResult{}

	e.sendProgress(progress, fetchSourceUpdate(1, 2, sourceSvc.Name()))
	sourceExport, err := sourceSvc.ExportPlaylist(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to export source playlist: %v", shared.ErrPlaylistNotFound, err)
	}

	e.sendProgress(progress, fetchDestUpdate(2, 2, destSvc.Name()))
	destExport, err := destSvc.ExportPlaylist(ctx, destID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to export destination playlist: %v", shared.ErrPlaylistNotFound, err)
	}

	result.Comparison.SourcePlaylist = sourceExport
	result.Comparison.DestPlaylist = destExport

	e.sendProgress(progress, buildDestMapUpdate(1, 2))
	destIdx := newTrackIndex(destExport.Tracks)
	sourceIdx := newTrackIndex(sourceExport.Tracks)

	e.sendProgress(progress, missingTrackUpdate(2, 2))
	for _, track := range sourceExport.Tracks {
		if destIdx.contains(track) {
			result.Comparison.MatchedCount++
		} else {
			result.Comparison.MissingInDest = append(result.Comparison.MissingInDest, track)
		}
	}
	for _, track := range destExport.Tracks {
		if !sourceIdx.contains(track) {
			result.Comparison.ExtraInDest = append(result.Comparison.ExtraInDest, track)
		}
	}

	return result, nil
}
