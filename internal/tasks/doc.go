// Package tasks orchestrates playlist operations between music services with real-time progress reporting.
//
// # Core Operations
//
//  1. [PlaylistEngine.Transfer] : copy a selection of tracks to another provider
//     - Uses the playlist export carried by the request, or resolves it by ID or name ([ResolvePlaylist])
//     - Transfers the selected tracks, or every track when the selection is empty
//     - Searches each track on the destination, consulting the ISRC cache first
//     - Creates the destination playlist from the matches; a run with no matches creates nothing
//
//  2. [PlaylistEngine.Diff] : compare playlists across services
//     - Matches tracks via ISRC (preferred) or normalized title/artist
//     - Reports matched count, missing tracks, and extra tracks
//
//  3. [PlaylistEngine.BulkExport] : write many playlists to disk
//     - Rate limited fetching with a worker pool of writers
//     - Writes a JSON manifest summarizing every playlist
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for UI rendering.
// Updates use select with default so a slow reader never blocks an operation.
//
// # Persistence
//
// Both collaborators are optional:
//   - [TransferRecorder] : records a pending transfer and its final status (repositories.TransferRepository)
//   - [TrackCacher] : caches provider tracks for ISRC lookups (repositories.TrackCacheAdapter)
//
// Errors from either are logged and never fail a transfer.
package tasks
