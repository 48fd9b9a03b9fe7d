// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for moving tracks between providers:
//  1. [PlaylistListView] : Browse the source provider's playlists
//  2. [TrackListView] : Select tracks with space/x, select all with a, clear with esc
//  3. [ConfirmView] : Confirm the selected tracks, or every track when nothing is selected
//  4. [TransferView] : Monitor real-time progress updates
//  5. [ResultView] : Display success metrics and failed matches
//
// Track selection lives in a [selection.Store]. Rows render their checkbox from
// [selection.Store.IsSelected] and the action bar from [selection.Store.SelectedCount].
//
// Progress updates flow through a channel from the [tasks.PlaylistEngine].
package ui
