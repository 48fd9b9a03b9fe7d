package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.Playlist] to implement [list.Item].
type playlistItem struct {
	playlist models.Playlist
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string       { return i.playlist.Name }
func (i playlistItem) Description() string {
	desc := fmt.Sprintf("%d tracks", i.playlist.TrackCount)
	if i.playlist.Description != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.playlist.Description)
	}
	return desc
}

// trackItem wraps [models.Track] to implement [list.Item].
//
// The checkbox is read from selected on every render.
type trackItem struct {
	track    models.Track
	selected func(key string) bool
}

func (i trackItem) FilterValue() string { return i.track.Title + " " + i.track.Artist }

func (i trackItem) Title() string {
	box := "[ ]"
	if i.selected != nil && i.selected(i.track.Key()) {
		box = "[x]"
	}
	return fmt.Sprintf("%s %s", box, i.track.Title)
}

func (i trackItem) Description() string {
	desc := "    " + i.track.Artist
	if i.track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.track.Album)
	}
	if i.track.Duration > 0 {
		desc = fmt.Sprintf("%s • %s", desc, shared.FormatDuration(i.track.Duration))
	}
	return desc
}

// actionLabel is the action bar text for a selection of count out of total tracks.
func actionLabel(count, total int) string {
	if count == 0 {
		return fmt.Sprintf("Transfer all %d tracks", total)
	}
	return fmt.Sprintf("Transfer %d selected", count)
}
