// package formatter renders playlists, or a selection of their tracks, as CSV, Markdown, plain text or JSON
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
)

// Format is an export file format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
)

// Formats lists the supported export formats.
var Formats = []Format{FormatCSV, FormatMarkdown, FormatText, FormatJSON}

// ParseFormat converts a user supplied name into a [Format].
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	case "json", "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (csv, md, txt, json)", shared.ErrInvalidArgument, s)
	}
}

// Selection returns a copy of export limited to tracks. The playlist's TrackCount keeps the full size.
func Selection(export *models.PlaylistExport, tracks []models.Track) *models.PlaylistExport {
	out := &models.PlaylistExport{Playlist: export.Playlist, Tracks: append([]models.Track(nil), tracks...)}
	if out.Playlist.TrackCount == 0 {
		out.Playlist.TrackCount = len(export.Tracks)
	}
	return out
}

// Render converts export to the given format.
func Render(export *models.PlaylistExport, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(export)
	case FormatMarkdown:
		return ExportToMarkdown(export)
	case FormatText:
		return ExportToText(export)
	case FormatJSON:
		return ExportToJSON(export)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// ExportToCSV converts a PlaylistExport to CSV format with columns: Key, Title, Artist, Album, Duration, ISRC
//
// Key is the selection key accepted by --track flags.
func ExportToCSV(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Key", "Title", "Artist", "Album", "Duration", "ISRC"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks {
		record := []string{
			track.Key(),
			track.Title,
			track.Artist,
			track.Album,
			strconv.Itoa(track.Duration),
			track.ISRC,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a PlaylistExport to Markdown format
func ExportToMarkdown(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.Playlist.Name)

	if export.Playlist.Description != "" {
		fmt.Fprintf(&buf, "**Description**: %s\n\n", export.Playlist.Description)
	}
	if export.Playlist.Owner != "" {
		fmt.Fprintf(&buf, "**Owner**: %s\n", export.Playlist.Owner)
	}

	fmt.Fprintf(&buf, "**Tracks**: %s\n", trackCount(export))
	fmt.Fprintf(&buf, "**Visibility**: %s\n\n", shared.VisibilityString(export.Playlist.Public))

	buf.WriteString("## Tracks\n\n")
	for i, track := range export.Tracks {
		duration := shared.FormatDuration(track.Duration)
		albumPart := ""
		if track.Album != "" {
			albumPart = fmt.Sprintf(" (%s)", track.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", i+1, track.Artist, track.Title, albumPart, duration)
	}

	return buf.Bytes(), nil
}

// ExportToText converts a PlaylistExport to plain text format
func ExportToText(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", export.Playlist.Name)
	if export.Playlist.Description != "" {
		fmt.Fprintf(&buf, "Description: %s\n", export.Playlist.Description)
	}
	fmt.Fprintf(&buf, "Tracks: %s\n\n", trackCount(export))

	for i, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, track.Artist, track.Title)
	}

	return buf.Bytes(), nil
}

// ExportToJSON renders the playlist and tracks as indented JSON
func ExportToJSON(export *models.PlaylistExport) ([]byte, error) {
	return shared.MarshalJSON(export, true)
}

// ToMetadataJSON generates a JSON representation of playlist metadata (without tracks)
func ToMetadataJSON(playlist models.Playlist) ([]byte, error) {
	return shared.MarshalJSON(playlist, true)
}

func trackCount(export *models.PlaylistExport) string {
	total := export.Playlist.TrackCount
	if total > len(export.Tracks) {
		return fmt.Sprintf("%d of %d", len(export.Tracks), total)
	}
	return strconv.Itoa(len(export.Tracks))
}

var unsafeFilename = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// BaseName returns a filesystem safe name for the playlist, falling back to its ID.
func BaseName(playlist models.Playlist) string {
	name := strings.Trim(unsafeFilename.ReplaceAllString(strings.TrimSpace(playlist.Name), "_"), "_")
	if name == "" {
		name = unsafeFilename.ReplaceAllString(playlist.ID, "_")
	}
	if name == "" {
		name = "playlist"
	}
	return name
}

// WriteResult lists the files created by [WriteExport].
type WriteResult struct {
	Format Format
	Files  []string
}

// WriteExport writes export in format under dir, creating dir when needed.
//
// CSV writes {base}_tracks.csv and {base}_metadata.json, Markdown writes {base}/README.md,
// text writes {base}_tracks.txt and JSON writes {base}.json.
func WriteExport(export *models.PlaylistExport, format Format, dir string) (*WriteResult, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	base := filepath.Join(dir, BaseName(export.Playlist))
	result := &WriteResult{Format: format}

	write := func(path string, data []byte) error {
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		result.Files = append(result.Files, path)
		return nil
	}

	data, err := Render(export, format)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatCSV:
		if err := write(base+"_tracks.csv", data); err != nil {
			return nil, err
		}
		meta, err := ToMetadataJSON(export.Playlist)
		if err != nil {
			return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
		}
		if err := write(base+"_metadata.json", meta); err != nil {
			return nil, err
		}
	case FormatMarkdown:
		if err := os.MkdirAll(base, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := write(filepath.Join(base, "README.md"), data); err != nil {
			return nil, err
		}
	case FormatText:
		if err := write(base+"_tracks.txt", data); err != nil {
			return nil, err
		}
	case FormatJSON:
		if err := write(base+".json", data); err != nil {
			return nil, err
		}
	}

	return result, nil
}
