package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/sonikswap/internal/formatter"
	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/selection"
	"github.com/desertthunder/sonikswap/internal/shared"
	"github.com/desertthunder/sonikswap/internal/tasks"
	"github.com/sahilm/fuzzy"
	"github.com/urfave/cli/v3"
)

// playlistSource adapts playlists to [fuzzy.Source] by name.
type playlistSource []models.Playlist

func (p playlistSource) String(i int) string { return p[i].Name }
func (p playlistSource) Len() int            { return len(p) }

// filterPlaylists returns playlists whose names fuzzy match pattern, best match first.
func filterPlaylists(playlists []models.Playlist, pattern string) []models.Playlist {
	if pattern == "" {
		return playlists
	}
	matches := fuzzy.FindFrom(pattern, playlistSource(playlists))
	filtered := make([]models.Playlist, 0, len(matches))
	for _, m := range matches {
		filtered = append(filtered, playlists[m.Index])
	}
	return filtered
}

// selectTracks narrows export to the tracks named by keys using a selection store.
//
// No keys selects the whole playlist. Unknown keys are an error.
func selectTracks(export *models.PlaylistExport, keys []string) ([]models.Track, error) {
	store := selection.New(models.TrackKey)
	store.Initialize(export.Tracks)
	if len(keys) == 0 {
		return store.Items(), nil
	}

	set := selection.Set{}
	for _, k := range keys {
		set[strings.TrimSpace(k)] = true
	}
	store.SetSelection(set)

	if store.SelectedCount() != set.Count() {
		known := map[string]bool{}
		for _, t := range store.SelectedItems() {
			known[t.Key()] = true
		}
		var unknown []string
		for _, k := range keys {
			if !known[strings.TrimSpace(k)] {
				unknown = append(unknown, k)
			}
		}
		return nil, fmt.Errorf("%w: unknown track keys %s", shared.ErrInvalidArgument, strings.Join(unknown, ", "))
	}
	return store.SelectedItems(), nil
}

// PlaylistList lists playlists for a provider with an optional fuzzy name filter.
func (r *Runner) PlaylistList(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.serviceFlag(ctx, cmd, "provider")
	if err != nil {
		return err
	}

	r.logger.Infof("listing %s playlists", svc.Name())
	playlists, err := svc.GetPlaylists(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch playlists: %w", err)
	}

	playlists = filterPlaylists(playlists, cmd.String("filter"))
	if limit := int(cmd.Int("limit")); limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, true)
	}

	r.writePlainHeader(fmt.Sprintf("%s playlists (%d)", svc.Name(), len(playlists)))
	for _, p := range playlists {
		r.writePlain("%-24s %-40s %4d tracks  %s\n", p.ID, p.Name, p.TrackCount, shared.VisibilityString(p.Public))
	}
	return nil
}

// PlaylistTracks prints the tracks of a playlist with the keys accepted by --track.
func (r *Runner) PlaylistTracks(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.serviceFlag(ctx, cmd, "provider")
	if err != nil {
		return err
	}

	export, err := tasks.ResolvePlaylist(ctx, svc, cmd.String("id"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(export, true)
	}

	r.writePlainHeader(fmt.Sprintf("%s (%d tracks)", export.Playlist.Name, len(export.Tracks)))
	for i, t := range export.Tracks {
		r.writePlain("%3d. %-24s %s - %s [%s]\n", i+1, t.Key(), t.Artist, t.Title, shared.FormatDuration(t.Duration))
	}
	return nil
}

// PlaylistExport writes playlists to disk or stdout.
//
// A single playlist without --output is rendered to stdout and may be narrowed with --track.
// Several playlists, or --all, run as a bulk export with a manifest.
func (r *Runner) PlaylistExport(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.serviceFlag(ctx, cmd, "provider")
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	ids := cmd.StringSlice("id")
	if cmd.Bool("all") {
		playlists, err := svc.GetPlaylists(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch playlists: %w", err)
		}
		ids = nil
		for _, p := range playlists {
			ids = append(ids, p.ID)
		}
	}

	switch len(ids) {
	case 0:
		return fmt.Errorf("%w: --id or --all", shared.ErrMissingArgument)
	case 1:
		if !cmd.Bool("all") {
			return r.exportOne(ctx, cmd, ids[0], format)
		}
	}

	if len(cmd.StringSlice("track")) > 0 {
		return fmt.Errorf("%w: --track applies to a single playlist", shared.ErrInvalidArgument)
	}
	return r.exportMany(ctx, cmd, ids, format)
}

func (r *Runner) exportOne(ctx context.Context, cmd *cli.Command, id string, format formatter.Format) error {
	svc, err := r.serviceFlag(ctx, cmd, "provider")
	if err != nil {
		return err
	}

	export, err := tasks.ResolvePlaylist(ctx, svc, id)
	if err != nil {
		return err
	}

	tracks, err := selectTracks(export, cmd.StringSlice("track"))
	if err != nil {
		return err
	}
	if len(tracks) != len(export.Tracks) {
		export = formatter.Selection(export, tracks)
	}

	out := cmd.String("output")
	if out == "" {
		data, err := formatter.Render(export, format)
		if err != nil {
			return err
		}
		if _, err := r.output.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	written, err := formatter.WriteExport(export, format, out)
	if err != nil {
		return err
	}

	r.logger.Info("playlist exported", "playlist", export.Playlist.Name, "format", format, "files", len(written.Files))
	r.writePlain("✓ Exported %s (%d tracks)\n", export.Playlist.Name, len(export.Tracks))
	for _, f := range written.Files {
		r.writePlain("  %s\n", f)
	}
	return nil
}

func (r *Runner) exportMany(ctx context.Context, cmd *cli.Command, ids []string, format formatter.Format) error {
	svc, err := r.serviceFlag(ctx, cmd, "provider")
	if err != nil {
		return err
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			if update.Phase == tasks.ExportPlaylist {
				r.writePlain("📦 %s\n", update.Message)
			}
		}
	}()

	result, err := r.engine.BulkExport(ctx, progressCh, svc, ids, tasks.BulkExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  r.cfg().Transfer.RateLimit,
	})
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Export Complete!")
	r.writePlain("Exported: %d/%d playlists\n", result.SuccessfulExports, result.TotalPlaylists)
	r.writePlain("Directory: %s\n", result.OutputDirectory)
	r.writePlain("Manifest: %s\n", result.ManifestPath)

	if result.FailedExports > 0 {
		r.writePlain("\nFailed to export %d playlists:\n", result.FailedExports)
		for _, res := range result.Results {
			if !res.Success {
				r.writePlain("  - %s: %s\n", res.PlaylistID, res.ErrorMessage)
			}
		}
	}
	return nil
}

func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "playlists",
		Aliases: []string{"pl"},
		Usage:   "Browse and export provider playlists",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List playlists",
				Flags: []cli.Flag{
					providerFlag("provider", "Provider", true),
					&cli.StringFlag{
						Name:    "filter",
						Aliases: []string{"f"},
						Usage:   "Fuzzy filter on playlist names",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of playlists to return",
					},
					jsonFlag(),
				},
				Action: r.PlaylistList,
			},
			{
				Name:  "tracks",
				Usage: "List the tracks of a playlist and their selection keys",
				Flags: []cli.Flag{
					providerFlag("provider", "Provider", true),
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Playlist ID or exact name",
						Required: true,
					},
					jsonFlag(),
				},
				Action: r.PlaylistTracks,
			},
			{
				Name:  "export",
				Usage: "Export playlists as csv, md, txt or json",
				Flags: []cli.Flag{
					providerFlag("provider", "Provider", true),
					&cli.StringSliceFlag{
						Name:  "id",
						Usage: "Playlist ID or exact name (repeatable)",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Export every playlist",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Output format (csv, md, txt, json)",
						Value: string(formatter.FormatJSON),
					},
					&cli.StringSliceFlag{
						Name:  "track",
						Usage: "Track key to include (repeatable, single playlist only)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent writers for bulk exports",
						Value: 5,
					},
				},
				Action: r.PlaylistExport,
			},
		},
	}
}
