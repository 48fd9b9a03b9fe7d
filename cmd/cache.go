package main

import (
	"context"
	"time"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/repositories"
	"github.com/urfave/cli/v3"
)

type cachedTrackView struct {
	Provider models.Provider `json:"provider"`
	Track    models.Track    `json:"track"`
	CachedAt time.Time       `json:"cached_at"`
}

// CacheTracks lists tracks cached by transfers for ISRC matching.
//
// Tracks are cached automatically during 'sonik transfer run'.
func (r *Runner) CacheTracks(ctx context.Context, cmd *cli.Command) error {
	if err := r.store(); err != nil {
		return err
	}

	criteria := map[string]any{"isrc": cmd.String("isrc")}
	if cmd.String("provider") != "" {
		p, err := parseProvider(cmd, "provider")
		if err != nil {
			return err
		}
		criteria["provider"] = p
	}

	tracks, err := r.tracks.List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		views := make([]cachedTrackView, 0, len(tracks))
		for _, t := range tracks {
			views = append(views, cachedTrackView{Provider: t.Provider, Track: t.Track, CachedAt: t.CreatedAt})
		}
		return r.writeJSON(views, true)
	}

	if len(tracks) == 0 {
		r.writePlain("No cached tracks.\n")
		r.writePlain("Tracks are cached automatically during 'sonik transfer run'.\n")
		return nil
	}

	r.writePlainHeader("Cached tracks")
	for _, t := range tracks {
		r.writePlain("%-8s %-14s %s - %s\n", t.Provider, cachedISRC(t), t.Track.Artist, t.Track.Title)
	}
	return nil
}

func cachedISRC(t *repositories.CachedTrack) string {
	if t.Track.ISRC == "" {
		return "-"
	}
	return t.Track.ISRC
}

// cacheCommand inspects the local track cache
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect the local track cache",
		Commands: []*cli.Command{
			{
				Name:  "tracks",
				Usage: "List cached tracks",
				Flags: []cli.Flag{
					providerFlag("provider", "Only tracks from this provider", false),
					&cli.StringFlag{
						Name:  "isrc",
						Usage: "Only tracks with this ISRC",
					},
					jsonFlag(),
				},
				Action: r.CacheTracks,
			},
		},
	}
}
