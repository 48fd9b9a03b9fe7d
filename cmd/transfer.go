package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
	"github.com/desertthunder/sonikswap/internal/tasks"
	"github.com/urfave/cli/v3"
)

type transferView struct {
	ID       string                `json:"id"`
	Sequence int                   `json:"sequence"`
	Source   models.Provider       `json:"source"`
	Dest     models.Provider       `json:"dest"`
	SourceID string                `json:"source_id"`
	DestID   string                `json:"dest_id,omitempty"`
	Name     string                `json:"name"`
	Selected int                   `json:"selected"`
	Matched  int                   `json:"matched"`
	Failed   int                   `json:"failed"`
	Status   models.TransferStatus `json:"status"`
	Message  string                `json:"message,omitempty"`
	Created  time.Time             `json:"created_at"`
}

func newTransferView(t *models.Transfer) transferView {
	return transferView{
		ID:       t.ID(),
		Sequence: t.Sequence(),
		Source:   t.Source(),
		Dest:     t.Dest(),
		SourceID: t.SourceID(),
		DestID:   t.DestID(),
		Name:     t.Name(),
		Selected: t.SelectedCount(),
		Matched:  t.MatchedCount(),
		Failed:   t.FailedCount(),
		Status:   t.Status(),
		Message:  t.Message(),
		Created:  t.CreatedAt(),
	}
}

// TransferRun copies a playlist, or the tracks picked with --track, to another provider.
func (r *Runner) TransferRun(ctx context.Context, cmd *cli.Command) error {
	source, err := r.serviceFlag(ctx, cmd, "from")
	if err != nil {
		return err
	}
	dest, err := r.serviceFlag(ctx, cmd, "to")
	if err != nil {
		return err
	}

	sourceIDOrName := cmd.String("playlist")
	r.logger.Info("starting transfer", "from", source.Name(), "to", dest.Name(), "playlist", sourceIDOrName)
	r.writePlain("Starting playlist transfer...\n")
	r.writePlain("Source: %s (%s)\n", sourceIDOrName, source.Name())
	r.writePlain("Destination: %s\n\n", dest.Name())

	export, err := tasks.ResolvePlaylist(ctx, source, sourceIDOrName)
	if err != nil {
		return err
	}
	selected, err := selectTracks(export, cmd.StringSlice("track"))
	if err != nil {
		return err
	}

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.FetchSource:
				r.writePlain("📥 %s\n", update.Message)
			case tasks.SearchTracks:
				if update.Step == 0 {
					r.writePlain("\n🔍 %s\n", update.Message)
				} else {
					r.writePlain("   %s\n", update.Message)
				}
			case tasks.CreatePlaylist:
				r.writePlain("\n📝 %s\n", update.Message)
			}
		}
	}()

	result, err := r.engine.Transfer(ctx, tasks.TransferRequest{
		Source:   source,
		Dest:     dest,
		Export:   export,
		SourceID: sourceIDOrName,
		Selected: selected,
		Name:     cmd.String("name"),
		Public:   cmd.Bool("public"),
	}, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Transfer Complete!")
	r.writePlain("Source: %s (%d of %d tracks)\n", result.SourcePlaylist.Playlist.Name, result.TotalTracks, len(result.SourcePlaylist.Tracks))
	r.writePlain("Destination: %s (ID: %s)\n", result.DestPlaylist.Name, result.DestPlaylist.ID)
	r.writePlain("Success rate: %d/%d (%.1f%%)\n", result.SuccessCount, result.TotalTracks, result.MatchPercentage)

	if result.FailedCount > 0 {
		r.writePlain("\nFailed to match %d tracks:\n", result.FailedCount)
		for _, match := range result.TrackMatches {
			if match.Error != nil {
				r.writePlain("  - %s - %s\n", match.Original.Artist, match.Original.Title)
			}
		}
	}

	return nil
}

// TransferDiff compares and shows missing tracks between two playlists.
func (r *Runner) TransferDiff(ctx context.Context, cmd *cli.Command) error {
	sourceSvc, err := r.serviceFlag(ctx, cmd, "from")
	if err != nil {
		return err
	}
	destSvc, err := r.serviceFlag(ctx, cmd, "to")
	if err != nil {
		return err
	}

	sourceID := cmd.String("source-id")
	destID := cmd.String("dest-id")
	r.logger.Info("transfer diff requested", "source", sourceID, "dest", destID)
	r.writePlain("Comparing playlists...\n\n")

	progressCh := make(chan tasks.ProgressUpdate, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			r.writePlain("📥 %s\n", update.Message)
		}
	}()

	result, err := r.engine.Diff(ctx, sourceSvc, destSvc, sourceID, destID, progressCh)
	close(progressCh)
	<-done

	if err != nil {
		return err
	}

	cmp := result.Comparison
	r.writePlain("\n✓ Source: %s (%d tracks)\n", cmp.SourcePlaylist.Playlist.Name, len(cmp.SourcePlaylist.Tracks))
	r.writePlain("✓ Destination: %s (%d tracks)\n\n", cmp.DestPlaylist.Playlist.Name, len(cmp.DestPlaylist.Tracks))

	r.writePlainHeader("Comparison Results")
	r.writePlain("Matched: %d tracks\n", cmp.MatchedCount)
	r.writePlain("Missing from destination: %d tracks\n", len(cmp.MissingInDest))
	r.writePlain("Extra in destination: %d tracks\n\n", len(cmp.ExtraInDest))

	r.writeTrackList("Missing from destination:", cmp.MissingInDest)
	r.writeTrackList("Extra in destination (not in source):", cmp.ExtraInDest)
	return nil
}

func (r *Runner) writeTrackList(title string, tracks []models.Track) {
	if len(tracks) == 0 {
		return
	}
	r.writePlain("%s\n", title)
	for i, track := range tracks {
		r.writePlain("  %d. %s - %s", i+1, track.Artist, track.Title)
		if track.Album != "" {
			r.writePlain(" (%s)", track.Album)
		}
		r.writePlain("\n")
	}
	r.writePlain("\n")
}

// TransferHistory lists recorded transfers, newest first.
func (r *Runner) TransferHistory(ctx context.Context, cmd *cli.Command) error {
	if err := r.store(); err != nil {
		return err
	}

	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if cmd.String("provider") != "" {
		p, err := parseProvider(cmd, "provider")
		if err != nil {
			return err
		}
		criteria["provider"] = p
	}
	if status := cmd.String("status"); status != "" {
		switch s := models.TransferStatus(status); s {
		case models.TransferPending, models.TransferCompleted, models.TransferFailed:
			criteria["status"] = s
		default:
			return fmt.Errorf("%w: unknown status %q", shared.ErrInvalidArgument, status)
		}
	}

	transfers, err := r.transfers.List(criteria)
	if err != nil {
		return err
	}

	views := make([]transferView, 0, len(transfers))
	for _, t := range transfers {
		views = append(views, newTransferView(t))
	}

	if cmd.Bool("json") {
		return r.writeJSON(views, true)
	}

	if len(views) == 0 {
		r.writePlain("No transfers recorded.\n")
		return nil
	}

	r.writePlainHeader("Transfer history")
	for _, v := range views {
		r.writePlain("#%-4d %-9s %s → %s  %s  %d/%d matched  %s\n",
			v.Sequence, v.Status, v.Source, v.Dest, v.Name, v.Matched, v.Selected, v.Created.Local().Format(time.DateTime))
		if v.Message != "" {
			r.writePlain("      %s\n", v.Message)
		}
	}
	return nil
}

// TransferForget deletes a transfer from the history.
func (r *Runner) TransferForget(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("%w: transfer id", shared.ErrMissingArgument)
	}
	if err := r.store(); err != nil {
		return err
	}
	if err := r.transfers.Delete(id); err != nil {
		return err
	}
	r.writePlain("✓ Transfer %s removed\n", id)
	return nil
}

func transferCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "transfer",
		Usage: "Transfer playlists between providers",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Copy a playlist, or selected tracks, to another provider",
				Flags: []cli.Flag{
					providerFlag("from", "Source provider", true),
					providerFlag("to", "Destination provider", true),
					&cli.StringFlag{
						Name:     "playlist",
						Aliases:  []string{"p"},
						Usage:    "Source playlist ID or exact name",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "track",
						Usage: "Track key to transfer (repeatable, default all)",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Destination playlist name (default: source name)",
					},
					&cli.BoolFlag{
						Name:  "public",
						Usage: "Make the destination playlist public",
					},
				},
				Action: r.TransferRun,
			},
			{
				Name:  "diff",
				Usage: "Compare and show missing tracks between two playlists",
				Flags: []cli.Flag{
					providerFlag("from", "Source provider", true),
					providerFlag("to", "Destination provider", true),
					&cli.StringFlag{
						Name:     "source-id",
						Usage:    "Source playlist ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "dest-id",
						Usage:    "Destination playlist ID",
						Required: true,
					},
				},
				Action: r.TransferDiff,
			},
			{
				Name:  "history",
				Usage: "List recorded transfers",
				Flags: []cli.Flag{
					providerFlag("provider", "Only transfers from or to this provider", false),
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only transfers with this status (pending, completed, failed)",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of transfers to return",
					},
					jsonFlag(),
				},
				Action: r.TransferHistory,
			},
			{
				Name:      "forget",
				Usage:     "Delete a transfer from the history",
				ArgsUsage: "<transfer-id>",
				Action:    r.TransferForget,
			},
		},
	}
}
