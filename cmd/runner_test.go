package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/services"
	"github.com/desertthunder/sonikswap/internal/shared"
	th "github.com/desertthunder/sonikswap/internal/testing"
)

func newSpotifyMock() *th.MockService {
	road := &models.PlaylistExport{
		Playlist: models.Playlist{ID: "pl1", Name: "Road Trip", TrackCount: 3},
		Tracks: []models.Track{
			{ID: "s1", Title: "Song One", Artist: "Artist A", Album: "First", Duration: 200, ISRC: "ISRC1"},
			{ID: "s2", Title: "Song Two", Artist: "Artist B", Duration: 185},
			{ID: "s3", Title: "Song Three", Artist: "Artist C", Duration: 240},
		},
	}
	chill := &models.PlaylistExport{
		Playlist: models.Playlist{ID: "pl2", Name: "Chill Vibes", TrackCount: 1},
		Tracks:   []models.Track{{ID: "s4", Title: "Slow Down", Artist: "Artist D"}},
	}
	return &th.MockService{
		ServiceName: "Spotify",
		ProviderID:  models.Spotify,
		Playlists:   []models.Playlist{road.Playlist, chill.Playlist},
		Exports:     map[string]*models.PlaylistExport{"pl1": road, "pl2": chill},
	}
}

func newDeezerMock() *th.MockService {
	return &th.MockService{
		ServiceName: "Deezer",
		ProviderID:  models.Deezer,
		Results: map[string]*models.Track{
			"Song One|Artist A": {ID: "d1", Title: "Song One", Artist: "Artist A", ISRC: "ISRC1"},
			"Song Two|Artist B": {ID: "d2", Title: "Song Two", Artist: "Artist B"},
		},
		Exports: map[string]*models.PlaylistExport{
			"dz1": {
				Playlist: models.Playlist{ID: "dz1", Name: "Road Trip"},
				Tracks:   []models.Track{{ID: "d1", Title: "Song One", Artist: "Artist A", ISRC: "ISRC1"}},
			},
		},
	}
}

func newTestRunner(t *testing.T, mocks ...*th.MockService) (*Runner, *bytes.Buffer) {
	t.Helper()

	db, err := shared.OpenDatabase(shared.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	svcs := map[models.Provider]services.Service{}
	for _, m := range mocks {
		svcs[m.Provider()] = m
	}

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Config:   shared.DefaultConfig(),
		DB:       db,
		Services: svcs,
		Logger:   shared.NewLogger(io.Discard),
		Output:   output,
	})
	return runner, output
}

func run(r *Runner, args ...string) error {
	return newApp(r).Run(context.Background(), append([]string{"sonik"}, args...))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			spotify := newSpotifyMock()

			runner := NewRunner(RunnerOpts{
				Config:   config,
				Logger:   logger,
				Output:   output,
				Services: map[models.Provider]services.Service{models.Spotify: spotify},
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.services[models.Spotify] != spotify {
				t.Error("expected spotify service to be set")
			}
			if runner.db != nil || runner.engine != nil {
				t.Error("expected database and engine to be opened lazily")
			}
		})

		t.Run("with database wires repositories and engine", func(t *testing.T) {
			runner, _ := newTestRunner(t)

			if runner.accounts == nil || runner.transfers == nil || runner.tracks == nil {
				t.Error("expected repositories to be set")
			}
			if runner.engine == nil {
				t.Error("expected engine to be set")
			}
			if runner.ownsDB {
				t.Error("expected injected database to stay open after commands")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})

			if runner.cfg() == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/test/path/config.toml"})

			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil {
				t.Fatal("expected error for non-serializable data")
			}
			if !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &th.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := th.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil {
				t.Fatal("expected error writing newline")
			}
			if !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &th.FWriter{}})

			err := runner.writePlain("test")
			if err == nil {
				t.Fatal("expected error from failing writer")
			}
			if !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		commands := runner.register()

		names := map[string]bool{}
		for i, cmd := range commands {
			if cmd == nil {
				t.Fatalf("command at index %d is nil", i)
			}
			names[cmd.Name] = true
		}

		for _, want := range []string{"setup", "accounts", "playlists", "transfer", "cache", "tui"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})
}

func TestRunnerService(t *testing.T) {
	ctx := context.Background()

	t.Run("returns injected service", func(t *testing.T) {
		spotify := newSpotifyMock()
		runner, _ := newTestRunner(t, spotify)

		svc, err := runner.service(ctx, models.Spotify)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if svc != spotify {
			t.Error("expected injected service")
		}
	})

	t.Run("unlinked provider", func(t *testing.T) {
		runner, _ := newTestRunner(t)

		_, err := runner.service(ctx, models.Deezer)
		if !errors.Is(err, shared.ErrAccountNotLinked) {
			t.Fatalf("expected ErrAccountNotLinked, got %v", err)
		}
		if !strings.Contains(err.Error(), "sonik accounts link") {
			t.Errorf("expected link hint, got %v", err)
		}
	})

	t.Run("restores session from stored account", func(t *testing.T) {
		runner, _ := newTestRunner(t)

		account := models.NewAccount(models.Spotify, "user1", "Test User")
		account.SetTokens("access", "refresh", time.Now().Add(time.Hour))
		if err := runner.accounts.Upsert(account); err != nil {
			t.Fatalf("failed to link account: %v", err)
		}

		svc, err := runner.service(ctx, models.Spotify)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := svc.(*services.SpotifyService); !ok {
			t.Fatalf("expected *services.SpotifyService, got %T", svc)
		}

		again, err := runner.service(ctx, models.Spotify)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if again != svc {
			t.Error("expected service to be reused")
		}
	})

	t.Run("missing credentials", func(t *testing.T) {
		runner, _ := newTestRunner(t)
		runner.config.Credentials.Deezer.AppID = ""

		account := models.NewAccount(models.Deezer, "42", "dz user")
		account.SetTokens("access", "", time.Time{})
		if err := runner.accounts.Upsert(account); err != nil {
			t.Fatalf("failed to link account: %v", err)
		}

		_, err := runner.service(ctx, models.Deezer)
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("invalid provider flag", func(t *testing.T) {
		runner, _ := newTestRunner(t)

		err := run(runner, "playlists", "list", "--provider", "tidal")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestSelectTracks(t *testing.T) {
	export := newSpotifyMock().Exports["pl1"]

	tests := []struct {
		name    string
		keys    []string
		want    []string
		wantErr error
	}{
		{name: "no keys selects all", keys: nil, want: []string{"s1", "s2", "s3"}},
		{name: "keeps playlist order", keys: []string{"s3", "s1"}, want: []string{"s1", "s3"}},
		{name: "duplicate keys", keys: []string{"s2", " s2 "}, want: []string{"s2"}},
		{name: "unknown key", keys: []string{"s1", "nope"}, wantErr: shared.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectTracks(export, tt.keys)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if !strings.Contains(err.Error(), "nope") {
					t.Errorf("expected unknown key in error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			ids := make([]string, len(got))
			for i, track := range got {
				ids[i] = track.ID
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("expected %v, got %v", tt.want, ids)
			}
		})
	}
}

func TestFilterPlaylists(t *testing.T) {
	playlists := newSpotifyMock().Playlists

	tests := []struct {
		pattern string
		want    int
	}{
		{"", 2},
		{"road", 1},
		{"chv", 1},
		{"zzz", 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("pattern %q", tt.pattern), func(t *testing.T) {
			got := filterPlaylists(playlists, tt.pattern)
			if len(got) != tt.want {
				t.Errorf("expected %d playlists, got %d", tt.want, len(got))
			}
		})
	}
}

func TestPlaylistCommands(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		runner, output := newTestRunner(t, newSpotifyMock())

		if err := run(runner, "playlists", "list", "--provider", "spotify"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{"Spotify playlists (2)", "Road Trip", "Chill Vibes"} {
			if !strings.Contains(output.String(), want) {
				t.Errorf("expected output to contain %q, got %s", want, output.String())
			}
		}
	})

	t.Run("list with filter as JSON", func(t *testing.T) {
		runner, output := newTestRunner(t, newSpotifyMock())

		if err := run(runner, "playlists", "list", "--provider", "spot", "--filter", "chill", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var playlists []models.Playlist
		if err := json.Unmarshal(output.Bytes(), &playlists); err != nil {
			t.Fatalf("failed to decode output: %v", err)
		}
		if len(playlists) != 1 || playlists[0].ID != "pl2" {
			t.Errorf("expected only Chill Vibes, got %+v", playlists)
		}
	})

	t.Run("list failure", func(t *testing.T) {
		spotify := newSpotifyMock()
		spotify.PlaylistsErr = shared.ErrTokenExpired
		runner, _ := newTestRunner(t, spotify)

		err := run(runner, "playlists", "list", "--provider", "spotify")
		if !errors.Is(err, shared.ErrTokenExpired) {
			t.Errorf("expected ErrTokenExpired, got %v", err)
		}
	})

	t.Run("tracks by name", func(t *testing.T) {
		runner, output := newTestRunner(t, newSpotifyMock())

		if err := run(runner, "playlists", "tracks", "--provider", "spotify", "--id", "Road Trip"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{"Road Trip (3 tracks)", "s1", "Artist A - Song One [3:20]"} {
			if !strings.Contains(output.String(), want) {
				t.Errorf("expected output to contain %q, got %s", want, output.String())
			}
		}
	})

	t.Run("export selected tracks to stdout", func(t *testing.T) {
		runner, output := newTestRunner(t, newSpotifyMock())

		err := run(runner, "playlists", "export", "--provider", "spotify", "--id", "pl1", "--format", "csv", "--track", "s2")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Song Two") {
			t.Errorf("expected selected track in output, got %s", output.String())
		}
		if strings.Contains(output.String(), "Song One") {
			t.Errorf("expected unselected tracks to be omitted, got %s", output.String())
		}
	})

	t.Run("export unknown track key", func(t *testing.T) {
		runner, _ := newTestRunner(t, newSpotifyMock())

		err := run(runner, "playlists", "export", "--provider", "spotify", "--id", "pl1", "--track", "missing")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("export to directory", func(t *testing.T) {
		runner, output := newTestRunner(t, newSpotifyMock())
		dir := t.TempDir()

		err := run(runner, "playlists", "export", "--provider", "spotify", "--id", "pl1", "--format", "md", "-o", dir)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		th.AssertFileExists(t, filepath.Join(dir, "Road_Trip", "README.md"))
		if !strings.Contains(output.String(), "Exported Road Trip (3 tracks)") {
			t.Errorf("expected export summary, got %s", output.String())
		}
	})

	t.Run("export all", func(t *testing.T) {
		runner, output := newTestRunner(t, newSpotifyMock())
		dir := t.TempDir()

		if err := run(runner, "playlists", "export", "--provider", "spotify", "--all", "-o", dir); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		th.AssertFileExists(t, filepath.Join(dir, "export_manifest.json"))
		th.AssertFileExists(t, filepath.Join(dir, "pl1", "Road_Trip.json"))
		th.AssertFileExists(t, filepath.Join(dir, "pl2", "Chill_Vibes.json"))
		if !strings.Contains(output.String(), "Exported: 2/2 playlists") {
			t.Errorf("expected bulk summary, got %s", output.String())
		}
	})

	t.Run("export needs a playlist", func(t *testing.T) {
		runner, _ := newTestRunner(t, newSpotifyMock())

		err := run(runner, "playlists", "export", "--provider", "spotify")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("track keys need a single playlist", func(t *testing.T) {
		runner, _ := newTestRunner(t, newSpotifyMock())

		err := run(runner, "playlists", "export", "--provider", "spotify", "--id", "pl1", "--id", "pl2", "--track", "s1")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestTransferCommands(t *testing.T) {
	t.Run("run selected tracks", func(t *testing.T) {
		deezer := newDeezerMock()
		runner, output := newTestRunner(t, newSpotifyMock(), deezer)

		err := run(runner, "transfer", "run", "--from", "spotify", "--to", "deezer", "--playlist", "pl1", "--track", "s1", "--name", "Picked")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if len(deezer.Imported) != 1 {
			t.Fatalf("expected one import, got %d", len(deezer.Imported))
		}
		imported := deezer.Imported[0]
		if imported.Playlist.Name != "Picked" || len(imported.Tracks) != 1 {
			t.Errorf("expected one track in Picked, got %+v", imported)
		}
		if deezer.SearchCount() != 1 {
			t.Errorf("expected only the selected track to be searched, got %d searches", deezer.SearchCount())
		}
		for _, want := range []string{"Transfer Complete!", "Road Trip (1 of 3 tracks)", "Success rate: 1/1"} {
			if !strings.Contains(output.String(), want) {
				t.Errorf("expected output to contain %q, got %s", want, output.String())
			}
		}

		transfers, err := runner.transfers.List(map[string]any{})
		if err != nil {
			t.Fatalf("failed to list transfers: %v", err)
		}
		if len(transfers) != 1 || transfers[0].Status() != models.TransferCompleted {
			t.Fatalf("expected one completed transfer, got %+v", transfers)
		}
		if transfers[0].SelectedCount() != 1 {
			t.Errorf("expected selected count 1, got %d", transfers[0].SelectedCount())
		}
	})

	t.Run("run all tracks reports failures", func(t *testing.T) {
		runner, output := newTestRunner(t, newSpotifyMock(), newDeezerMock())

		if err := run(runner, "transfer", "run", "--from", "spotify", "--to", "deezer", "--playlist", "Road Trip"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{"Success rate: 2/3", "Failed to match 1 tracks", "Artist C - Song Three"} {
			if !strings.Contains(output.String(), want) {
				t.Errorf("expected output to contain %q, got %s", want, output.String())
			}
		}
	})

	t.Run("run with no matches", func(t *testing.T) {
		deezer := newDeezerMock()
		runner, _ := newTestRunner(t, newSpotifyMock(), deezer)

		err := run(runner, "transfer", "run", "--from", "spotify", "--to", "deezer", "--playlist", "pl1", "--track", "s3")
		if !errors.Is(err, shared.ErrNoMatches) {
			t.Fatalf("expected ErrNoMatches, got %v", err)
		}
		if len(deezer.Imported) != 0 {
			t.Error("expected no playlist to be created")
		}

		transfers, _ := runner.transfers.List(map[string]any{"status": models.TransferFailed})
		if len(transfers) != 1 {
			t.Errorf("expected one failed transfer, got %d", len(transfers))
		}
	})

	t.Run("run between the same provider", func(t *testing.T) {
		runner, _ := newTestRunner(t, newSpotifyMock())

		err := run(runner, "transfer", "run", "--from", "spotify", "--to", "spot", "--playlist", "pl1")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("diff", func(t *testing.T) {
		runner, output := newTestRunner(t, newSpotifyMock(), newDeezerMock())

		err := run(runner, "transfer", "diff", "--from", "spotify", "--to", "deezer", "--source-id", "pl1", "--dest-id", "dz1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{"Matched: 1 tracks", "Missing from destination: 2 tracks", "Artist B - Song Two"} {
			if !strings.Contains(output.String(), want) {
				t.Errorf("expected output to contain %q, got %s", want, output.String())
			}
		}
	})

	t.Run("history and forget", func(t *testing.T) {
		runner, output := newTestRunner(t, newSpotifyMock(), newDeezerMock())

		if err := run(runner, "transfer", "run", "--from", "spotify", "--to", "deezer", "--playlist", "pl1"); err != nil {
			t.Fatalf("transfer failed: %v", err)
		}
		output.Reset()

		if err := run(runner, "transfer", "history", "--provider", "deezer", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var views []transferView
		if err := json.Unmarshal(output.Bytes(), &views); err != nil {
			t.Fatalf("failed to decode history: %v", err)
		}
		if len(views) != 1 {
			t.Fatalf("expected one transfer, got %d", len(views))
		}
		if views[0].Status != models.TransferCompleted || views[0].Matched != 2 || views[0].Selected != 3 {
			t.Errorf("unexpected transfer %+v", views[0])
		}

		if err := run(runner, "transfer", "forget", views[0].ID); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		output.Reset()

		if err := run(runner, "transfer", "history"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "No transfers recorded.") {
			t.Errorf("expected empty history, got %s", output.String())
		}
	})

	t.Run("history rejects unknown status", func(t *testing.T) {
		runner, _ := newTestRunner(t)

		err := run(runner, "transfer", "history", "--status", "lost")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestCacheCommand(t *testing.T) {
	runner, output := newTestRunner(t, newSpotifyMock(), newDeezerMock())

	if err := run(runner, "cache", "tracks"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(output.String(), "No cached tracks.") {
		t.Errorf("expected empty cache, got %s", output.String())
	}

	if err := run(runner, "transfer", "run", "--from", "spotify", "--to", "deezer", "--playlist", "pl1", "--track", "s1"); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	output.Reset()

	if err := run(runner, "cache", "tracks", "--isrc", "ISRC1", "--json"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var views []cachedTrackView
	if err := json.Unmarshal(output.Bytes(), &views); err != nil {
		t.Fatalf("failed to decode cache: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected source and destination copies of ISRC1, got %d", len(views))
	}
}

func TestAccountCommands(t *testing.T) {
	spotifyAPI := func(t *testing.T) *httptest.Server {
		mux := http.NewServeMux()
		mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"acc","refresh_token":"ref","token_type":"Bearer","expires_in":3600}`)
		})
		mux.HandleFunc("/v1/me", func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer acc" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"user1","display_name":"Test User"}`)
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)
		return srv
	}

	linkRunner := func(t *testing.T, opts ...services.Option) (*Runner, *bytes.Buffer) {
		runner, output := newTestRunner(t)
		port := freePort(t)
		runner.config.Server = shared.ServerConfig{Host: "127.0.0.1", Port: port}
		runner.config.Credentials.Spotify.RedirectURI = fmt.Sprintf("http://127.0.0.1:%d/callback", port)
		runner.clientOpts = opts
		runner.authTimeout = 5 * time.Second
		runner.openBrowser = func(authURL string) error {
			u, err := url.Parse(authURL)
			if err != nil {
				return err
			}
			q := u.Query()
			go func() {
				resp, err := http.Get(q.Get("redirect_uri") + "?code=abc&state=" + url.QueryEscape(q.Get("state")))
				if err == nil {
					resp.Body.Close()
				}
			}()
			return nil
		}
		return runner, output
	}

	t.Run("link, list and unlink", func(t *testing.T) {
		api := spotifyAPI(t)
		runner, output := linkRunner(t,
			services.WithAuthURLs(api.URL+"/authorize", api.URL+"/token"),
			services.WithBaseURL(api.URL+"/v1"),
		)

		if err := run(runner, "accounts", "link", "spotify"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "Spotify account linked: Test User") {
			t.Errorf("expected link confirmation, got %s", output.String())
		}

		account, err := runner.accounts.GetByProvider(models.Spotify)
		if err != nil {
			t.Fatalf("expected stored account, got %v", err)
		}
		if account.AccessToken() != "acc" || account.RefreshToken() != "ref" {
			t.Errorf("expected tokens to be stored, got %q/%q", account.AccessToken(), account.RefreshToken())
		}
		output.Reset()

		if err := run(runner, "accounts", "list", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		var views []accountView
		if err := json.Unmarshal(output.Bytes(), &views); err != nil {
			t.Fatalf("failed to decode accounts: %v", err)
		}
		if len(views) != 1 || views[0].Username != "Test User" || views[0].ExternalID != "user1" {
			t.Errorf("unexpected accounts %+v", views)
		}

		if err := run(runner, "accounts", "unlink", "spotify"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, err := runner.accounts.GetByProvider(models.Spotify); !errors.Is(err, shared.ErrAccountNotLinked) {
			t.Errorf("expected account to be unlinked, got %v", err)
		}
	})

	t.Run("token exchange failure", func(t *testing.T) {
		client := &http.Client{Transport: th.NewMockRoundTripper(nil, errors.New("network down"))}
		runner, _ := linkRunner(t, services.WithHTTPClient(client))

		err := run(runner, "accounts", "link", "spotify")
		if err == nil || !strings.Contains(err.Error(), "authorization failed") {
			t.Fatalf("expected authorization failure, got %v", err)
		}
		if _, err := runner.accounts.GetByProvider(models.Spotify); !errors.Is(err, shared.ErrAccountNotLinked) {
			t.Errorf("expected no stored account, got %v", err)
		}
	})

	t.Run("missing provider", func(t *testing.T) {
		runner, _ := newTestRunner(t)

		err := run(runner, "accounts", "link")
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("unlink without account", func(t *testing.T) {
		runner, _ := newTestRunner(t)

		err := run(runner, "accounts", "unlink", "deezer")
		if !errors.Is(err, shared.ErrAccountNotLinked) {
			t.Errorf("expected ErrAccountNotLinked, got %v", err)
		}
	})

	t.Run("empty list", func(t *testing.T) {
		runner, output := newTestRunner(t)

		if err := run(runner, "accounts", "list"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(output.String(), "No linked accounts") {
			t.Errorf("expected empty message, got %s", output.String())
		}
	})
}

func TestSetup(t *testing.T) {
	dir := t.TempDir()
	wd := th.MustGetwd(t)
	th.MustChdir(t, dir)
	defer th.MustChdir(t, wd)

	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Logger: shared.NewLogger(io.Discard), Output: output})

	configPath := filepath.Join(dir, "config.toml")
	if err := run(runner, "--config", configPath, "setup"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	th.AssertFileExists(t, configPath)
	th.AssertFileExists(t, filepath.Join(dir, "sonik.db"))
	for _, want := range []string{"Config created", "Database ready", "Migrations applied"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("expected output to contain %q, got %s", want, output.String())
		}
	}
}

func TestSetupRollback(t *testing.T) {
	runner, output := newTestRunner(t)

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := run(runner, "--config", configPath, "setup", "--rollback"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(output.String(), "Rolled back migration 0001_create_transfers") {
		t.Errorf("expected rollback message, got %s", output.String())
	}

	versions, err := shared.AppliedVersions(runner.db)
	if err != nil {
		t.Fatalf("failed to read versions: %v", err)
	}
	if len(versions) != 1 || versions[0] != 0 {
		t.Errorf("expected only version 0 to remain, got %v", versions)
	}
}
