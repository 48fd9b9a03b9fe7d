package tasks

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
	th "github.com/desertthunder/sonikswap/internal/testing"
)

type fakeRecorder struct {
	created  []*models.Transfer
	statuses []models.TransferStatus
	err      error
}

func (r *fakeRecorder) Create(t *models.Transfer) error {
	if r.err != nil {
		return r.err
	}
	t.SetID(shared.GenerateID())
	r.created = append(r.created, t)
	r.statuses = append(r.statuses, t.Status())
	return nil
}

func (r *fakeRecorder) Update(t *models.Transfer) error {
	r.statuses = append(r.statuses, t.Status())
	return nil
}

type fakeCache struct {
	cached map[models.Provider][]models.Track
	isrc   map[string]*models.Track
}

func newFakeCache() *fakeCache {
	return &fakeCache{cached: map[models.Provider][]models.Track{}, isrc: map[string]*models.Track{}}
}

func (c *fakeCache) CacheTrack(provider models.Provider, track models.Track) error {
	c.cached[provider] = append(c.cached[provider], track)
	if track.ISRC != "" {
		c.isrc[string(provider)+":"+track.ISRC] = &track
	}
	return nil
}

func (c *fakeCache) LookupISRC(provider models.Provider, isrc string) (*models.Track, error) {
	if t, ok := c.isrc[string(provider)+":"+isrc]; ok {
		return t, nil
	}
	return nil, shared.ErrNotFound
}

func testEngine(recorder TransferRecorder, cache TrackCacher) *PlaylistEngine {
	return NewPlaylistEngine(recorder, cache, shared.NewLogger(io.Discard))
}

func sourceTracks() []models.Track {
	return []models.Track{
		{ID: "s1", Title: "Song One", Artist: "Artist A", ISRC: "ISRC1"},
		{ID: "s2", Title: "Song Two", Artist: "Artist B", ISRC: "ISRC2"},
		{ID: "s3", Title: "Song Three", Artist: "Artist C"},
	}
}

func newSource() *th.MockService {
	return &th.MockService{
		ServiceName: "Spotify",
		ProviderID:  models.Spotify,
		Playlists:   []models.Playlist{{ID: "pl1", Name: "Road Trip"}},
		Exports: map[string]*models.PlaylistExport{
			"pl1": {Playlist: models.Playlist{ID: "pl1", Name: "Road Trip", TrackCount: 3}, Tracks: sourceTracks()},
		},
	}
}

func newDest(results map[string]*models.Track) *th.MockService {
	return &th.MockService{ServiceName: "Deezer", ProviderID: models.Deezer, Results: results}
}

func TestPlaylistEngine_Transfer(t *testing.T) {
	allResults := map[string]*models.Track{
		"Song One|Artist A":   {ID: "d1", Title: "Song One", Artist: "Artist A"},
		"Song Two|Artist B":   {ID: "d2", Title: "Song Two", Artist: "Artist B"},
		"Song Three|Artist C": {ID: "d3", Title: "Song Three", Artist: "Artist C"},
	}

	t.Run("transfers every track when selection is empty", func(t *testing.T) {
		src, dst := newSource(), newDest(allResults)
		rec := &fakeRecorder{}
		engine := testEngine(rec, nil)

		result, err := engine.Transfer(context.Background(), TransferRequest{Source: src, Dest: dst, SourceID: "pl1"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.TotalTracks != 3 || result.SuccessCount != 3 || result.FailedCount != 0 {
			t.Errorf("unexpected counts: %+v", result)
		}
		if result.MatchPercentage != 100 {
			t.Errorf("expected 100%%, got %.1f", result.MatchPercentage)
		}
		if len(dst.Imported) != 1 || len(dst.Imported[0].Tracks) != 3 {
			t.Fatalf("expected one import with 3 tracks, got %+v", dst.Imported)
		}
		if dst.Imported[0].Playlist.Name != "Road Trip" {
			t.Errorf("expected source name, got %q", dst.Imported[0].Playlist.Name)
		}
		if result.DestPlaylist == nil || result.DestPlaylist.ID == "" {
			t.Errorf("expected destination playlist, got %+v", result.DestPlaylist)
		}

		want := []models.TransferStatus{models.TransferPending, models.TransferCompleted}
		if len(rec.statuses) != 2 || rec.statuses[0] != want[0] || rec.statuses[1] != want[1] {
			t.Errorf("expected statuses %v, got %v", want, rec.statuses)
		}
		if result.Transfer.DestID() != result.DestPlaylist.ID || result.Transfer.MatchedCount() != 3 {
			t.Errorf("transfer not completed: %+v", result.Transfer)
		}
	})

	t.Run("transfers only the selected tracks", func(t *testing.T) {
		src, dst := newSource(), newDest(allResults)
		engine := testEngine(nil, nil)
		selected := []models.Track{sourceTracks()[2], sourceTracks()[0]}

		result, err := engine.Transfer(context.Background(), TransferRequest{
			Source:   src,
			Dest:     dst,
			Export:   src.Exports["pl1"],
			Selected: selected,
			Name:     "Picks",
		}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if src.ExportCalls != 0 {
			t.Errorf("export supplied, expected no fetch, got %d", src.ExportCalls)
		}
		if result.TotalTracks != 2 || result.Transfer.SelectedCount() != 2 {
			t.Errorf("expected 2 tracks, got %d", result.TotalTracks)
		}
		if got := dst.Searches; len(got) != 2 || got[0] != "Song Three|Artist C" || got[1] != "Song One|Artist A" {
			t.Errorf("unexpected searches %v", got)
		}
		imported := dst.Imported[0]
		if imported.Playlist.Name != "Picks" || imported.Tracks[0].ID != "d3" || imported.Tracks[1].ID != "d1" {
			t.Errorf("unexpected import %+v", imported)
		}
	})

	t.Run("partial matches", func(t *testing.T) {
		src := newSource()
		dst := newDest(map[string]*models.Track{"Song Two|Artist B": {ID: "d2"}})

		result, err := testEngine(nil, nil).Transfer(context.Background(), TransferRequest{Source: src, Dest: dst, SourceID: "pl1"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.SuccessCount != 1 || result.FailedCount != 2 {
			t.Errorf("expected 1/2, got %d/%d", result.SuccessCount, result.FailedCount)
		}
		if !errors.Is(result.TrackMatches[0].Error, shared.ErrTrackNotFound) {
			t.Errorf("expected ErrTrackNotFound, got %v", result.TrackMatches[0].Error)
		}
	})

	t.Run("no matches creates no playlist", func(t *testing.T) {
		src, dst := newSource(), newDest(nil)
		rec := &fakeRecorder{}

		result, err := testEngine(rec, nil).Transfer(context.Background(), TransferRequest{Source: src, Dest: dst, SourceID: "pl1"}, nil)
		if !errors.Is(err, shared.ErrNoMatches) {
			t.Fatalf("expected ErrNoMatches, got %v", err)
		}
		if len(dst.Imported) != 0 {
			t.Error("no playlist should be created")
		}
		if result.FailedCount != 3 {
			t.Errorf("expected 3 failures, got %d", result.FailedCount)
		}
		if last := rec.statuses[len(rec.statuses)-1]; last != models.TransferFailed {
			t.Errorf("expected failed status, got %s", last)
		}
		if result.Transfer.Message() == "" {
			t.Error("expected failure message")
		}
	})

	t.Run("resolves playlist by name", func(t *testing.T) {
		src, dst := newSource(), newDest(allResults)

		result, err := testEngine(nil, nil).Transfer(context.Background(), TransferRequest{Source: src, Dest: dst, SourceID: "Road Trip"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.SourcePlaylist.Playlist.ID != "pl1" || result.Transfer.SourceID() != "pl1" {
			t.Errorf("expected pl1, got %s", result.SourcePlaylist.Playlist.ID)
		}
	})

	t.Run("unknown playlist", func(t *testing.T) {
		_, err := testEngine(nil, nil).Transfer(context.Background(), TransferRequest{Source: newSource(), Dest: newDest(nil), SourceID: "nope"}, nil)
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("import failure is recorded", func(t *testing.T) {
		src, dst := newSource(), newDest(allResults)
		dst.ImportErr = errors.New("boom")
		rec := &fakeRecorder{}

		_, err := testEngine(rec, nil).Transfer(context.Background(), TransferRequest{Source: src, Dest: dst, SourceID: "pl1"}, nil)
		if !errors.Is(err, shared.ErrAPIRequest) {
			t.Fatalf("expected ErrAPIRequest, got %v", err)
		}
		if last := rec.statuses[len(rec.statuses)-1]; last != models.TransferFailed {
			t.Errorf("expected failed status, got %s", last)
		}
	})

	t.Run("recorder errors do not fail the transfer", func(t *testing.T) {
		src, dst := newSource(), newDest(allResults)

		_, err := testEngine(&fakeRecorder{err: errors.New("db locked")}, nil).Transfer(context.Background(), TransferRequest{Source: src, Dest: dst, SourceID: "pl1"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		src, dst := newSource(), newDest(allResults)

		_, err := testEngine(nil, nil).Transfer(ctx, TransferRequest{Source: src, Dest: dst, Export: src.Exports["pl1"]}, nil)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if dst.SearchCount() != 0 || len(dst.Imported) != 0 {
			t.Error("cancelled transfer should not search or import")
		}
	})
}

func TestPlaylistEngine_Transfer_ServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     TransferRequest
		wantErr error
	}{
		{"nil source", TransferRequest{Dest: newDest(nil), SourceID: "pl1"}, shared.ErrServiceUnavailable},
		{"nil dest", TransferRequest{Source: newSource(), SourceID: "pl1"}, shared.ErrServiceUnavailable},
		{"same provider", TransferRequest{Source: newSource(), Dest: newSource(), SourceID: "pl1"}, shared.ErrInvalidArgument},
		{"missing playlist", TransferRequest{Source: newSource(), Dest: newDest(nil)}, shared.ErrMissingArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testEngine(nil, nil).Transfer(context.Background(), tt.req, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPlaylistEngine_Transfer_Cache(t *testing.T) {
	t.Run("isrc cache hit skips search", func(t *testing.T) {
		src, dst := newSource(), newDest(map[string]*models.Track{
			"Song Two|Artist B":   {ID: "d2"},
			"Song Three|Artist C": {ID: "d3"},
		})
		cache := newFakeCache()
		cache.isrc["deezer:ISRC1"] = &models.Track{ID: "cached-d1", ISRC: "ISRC1"}

		result, err := testEngine(nil, cache).Transfer(context.Background(), TransferRequest{Source: src, Dest: dst, SourceID: "pl1"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !result.TrackMatches[0].Cached || result.TrackMatches[0].Matched.ID != "cached-d1" {
			t.Errorf("expected cached match, got %+v", result.TrackMatches[0])
		}
		if dst.SearchCount() != 2 {
			t.Errorf("expected 2 searches, got %d", dst.SearchCount())
		}
	})

	t.Run("caches source and matched tracks", func(t *testing.T) {
		src := newSource()
		dst := newDest(map[string]*models.Track{"Song One|Artist A": {ID: "d1"}})
		cache := newFakeCache()

		_, err := testEngine(nil, cache).Transfer(context.Background(), TransferRequest{Source: src, Dest: dst, SourceID: "pl1"}, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(cache.cached[models.Spotify]) != 3 {
			t.Errorf("expected 3 source tracks cached, got %d", len(cache.cached[models.Spotify]))
		}
		deezer := cache.cached[models.Deezer]
		if len(deezer) != 1 || deezer[0].ID != "d1" || deezer[0].ISRC != "" {
			t.Errorf("expected matched track cached without a borrowed ISRC, got %+v", deezer)
		}
	})

	t.Run("fuzzy match is not cached under the source ISRC", func(t *testing.T) {
		src := newSource()
		dst := newDest(map[string]*models.Track{
			"Song One|Artist A": {ID: "wrong", Title: "Song One (Karaoke)", Artist: "Artist A", ISRC: "OTHER1"},
		})
		cache := newFakeCache()
		engine := testEngine(nil, cache)
		req := TransferRequest{Source: src, Dest: dst, SourceID: "pl1"}

		if _, err := engine.Transfer(context.Background(), req, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := cache.LookupISRC(models.Deezer, "ISRC1"); !errors.Is(err, shared.ErrNotFound) {
			t.Fatalf("expected no destination entry under source ISRC, got %v", err)
		}

		result, err := engine.Transfer(context.Background(), req, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.TrackMatches[0].Cached {
			t.Errorf("expected second run to search again, got cached %+v", result.TrackMatches[0])
		}
		if dst.SearchCount() != 6 {
			t.Errorf("expected every track searched on both runs, got %d searches", dst.SearchCount())
		}
	})
}

func TestPlaylistEngine_Diff(t *testing.T) {
	src := newSource()
	dst := &th.MockService{
		ServiceName: "Deezer",
		ProviderID:  models.Deezer,
		Exports: map[string]*models.PlaylistExport{
			"d1": {
				Playlist: models.Playlist{ID: "d1", Name: "Road Trip"},
				Tracks: []models.Track{
					{ID: "x1", Title: "Different Title", Artist: "Someone", ISRC: "ISRC1"},
					{ID: "x3", Title: "  song three ", Artist: "ARTIST C"},
					{ID: "x4", Title: "Bonus", Artist: "Extra"},
				},
			},
		},
	}

	result, err := testEngine(nil, nil).Diff(context.Background(), src, dst, "pl1", "d1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c := result.Comparison
	if c.MatchedCount != 2 {
		t.Errorf("expected 2 matched, got %d", c.MatchedCount)
	}
	if len(c.MissingInDest) != 1 || c.MissingInDest[0].ID != "s2" {
		t.Errorf("unexpected missing %+v", c.MissingInDest)
	}
	if len(c.ExtraInDest) != 1 || c.ExtraInDest[0].ID != "x4" {
		t.Errorf("unexpected extra %+v", c.ExtraInDest)
	}

	t.Run("missing destination", func(t *testing.T) {
		_, err := testEngine(nil, nil).Diff(context.Background(), src, dst, "pl1", "nope", nil)
		if !errors.Is(err, shared.ErrPlaylistNotFound) {
			t.Errorf("expected ErrPlaylistNotFound, got %v", err)
		}
	})

	t.Run("nil service", func(t *testing.T) {
		_, err := testEngine(nil, nil).Diff(context.Background(), nil, dst, "pl1", "d1", nil)
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

func TestProgressUpdate_NonBlocking(t *testing.T) {
	src := newSource()
	dst := newDest(map[string]*models.Track{"Song One|Artist A": {ID: "d1"}})

	progress := make(chan ProgressUpdate, 2)
	_, err := testEngine(nil, nil).Transfer(context.Background(), TransferRequest{Source: src, Dest: dst, SourceID: "pl1"}, progress)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(progress)

	var phases []Phase
	for u := range progress {
		phases = append(phases, u.Phase)
	}
	if len(phases) != 2 || phases[0] != FetchSource {
		t.Errorf("expected the first two updates to be kept, got %v", phases)
	}
}

func TestPhaseString(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{FetchSource, "fetch_source"},
		{SearchTracks, "search_tracks"},
		{CreatePlaylist, "create_playlist"},
		{ExportPlaylist, "export_playlist"},
		{Phase(99), ""},
	}
	for _, tt := range tests {
		if got := tt.phase.String(); got != tt.want {
			t.Errorf("Phase(%d).String() = %q, want %q", tt.phase, got, tt.want)
		}
	}
}
