package services

import (
	"errors"
	"testing"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
)

func TestBestMatch(t *testing.T) {
	tc := []struct {
		name       string
		want       models.Track
		candidates []models.Track
		wantID     string
		wantErr    error
	}{
		{
			name: "isrc wins over closer title",
			want: models.Track{Title: "Song", Artist: "Artist", ISRC: "USABC123"},
			candidates: []models.Track{
				{ID: "1", Title: "Song", Artist: "Artist"},
				{ID: "2", Title: "Song (Live)", Artist: "Artist", ISRC: "usabc123"},
			},
			wantID: "2",
		},
		{
			name: "exact title and artist",
			want: models.Track{Title: "Harvest Moon", Artist: "Neil Young"},
			candidates: []models.Track{
				{ID: "a", Title: "Heart of Gold", Artist: "Neil Young"},
				{ID: "b", Title: "Harvest Moon", Artist: "Neil Young"},
			},
			wantID: "b",
		},
		{
			name: "contained title tolerates suffixes",
			want: models.Track{Title: "Song Title", Artist: "Artist"},
			candidates: []models.Track{
				{ID: "x", Title: "Other", Artist: "Someone"},
				{ID: "y", Title: "Song Title - Remastered 2011", Artist: "Artist"},
			},
			wantID: "y",
		},
		{
			name: "case and whitespace are ignored",
			want: models.Track{Title: "  HARVEST   moon ", Artist: "neil young"},
			candidates: []models.Track{
				{ID: "b", Title: "Harvest Moon", Artist: "Neil Young"},
			},
			wantID: "b",
		},
		{
			name: "nothing close enough",
			want: models.Track{Title: "Harvest Moon", Artist: "Neil Young"},
			candidates: []models.Track{
				{ID: "z", Title: "Toxic", Artist: "Britney Spears"},
			},
			wantErr: shared.ErrTrackNotFound,
		},
		{
			name:    "no candidates",
			want:    models.Track{Title: "Anything"},
			wantErr: shared.ErrTrackNotFound,
		},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BestMatch(tt.want, tt.candidates, DefaultMinScore)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID != tt.wantID {
				t.Errorf("expected match %s, got %s", tt.wantID, got.ID)
			}
		})
	}
}

func TestRankCandidatesOrder(t *testing.T) {
	want := models.Track{Title: "Song", Artist: "Band"}
	ranked := RankCandidates(want, []models.Track{
		{ID: "far", Title: "Completely Different", Artist: "Nobody"},
		{ID: "exact", Title: "Song", Artist: "Band"},
		{ID: "near", Title: "Songs", Artist: "Band"},
	})

	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked candidates, got %d", len(ranked))
	}
	if ranked[0].Track.ID != "exact" || ranked[0].Score != 1 {
		t.Errorf("expected exact match first with score 1, got %+v", ranked[0])
	}
	if ranked[2].Track.ID != "far" {
		t.Errorf("expected far match last, got %s", ranked[2].Track.ID)
	}
}

func TestRankCandidatesISRCTier(t *testing.T) {
	want := models.Track{Title: "Song", Artist: "Band", ISRC: "GBAAA0000001"}
	ranked := RankCandidates(want, []models.Track{
		{ID: "exact", Title: "Song", Artist: "Band"},
		{ID: "near", Title: "Songs", Artist: "Band"},
		{ID: "isrc", Title: "Song - Live at Wembley", Artist: "Band feat. Guest", ISRC: "GBAAA0000001"},
	})

	if ranked[0].Track.ID != "isrc" || !ranked[0].ISRC {
		t.Fatalf("expected ISRC candidate first, got %+v", ranked[0])
	}
	if ranked[1].Track.ID != "exact" || ranked[1].ISRC {
		t.Errorf("expected exact title second, got %+v", ranked[1])
	}
}
