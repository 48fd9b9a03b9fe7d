package services

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/desertthunder/sonikswap/internal/models"
	"github.com/desertthunder/sonikswap/internal/shared"
	"github.com/lithammer/fuzzysearch/fuzzy"
)

// DefaultMinScore is the lowest similarity a search candidate may have to count as a match.
const DefaultMinScore = 0.6

// containedTitleScore is the title similarity granted when the wanted title appears, in order, inside the candidate
// title ("Song" against "Song - 2011 Remaster").
const containedTitleScore = 0.9

// Match is a ranked search candidate.
type Match struct {
	Track models.Track
	Score float64
	ISRC  bool // candidate shares the wanted ISRC
}

// RankCandidates scores every candidate against want, best first.
//
// Candidates sharing the wanted ISRC rank ahead of every other candidate and score 1. Otherwise the score averages
// title and artist similarity after normalization.
func RankCandidates(want models.Track, candidates []models.Track) []Match {
	if len(candidates) == 0 {
		return nil
	}

	titles := make([]string, len(candidates))
	for i, c := range candidates {
		titles[i] = shared.NormalizeText(c.Title)
	}
	contained := make(map[int]bool)
	for _, r := range fuzzy.RankFindNormalizedFold(shared.NormalizeText(want.Title), titles) {
		contained[r.OriginalIndex] = true
	}

	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		if want.ISRC != "" && strings.EqualFold(want.ISRC, c.ISRC) {
			matches[i] = Match{Track: c, Score: 1, ISRC: true}
			continue
		}

		title := similarity(shared.NormalizeText(want.Title), titles[i])
		if contained[i] && title < containedTitleScore {
			title = containedTitleScore
		}
		artist := similarity(shared.NormalizeText(want.Artist), shared.NormalizeText(c.Artist))
		if want.Artist == "" {
			artist = title
		}
		matches[i] = Match{Track: c, Score: (title + artist) / 2}
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		if a.ISRC != b.ISRC {
			if a.ISRC {
				return -1
			}
			return 1
		}
		return cmp.Compare(b.Score, a.Score)
	})
	return matches
}

// BestMatch returns the highest ranked candidate scoring at least minScore.
func BestMatch(want models.Track, candidates []models.Track, minScore float64) (*models.Track, error) {
	ranked := RankCandidates(want, candidates)
	if len(ranked) == 0 || ranked[0].Score < minScore {
		return nil, fmt.Errorf("%w: %s - %s", shared.ErrTrackNotFound, want.Artist, want.Title)
	}
	best := ranked[0].Track
	return &best, nil
}

func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	d := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(d)/float64(longest)
}
