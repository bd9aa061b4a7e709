package search

import (
	"slices"
	"strings"
	"time"

	"github.com/justestif/go-music-agent/internal/music"
)

const (
	// minLyricQuery is the shortest normalized query matched as a substring
	// of a stored fragment.
	minLyricQuery = 3
	// minPatternTokens is the fewest words a stored fragment needs before a
	// longer query containing it counts as a match.
	minPatternTokens = 2
)

// LyricCandidate is a stored lyric fragment. Normalized may be empty, in
// which case it is computed from Fragment.
type LyricCandidate struct {
	Track      music.TrackReference
	Fragment   string
	Normalized string
	CreatedAt  time.Time
}

// MatchLyrics returns the fragments that match query, longest fragment first
// and then most recent. A fragment matches when it contains the query or,
// for multi-word fragments, when the query contains it.
func MatchLyrics(query string, candidates []LyricCandidate) []LyricCandidate {
	q := Normalize(query)
	if q == "" {
		return nil
	}

	var out []LyricCandidate
	for _, c := range candidates {
		p := c.Normalized
		if p == "" {
			p = Normalize(c.Fragment)
		}
		if p == "" {
			continue
		}
		if lyricMatches(q, p) {
			c.Normalized = p
			out = append(out, c)
		}
	}

	slices.SortStableFunc(out, func(a, b LyricCandidate) int {
		if la, lb := len(a.Normalized), len(b.Normalized); la != lb {
			return lb - la
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// lyricMatches compares normalized text as plain substrings, so a partial
// word such as "encumber" still finds "encumbered forever".
func lyricMatches(q, p string) bool {
	if len(q) >= minLyricQuery && strings.Contains(p, q) {
		return true
	}
	return len(strings.Fields(p)) >= minPatternTokens && strings.Contains(q, p)
}
