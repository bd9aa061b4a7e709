package search

import (
	"slices"
	"strings"
	"time"

	"github.com/justestif/go-music-agent/internal/music"
)

// MinScore is the similarity a candidate needs to be accepted.
const MinScore = 0.6

// Weights of the two similarity signals in Score.
const (
	tokenWeight = 0.6
	editWeight  = 0.4
)

// Candidate is a track that may match a query, with the time it was last
// played (zero when never played).
type Candidate struct {
	Track      music.TrackReference
	LastPlayed time.Time
}

// Match is an accepted candidate and its score.
type Match struct {
	Candidate
	Score float64
}

// RankTracks scores every candidate against query and returns those at or
// above MinScore, best first. Equal scores are ordered by most recent play.
func RankTracks(query string, candidates []Candidate) []Match {
	q := Normalize(query)
	if q == "" {
		return nil
	}

	var matches []Match
	for _, c := range candidates {
		score := candidateScore(q, c.Track)
		if score >= MinScore {
			matches = append(matches, Match{Candidate: c, Score: score})
		}
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return b.LastPlayed.Compare(a.LastPlayed)
	})
	return matches
}

// candidateScore is the best of the scores against the title, the artist
// and "title artist", so queries like "high hopes pink floyd" match.
func candidateScore(normQuery string, t music.TrackReference) float64 {
	fields := []string{
		Normalize(t.Title),
		Normalize(t.Artist()),
		Normalize(t.Title + " " + t.Artist()),
	}
	var best float64
	for _, f := range fields {
		if f == "" {
			continue
		}
		best = max(best, scoreNormalized(normQuery, f))
	}
	return best
}

// Score returns the similarity of a and b in [0, 1].
func Score(a, b string) float64 {
	return scoreNormalized(Normalize(a), Normalize(b))
}

func scoreNormalized(q, c string) float64 {
	if q == "" || c == "" {
		return 0
	}
	if q == c {
		return 1
	}
	return tokenWeight*tokenScore(strings.Fields(q), strings.Fields(c)) +
		editWeight*editScore(q, c)
}

// tokenScore blends how much of the query is covered by the candidate with
// the Dice overlap of the two token sets. Tokens within a small edit
// distance of each other count as shared.
func tokenScore(q, c []string) float64 {
	if len(q) == 0 || len(c) == 0 {
		return 0
	}
	used := make([]bool, len(c))
	matched := 0
	for _, qt := range q {
		for i, ct := range c {
			if used[i] {
				continue
			}
			if tokensMatch(qt, ct) {
				used[i] = true
				matched++
				break
			}
		}
	}
	coverage := float64(matched) / float64(len(q))
	dice := 2 * float64(matched) / float64(len(q)+len(c))
	return 0.75*coverage + 0.25*dice
}

func tokensMatch(a, b string) bool {
	if a == b {
		return true
	}
	n := max(len([]rune(a)), len([]rune(b)))
	limit := 0
	switch {
	case n > 5:
		limit = 2
	case n > 3:
		limit = 1
	}
	if limit == 0 {
		return false
	}
	_, ok := boundedLevenshtein(a, b, limit)
	return ok
}

// editScore is 1 - distance/len over the whole strings, or 0 once the
// distance exceeds a third of the longer string.
func editScore(a, b string) float64 {
	n := max(len([]rune(a)), len([]rune(b)))
	d, ok := boundedLevenshtein(a, b, n/3)
	if !ok {
		return 0
	}
	return 1 - float64(d)/float64(n)
}

// boundedLevenshtein returns the edit distance between a and b when it is at
// most limit. ok is false once the distance is known to exceed limit.
func boundedLevenshtein(a, b string, limit int) (int, bool) {
	ra, rb := []rune(a), []rune(b)
	if abs(len(ra)-len(rb)) > limit {
		return 0, false
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			rowMin = min(rowMin, cur[j])
		}
		if rowMin > limit {
			return 0, false
		}
		prev, cur = cur, prev
	}
	d := prev[len(rb)]
	return d, d <= limit
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
