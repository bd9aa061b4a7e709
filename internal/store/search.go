package store

import (
	"context"

	"github.com/justestif/go-music-agent/internal/search"
)

// SearchText matches query against remembered lyric fragments and the
// titles and artists of played tracks. Lyric hits come first, then track
// hits by descending score.
func (s *Store) SearchText(ctx context.Context, query string) ([]SearchResult, error) {
	lyrics, err := s.SearchLyrics(ctx, query)
	if err != nil {
		return nil, err
	}
	candidates, err := s.TrackCandidates(ctx)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, l := range lyrics {
		results = append(results, SearchResult{
			Kind:     ResultLyric,
			Track:    l.Track,
			Fragment: l.Fragment,
			Score:    1,
		})
	}
	for _, m := range search.RankTracks(query, candidates) {
		results = append(results, SearchResult{
			Kind:  ResultTrack,
			Track: m.Track,
			Score: m.Score,
		})
	}
	return results, nil
}

// TrackCandidates returns every played track with its last play time, for
// fuzzy matching.
func (s *Store) TrackCandidates(ctx context.Context) ([]search.Candidate, error) {
	played, err := s.PlayedTracks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]search.Candidate, len(played))
	for i, p := range played {
		out[i] = search.Candidate{Track: p.Track, LastPlayed: p.PlayedAt}
	}
	return out, nil
}
