package search

import (
	"fmt"
	"slices"

	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"

	"github.com/justestif/go-music-agent/internal/music"
)

// DefaultMoodClusters is the number of groups the mood report asks for.
const DefaultMoodClusters = 3

// minClusterTracks is the smallest group reported; smaller ones are folded
// into Unclustered.
const minClusterTracks = 2

// MoodCluster is a group of recently played tracks with similar features.
type MoodCluster struct {
	Name     string
	TrackIDs []string
	Energy   float32
	Valence  float32
	Dance    float32
	Acoustic float32
}

// MoodReport is the result of clustering listening history.
type MoodReport struct {
	Clusters    []MoodCluster
	Unclustered int
}

// featureObservation adapts audio features to clusters.Observation.
type featureObservation struct {
	trackID string
	coords  clusters.Coordinates
}

func (o featureObservation) Coordinates() clusters.Coordinates {
	return o.coords
}

func (o featureObservation) Distance(point clusters.Coordinates) float64 {
	return o.coords.Distance(point)
}

// ClusterMoods groups features with k-means over energy, valence,
// danceability and acousticness. Fewer tracks than k yields one cluster.
func ClusterMoods(features []music.AudioFeatures, k int) (MoodReport, error) {
	if len(features) == 0 {
		return MoodReport{}, nil
	}
	if k <= 0 {
		k = DefaultMoodClusters
	}
	k = min(k, len(features))

	var obs clusters.Observations
	for _, f := range features {
		obs = append(obs, featureObservation{
			trackID: f.TrackID,
			coords: clusters.Coordinates{
				float64(f.Energy),
				float64(f.Valence),
				float64(f.Danceability),
				float64(f.Acousticness),
			},
		})
	}

	km := kmeans.New()
	result, err := km.Partition(obs, k)
	if err != nil {
		return MoodReport{}, fmt.Errorf("partitioning %d tracks: %w", len(features), err)
	}

	var report MoodReport
	for _, c := range result {
		if len(c.Observations) == 0 {
			continue
		}
		if k > 1 && len(c.Observations) < minClusterTracks {
			report.Unclustered += len(c.Observations)
			continue
		}
		mc := MoodCluster{
			Energy:   float32(c.Center[0]),
			Valence:  float32(c.Center[1]),
			Dance:    float32(c.Center[2]),
			Acoustic: float32(c.Center[3]),
		}
		for _, o := range c.Observations {
			if fo, ok := o.(featureObservation); ok {
				mc.TrackIDs = append(mc.TrackIDs, fo.trackID)
			}
		}
		mc.Name = MoodName(mc.Energy, mc.Valence, mc.Acoustic)
		report.Clusters = append(report.Clusters, mc)
	}

	slices.SortFunc(report.Clusters, func(a, b MoodCluster) int {
		return len(b.TrackIDs) - len(a.TrackIDs)
	})
	return report, nil
}

// MoodName names a point in feature space by its energy/valence quadrant,
// with an "(Acoustic)" suffix above 0.6 acousticness.
func MoodName(energy, valence, acousticness float32) string {
	highEnergy := energy > 0.6
	highValence := valence > 0.5

	var name string
	switch {
	case highEnergy && highValence:
		name = "Upbeat Party"
	case highEnergy:
		name = "Intense & Dark"
	case highValence:
		name = "Chill & Happy"
	default:
		name = "Reflective & Melancholy"
	}

	if acousticness > 0.6 {
		return name + " (Acoustic)"
	}
	return name
}
