package ml

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
)

// KMeansResult holds a fitted partition: final centroids, one label per
// input point, and the within-cluster sum of squared distances.
type KMeansResult struct {
	Centroids  [][]float64
	Labels     []int
	WSS        float64
	Iterations int
}

// CountDistinct returns the number of distinct points. Callers use it to
// reject degenerate clustering requests before fitting.
func CountDistinct(points [][]float64) int {
	seen := make(map[string]struct{}, len(points))
	for _, p := range points {
		seen[pointKey(p)] = struct{}{}
	}
	return len(seen)
}

func pointKey(p []float64) string {
	key := make([]byte, 0, len(p)*8)
	for _, v := range p {
		bits := math.Float64bits(v)
		for shift := 0; shift < 64; shift += 8 {
			key = append(key, byte(bits>>shift))
		}
	}
	return string(key)
}

// FitKMeans runs Lloyd's algorithm with k-means++ seeding. All randomness
// comes from rng, so a fixed seed reproduces the partition exactly. Ties in
// assignment go to the lowest centroid index; an emptied cluster is reseeded
// to the point farthest from its current centroid.
func FitKMeans(points [][]float64, k, maxIterations int, rng *rand.Rand) (*KMeansResult, error) {
	if k < 1 {
		return nil, errors.Errorf("invalid cluster count %d", k)
	}
	if len(points) < k {
		return nil, errors.Errorf("%d points cannot form %d clusters", len(points), k)
	}
	if distinct := CountDistinct(points); distinct < k {
		return nil, errors.Errorf("%d distinct points cannot form %d clusters", distinct, k)
	}

	centroids := seedCentroids(points, k, rng)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = -1
	}

	iterations := 0
	for ; iterations < maxIterations; iterations++ {
		changed := false
		for i, p := range points {
			best := nearestCentroid(p, centroids)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}

		sizes := make([]int, k)
		for _, label := range labels {
			sizes[label]++
		}
		for c := 0; c < k; c++ {
			if sizes[c] == 0 {
				far := farthestPoint(points, labels, centroids)
				labels[far] = c
				sizes[c] = 1
				changed = true
			}
		}

		recomputeCentroids(points, labels, centroids)
		if !changed {
			break
		}
	}

	wss := 0.0
	for i, p := range points {
		wss += squaredDistance(p, centroids[labels[i]])
	}

	return &KMeansResult{
		Centroids:  centroids,
		Labels:     labels,
		WSS:        wss,
		Iterations: iterations,
	}, nil
}

// seedCentroids implements k-means++: the first centroid is uniform, each
// subsequent one is drawn proportional to squared distance from the nearest
// chosen centroid.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clonePoint(points[rng.Intn(len(points))]))

	distances := make([]float64, len(points))
	for len(centroids) < k {
		total := 0.0
		for i, p := range points {
			d := math.Inf(1)
			for _, c := range centroids {
				if sq := squaredDistance(p, c); sq < d {
					d = sq
				}
			}
			distances[i] = d
			total += d
		}

		if total == 0 {
			// Remaining mass is on already-chosen points; fall back to the
			// first unchosen distinct point.
			for _, p := range points {
				if !containsPoint(centroids, p) {
					centroids = append(centroids, clonePoint(p))
					break
				}
			}
			continue
		}

		target := rng.Float64() * total
		cumulative := 0.0
		chosen := len(points) - 1
		for i, d := range distances {
			cumulative += d
			if cumulative >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, clonePoint(points[chosen]))
	}

	return centroids
}

func nearestCentroid(p []float64, centroids [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(p, centroid); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

func farthestPoint(points [][]float64, labels []int, centroids [][]float64) int {
	far := 0
	farDist := -1.0
	for i, p := range points {
		if d := squaredDistance(p, centroids[labels[i]]); d > farDist {
			far = i
			farDist = d
		}
	}
	return far
}

func recomputeCentroids(points [][]float64, labels []int, centroids [][]float64) {
	dims := len(points[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, dims)
	}

	for i, p := range points {
		counts[labels[i]]++
		for j, v := range p {
			sums[labels[i]][j] += v
		}
	}

	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		for j := range centroids[c] {
			centroids[c][j] = sums[c][j] / float64(counts[c])
		}
	}
}

func squaredDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return sum
}

func clonePoint(p []float64) []float64 {
	return append([]float64(nil), p...)
}

func containsPoint(set [][]float64, p []float64) bool {
	key := pointKey(p)
	for _, q := range set {
		if pointKey(q) == key {
			return true
		}
	}
	return false
}
