package processor

import (
	"context"
	"log"
	"math/rand"

	"github.com/guregu/null"

	"github.com/meridianlabs/customer360-pipeline/internal/ml"
)

const kmeansMaxIterations = 100

// SegmentationProcessor clusters customers on the standardized behavioral
// and sentiment feature vector, projects the vectors to two principal
// components for plotting, and names each cluster from the declarative rule
// table. The elbow diagnostic over the candidate range is always computed
// and reported; it only drives the cluster count when cluster_count is
// "auto". Too few distinct vectors degrades segmentation alone: customers
// keep their projection but get a null cluster and the "Unsegmented" label.
type SegmentationProcessor struct {
	processors []Processor
	opts       RunOptions
}

func NewSegmentationProcessor(config map[string]interface{}) (*SegmentationProcessor, error) {
	opts, err := ParseRunOptions(config)
	if err != nil {
		return nil, err
	}
	return &SegmentationProcessor{opts: opts}, nil
}

func (p *SegmentationProcessor) Subscribe(processor Processor) {
	p.processors = append(p.processors, processor)
}

func (p *SegmentationProcessor) Process(ctx context.Context, msg Message) error {
	dataset, err := DatasetFromMessage(msg)
	if err != nil {
		return err
	}
	report := dataset.Report
	records := dataset.Customers

	if len(records) == 0 {
		dataset.Segments = []CustomerSegment{}
		report.SegmentationDegraded = true
		return ForwardToProcessors(ctx, dataset, p.processors)
	}

	scaler := &ml.StandardScaler{Means: dataset.Stats.FeatureMeans, Stds: dataset.Stats.FeatureStds}
	matrix := make([][]float64, len(records))
	for i := range records {
		matrix[i] = scaler.Transform(FeatureVector(&records[i]))
	}

	segments := make([]CustomerSegment, len(records))
	for i := range records {
		segments[i] = CustomerSegment{
			CustomerID:   records[i].CustomerID,
			SegmentLabel: "Unsegmented",
		}
	}

	p.project(matrix, segments, report)

	distinct := ml.CountDistinct(matrix)
	report.ElbowCurve = p.elbowCurve(matrix, distinct)

	k := p.opts.ClusterCount
	if p.opts.AutoClusterCount {
		k = chooseElbow(report.ElbowCurve, p.opts.ClusterRangeMin)
		log.Printf("SegmentationProcessor: elbow selection chose k=%d", k)
	}
	report.ChosenClusters = k

	if distinct < k {
		degenerate := &DegenerateClusterError{Requested: k, Distinct: distinct}
		log.Printf("SegmentationProcessor: %v (customers left unsegmented)", degenerate)
		report.AddQualityWarning(degenerate.Error())
		report.SegmentationDegraded = true
		dataset.Segments = segments
		return ForwardToProcessors(ctx, dataset, p.processors)
	}

	rng := rand.New(rand.NewSource(p.opts.RandomSeed))
	result, err := ml.FitKMeans(matrix, k, kmeansMaxIterations, rng)
	if err != nil {
		log.Printf("SegmentationProcessor: clustering failed: %v (customers left unsegmented)", err)
		report.AddQualityWarning("clustering failed: " + err.Error())
		report.SegmentationDegraded = true
		dataset.Segments = segments
		return ForwardToProcessors(ctx, dataset, p.processors)
	}

	labels := make([]string, k)
	profiles := make([]ClusterProfile, k)
	sizes := make([]int, k)
	for _, label := range result.Labels {
		sizes[label]++
	}
	for c := 0; c < k; c++ {
		centroid := make(map[string]float64, len(FeatureNames))
		for j, name := range FeatureNames {
			centroid[name] = result.Centroids[c][j]
		}
		labels[c] = LabelForCentroid(centroid, DefaultLabelRules)
		profiles[c] = ClusterProfile{ClusterID: c, Size: sizes[c], Centroid: centroid}
	}
	labels = DisambiguateLabels(labels)
	for c := 0; c < k; c++ {
		profiles[c].Label = labels[c]
	}

	for i := range segments {
		cluster := result.Labels[i]
		segments[i].ClusterID = null.IntFrom(int64(cluster))
		segments[i].SegmentLabel = labels[cluster]
	}

	dataset.Segments = segments
	report.ClusterProfiles = profiles
	log.Printf("SegmentationProcessor: assigned %d customers to %d clusters (wss=%.2f, %d iterations)",
		len(segments), k, result.WSS, result.Iterations)

	return ForwardToProcessors(ctx, dataset, p.processors)
}

// project fills the 2D coordinates. Projection is independent of clustering,
// so it still runs when segmentation later degrades.
func (p *SegmentationProcessor) project(matrix [][]float64, segments []CustomerSegment, report *RunReport) {
	projection, err := ml.FitPCA2(matrix)
	if err != nil {
		log.Printf("SegmentationProcessor: projection unavailable: %v", err)
		report.AddQualityWarning("projection unavailable: " + err.Error())
		return
	}

	for i, row := range matrix {
		segments[i].ProjectionX, segments[i].ProjectionY = projection.Project(row)
	}
}

// elbowCurve fits k-means over the candidate range, bounded by the number of
// distinct vectors. Each candidate uses a fresh generator from the run seed,
// so the curve is reproducible point by point.
func (p *SegmentationProcessor) elbowCurve(matrix [][]float64, distinct int) []ElbowPoint {
	var curve []ElbowPoint
	for k := p.opts.ClusterRangeMin; k <= p.opts.ClusterRangeMax; k++ {
		if k > distinct || k > len(matrix) {
			break
		}
		rng := rand.New(rand.NewSource(p.opts.RandomSeed))
		result, err := ml.FitKMeans(matrix, k, kmeansMaxIterations, rng)
		if err != nil {
			break
		}
		curve = append(curve, ElbowPoint{K: k, WSS: result.WSS})
	}
	return curve
}

// chooseElbow picks the candidate with the largest second difference of the
// WSS curve, the discrete knee. Degenerate curves fall back to the smallest
// candidate.
func chooseElbow(curve []ElbowPoint, fallback int) int {
	if len(curve) == 0 {
		return fallback
	}
	if len(curve) < 3 {
		return curve[0].K
	}

	best := curve[1].K
	bestDrop := -1.0
	for i := 1; i < len(curve)-1; i++ {
		drop := curve[i-1].WSS - 2*curve[i].WSS + curve[i+1].WSS
		if drop > bestDrop {
			bestDrop = drop
			best = curve[i].K
		}
	}
	return best
}
