package ml

import (
	"math"
	"sort"
)

// Accuracy is the share of predictions matching binary targets after
// thresholding scores at 0.5.
func Accuracy(targets, scores []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	correct := 0
	for i, target := range targets {
		predicted := 0.0
		if scores[i] >= 0.5 {
			predicted = 1
		}
		if predicted == target {
			correct++
		}
	}
	return float64(correct) / float64(len(targets))
}

// PrecisionRecall computes precision and recall for the positive class with
// scores thresholded at 0.5. Empty denominators yield 0.
func PrecisionRecall(targets, scores []float64) (precision, recall float64) {
	var tp, fp, fn float64
	for i, target := range targets {
		predicted := scores[i] >= 0.5
		switch {
		case predicted && target == 1:
			tp++
		case predicted && target == 0:
			fp++
		case !predicted && target == 1:
			fn++
		}
	}
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	return precision, recall
}

// AUC is the area under the ROC curve computed as the Mann-Whitney rank
// statistic, with the midrank correction for tied scores. Returns 0.5 when
// either class is absent.
func AUC(targets, scores []float64) float64 {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})

	ranks := make([]float64, len(scores))
	for i := 0; i < len(order); {
		j := i
		for j < len(order) && scores[order[j]] == scores[order[i]] {
			j++
		}
		midrank := float64(i+j+1) / 2 // average of 1-based ranks i+1..j
		for k := i; k < j; k++ {
			ranks[order[k]] = midrank
		}
		i = j
	}

	var positives, rankSum float64
	for i, target := range targets {
		if target == 1 {
			positives++
			rankSum += ranks[i]
		}
	}
	negatives := float64(len(targets)) - positives
	if positives == 0 || negatives == 0 {
		return 0.5
	}

	return (rankSum - positives*(positives+1)/2) / (positives * negatives)
}

// RMSE is the root mean squared error.
func RMSE(targets, estimates []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	sum := 0.0
	for i, target := range targets {
		diff := estimates[i] - target
		sum += diff * diff
	}
	return math.Sqrt(sum / float64(len(targets)))
}

// MAE is the mean absolute error.
func MAE(targets, estimates []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	sum := 0.0
	for i, target := range targets {
		sum += math.Abs(estimates[i] - target)
	}
	return sum / float64(len(targets))
}
