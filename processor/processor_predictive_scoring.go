package processor

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"github.com/guregu/null"

	"github.com/meridianlabs/customer360-pipeline/internal/ml"
)

// PredictiveScoringProcessor trains and applies the two per-customer models:
// a logistic churn classifier producing calibrated probabilities, and a ridge
// satisfaction estimator. A stratified held-out fraction supplies the
// reported evaluation metrics only; both models are refit on the full
// dataset before scoring, so no customer's production score comes from a
// model that never saw comparable training signal. Either model can degrade
// independently on insufficient or single-class data; the run continues with
// the documented fallbacks.
type PredictiveScoringProcessor struct {
	processors []Processor
	opts       RunOptions
}

func NewPredictiveScoringProcessor(config map[string]interface{}) (*PredictiveScoringProcessor, error) {
	opts, err := ParseRunOptions(config)
	if err != nil {
		return nil, err
	}
	return &PredictiveScoringProcessor{opts: opts}, nil
}

func (p *PredictiveScoringProcessor) Subscribe(processor Processor) {
	p.processors = append(p.processors, processor)
}

func (p *PredictiveScoringProcessor) Process(ctx context.Context, msg Message) error {
	dataset, err := DatasetFromMessage(msg)
	if err != nil {
		return err
	}
	report := dataset.Report
	records := dataset.Customers

	churnModel := p.trainChurnModel(dataset)
	satisfactionModel, satisfactionScaler := p.trainSatisfactionModel(dataset)

	var churnScaler *ml.StandardScaler
	if churnModel != nil {
		churnScaler = &ml.StandardScaler{Means: dataset.Stats.FeatureMeans, Stds: dataset.Stats.FeatureStds}

		importance := make(map[string]float64, len(FeatureNames))
		for j, name := range FeatureNames {
			importance[name] = abs(churnModel.Weights[j])
		}
		report.ChurnImportance = importance
	}
	if satisfactionModel != nil {
		importance := make(map[string]float64, len(SatisfactionFeatureNames))
		for j, name := range SatisfactionFeatureNames {
			importance[name] = abs(satisfactionModel.Weights[j])
		}
		report.SatisfactionImportance = importance
	}

	predictions := make([]CustomerPrediction, 0, len(records))
	for i := range records {
		record := &records[i]
		prediction := CustomerPrediction{
			CustomerID: record.CustomerID,
			ChurnFlag:  record.ChurnFlag,
		}

		if churnModel != nil {
			standardized := churnScaler.Transform(FeatureVector(record))
			prediction.ChurnProbability = null.FloatFrom(churnModel.PredictProba(standardized))
			prediction.ChurnAttribution = attributions(FeatureNames, churnModel.Weights, standardized)
		}

		if satisfactionModel != nil {
			standardized := satisfactionScaler.Transform(SatisfactionFeatureVector(record))
			prediction.PredictedSatisfaction = clampRating(satisfactionModel.Predict(standardized))
			prediction.SatisfactionAttribution = attributions(SatisfactionFeatureNames, satisfactionModel.Weights, standardized)
		} else {
			prediction.PredictedSatisfaction = dataset.Stats.GlobalMeanSatisfaction
		}

		predictions = append(predictions, prediction)
	}

	dataset.Predictions = predictions
	log.Printf("PredictiveScoringProcessor: scored %d customers (churn degraded=%t, satisfaction degraded=%t)",
		len(predictions), report.ChurnDegraded, report.SatisfactionDegraded)

	return ForwardToProcessors(ctx, dataset, p.processors)
}

// trainChurnModel returns the refit-on-full-data classifier, or nil when the
// model degrades. Held-out metrics land on the report.
func (p *PredictiveScoringProcessor) trainChurnModel(dataset *Dataset) *ml.LogisticRegression {
	report := dataset.Report
	records := dataset.Customers
	n := len(records)

	degrade := func(err error) *ml.LogisticRegression {
		log.Printf("PredictiveScoringProcessor: %v (churn_probability will be null)", err)
		report.AddQualityWarning(err.Error())
		report.ChurnDegraded = true
		return nil
	}

	if n < p.opts.MinTrainingRows {
		return degrade(&InsufficientDataError{
			Model: "churn", Rows: n,
			Detail: fmt.Sprintf("below minimum of %d training rows", p.opts.MinTrainingRows),
		})
	}

	positives := 0
	classes := make([]int, n)
	targets := make([]float64, n)
	for i := range records {
		classes[i] = int(records[i].ChurnFlag)
		targets[i] = float64(records[i].ChurnFlag)
		if records[i].ChurnFlag == 1 {
			positives++
		}
	}
	if positives == 0 || positives == n {
		return degrade(&InsufficientDataError{
			Model: "churn", Rows: n,
			Detail: "churn target has a single class",
		})
	}

	scaler := &ml.StandardScaler{Means: dataset.Stats.FeatureMeans, Stds: dataset.Stats.FeatureStds}
	matrix := make([][]float64, n)
	for i := range records {
		matrix[i] = scaler.Transform(FeatureVector(&records[i]))
	}

	rng := rand.New(rand.NewSource(p.opts.RandomSeed))
	trainIdx, testIdx := ml.StratifiedSplit(classes, p.opts.SplitFraction, rng)

	evalModel := ml.NewLogisticRegression()
	if err := evalModel.Fit(gatherRows(matrix, trainIdx), gatherValues(targets, trainIdx)); err != nil {
		return degrade(err)
	}

	if len(testIdx) > 0 {
		testTargets := gatherValues(targets, testIdx)
		scores := make([]float64, len(testIdx))
		for i, idx := range testIdx {
			scores[i] = evalModel.PredictProba(matrix[idx])
		}
		precision, recall := ml.PrecisionRecall(testTargets, scores)
		report.ChurnMetrics = &ChurnModelMetrics{
			Accuracy:  ml.Accuracy(testTargets, scores),
			Precision: precision,
			Recall:    recall,
			AUC:       ml.AUC(testTargets, scores),
			TrainRows: len(trainIdx),
			TestRows:  len(testIdx),
		}
	}

	final := ml.NewLogisticRegression()
	if err := final.Fit(matrix, targets); err != nil {
		return degrade(err)
	}
	return final
}

// trainSatisfactionModel returns the refit estimator and the scaler for its
// feature set, or nils when the model degrades to the global-mean fallback.
func (p *PredictiveScoringProcessor) trainSatisfactionModel(dataset *Dataset) (*ml.RidgeRegression, *ml.StandardScaler) {
	report := dataset.Report
	records := dataset.Customers
	n := len(records)

	degrade := func(err error) (*ml.RidgeRegression, *ml.StandardScaler) {
		log.Printf("PredictiveScoringProcessor: %v (predicted_satisfaction falls back to the global mean)", err)
		report.AddQualityWarning(err.Error())
		report.SatisfactionDegraded = true
		return nil, nil
	}

	if n < p.opts.MinTrainingRows {
		return degrade(&InsufficientDataError{
			Model: "satisfaction", Rows: n,
			Detail: fmt.Sprintf("below minimum of %d training rows", p.opts.MinTrainingRows),
		})
	}

	raw := make([][]float64, n)
	targets := make([]float64, n)
	for i := range records {
		raw[i] = SatisfactionFeatureVector(&records[i])
		targets[i] = records[i].SatisfactionIndex
	}

	scaler, err := ml.FitScaler(raw)
	if err != nil {
		return degrade(err)
	}
	matrix := scaler.TransformAll(raw)

	rng := rand.New(rand.NewSource(p.opts.RandomSeed + 1))
	trainIdx, testIdx := ml.StratifiedSplit(ml.DiscretizeTargets(targets), p.opts.SplitFraction, rng)

	evalModel := ml.NewRidgeRegression()
	if err := evalModel.Fit(gatherRows(matrix, trainIdx), gatherValues(targets, trainIdx)); err != nil {
		return degrade(err)
	}

	if len(testIdx) > 0 {
		testTargets := gatherValues(targets, testIdx)
		estimates := make([]float64, len(testIdx))
		for i, idx := range testIdx {
			estimates[i] = clampRating(evalModel.Predict(matrix[idx]))
		}
		report.SatisfactionMetrics = &SatisfactionModelMetrics{
			RMSE:      ml.RMSE(testTargets, estimates),
			MAE:       ml.MAE(testTargets, estimates),
			TrainRows: len(trainIdx),
			TestRows:  len(testIdx),
		}
	}

	final := ml.NewRidgeRegression()
	if err := final.Fit(matrix, targets); err != nil {
		return degrade(err)
	}
	return final, scaler
}

// attributions decomposes one prediction into signed per-feature
// contributions relative to the dataset-mean baseline. Features are
// standardized, so weight times standardized value is exactly the marginal
// shift from the baseline score.
func attributions(names []string, weights, standardized []float64) map[string]float64 {
	out := make(map[string]float64, len(names))
	for j, name := range names {
		out[name] = weights[j] * standardized[j]
	}
	return out
}

func gatherRows(matrix [][]float64, indices []int) [][]float64 {
	out := make([][]float64, len(indices))
	for i, idx := range indices {
		out[i] = matrix[idx]
	}
	return out
}

func gatherValues(values []float64, indices []int) []float64 {
	out := make([]float64, len(indices))
	for i, idx := range indices {
		out[i] = values[idx]
	}
	return out
}

// clampRating bounds an estimate to the 1-5 rating scale.
func clampRating(v float64) float64 {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
