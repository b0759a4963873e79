package processor

import (
	"context"
	"log"
	"math/rand"
	"runtime"
	"strings"

	"github.com/grassmudhorses/vader-go/lexicon"
	"github.com/grassmudhorses/vader-go/sentitext"
	"golang.org/x/sync/errgroup"

	"github.com/meridianlabs/customer360-pipeline/internal/ml"
	"github.com/meridianlabs/customer360-pipeline/internal/text"
)

// Sentiment label cut points follow the usual VADER convention.
const (
	positiveSentimentCutoff = 0.05
	negativeSentimentCutoff = -0.05
)

// TextIntelligenceProcessor scores sentiment over each customer's review
// bodies and ticket notes and fits one topic model over the whole corpus,
// assigning every customer a dominant topic labeled by its top terms.
// Customers without text get the documented neutral defaults: sentiment 0,
// topic "none". The stage also finalizes the dataset-wide feature
// standardization parameters once sentiment exists, since they are the last
// input the predictive and segmentation stages share.
type TextIntelligenceProcessor struct {
	processors []Processor
	opts       RunOptions
}

func NewTextIntelligenceProcessor(config map[string]interface{}) (*TextIntelligenceProcessor, error) {
	opts, err := ParseRunOptions(config)
	if err != nil {
		return nil, err
	}
	return &TextIntelligenceProcessor{opts: opts}, nil
}

func (p *TextIntelligenceProcessor) Subscribe(processor Processor) {
	p.processors = append(p.processors, processor)
}

func (p *TextIntelligenceProcessor) Process(ctx context.Context, msg Message) error {
	dataset, err := DatasetFromMessage(msg)
	if err != nil {
		return err
	}

	p.scoreSentiment(ctx, dataset.Customers)
	p.assignTopics(dataset)

	if err := p.finalizeFeatureStats(dataset); err != nil {
		return err
	}

	withText := 0
	for i := range dataset.Customers {
		if dataset.Customers[i].DominantTopic != "none" {
			withText++
		}
	}
	log.Printf("TextIntelligenceProcessor: scored %d customers (%d with text, %d topics)",
		len(dataset.Customers), withText, p.opts.TopicCount)

	return ForwardToProcessors(ctx, dataset, p.processors)
}

// scoreSentiment averages the lexicon compound polarity over each customer's
// text units. Scoring is independent per customer, so it fans out across a
// bounded worker group; results land in pre-allocated slots, keeping output
// identical regardless of scheduling.
func (p *TextIntelligenceProcessor) scoreSentiment(ctx context.Context, records []CustomerRecord) {
	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(runtime.GOMAXPROCS(0))

	for i := range records {
		record := &records[i]
		group.Go(func() error {
			texts := record.Texts()
			if len(texts) == 0 {
				record.SentimentScore = 0
				record.SentimentLabel = "neutral"
				return nil
			}

			total := 0.0
			for _, unit := range texts {
				parsed := sentitext.Parse(unit, lexicon.DefaultLexicon)
				total += sentitext.PolarityScore(parsed).Compound
			}
			record.SentimentScore = total / float64(len(texts))
			record.SentimentLabel = sentimentLabel(record.SentimentScore)
			return nil
		})
	}

	// Workers never return errors; sentiment degrades per text, not per run.
	_ = group.Wait()
}

func sentimentLabel(score float64) string {
	switch {
	case score > positiveSentimentCutoff:
		return "positive"
	case score < negativeSentimentCutoff:
		return "negative"
	default:
		return "neutral"
	}
}

// assignTopics fits the corpus-wide topic model and maps each customer to the
// label of their dominant topic. A corpus with no usable terms degrades every
// assignment to "none" rather than aborting the run.
func (p *TextIntelligenceProcessor) assignTopics(dataset *Dataset) {
	docs := make([][]string, len(dataset.Customers))
	for i := range dataset.Customers {
		docs[i] = text.Tokenize(strings.Join(dataset.Customers[i].Texts(), " "))
	}

	rng := rand.New(rand.NewSource(p.opts.RandomSeed))
	model, err := text.FitTopics(docs, p.opts.TopicCount, text.DefaultSweeps, rng)
	if err != nil {
		log.Printf("TextIntelligenceProcessor: topic model unavailable: %v", err)
		dataset.Report.AddQualityWarning("topic model unavailable: " + err.Error())
		for i := range dataset.Customers {
			dataset.Customers[i].DominantTopic = "none"
		}
		return
	}

	labels := make(map[int]string, model.Topics)
	for topic := 0; topic < model.Topics; topic++ {
		labels[topic] = model.Label(topic)
	}

	for i := range dataset.Customers {
		topic := model.DocTopics[i]
		if topic < 0 {
			dataset.Customers[i].DominantTopic = "none"
			continue
		}
		dataset.Customers[i].DominantTopic = labels[topic]
	}
}

// finalizeFeatureStats fits the shared standardization parameters over the
// full dataset. Both downstream modeling stages read these instead of
// refitting, so standardization happens exactly once per run.
func (p *TextIntelligenceProcessor) finalizeFeatureStats(dataset *Dataset) error {
	if len(dataset.Customers) == 0 {
		return nil
	}

	matrix := make([][]float64, len(dataset.Customers))
	for i := range dataset.Customers {
		matrix[i] = FeatureVector(&dataset.Customers[i])
	}

	scaler, err := ml.FitScaler(matrix)
	if err != nil {
		return err
	}
	dataset.Stats.FeatureMeans = scaler.Means
	dataset.Stats.FeatureStds = scaler.Stds
	return nil
}
