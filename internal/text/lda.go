package text

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DefaultSweeps is the Gibbs sweep count used when callers have no reason to
// tune it. The corpora here are small (one document per customer), so a
// moderate count settles the chains.
const DefaultSweeps = 150

// TopicModel is a latent Dirichlet allocation model fit by collapsed Gibbs
// sampling. All randomness flows through the rng handed to FitTopics, so a
// fixed seed reproduces assignments exactly.
type TopicModel struct {
	Topics     int
	Alpha      float64
	Beta       float64
	Vocabulary []string
	TopicTerm  [][]float64 // topic -> term probability
	DocTopics  []int       // dominant topic per input document, -1 when empty
}

// FitTopics fits a topic model over tokenized documents. Documents that
// tokenize to nothing keep their position and get DocTopics[i] = -1.
func FitTopics(docs [][]string, topics, sweeps int, rng *rand.Rand) (*TopicModel, error) {
	if topics < 1 {
		return nil, errors.Errorf("invalid topic count %d", topics)
	}
	if sweeps < 1 {
		sweeps = DefaultSweeps
	}

	// Vocabulary in sorted order so term ids are input-order independent.
	termSet := make(map[string]struct{})
	for _, doc := range docs {
		for _, term := range doc {
			termSet[term] = struct{}{}
		}
	}
	if len(termSet) == 0 {
		return nil, errors.New("corpus has no usable terms")
	}
	vocabulary := make([]string, 0, len(termSet))
	for term := range termSet {
		vocabulary = append(vocabulary, term)
	}
	sort.Strings(vocabulary)
	termIDs := make(map[string]int, len(vocabulary))
	for id, term := range vocabulary {
		termIDs[term] = id
	}

	tokenIDs := make([][]int, len(docs))
	for d, doc := range docs {
		ids := make([]int, len(doc))
		for t, term := range doc {
			ids[t] = termIDs[term]
		}
		tokenIDs[d] = ids
	}

	model := &TopicModel{
		Topics:     topics,
		Alpha:      50.0 / float64(topics),
		Beta:       0.01,
		Vocabulary: vocabulary,
	}

	vocabSize := len(vocabulary)
	docTopic := make([][]float64, len(docs))
	topicTerm := make([][]float64, topics)
	topicTotals := make([]float64, topics)
	assignments := make([][]int, len(docs))

	for k := range topicTerm {
		topicTerm[k] = make([]float64, vocabSize)
	}
	for d := range docs {
		docTopic[d] = make([]float64, topics)
		assignments[d] = make([]int, len(tokenIDs[d]))
		for t, w := range tokenIDs[d] {
			k := rng.Intn(topics)
			assignments[d][t] = k
			docTopic[d][k]++
			topicTerm[k][w]++
			topicTotals[k]++
		}
	}

	weights := make([]float64, topics)
	betaV := model.Beta * float64(vocabSize)
	for sweep := 0; sweep < sweeps; sweep++ {
		for d := range docs {
			for t, w := range tokenIDs[d] {
				k := assignments[d][t]
				docTopic[d][k]--
				topicTerm[k][w]--
				topicTotals[k]--

				total := 0.0
				for j := 0; j < topics; j++ {
					weight := (docTopic[d][j] + model.Alpha) *
						(topicTerm[j][w] + model.Beta) / (topicTotals[j] + betaV)
					weights[j] = weight
					total += weight
				}

				target := rng.Float64() * total
				cumulative := 0.0
				next := topics - 1
				for j, weight := range weights {
					cumulative += weight
					if cumulative >= target {
						next = j
						break
					}
				}

				assignments[d][t] = next
				docTopic[d][next]++
				topicTerm[next][w]++
				topicTotals[next]++
			}
		}
	}

	model.TopicTerm = make([][]float64, topics)
	for k := 0; k < topics; k++ {
		model.TopicTerm[k] = make([]float64, vocabSize)
		for w := 0; w < vocabSize; w++ {
			model.TopicTerm[k][w] = (topicTerm[k][w] + model.Beta) / (topicTotals[k] + betaV)
		}
	}

	model.DocTopics = make([]int, len(docs))
	for d := range docs {
		if len(tokenIDs[d]) == 0 {
			model.DocTopics[d] = -1
			continue
		}
		best := 0
		bestCount := docTopic[d][0]
		for k := 1; k < topics; k++ {
			if docTopic[d][k] > bestCount {
				best = k
				bestCount = docTopic[d][k]
			}
		}
		model.DocTopics[d] = best
	}

	return model, nil
}

// Label names a topic by its top-weighted terms, joined with "/". Ties break
// lexicographically so labels are stable across runs.
func (m *TopicModel) Label(topic int) string {
	if topic < 0 || topic >= m.Topics {
		return "none"
	}

	ids := make([]int, len(m.Vocabulary))
	for i := range ids {
		ids[i] = i
	}
	sort.SliceStable(ids, func(a, b int) bool {
		wa, wb := m.TopicTerm[topic][ids[a]], m.TopicTerm[topic][ids[b]]
		if wa != wb {
			return wa > wb
		}
		return m.Vocabulary[ids[a]] < m.Vocabulary[ids[b]]
	})

	top := 3
	if top > len(ids) {
		top = len(ids)
	}
	terms := make([]string, 0, top)
	for _, id := range ids[:top] {
		terms = append(terms, m.Vocabulary[id])
	}
	return strings.Join(terms, "/")
}
