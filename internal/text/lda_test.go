package text

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reviewCorpus() [][]string {
	return [][]string{
		{"battery", "drains", "fast", "battery", "charger"},
		{"screen", "cracked", "battery", "screen"},
		{"delivery", "late", "courier", "delivery"},
		{"parcel", "lost", "courier", "delivery"},
		{},
		{"refund", "slow", "billing", "refund"},
	}
}

func TestFitTopicsShape(t *testing.T) {
	docs := reviewCorpus()

	model, err := FitTopics(docs, 2, 50, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	assert.Equal(t, 2, model.Topics)
	assert.InDelta(t, 25.0, model.Alpha, 1e-12)
	assert.Len(t, model.DocTopics, len(docs))

	// Vocabulary is sorted so term ids do not depend on document order.
	assert.IsIncreasing(t, model.Vocabulary)

	// Each topic-term row is a probability distribution.
	require.Len(t, model.TopicTerm, 2)
	for k, row := range model.TopicTerm {
		require.Len(t, row, len(model.Vocabulary))
		total := 0.0
		for _, p := range row {
			assert.Greater(t, p, 0.0)
			total += p
		}
		assert.InDelta(t, 1.0, total, 1e-9, "topic %d", k)
	}

	for d, topic := range model.DocTopics {
		if len(docs[d]) == 0 {
			assert.Equal(t, -1, topic, "empty document %d", d)
			continue
		}
		assert.GreaterOrEqual(t, topic, 0)
		assert.Less(t, topic, model.Topics)
	}
}

func TestFitTopicsDeterministicForSeed(t *testing.T) {
	a, err := FitTopics(reviewCorpus(), 3, 40, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	b, err := FitTopics(reviewCorpus(), 3, 40, rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	assert.Equal(t, a.DocTopics, b.DocTopics)
	assert.Equal(t, a.TopicTerm, b.TopicTerm)
	assert.Equal(t, a.Vocabulary, b.Vocabulary)
}

func TestFitTopicsDefaultsSweeps(t *testing.T) {
	a, err := FitTopics(reviewCorpus(), 2, 0, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	b, err := FitTopics(reviewCorpus(), 2, DefaultSweeps, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	assert.Equal(t, a.DocTopics, b.DocTopics)
	assert.Equal(t, a.TopicTerm, b.TopicTerm)
}

func TestFitTopicsRejectsBadInputs(t *testing.T) {
	_, err := FitTopics(reviewCorpus(), 0, 10, rand.New(rand.NewSource(1)))
	assert.Error(t, err)

	_, err = FitTopics([][]string{{}, {}}, 2, 10, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestLabelJoinsTopTerms(t *testing.T) {
	model := &TopicModel{
		Topics:     1,
		Vocabulary: []string{"billing", "delivery", "quality", "refund"},
		TopicTerm:  [][]float64{{0.2, 0.4, 0.2, 0.2}},
	}

	// delivery leads, the 0.2 tie breaks lexicographically.
	assert.Equal(t, "delivery/billing/quality", model.Label(0))

	assert.Equal(t, "none", model.Label(-1))
	assert.Equal(t, "none", model.Label(1))
}

func TestLabelShortVocabulary(t *testing.T) {
	model := &TopicModel{
		Topics:     1,
		Vocabulary: []string{"refund", "slow"},
		TopicTerm:  [][]float64{{0.3, 0.7}},
	}

	assert.Equal(t, "slow/refund", model.Label(0))
}
