package ml

import (
	"math/rand"
	"sort"
)

// StratifiedSplit partitions row indices into train and test sets, holding
// out roughly fraction of each class. Shuffling happens per class with the
// supplied rng, and class keys are visited in sorted order, so a fixed seed
// reproduces the split. Classes too small to hold out a row stay entirely in
// the training set.
func StratifiedSplit(classes []int, fraction float64, rng *rand.Rand) (train, test []int) {
	groups := make(map[int][]int)
	for i, class := range classes {
		groups[class] = append(groups[class], i)
	}

	keys := make([]int, 0, len(groups))
	for class := range groups {
		keys = append(keys, class)
	}
	sort.Ints(keys)

	for _, class := range keys {
		members := groups[class]
		rng.Shuffle(len(members), func(i, j int) {
			members[i], members[j] = members[j], members[i]
		})

		held := int(float64(len(members)) * fraction)
		if held >= len(members) {
			held = len(members) - 1
		}

		test = append(test, members[:held]...)
		train = append(train, members[held:]...)
	}

	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

// DiscretizeTargets buckets continuous targets for stratification by rounding
// to the nearest integer.
func DiscretizeTargets(targets []float64) []int {
	buckets := make([]int, len(targets))
	for i, t := range targets {
		buckets[i] = int(t + 0.5)
	}
	return buckets
}
