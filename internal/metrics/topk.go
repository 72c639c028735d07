package metrics

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// TopKCorrect counts, for each k in ks, how many examples have their true
// class among the k highest-scoring classes. Outputs has shape [N, C]
// (logits or probabilities), targets holds one class index per example.
//
// Classes are ranked by descending score; when two scores are exactly
// equal the lower class index ranks first. Counts are non-decreasing in k.
func TopKCorrect(outputs *mat.Dense, targets []int, ks []int) ([]int, error) {
	n, c := outputs.Dims()
	if len(targets) != n {
		return nil, fmt.Errorf("metrics: %d targets for %d outputs", len(targets), n)
	}
	seen := make(map[int]bool, len(ks))
	for _, k := range ks {
		if k < 1 || k > c {
			return nil, fmt.Errorf("metrics: k=%d out of range for %d classes", k, c)
		}
		if seen[k] {
			return nil, fmt.Errorf("metrics: duplicate k=%d", k)
		}
		seen[k] = true
	}

	counts := make([]int, len(ks))
	order := make([]int, c)
	for i := 0; i < n; i++ {
		target := targets[i]
		if target < 0 || target >= c {
			return nil, fmt.Errorf("metrics: target %d out of range for %d classes", target, c)
		}
		row := outputs.RawRowView(i)
		for j := range order {
			order[j] = j
		}
		sort.Slice(order, func(a, b int) bool {
			if row[order[a]] != row[order[b]] {
				return row[order[a]] > row[order[b]]
			}
			return order[a] < order[b]
		})
		rank := 0
		for j, class := range order {
			if class == target {
				rank = j
				break
			}
		}
		for ki, k := range ks {
			if rank < k {
				counts[ki]++
			}
		}
	}
	return counts, nil
}
