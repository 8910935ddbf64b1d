package roulette

import "math/rand/v2"

// drawSample returns a uniform value in [0, 100).
var drawSample = func() float64 {
	return rand.Float64() * 100
}

// Draw picks one item index for sample by walking cumulative percentages in item order.
// The first item whose cumulative boundary is >= sample wins; -1 is a miss.
func Draw(items []Item, sample float64) int {
	cumulative := 0.0
	for i, it := range items {
		cumulative += it.Percentage
		if cumulative >= sample {
			return i
		}
	}
	return -1
}

// drawMany runs count unit draws and returns hits per item index plus the miss count.
func drawMany(items []Item, count int) ([]int, int) {
	hits := make([]int, len(items))
	misses := 0
	for i := 0; i < count; i++ {
		idx := Draw(items, drawSample())
		if idx < 0 {
			misses++
			continue
		}
		hits[idx]++
	}
	return hits, misses
}

// groupHits merges hits by label in item order, with the miss group last.
func groupHits(items []Item, hits []int, misses int) ([]Group, bool) {
	groups := make([]Group, 0, len(items)+1)
	byLabel := make(map[string]int)
	rare := false

	for i, n := range hits {
		if n == 0 {
			continue
		}
		it := items[i]
		if it.Percentage > 0 && it.Percentage < 1 {
			rare = true
		}
		if gi, ok := byLabel[it.Label]; ok {
			groups[gi].Count += n
			continue
		}
		byLabel[it.Label] = len(groups)
		groups = append(groups, Group{Item: it, Count: n})
	}
	if misses > 0 {
		groups = append(groups, Group{Miss: true, Count: misses})
	}
	return groups, rare
}
