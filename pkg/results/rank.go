package results

import (
	"sort"

	"github.com/ensiasd/academics/pkg/academic"
)

// RankMode selects how equal weighted averages are ranked.
type RankMode int

const (
	// RankDistinct gives tied students consecutive ranks in input order.
	RankDistinct RankMode = iota
	// RankShared gives tied students the same rank and skips the following
	// ranks (1, 1, 3).
	RankShared
)

// RankGroup assigns ranks within each (program, period, year) group by
// descending weighted average. The returned slice is a copy in input order;
// the input is not modified. Locked results cannot be re-ranked.
func RankGroup(results []PeriodResult, mode RankMode) ([]PeriodResult, error) {
	for _, r := range results {
		if r.State == StateLocked {
			return nil, &academic.StateError{Err: academic.ErrLocked, Entity: "period result", ID: r.StudentID, State: string(r.State), Action: "rank"}
		}
	}

	out := make([]PeriodResult, len(results))
	copy(out, results)

	groups := make(map[string][]int)
	var order []string
	for i, r := range out {
		k := r.GroupKey()
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], i)
	}

	for _, k := range order {
		idx := groups[k]
		sort.SliceStable(idx, func(a, b int) bool {
			return out[idx[a]].WeightedAverage > out[idx[b]].WeightedAverage
		})
		for pos, i := range idx {
			rank := pos + 1
			if mode == RankShared && pos > 0 && out[i].WeightedAverage == out[idx[pos-1]].WeightedAverage {
				rank = out[idx[pos-1]].Rank
			}
			out[i].Rank = rank
		}
	}
	return out, nil
}

// ByRank sorts results by group then rank, for display.
func ByRank(results []PeriodResult) {
	sort.SliceStable(results, func(i, j int) bool {
		ki, kj := results[i].GroupKey(), results[j].GroupKey()
		if ki != kj {
			return ki < kj
		}
		return results[i].Rank < results[j].Rank
	})
}
