// Package elimination decides battle-royale survivors after each round.
package elimination

import "sort"

// Count returns how many participants a round should eliminate: the
// configured fraction of the active set rounded down, at least one while
// more than one participant remains.
func Count(active int, fraction float64) int {
	if active <= 1 {
		return 0
	}
	k := int(fraction * float64(active))
	if k < 1 {
		k = 1
	}
	return k
}

// Result splits a round into survivors and eliminated participants.
type Result struct {
	Survivors  []string
	Eliminated []string
}

// Apply removes the k lowest round scorers. Every participant exactly tied
// with the k-th lowest score is eliminated with it, so a boundary tie can
// remove more than k. Ordering is deterministic: score ascending, then
// participant id ascending.
func Apply(scores map[string]int, k int) Result {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] < scores[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if k <= 0 || len(ids) == 0 {
		return Result{Survivors: ids}
	}
	if k > len(ids) {
		k = len(ids)
	}

	cutoff := scores[ids[k-1]]
	boundary := k
	for boundary < len(ids) && scores[ids[boundary]] == cutoff {
		boundary++
	}

	res := Result{
		Eliminated: ids[:boundary],
		Survivors:  ids[boundary:],
	}
	sort.Strings(res.Survivors)
	return res
}
