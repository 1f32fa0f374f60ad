/**
 * @description
 * Rotation selector: picks the single member who receives the current
 * cycle's payout. Runs once per pod per cycle at charge time.
 */
package app

import (
	"math/rand"

	"github.com/shahzaibimran94/save-squad/internal/domain"
)

// SelectPayee returns the index into members of this cycle's payout
// recipient. Members who already received a payout are never selected.
//
// With pay-by-choice the unpaid member with the lowest order wins, ties
// broken by member-list position. Without it the pick is uniformly random
// among unpaid members. The second return is false when every member has
// been paid.
func SelectPayee(members []domain.PodMember, payByChoice bool, rng *rand.Rand) (int, bool) {
	unpaid := make([]int, 0, len(members))
	for i := range members {
		if members[i].PaidAt == nil {
			unpaid = append(unpaid, i)
		}
	}
	if len(unpaid) == 0 {
		return 0, false
	}

	if !payByChoice {
		return unpaid[rng.Intn(len(unpaid))], true
	}

	best := unpaid[0]
	for _, idx := range unpaid[1:] {
		if members[idx].Order < members[best].Order {
			best = idx
		}
	}
	return best, true
}
