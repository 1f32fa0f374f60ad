package app

import (
	mrand "math/rand"
	"testing"
	"time"

	"github.com/shahzaibimran94/save-squad/internal/domain"
)

func rotationMembers(paid ...bool) []domain.PodMember {
	members := make([]domain.PodMember, len(paid))
	now := time.Now()
	for i := range paid {
		members[i] = domain.PodMember{
			ID:       string(rune('a' + i)),
			UserID:   string(rune('a' + i)),
			Order:    i + 1,
			Position: i,
		}
		if paid[i] {
			members[i].PaidAt = &now
		}
	}
	return members
}

func TestSelectPayeePayByChoice(t *testing.T) {
	rng := mrand.New(mrand.NewSource(1))

	members := rotationMembers(false, false, false)
	members[0].Order = 3
	members[1].Order = 1
	members[2].Order = 2

	idx, ok := SelectPayee(members, true, rng)
	if !ok || idx != 1 {
		t.Fatalf("expected lowest order member at index 1, got %d (ok=%t)", idx, ok)
	}

	// Paid members are skipped even with the lowest order.
	now := time.Now()
	members[1].PaidAt = &now
	idx, ok = SelectPayee(members, true, rng)
	if !ok || idx != 2 {
		t.Fatalf("expected next order at index 2, got %d (ok=%t)", idx, ok)
	}
}

func TestSelectPayeePayByChoiceTieBreaksByPosition(t *testing.T) {
	rng := mrand.New(mrand.NewSource(1))

	members := rotationMembers(false, false, false)
	members[0].Order = 2
	members[1].Order = 2
	members[2].Order = 2

	idx, ok := SelectPayee(members, true, rng)
	if !ok || idx != 0 {
		t.Fatalf("expected tie to break by position, got index %d (ok=%t)", idx, ok)
	}
}

func TestSelectPayeeAllPaid(t *testing.T) {
	rng := mrand.New(mrand.NewSource(1))
	if _, ok := SelectPayee(rotationMembers(true, true, true), false, rng); ok {
		t.Fatal("expected no payee when everyone has been paid")
	}
	if _, ok := SelectPayee(nil, false, rng); ok {
		t.Fatal("expected no payee for an empty member list")
	}
}

func TestSelectPayeeRandomNeverPicksPaid(t *testing.T) {
	rng := mrand.New(mrand.NewSource(42))
	members := rotationMembers(true, false, true, false)

	for i := 0; i < 1000; i++ {
		idx, ok := SelectPayee(members, false, rng)
		if !ok {
			t.Fatal("expected a payee with unpaid members remaining")
		}
		if idx != 1 && idx != 3 {
			t.Fatalf("selected a paid member at index %d", idx)
		}
	}
}

// Random selection should be roughly uniform among unpaid members.
func TestSelectPayeeRandomDistribution(t *testing.T) {
	rng := mrand.New(mrand.NewSource(7))
	members := rotationMembers(false, false, false, false)

	const draws = 10000
	counts := make(map[int]int)
	for i := 0; i < draws; i++ {
		idx, ok := SelectPayee(members, false, rng)
		if !ok {
			t.Fatal("expected a payee")
		}
		counts[idx]++
	}

	for i := 0; i < len(members); i++ {
		share := float64(counts[i]) / draws
		if share < 0.20 || share > 0.30 {
			t.Fatalf("member %d selected %.1f%% of draws, expected roughly 25%%", i, share*100)
		}
	}
}
