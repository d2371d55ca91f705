package allocator

import (
	"fmt"
	"math/rand"

	"github.com/joescharf/jpa/internal/models"
)

// Selection policy names accepted by NewSelectorFactory.
const (
	PolicyRoundRobin = "round-robin"
	PolicyRandom     = "random"
)

// Selector picks the capacity entry that receives the next issue. A Selector
// is stateful and lives for exactly one pass.
type Selector interface {
	// Select returns the index of an entry with Remaining > 0, or -1 if
	// every entry is exhausted.
	Select(entries []*models.CapacityEntry) int

	// Assigned reports that the entry at idx received an issue.
	Assigned(idx int, entries []*models.CapacityEntry)
}

// RoundRobin scans forward (wrapping) from a cursor that persists across
// issues within a pass. The cursor moves past an entry only after it
// successfully receives an issue.
type RoundRobin struct {
	cursor int
}

// NewRoundRobin returns a round-robin selector starting at the first entry.
func NewRoundRobin() Selector {
	return &RoundRobin{}
}

func (rr *RoundRobin) Select(entries []*models.CapacityEntry) int {
	n := len(entries)
	for i := 0; i < n; i++ {
		idx := (rr.cursor + i) % n
		if entries[idx].Remaining > 0 {
			return idx
		}
	}
	return -1
}

// Assigned moves the cursor past idx. It is only called after a successful
// assignment, so a user whose SetAssignee failed is offered the next issue
// again. The web panel this replaces advanced on selection, before the
// update, and so skipped that user instead.
func (rr *RoundRobin) Assigned(idx int, entries []*models.CapacityEntry) {
	if len(entries) == 0 {
		return
	}
	rr.cursor = (idx + 1) % len(entries)
}

// Random picks uniformly among entries with remaining capacity using a
// seeded generator, so a pass is reproducible for a given seed.
type Random struct {
	rng *rand.Rand
}

// NewRandom returns a seeded random selector.
func NewRandom(seed int64) Selector {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Select(entries []*models.CapacityEntry) int {
	var open []int
	for i, e := range entries {
		if e.Remaining > 0 {
			open = append(open, i)
		}
	}
	if len(open) == 0 {
		return -1
	}
	return open[r.rng.Intn(len(open))]
}

func (r *Random) Assigned(int, []*models.CapacityEntry) {}

// NewSelectorFactory returns a constructor for the named policy. Each pass
// calls the constructor once so selectors never share state.
func NewSelectorFactory(policy string, seed int64) (func() Selector, error) {
	switch policy {
	case "", PolicyRoundRobin:
		return NewRoundRobin, nil
	case PolicyRandom:
		return func() Selector { return NewRandom(seed) }, nil
	default:
		return nil, fmt.Errorf("unknown assignment policy: %s (want %s or %s)", policy, PolicyRoundRobin, PolicyRandom)
	}
}
