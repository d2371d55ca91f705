package allocator

import "github.com/joescharf/jpa/internal/models"

// DefaultCap is the maximum number of concurrently assigned issues per user
// for auto-assignment purposes.
const DefaultCap = 2

// CountAssigned returns the number of issues assigned to each account ID.
func CountAssigned(issues []*models.Issue) map[string]int {
	counts := make(map[string]int)
	for _, issue := range issues {
		if id := issue.AssigneeID(); id != "" {
			counts[id]++
		}
	}
	return counts
}

// Remaining returns max(0, cap-assigned).
func Remaining(cap, assigned int) int {
	if r := cap - assigned; r > 0 {
		return r
	}
	return 0
}

// ResolveEligibleUsers returns a capacity entry for every active user with
// room for at least one more issue under cap. Output keeps the roster order,
// which is the base order for round-robin selection. Issues assigned to
// accounts missing from the roster do not count toward anyone's load.
func ResolveEligibleUsers(allIssues []*models.Issue, allUsers []*models.User, cap int) []*models.CapacityEntry {
	if cap <= 0 {
		return nil
	}

	counts := CountAssigned(allIssues)
	var eligible []*models.CapacityEntry
	for _, u := range allUsers {
		if !u.Active {
			continue
		}
		assigned := counts[u.AccountID]
		remaining := Remaining(cap, assigned)
		if remaining == 0 {
			continue
		}
		eligible = append(eligible, &models.CapacityEntry{
			User:          u,
			AssignedCount: assigned,
			Remaining:     remaining,
		})
	}
	return eligible
}
