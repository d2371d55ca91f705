package models

// CapacityEntry pairs a user with their current load for one allocation pass.
// Remaining is decremented by the allocator on each successful assignment.
type CapacityEntry struct {
	User          *User
	AssignedCount int
	Remaining     int
}

// AssignmentResult records the outcome of one attempted assignment.
type AssignmentResult struct {
	IssueKey   string `json:"issueKey"`
	Success    bool   `json:"success"`
	AssignedTo string `json:"assignedTo,omitempty"`
	Error      string `json:"error,omitempty"`
}

// AutoAssignResult is the aggregate outcome of an auto-assign pass.
// Success is true whenever the pass ran to completion, even if individual
// assignments failed; per-issue status lives in Results.
type AutoAssignResult struct {
	Success bool               `json:"success"`
	Summary string             `json:"summary,omitempty"`
	Message string             `json:"message,omitempty"`
	Error   string             `json:"error,omitempty"`
	Results []AssignmentResult `json:"results,omitempty"`
}

// SuccessCount returns the number of successful assignments.
func (r *AutoAssignResult) SuccessCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}
