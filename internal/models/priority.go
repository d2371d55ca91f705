package models

import "strings"

// Priority is a Jira priority (name + identifier) from a fixed ordered set.
type Priority struct {
	ID   string
	Name string
}

// Standard Jira priority names.
const (
	PriorityHighest = "Highest"
	PriorityHigh    = "High"
	PriorityMedium  = "Medium"
	PriorityLow     = "Low"
	PriorityLowest  = "Lowest"
)

// Priorities lists the fixed priority set from most to least urgent.
var Priorities = []Priority{
	{ID: "1", Name: PriorityHighest},
	{ID: "2", Name: PriorityHigh},
	{ID: "3", Name: PriorityMedium},
	{ID: "4", Name: PriorityLow},
	{ID: "5", Name: PriorityLowest},
}

// DefaultPriority is used when the store reports no priority.
var DefaultPriority = Priority{ID: "3", Name: PriorityMedium}

// PriorityByName looks up a priority by case-insensitive name.
func PriorityByName(name string) (Priority, bool) {
	for _, p := range Priorities {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Priority{}, false
}

// PriorityByID looks up a priority by identifier.
func PriorityByID(id string) (Priority, bool) {
	for _, p := range Priorities {
		if p.ID == id {
			return p, true
		}
	}
	return Priority{}, false
}

// ParsePriority accepts either a priority name or identifier.
func ParsePriority(s string) (Priority, bool) {
	if p, ok := PriorityByID(s); ok {
		return p, true
	}
	return PriorityByName(s)
}

// Rank returns the position in the ordered set (0 = Highest). Unknown
// priorities rank after Lowest.
func (p Priority) Rank() int {
	for i, known := range Priorities {
		if strings.EqualFold(known.Name, p.Name) {
			return i
		}
	}
	return len(Priorities)
}

// IsLow reports whether the priority is Low or Lowest.
func (p Priority) IsLow() bool {
	return strings.EqualFold(p.Name, PriorityLow) || strings.EqualFold(p.Name, PriorityLowest)
}

// RaiseOptions returns the priorities a low-priority issue can be raised to.
func RaiseOptions() []Priority {
	return []Priority{Priorities[2], Priorities[1]}
}

func (p Priority) String() string { return p.Name }
