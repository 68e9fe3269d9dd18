package models

import "fmt"

type Status string

const (
	StatusNew        Status = "new"
	StatusInProgress Status = "in-progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

var statusOrder = map[Status]int{
	StatusNew:        0,
	StatusInProgress: 1,
	StatusResolved:   2,
	StatusClosed:     3,
}

func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if _, ok := statusOrder[s]; !ok {
		return "", fmt.Errorf("unknown incident status %q", raw)
	}
	return s, nil
}

func (s Status) Open() bool {
	return s == StatusNew || s == StatusInProgress
}

// Next returns the only status reachable from s.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusNew:
		return StatusInProgress, true
	case StatusInProgress:
		return StatusResolved, true
	case StatusResolved:
		return StatusClosed, true
	default:
		return "", false
	}
}

// CanTransition allows exactly one forward step.
func (s Status) CanTransition(to Status) bool {
	next, ok := s.Next()
	return ok && next == to
}

// AtLeast reports whether s is at or past other in the lifecycle.
func (s Status) AtLeast(other Status) bool {
	return statusOrder[s] >= statusOrder[other]
}

type AssignmentStatus string

const (
	AssignmentScheduled  AssignmentStatus = "scheduled"
	AssignmentInProgress AssignmentStatus = "in-progress"
	AssignmentCompleted  AssignmentStatus = "completed"
)

func (s AssignmentStatus) CanTransition(to AssignmentStatus) bool {
	switch s {
	case AssignmentScheduled:
		return to == AssignmentInProgress
	case AssignmentInProgress:
		return to == AssignmentCompleted
	default:
		return false
	}
}
