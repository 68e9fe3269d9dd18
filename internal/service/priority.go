package service

import (
	"time"

	"github.com/campusfix/backend/internal/models"
)

const (
	PriorityLow      = 1
	PriorityNormal   = 2
	PriorityMedium   = 3
	PriorityHigh     = 4
	PriorityCritical = 5
)

var priorityLabels = map[int]string{
	PriorityLow:      "Low",
	PriorityNormal:   "Normal",
	PriorityMedium:   "Medium",
	PriorityHigh:     "High",
	PriorityCritical: "Critical",
}

var categoryBase = map[models.Category]int{
	models.CategoryElectricity: PriorityHigh,
	models.CategoryWater:       PriorityMedium,
	models.CategoryIT:          PriorityNormal,
	models.CategoryGarbage:     PriorityNormal,
	models.CategoryHostel:      PriorityNormal,
}

type Priority struct {
	Level int    `json:"priority"`
	Label string `json:"label"`
}

type PriorityInput struct {
	Category   models.Category
	Location   string
	CreatedAt  time.Time
	Recurrence int
}

// Classify derives the urgency of an incident from its category, age and how
// often the same category+location was reported recently.
func Classify(in PriorityInput, now time.Time) Priority {
	base, ok := categoryBase[in.Category]
	if !ok {
		return NewPriority(PriorityMedium)
	}
	level := base
	if !in.CreatedAt.IsZero() && now.Sub(in.CreatedAt) >= time.Hour {
		level++
	}
	switch {
	case in.Recurrence >= 5:
		level += 2
	case in.Recurrence >= 2:
		level++
	}
	return NewPriority(level)
}

// NewPriority clamps level into [1,5] and attaches its label.
func NewPriority(level int) Priority {
	level = ClampPriority(level)
	return Priority{Level: level, Label: priorityLabels[level]}
}

func PriorityLabel(level int) string {
	return priorityLabels[ClampPriority(level)]
}

func ClampPriority(level int) int {
	if level < PriorityLow {
		return PriorityLow
	}
	if level > PriorityCritical {
		return PriorityCritical
	}
	return level
}

// AlertPriority ranks a predicted failure: the fewer days left, the higher.
func AlertPriority(daysToNextFailure float64) int {
	switch {
	case daysToNextFailure < 7:
		return PriorityCritical
	case daysToNextFailure < 14:
		return PriorityHigh
	case daysToNextFailure < 21:
		return PriorityMedium
	default:
		return PriorityNormal
	}
}
