package service

import (
	"testing"
	"time"

	"github.com/campusfix/backend/internal/models"
)

func TestClassify(t *testing.T) {
	now := testNow
	cases := []struct {
		name string
		in   PriorityInput
		want int
	}{
		{"electricity fresh", PriorityInput{Category: models.CategoryElectricity, CreatedAt: now}, PriorityHigh},
		{"water fresh", PriorityInput{Category: models.CategoryWater, CreatedAt: now}, PriorityMedium},
		{"garbage fresh", PriorityInput{Category: models.CategoryGarbage, CreatedAt: now}, PriorityNormal},
		{"it aged", PriorityInput{Category: models.CategoryIT, CreatedAt: now.Add(-2 * time.Hour)}, PriorityMedium},
		{"hostel recurring", PriorityInput{Category: models.CategoryHostel, CreatedAt: now, Recurrence: 2}, PriorityMedium},
		{"water frequent", PriorityInput{Category: models.CategoryWater, CreatedAt: now, Recurrence: 5}, PriorityCritical},
		{"electricity aged and recurring clamps", PriorityInput{Category: models.CategoryElectricity, CreatedAt: now.Add(-3 * time.Hour), Recurrence: 9}, PriorityCritical},
		{"unknown category", PriorityInput{Category: "roof", CreatedAt: now}, PriorityMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.in, now)
			if got.Level != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got.Level)
			}
			if got.Label != PriorityLabel(tc.want) {
				t.Fatalf("expected label %s, got %s", PriorityLabel(tc.want), got.Label)
			}
		})
	}
}

func TestNewPriorityClamps(t *testing.T) {
	if p := NewPriority(0); p.Level != PriorityLow || p.Label != "Low" {
		t.Fatalf("unexpected %+v", p)
	}
	if p := NewPriority(12); p.Level != PriorityCritical || p.Label != "Critical" {
		t.Fatalf("unexpected %+v", p)
	}
}

func TestAlertPriority(t *testing.T) {
	cases := map[float64]int{
		0.5: PriorityCritical,
		6.9: PriorityCritical,
		7:   PriorityHigh,
		13:  PriorityHigh,
		14:  PriorityMedium,
		21:  PriorityNormal,
		29:  PriorityNormal,
	}
	for days, want := range cases {
		if got := AlertPriority(days); got != want {
			t.Fatalf("days %.1f: expected %d, got %d", days, want, got)
		}
	}
}
