package models

import "time"

type Category string

const (
	CategoryWater       Category = "water"
	CategoryElectricity Category = "electricity"
	CategoryGarbage     Category = "garbage"
	CategoryIT          Category = "it"
	CategoryHostel      Category = "hostel"
)

var Categories = []Category{CategoryWater, CategoryElectricity, CategoryGarbage, CategoryIT, CategoryHostel}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Incident struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Category     Category   `json:"category"`
	Description  string     `json:"description"`
	ImageURL     *string    `json:"image_url"`
	Location     string     `json:"location"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
	Status       Status     `json:"status"`
	Priority     int        `json:"priority"`
	AssignedTo   *string    `json:"assigned_to"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ResolvedAt   *time.Time `json:"resolved_at"`
	SLAStartedAt time.Time  `json:"sla_started_at"`
}

// SLAStart returns the moment the SLA clock started for the incident.
func (i Incident) SLAStart() time.Time {
	if i.SLAStartedAt.IsZero() {
		return i.CreatedAt
	}
	return i.SLAStartedAt
}

func (i Incident) IsAssigned() bool {
	return i.AssignedTo != nil && *i.AssignedTo != ""
}

// IncidentPatch is a partial update. Nil fields are left untouched.
// ExpectStatus turns the write into a compare-and-swap on the current status.
type IncidentPatch struct {
	Status        *Status
	ExpectStatus  *Status
	Priority      *int
	AssignedTo    *string
	ClearAssignee bool
	ResolvedAt    *time.Time
	Title         *string
	Description   *string
	Latitude      *float64
	Longitude     *float64
}

type IncidentFilter struct {
	UserID     string
	Status     Status
	AssignedTo string
	Limit      int
	Offset     int
}

type Technician struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Specialization     Category  `json:"specialization"`
	Active             bool      `json:"active"`
	Available          bool      `json:"available"`
	CurrentAssignments int       `json:"current_assignments"`
	MaxConcurrent      int       `json:"max_concurrent"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Eligible reports whether the technician can take one more assignment.
func (t Technician) Eligible() bool {
	return t.Active && t.Available && t.CurrentAssignments < t.MaxConcurrent
}

type Assignment struct {
	ID                 string           `json:"id"`
	IncidentID         string           `json:"incident_id"`
	TechnicianID       string           `json:"technician_id"`
	ScheduledTime      time.Time        `json:"scheduled_time"`
	DurationMinutes    int              `json:"duration_minutes"`
	Status             AssignmentStatus `json:"status"`
	CompletionEvidence *string          `json:"completion_evidence,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty"`
}

func (a Assignment) Active() bool {
	return a.Status != AssignmentCompleted
}

type AssignmentFilter struct {
	TechnicianID string
	IncidentID   string
	ActiveOnly   bool
}

type Prediction struct {
	Location          string   `json:"location"`
	Category          Category `json:"category"`
	DaysToNextFailure float64  `json:"days_to_next_failure"`
	Confidence        float64  `json:"confidence"`
	Message           string   `json:"message"`
}

// CriticalAlert is a prediction that crossed the critical threshold.
type CriticalAlert struct {
	Location          string   `json:"location"`
	Category          Category `json:"category"`
	DaysToNextFailure float64  `json:"days_to_next_failure"`
	Confidence        float64  `json:"confidence"`
	Message           string   `json:"message"`
}

const (
	NotificationTechnicianAssigned = "technician_assigned"
	NotificationIncidentEscalated  = "incident_escalated"
	NotificationSLAWarning         = "sla_warning"
	NotificationStatusChanged      = "incident_status_changed"
	NotificationReassigned         = "assignment_reassigned"
)

const (
	RoleAdmin      = "admin"
	RoleTechnician = "technician"
)

type Notification struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id,omitempty"`
	Role      string         `json:"role,omitempty"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

type NotificationFilter struct {
	UserID     string
	Role       string
	UnreadOnly bool
	Limit      int
}
