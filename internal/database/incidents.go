package database

import "time"

// IncidentStatus is the managed-incident state machine. Movement among the
// non-terminal states is unrestricted (operators may go backward); resolved
// is terminal.
type IncidentStatus string

const (
	IncidentStatusTriggered     IncidentStatus = "triggered"
	IncidentStatusAcknowledged  IncidentStatus = "acknowledged"
	IncidentStatusInvestigating IncidentStatus = "investigating"
	IncidentStatusIdentified    IncidentStatus = "identified"
	IncidentStatusMonitoring    IncidentStatus = "monitoring"
	IncidentStatusResolved      IncidentStatus = "resolved"
)

// ValidIncidentStatuses returns all states of the incident state machine
func ValidIncidentStatuses() []IncidentStatus {
	return []IncidentStatus{
		IncidentStatusTriggered,
		IncidentStatusAcknowledged,
		IncidentStatusInvestigating,
		IncidentStatusIdentified,
		IncidentStatusMonitoring,
		IncidentStatusResolved,
	}
}

// IncidentPriority is the external priority label P1 (highest) to P5
type IncidentPriority string

const (
	IncidentPriorityP1 IncidentPriority = "P1"
	IncidentPriorityP2 IncidentPriority = "P2"
	IncidentPriorityP3 IncidentPriority = "P3"
	IncidentPriorityP4 IncidentPriority = "P4"
	IncidentPriorityP5 IncidentPriority = "P5"
)

// Incident sources
const (
	IncidentSourceAlert       = "alert"
	IncidentSourceManual      = "manual"
	IncidentSourceIntegration = "integration"
)

// ManagedIncident is a tracked unit of work from detection to resolution
type ManagedIncident struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	UUID           string           `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	OrganizationID uint             `gorm:"not null;index" json:"organization_id"`
	Title          string           `gorm:"size:255;not null" json:"title"`
	Status         IncidentStatus   `gorm:"type:varchar(20);not null;default:'triggered';index" json:"status"`
	Priority       IncidentPriority `gorm:"type:varchar(5);default:'P3'" json:"priority"`
	Severity       AlertSeverity    `gorm:"type:varchar(20)" json:"severity"`
	Source         string           `gorm:"type:varchar(20);not null;default:'manual';index" json:"source"`
	Description    string           `gorm:"type:text" json:"description"`

	// Promotion back-references: an incident may own a group or a cluster
	GroupID       *uint `gorm:"index" json:"group_id,omitempty"`
	CorrelationID *uint `gorm:"index" json:"correlation_id,omitempty"`

	ResolutionSummary   string `gorm:"type:text" json:"resolution_summary,omitempty"`
	PostmortemURL       string `gorm:"type:text" json:"postmortem_url,omitempty"`
	PostmortemCompleted bool   `gorm:"default:false" json:"postmortem_completed"`

	AcknowledgedAt           *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt               *time.Time `json:"resolved_at,omitempty"`
	TimeToAcknowledgeSeconds int64      `json:"time_to_acknowledge_seconds,omitempty"`
	TimeToResolveSeconds     int64      `json:"time_to_resolve_seconds,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Notes      []IncidentNote          `gorm:"foreignKey:IncidentID" json:"notes,omitempty"`
	Responders []IncidentResponder     `gorm:"foreignKey:IncidentID" json:"responders,omitempty"`
	Timeline   []IncidentTimelineEvent `gorm:"foreignKey:IncidentID" json:"timeline,omitempty"`
}

func (ManagedIncident) TableName() string {
	return "managed_incidents"
}

// IsResolved reports whether the incident reached the terminal state
func (i *ManagedIncident) IsResolved() bool {
	return i.Status == IncidentStatusResolved
}

// NoteVisibility controls who sees an incident note
type NoteVisibility string

const (
	NoteVisibilityInternal NoteVisibility = "internal"
	NoteVisibilityPublic   NoteVisibility = "public"
)

// IncidentNote is an operator note on an incident
type IncidentNote struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	IncidentID uint           `gorm:"not null;index" json:"incident_id"`
	Author     string         `gorm:"size:128" json:"author"`
	Body       string         `gorm:"type:text;not null" json:"body"`
	Visibility NoteVisibility `gorm:"type:varchar(10);default:'internal'" json:"visibility"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (IncidentNote) TableName() string {
	return "incident_notes"
}

// ResponderRole is the responder's role on an incident
type ResponderRole string

const (
	ResponderRolePrimary   ResponderRole = "primary"
	ResponderRoleSecondary ResponderRole = "secondary"
	ResponderRoleObserver  ResponderRole = "observer"
)

// IncidentResponder is one person assigned to an incident
type IncidentResponder struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	IncidentID uint          `gorm:"not null;index" json:"incident_id"`
	Name       string        `gorm:"size:128;not null" json:"name"`
	Email      string        `gorm:"size:255" json:"email"`
	Role       ResponderRole `gorm:"type:varchar(10);default:'observer'" json:"role"`
	AssignedAt time.Time     `json:"assigned_at"`
	CreatedAt  time.Time     `json:"created_at"`
}

func (IncidentResponder) TableName() string {
	return "incident_responders"
}

// Timeline event types
const (
	TimelineEventCreated          = "created"
	TimelineEventStatusChanged    = "status_changed"
	TimelineEventNoteAdded        = "note_added"
	TimelineEventResponderAdded   = "responder_added"
	TimelineEventResponderRemoved = "responder_removed"
	TimelineEventResolved         = "resolved"
)

// IncidentTimelineEvent is one append-only audit entry. Rows are never
// updated or deleted.
type IncidentTimelineEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	IncidentID uint      `gorm:"not null;index" json:"incident_id"`
	EventType  string    `gorm:"size:32;not null" json:"event_type"`
	Actor      string    `gorm:"size:128" json:"actor"`
	Detail     string    `gorm:"type:text" json:"detail"`
	Metadata   JSONB     `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (IncidentTimelineEvent) TableName() string {
	return "incident_timeline_events"
}
