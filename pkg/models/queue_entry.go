package models

import "time"

// QueueEntry represents a Request awaiting human assignment.
type QueueEntry struct {
	EntryID               string           `json:"entry_id"`
	RequestID             string           `json:"request_id"`
	Priority              Priority         `json:"priority"`
	Complexity            Complexity       `json:"complexity"`
	RequiredSkills        []string         `json:"required_skills,omitempty"`
	FrustrationLevel      FrustrationLevel `json:"frustration_level"`
	Language              string           `json:"language,omitempty"`
	EnqueuedAt            time.Time        `json:"enqueued_at"`
	MaxWaitSeconds        int              `json:"max_wait_seconds,omitempty"`
	Position              int              `json:"position"`
	EstimatedAssignmentAt time.Time        `json:"estimated_assignment_at,omitzero"`
	AssignedAgentID       string           `json:"assigned_agent_id,omitempty"`
	Status                QueueEntryStatus `json:"status"`
}
