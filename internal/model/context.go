package model

import "time"

// SessionContext is a saved assistant session summary. agentsync carries the
// list opaquely; its shape is owned by the context store.
type SessionContext struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Summary   string     `json:"summary,omitempty"`
	Content   string     `json:"content,omitempty"`
	Project   string     `json:"project,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}
