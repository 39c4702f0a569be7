// Package store defines the persistence contracts consumed by the turn
// processor and the tool gateway, with in-memory and SQLite implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tbxark/brdagent/metadata"
	"github.com/tbxark/brdagent/stage"
)

// ErrNotFound is returned when a keyed record does not exist.
var ErrNotFound = errors.New("record not found")

// ProjectState is the persisted conversation position for one project.
// PendingField and PendingSuggestion are scratch slots for the
// suggest-then-confirm flow and are persisted verbatim.
type ProjectState struct {
	ProjectID         string             `json:"project_id"`
	Stage             stage.ID           `json:"stage"`
	Metadata          *metadata.Metadata `json:"metadata"`
	Completed         bool               `json:"completed"`
	PendingField      string             `json:"pending_field,omitempty"`
	PendingSuggestion string             `json:"pending_suggestion,omitempty"`
	UpdatedAt         time.Time          `json:"updated_at,omitempty"`
}

// StateStore persists project state. Get lazily initializes unknown projects
// to the first stage with empty metadata. Upsert merges the provided
// metadata into whatever is already stored, then writes.
type StateStore interface {
	Get(ctx context.Context, projectID string) (*ProjectState, error)
	Upsert(ctx context.Context, state *ProjectState) (*ProjectState, error)
}

// Message is one persisted conversation message.
type Message struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// MessageStore persists conversation history. Recent returns up to n
// messages ordered newest-first.
type MessageStore interface {
	Recent(ctx context.Context, projectID string, n int) ([]Message, error)
	Add(ctx context.Context, projectID, role, content string) (*Message, error)
}

// Credential is a remote-auth credential owned by the credential store and
// conditionally refreshed by the gateway.
type Credential struct {
	Bearer       string    `json:"bearer"`
	CloudID      string    `json:"cloud_id"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// Expired reports whether the credential must be refreshed before use.
func (c *Credential) Expired(now time.Time) bool {
	return !c.Expiry.IsZero() && !c.Expiry.After(now)
}

// CredentialStore reads and updates per-user remote-auth credentials.
type CredentialStore interface {
	Get(ctx context.Context, userID string) (*Credential, error)
	Update(ctx context.Context, userID, bearer, refreshToken string, expiry time.Time) error
}

func newProjectState(projectID string) *ProjectState {
	return &ProjectState{
		ProjectID: projectID,
		Stage:     stage.First().ID,
		Metadata:  &metadata.Metadata{},
	}
}
