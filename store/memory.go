package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tbxark/brdagent/metadata"
)

// MemoryStateStore keeps project state in a process-local map. Suitable for
// tests and single-process usage.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*ProjectState
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: map[string]*ProjectState{}}
}

func (m *MemoryStateStore) Get(ctx context.Context, projectID string) (*ProjectState, error) {
	m.mu.RLock()
	state, ok := m.states[projectID]
	m.mu.RUnlock()
	if ok {
		return cloneState(state)
	}
	init := newProjectState(projectID)
	m.mu.Lock()
	m.states[projectID] = init
	m.mu.Unlock()
	return cloneState(init)
}

func (m *MemoryStateStore) Upsert(ctx context.Context, state *ProjectState) (*ProjectState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	merged := state.Metadata
	if existing, ok := m.states[state.ProjectID]; ok {
		var err error
		merged, err = metadata.Merge(existing.Metadata, state.Metadata)
		if err != nil {
			return nil, err
		}
	}
	next := &ProjectState{
		ProjectID:         state.ProjectID,
		Stage:             state.Stage,
		Metadata:          merged,
		Completed:         state.Completed,
		PendingField:      state.PendingField,
		PendingSuggestion: state.PendingSuggestion,
		UpdatedAt:         time.Now(),
	}
	m.states[state.ProjectID] = next
	return cloneState(next)
}

func cloneState(state *ProjectState) (*ProjectState, error) {
	meta, err := metadata.Merge(state.Metadata, nil)
	if err != nil {
		return nil, err
	}
	out := *state
	out.Metadata = meta
	return &out, nil
}

// MemoryMessageStore keeps conversation history in memory, oldest first.
type MemoryMessageStore struct {
	mu       sync.RWMutex
	messages map[string][]Message
}

func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{messages: map[string][]Message{}}
}

func (m *MemoryMessageStore) Recent(ctx context.Context, projectID string, n int) ([]Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.messages[projectID]
	if n > len(all) {
		n = len(all)
	}
	out := make([]Message, 0, n)
	for i := len(all) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, all[i])
	}
	return out, nil
}

func (m *MemoryMessageStore) Add(ctx context.Context, projectID, role, content string) (*Message, error) {
	msg := Message{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.messages[projectID] = append(m.messages[projectID], msg)
	m.mu.Unlock()
	return &msg, nil
}

// MemoryCredentialStore keeps remote-auth credentials in memory.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]*Credential
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{creds: map[string]*Credential{}}
}

// Put seeds a credential, e.g. after an OAuth callback or in tests.
func (m *MemoryCredentialStore) Put(userID string, cred *Credential) {
	m.mu.Lock()
	m.creds[userID] = cred
	m.mu.Unlock()
}

func (m *MemoryCredentialStore) Get(ctx context.Context, userID string) (*Credential, error) {
	m.mu.RLock()
	cred, ok := m.creds[userID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	out := *cred
	return &out, nil
}

func (m *MemoryCredentialStore) Update(ctx context.Context, userID, bearer, refreshToken string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[userID]
	if !ok {
		return ErrNotFound
	}
	cred.Bearer = bearer
	if refreshToken != "" {
		cred.RefreshToken = refreshToken
	}
	cred.Expiry = expiry
	return nil
}
