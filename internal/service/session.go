package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jask/rosterflow/internal/database"
)

// KVStore is the persistence the session layer needs; the sqlite session
// repository satisfies it.
type KVStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ImportSession carries an in-flight run between invocations: the work the
// user has already put into resolutions and linkage review survives a
// restart. Parsed records are not persisted; re-running Prepare on the same
// file reproduces them, and stored pair IDs are stable across runs.
type ImportSession struct {
	ID          string                `json:"id"`
	RosterID    string                `json:"roster_id"`
	Mode        Mode                  `json:"mode"`
	PolicyHash  string                `json:"policy_hash"`
	Resolutions map[string]Resolution `json:"resolutions,omitempty"`
	Decisions   []Decision            `json:"decisions,omitempty"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func NewImportSession(rosterID string, mode Mode, policy MergePolicy) *ImportSession {
	return &ImportSession{
		ID:         uuid.NewString(),
		RosterID:   rosterID,
		Mode:       mode,
		PolicyHash: policy.Hash(),
	}
}

func sessionKey(id string) string { return "session:" + id }

// SaveSession persists the reviewable state under the session id.
func SaveSession(ctx context.Context, store KVStore, s *ImportSession) error {
	s.UpdatedAt = database.Now()
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session %s: %w", s.ID, err)
	}
	return store.Put(ctx, sessionKey(s.ID), string(b))
}

// LoadSession restores a saved session. When the caller's merge policy no
// longer matches the one the session was scored under, the stored linkage
// decisions are discarded so the batch gets re-scored; resolutions are kept,
// conflict pairs do not depend on the policy.
func LoadSession(ctx context.Context, store KVStore, id string, policy MergePolicy) (*ImportSession, bool, error) {
	raw, ok, err := store.Get(ctx, sessionKey(id))
	if err != nil || !ok {
		return nil, false, err
	}
	var s ImportSession
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, false, fmt.Errorf("session %s: %w", id, err)
	}
	if s.PolicyHash != policy.Hash() {
		s.Decisions = nil
		s.PolicyHash = policy.Hash()
	}
	return &s, true, nil
}

// DeleteSession drops a session after its batch is committed or abandoned.
func DeleteSession(ctx context.Context, store KVStore, id string) error {
	return store.Delete(ctx, sessionKey(id))
}
