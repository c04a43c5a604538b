// Package audit records the state-mutating decisions this client makes
// against the backend, for later review.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/ticketops/tickctl/internal/history"
)

// DecisionLog writes decision records into the local history database.
type DecisionLog struct {
	store *history.Store
}

// NewDecisionLog creates a decision log backed by the given store.
func NewDecisionLog(s *history.Store) *DecisionLog {
	return &DecisionLog{store: s}
}

// Record writes one decision entry for a state-mutating action.
func (l *DecisionLog) Record(action string, inputs interface{}, outcome, jobID, details string) error {
	_, err := l.store.WriteDecision(action, hashInputs(inputs), outcome, jobID, details)
	return err
}

// List returns recorded decisions, optionally filtered by job.
func (l *DecisionLog) List(jobID string, limit int) ([]history.Decision, error) {
	return l.store.ListDecisions(jobID, limit)
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs interface{}) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
