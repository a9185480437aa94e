// Package audit provides PDR (Process Decision Record) writing for taskgrid.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/taskgrid/internal/models"
)

// Sink persists decision records. *store.Store satisfies it.
type Sink interface {
	WritePDR(action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	sink Sink
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(s Sink) *PDRWriter {
	return &PDRWriter{sink: s}
}

// Record writes a PDR entry for a state-mutating action.
func (w *PDRWriter) Record(action string, inputs interface{}, outcome, taskID, details string) (*models.PDREntry, error) {
	inputsHash := hashInputs(inputs)
	return w.sink.WritePDR(action, inputsHash, outcome, taskID, details)
}

// RecordEvent writes the PDR entry for a scheduler event. The event itself is
// the hashed input.
func (w *PDRWriter) RecordEvent(ev models.Event) (*models.PDREntry, error) {
	inputs := struct {
		Kind    models.EventKind `json:"kind"`
		TaskID  string           `json:"task_id"`
		AgentID string           `json:"agent_id"`
		Message string           `json:"message"`
	}{ev.Kind, ev.TaskID, ev.AgentID, ev.Message}

	details := ev.Message
	if ev.AgentID != "" {
		if details != "" {
			details = ev.AgentID + ": " + details
		} else {
			details = ev.AgentID
		}
	}
	return w.Record(string(ev.Kind), inputs, "success", ev.TaskID, details)
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
