package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SweepRequest asks the recurring worker to run a materialization sweep.
// Policy is skip, create or replace; empty means the worker's default.
type SweepRequest struct {
	ID          string    `json:"id"`
	RequestedAt time.Time `json:"requested_at"`
	Policy      string    `json:"policy,omitempty"`
	// Force bypasses the once-per-day gate.
	Force bool `json:"force,omitempty"`
}

func NewSweepRequest(policy string, force bool) *SweepRequest {
	return &SweepRequest{
		ID:          uuid.NewString(),
		RequestedAt: time.Now(),
		Policy:      policy,
		Force:       force,
	}
}

func (m *SweepRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SweepRequestFromJSON(data []byte) (*SweepRequest, error) {
	var msg SweepRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RecordOp is the kind of change a RecordEvent reports.
type RecordOp string

const (
	RecordCreated RecordOp = "created"
	RecordUpdated RecordOp = "updated"
	RecordDeleted RecordOp = "deleted"
)

// RecordEvent announces a change to a ledger record. It carries the id
// only; consumers read the record from the store.
type RecordEvent struct {
	ID        string    `json:"id"`
	Op        RecordOp  `json:"op"`
	RecordID  int64     `json:"record_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRecordEvent(op RecordOp, recordID int64) *RecordEvent {
	return &RecordEvent{
		ID:        uuid.NewString(),
		Op:        op,
		RecordID:  recordID,
		Timestamp: time.Now(),
	}
}

func (m *RecordEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecordEventFromJSON(data []byte) (*RecordEvent, error) {
	var msg RecordEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
