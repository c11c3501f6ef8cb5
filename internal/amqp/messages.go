package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"budgetapp/internal/budget"
	"budgetapp/internal/export"

	"github.com/google/uuid"
)

// Message types carried in the AMQP Type property.
const (
	TypeChangeEvent   = "budget.change"
	TypeExportRequest = "export.rows"
)

// ChangeRoutingKey routes change events. Nothing binds it by default; other
// consumers subscribe by binding their own queue.
const ChangeRoutingKey = "budget.changes"

// ChangeEvent announces one applied engine mutation.
type ChangeEvent struct {
	ID string `json:"id"`
	budget.Change
}

func NewChangeEvent(c budget.Change) *ChangeEvent {
	return &ChangeEvent{ID: uuid.NewString(), Change: c}
}

func (m *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var msg ChangeEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ExportRequest asks the worker to write a batch of rows to its sinks.
type ExportRequest struct {
	export.Batch
	RequestedAt time.Time `json:"requestedAt"`
}

// NewExportRequest assigns the batch an id when it has none.
func NewExportRequest(b export.Batch) *ExportRequest {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return &ExportRequest{Batch: b, RequestedAt: time.Now()}
}

func (m *ExportRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportRequestFromJSON decodes and checks a request body.
func ExportRequestFromJSON(data []byte) (*ExportRequest, error) {
	var msg ExportRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("export request without id")
	}
	if !msg.Month.Valid() {
		return nil, fmt.Errorf("export request %s: invalid month %q", msg.ID, msg.Month)
	}
	return &msg, nil
}
