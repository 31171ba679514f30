package types

import (
	"encoding/json"
	"time"
)

// EventType tags the variant of a progress Event.
type EventType string

const (
	// EventTypePnlUpdate carries the mark-to-market equity after a bar.
	EventTypePnlUpdate EventType = "pnl_update"
	// EventTypeOrderEvent carries an executed trade.
	EventTypeOrderEvent EventType = "order_event"
	// EventTypeLog carries an informational message from the engine.
	EventTypeLog EventType = "log"
	// EventTypeBacktestResult carries the terminal result of a run.
	EventTypeBacktestResult EventType = "backtest_result"
)

// Event is the tagged-variant progress message streamed to external observers
// while a run is processed. Exactly one payload field is set per variant:
// Value for pnl_update, Trade for order_event, Message for log, and
// Status/Summary for backtest_result.
type Event struct {
	Type  EventType `json:"type"`
	RunID string    `json:"run_id,omitempty"`
	Date  time.Time `json:"date,omitempty"`

	Value   float64             `json:"value,omitempty"`
	Trade   *Trade              `json:"trade,omitempty"`
	Message string              `json:"message,omitempty"`
	Status  RunStatus           `json:"status,omitempty"`
	Summary *PerformanceSummary `json:"summary,omitempty"`
}

// Marshal serializes the event as JSON for the wire.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
