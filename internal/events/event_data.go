package events

import (
	"encoding/json"
	"time"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// EventData is the interface that all event data types must implement
// This allows for type-safe event data while maintaining flexibility
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// SystemStateChangedData contains data for SystemStateChanged events
type SystemStateChangedData struct {
	From    domain.SystemState `json:"from"`
	To      domain.SystemState `json:"to"`
	Trigger domain.Trigger     `json:"trigger"`
	Reason  string             `json:"reason,omitempty"`
}

// EventType returns the event type for SystemStateChangedData
func (d *SystemStateChangedData) EventType() EventType {
	return SystemStateChanged
}

// HaltTriggeredData contains data for HaltTriggered events
type HaltTriggeredData struct {
	EventID  string                 `json:"event_id"`
	Trigger  domain.Trigger         `json:"trigger"`
	Category domain.TriggerCategory `json:"category"`
	Level    domain.HaltLevel       `json:"level"`
	Reason   string                 `json:"reason"`
	Symbol   string                 `json:"symbol,omitempty"`
}

// EventType returns the event type for HaltTriggeredData
func (d *HaltTriggeredData) EventType() EventType {
	return HaltTriggered
}

// ResumeGrantedData contains data for ResumeGranted events
type ResumeGrantedData struct {
	Operator string             `json:"operator"`
	From     domain.SystemState `json:"from"`
	To       domain.SystemState `json:"to"`
}

// EventType returns the event type for ResumeGrantedData
func (d *ResumeGrantedData) EventType() EventType {
	return ResumeGranted
}

// RiskStateChangedData contains data for RiskStateChanged events
type RiskStateChangedData struct {
	Dimension domain.RiskDimension `json:"dimension,omitempty"`
	From      domain.RiskState     `json:"from"`
	To        domain.RiskState     `json:"to"`
	FromLevel domain.RiskLevel     `json:"from_level"`
	ToLevel   domain.RiskLevel     `json:"to_level"`
	Total     int                  `json:"total"`
	Reason    string               `json:"reason,omitempty"`
}

// EventType returns the event type for RiskStateChangedData
func (d *RiskStateChangedData) EventType() EventType {
	return RiskStateChanged
}

// TradeEvaluatedData contains data for TradeEvaluated events
type TradeEvaluatedData struct {
	RequestID     string          `json:"request_id"`
	Symbol        string          `json:"symbol"`
	Decision      domain.Decision `json:"decision"`
	PrimaryReason string          `json:"primary_reason"`
	AllowedSize   float64         `json:"allowed_size"`
}

// EventType returns the event type for TradeEvaluatedData
func (d *TradeEvaluatedData) EventType() EventType {
	return TradeEvaluated
}

// PositionOpenedData contains data for PositionOpened events
type PositionOpenedData struct {
	PositionID string  `json:"position_id"`
	Symbol     string  `json:"symbol"`
	RiskPct    float64 `json:"risk_pct"`
}

// EventType returns the event type for PositionOpenedData
func (d *PositionOpenedData) EventType() EventType {
	return PositionOpened
}

// PositionClosedData contains data for PositionClosed events
type PositionClosedData struct {
	PositionID  string   `json:"position_id"`
	Symbol      string   `json:"symbol"`
	RealizedPnL *float64 `json:"realized_pnl,omitempty"`
}

// EventType returns the event type for PositionClosedData
func (d *PositionClosedData) EventType() EventType {
	return PositionClosed
}

// EquityUpdatedData contains data for EquityUpdated events
type EquityUpdatedData struct {
	Equity float64 `json:"equity"`
	Source string  `json:"source"`
}

// EventType returns the event type for EquityUpdatedData
func (d *EquityUpdatedData) EventType() EventType {
	return EquityUpdated
}

// SourceHealthChangedData contains data for SourceHealthChanged events
type SourceHealthChangedData struct {
	Source string             `json:"source"`
	From   domain.HealthState `json:"from"`
	To     domain.HealthState `json:"to"`
	Score  float64            `json:"score"`
}

// EventType returns the event type for SourceHealthChangedData
func (d *SourceHealthChangedData) EventType() EventType {
	return SourceHealthChanged
}

// GuardViolationData contains data for GuardViolation events
type GuardViolationData struct {
	Symbol       string  `json:"symbol"`
	Kind         string  `json:"kind"`
	DeviationPct float64 `json:"deviation_pct,omitempty"`
	Reason       string  `json:"reason"`
}

// EventType returns the event type for GuardViolationData
func (d *GuardViolationData) EventType() EventType {
	return GuardViolation
}

// CycleCompletedData contains data for CycleCompleted events
type CycleCompletedData struct {
	CycleID    string             `json:"cycle_id"`
	Mode       domain.RuntimeMode `json:"mode"`
	Sequence   int64              `json:"sequence"`
	Success    bool               `json:"success"`
	DurationMS float64            `json:"duration_ms"`
}

// EventType returns the event type for CycleCompletedData
func (d *CycleCompletedData) EventType() EventType {
	return CycleCompleted
}

// ErrorEventData contains data for ErrorOccurred events
type ErrorEventData struct {
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// EventType returns the event type for ErrorEventData
func (d *ErrorEventData) EventType() EventType {
	return ErrorOccurred
}

// Event represents an emitted event with typed data
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data"`
}

// MarshalJSON customizes JSON serialization for Event
func (e *Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for Event
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	// Unmarshal data based on event type
	if len(aux.Data) > 0 {
		var eventData EventData
		switch aux.Type {
		case SystemStateChanged:
			eventData = &SystemStateChangedData{}
		case HaltTriggered:
			eventData = &HaltTriggeredData{}
		case ResumeGranted:
			eventData = &ResumeGrantedData{}
		case RiskStateChanged:
			eventData = &RiskStateChangedData{}
		case TradeEvaluated:
			eventData = &TradeEvaluatedData{}
		case PositionOpened:
			eventData = &PositionOpenedData{}
		case PositionClosed:
			eventData = &PositionClosedData{}
		case EquityUpdated:
			eventData = &EquityUpdatedData{}
		case SourceHealthChanged:
			eventData = &SourceHealthChangedData{}
		case GuardViolation:
			eventData = &GuardViolationData{}
		case CycleCompleted:
			eventData = &CycleCompletedData{}
		case ErrorOccurred:
			eventData = &ErrorEventData{}
		default:
			// For unknown types, keep the raw map
			var rawData map[string]interface{}
			if err := json.Unmarshal(aux.Data, &rawData); err != nil {
				return err
			}
			eventData = &GenericEventData{Type: aux.Type, Data: rawData}
		}

		if eventData != nil {
			if _, ok := eventData.(*GenericEventData); !ok {
				if err := json.Unmarshal(aux.Data, eventData); err != nil {
					return err
				}
			}
			e.Data = eventData
		}
	}

	return nil
}

// GenericEventData is a fallback for events that don't have a specific type
type GenericEventData struct {
	Type EventType              `json:"-"`
	Data map[string]interface{} `json:"-"`
}

// EventType returns the event type for GenericEventData
func (d *GenericEventData) EventType() EventType {
	return d.Type
}

// MarshalJSON customizes JSON serialization for GenericEventData
func (d *GenericEventData) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Data)
}

// UnmarshalJSON customizes JSON deserialization for GenericEventData
func (d *GenericEventData) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &d.Data)
}
