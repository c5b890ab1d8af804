package domain

import "time"

// AlertPriority orders alerts for transports and rate limiting.
type AlertPriority string

const (
	AlertInfo      AlertPriority = "INFO"
	AlertWarning   AlertPriority = "WARNING"
	AlertHigh      AlertPriority = "HIGH"
	AlertCritical  AlertPriority = "CRITICAL"
	AlertEmergency AlertPriority = "EMERGENCY"
)

// PriorityForHaltLevel maps halt severity to alert priority.
func PriorityForHaltLevel(level HaltLevel) AlertPriority {
	switch level {
	case HaltSoft:
		return AlertHigh
	case HaltHard:
		return AlertCritical
	case HaltEmergency:
		return AlertEmergency
	default:
		return AlertWarning
	}
}

// Alert is a notification to operators. Delivery is asynchronous and
// best-effort; alerts never block the control path.
type Alert struct {
	ID            string          `json:"id"`
	Priority      AlertPriority   `json:"priority"`
	Title         string          `json:"title"`
	Message       string          `json:"message"`
	Trigger       Trigger         `json:"trigger,omitempty"`
	Category      TriggerCategory `json:"category,omitempty"`
	Symbol        string          `json:"symbol,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// RateKey groups alerts for rate limiting: bursts of the same trigger on
// the same symbol collapse into one delivery per window.
func (a Alert) RateKey() string {
	return string(a.Trigger) + "|" + a.Symbol
}
