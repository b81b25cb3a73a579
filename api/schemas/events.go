// File: api/schemas/events.go
package schemas

import "time"

// EventType identifies the kind of administrative friction an event records.
type EventType string

// Financial friction.
const (
	EventScholarshipDelay EventType = "scholarship_delay"
	EventFeePayment       EventType = "fee_payment"
	EventFinancialAid     EventType = "financial_aid"
	EventAccountHold      EventType = "account_hold"
)

// Academic friction.
const (
	EventAttendanceWarning EventType = "attendance_warning"
	EventDeadlineConflict  EventType = "deadline_conflict"
	EventAdminWarning      EventType = "admin_warning"
	EventResourceAccess    EventType = "resource_access"
	EventRegistrationBlock EventType = "registration_block"
)

// Residential friction.
const (
	EventHostelAccess       EventType = "hostel_access"
	EventMessCard           EventType = "mess_card"
	EventRoomAssignment     EventType = "room_assignment"
	EventAmenityRestriction EventType = "amenity_restriction"
	EventHousingPayment     EventType = "housing_payment"
)

// Language and communication friction.
const (
	EventLanguageBarrier    EventType = "language_barrier"
	EventFormConfusion      EventType = "form_confusion"
	EventCommunicationIssue EventType = "communication_issue"
)

// Domain groups event types that a single domain scorer is responsible for.
type Domain string

const (
	DomainFinancial   Domain = "financial"
	DomainAcademic    Domain = "academic"
	DomainResidential Domain = "residential"
	DomainLanguage    Domain = "language"
)

// DomainEventTypes lists the event types owned by each built-in domain.
var DomainEventTypes = map[Domain][]EventType{
	DomainFinancial:   {EventScholarshipDelay, EventFeePayment, EventFinancialAid, EventAccountHold},
	DomainAcademic:    {EventAttendanceWarning, EventDeadlineConflict, EventAdminWarning, EventResourceAccess, EventRegistrationBlock},
	DomainResidential: {EventHostelAccess, EventMessCard, EventRoomAssignment, EventAmenityRestriction, EventHousingPayment},
	DomainLanguage:    {EventLanguageBarrier, EventFormConfusion, EventCommunicationIssue},
}

// DomainOf reports which built-in domain owns the event type.
func DomainOf(t EventType) (Domain, bool) {
	for d, types := range DomainEventTypes {
		for _, candidate := range types {
			if candidate == t {
				return d, true
			}
		}
	}
	return "", false
}

// Event is one timestamped friction record. Events are immutable once recorded.
type Event struct {
	ID           string    `json:"id" yaml:"id"`
	IndividualID string    `json:"individual_id" yaml:"individual_id"`
	Type         EventType `json:"type" yaml:"type"`
	// Severity is in [0, 1].
	Severity    float64   `json:"severity" yaml:"severity"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// Context carries caller-supplied signals that accompany an evaluation,
// e.g. "protected_context" or "requires_human_contact" for the ethics review.
type Context map[string]any

// Flag reports whether the named key is present and truthy.
func (c Context) Flag(key string) bool {
	if c == nil {
		return false
	}
	switch v := c[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "yes" || v == "1"
	case int:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}
