package enums

import "fmt"

// OutboxAggregateType is the aggregate_type_enum column.
type OutboxAggregateType string

const AggregateComplaint OutboxAggregateType = "complaint"

// OutboxEventType is the event_type_enum column. Each value is one complaint
// lifecycle transition.
type OutboxEventType string

const (
	EventComplaintCreated  OutboxEventType = "complaint_created"
	EventComplaintAssigned OutboxEventType = "complaint_assigned"
	EventComplaintResolved OutboxEventType = "complaint_resolved"
	EventComplaintClosed   OutboxEventType = "complaint_closed"
)

// OutboxDLQErrorReason records why the publisher gave up on a row.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts means a retryable failure exhausted its budget.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable covers undecodable rows and unknown topics.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var (
	aggregateTypes = []OutboxAggregateType{AggregateComplaint}
	eventTypes     = []OutboxEventType{
		EventComplaintCreated,
		EventComplaintAssigned,
		EventComplaintResolved,
		EventComplaintClosed,
	}
	dlqReasons = []OutboxDLQErrorReason{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}
)

func oneOf[T ~string](set []T, value T) bool {
	for _, candidate := range set {
		if candidate == value {
			return true
		}
	}
	return false
}

func parseOneOf[T ~string](set []T, value, kind string) (T, error) {
	if oneOf(set, T(value)) {
		return T(value), nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, value)
}

func (a OutboxAggregateType) IsValid() bool { return oneOf(aggregateTypes, a) }

func (e OutboxEventType) IsValid() bool { return oneOf(eventTypes, e) }

func (r OutboxDLQErrorReason) IsValid() bool { return oneOf(dlqReasons, r) }

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseOneOf(aggregateTypes, value, "aggregate type")
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseOneOf(eventTypes, value, "event type")
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return parseOneOf(dlqReasons, value, "dlq reason")
}
