package domain

// OpKind distinguishes the two execution operations.
type OpKind int

const (
	OpPlace OpKind = iota + 1
	OpCancel
)

func (k OpKind) String() string {
	switch k {
	case OpPlace:
		return "PLACE"
	case OpCancel:
		return "CANCEL"
	default:
		return "UNKNOWN"
	}
}

// OutcomeKind classifies the terminal result of one execution operation.
type OutcomeKind int

const (
	// OutcomePlaced: the venue acknowledged the placement.
	OutcomePlaced OutcomeKind = iota + 1
	// OutcomeCancelled: the venue confirmed the cancellation.
	OutcomeCancelled
	// OutcomeRejected: the venue explicitly refused the operation.
	OutcomeRejected
	// OutcomeUnknown: the call timed out; the venue may or may not have
	// acted. Requires an explicit order-status query before any retry.
	OutcomeUnknown
	// OutcomeFailed: transport failure with the retry budget exhausted.
	// The request never got a venue acknowledgement.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePlaced:
		return "PLACED"
	case OutcomeCancelled:
		return "CANCELLED"
	case OutcomeRejected:
		return "REJECTED"
	case OutcomeUnknown:
		return "UNKNOWN"
	case OutcomeFailed:
		return "FAILED"
	default:
		return "INVALID"
	}
}

// Outcome is the typed result of one execution operation. Every submitted
// operation resolves to exactly one Outcome; none are discarded.
type Outcome struct {
	LocalID string
	Op      OpKind
	Kind    OutcomeKind
	VenueID string
	Err     error
}
