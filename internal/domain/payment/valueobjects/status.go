package valueobjects

// TransactionStatus is the lifecycle state of a payment transaction.
//
//	pending ──► processing ──► captured | failed | expired
//	   └────────────────────► captured | failed | expired
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCaptured   TransactionStatus = "captured"
	StatusFailed     TransactionStatus = "failed"
	StatusExpired    TransactionStatus = "expired"
)

var allowedTransitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:    {StatusProcessing, StatusCaptured, StatusFailed, StatusExpired},
	StatusProcessing: {StatusCaptured, StatusFailed, StatusExpired},
}

func ParseStatus(s string) (TransactionStatus, bool) {
	st := TransactionStatus(s)
	return st, st.IsValid()
}

func (s TransactionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCaptured, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// IsFinal reports whether no further transition may leave this status.
func (s TransactionStatus) IsFinal() bool {
	return s == StatusCaptured || s == StatusFailed || s == StatusExpired
}

func (s TransactionStatus) IsCaptured() bool {
	return s == StatusCaptured
}

// CanTransitionTo reports whether moving from s to next is a forward edge of
// the state machine. Self transitions are not edges.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s TransactionStatus) String() string {
	return string(s)
}
