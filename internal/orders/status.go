package orders

// AttemptState is the outcome of one purchase attempt. An attempt is
// PENDING until its transaction ends, then COMMITTED or REJECTED for good.
type AttemptState string

const (
	AttemptPending   AttemptState = "PENDING"
	AttemptCommitted AttemptState = "COMMITTED"
	AttemptRejected  AttemptState = "REJECTED"
)

func (s AttemptState) String() string { return string(s) }

// settle gives the terminal state for the error a purchase transaction
// returned.
func settle(err error) AttemptState {
	if err != nil {
		return AttemptRejected
	}
	return AttemptCommitted
}
