package txmanager

import "fmt"

// State SigningTransaction 的生命周期
type State string

const (
	StateBuilt             State = "built"
	StateSigning           State = "signing"
	StateSubmitted         State = "submitted"
	StateAwaitingBroadcast State = "awaiting_broadcast"
	StateSubmitFailed      State = "submit_failed"
)

var transitions = map[State][]State{
	StateBuilt:   {StateSigning},
	StateSigning: {StateSubmitted, StateAwaitingBroadcast, StateSubmitFailed},
}

func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal 终态之后 stash 中不再有这笔交易
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateAwaitingBroadcast || s == StateSubmitFailed
}

func (st *SigningTransaction) transition(to State) error {
	if !st.State.CanTransition(to) {
		return fmt.Errorf("illegal transition %s -> %s", st.State, to)
	}
	st.State = to
	return nil
}
