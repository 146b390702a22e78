package enums

import "fmt"

// CheckoutState is the persisted step of a checkout saga.
type CheckoutState string

const (
	CheckoutStateValidating   CheckoutState = "VALIDATING"
	CheckoutStatePricing      CheckoutState = "PRICING"
	CheckoutStateCharging     CheckoutState = "CHARGING"
	CheckoutStateDecrementing CheckoutState = "DECREMENTING"
	CheckoutStatePersisting   CheckoutState = "PERSISTING"
	CheckoutStateNotifying    CheckoutState = "NOTIFYING"
	CheckoutStateDone         CheckoutState = "DONE"
	CheckoutStateCompensating CheckoutState = "COMPENSATING"
	CheckoutStateFailed       CheckoutState = "FAILED"
)

var validCheckoutStates = []CheckoutState{
	CheckoutStateValidating,
	CheckoutStatePricing,
	CheckoutStateCharging,
	CheckoutStateDecrementing,
	CheckoutStatePersisting,
	CheckoutStateNotifying,
	CheckoutStateDone,
	CheckoutStateCompensating,
	CheckoutStateFailed,
}

// ResumableCheckoutStates lists the states a reconciler picks up after a crash.
var ResumableCheckoutStates = []CheckoutState{
	CheckoutStateCharging,
	CheckoutStateDecrementing,
	CheckoutStatePersisting,
	CheckoutStateNotifying,
	CheckoutStateCompensating,
}

// String implements fmt.Stringer.
func (s CheckoutState) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CheckoutState.
func (s CheckoutState) IsValid() bool {
	for _, candidate := range validCheckoutStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the saga has nothing left to do.
func (s CheckoutState) IsTerminal() bool {
	return s == CheckoutStateDone || s == CheckoutStateFailed
}

// ParseCheckoutState converts raw input into a CheckoutState.
func ParseCheckoutState(value string) (CheckoutState, error) {
	for _, candidate := range validCheckoutStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout state %q", value)
}
