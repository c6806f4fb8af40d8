package connectivity

import (
	"fmt"
	"time"
)

// State is the connection state machine position.
type State int32

const (
	Idle State = iota
	AttemptingStored
	ProvisioningActive
	Connected
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AttemptingStored:
		return "AttemptingStored"
	case ProvisioningActive:
		return "ProvisioningActive"
	case Connected:
		return "Connected"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

const (
	// DefaultAttempts is the number of link status polls made with stored
	// credentials before falling back to provisioning.
	DefaultAttempts = 100

	// DefaultInterval is the delay between stored-credential polls.
	DefaultInterval = 50 * time.Millisecond

	// DefaultProvisionInterval is the provisioning loop period. The DNS
	// responder is serviced once per period.
	DefaultProvisionInterval = 50 * time.Millisecond
)

// Policy bounds the stored-credential attempt and paces provisioning.
type Policy struct {
	Attempts          int
	Interval          time.Duration
	ProvisionInterval time.Duration
}

// DefaultPolicy returns the 100 x 50ms (five second) budget.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:          DefaultAttempts,
		Interval:          DefaultInterval,
		ProvisionInterval: DefaultProvisionInterval,
	}
}
