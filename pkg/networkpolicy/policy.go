package networkpolicy

import (
	"errors"

	"k8s.io/apimachinery/pkg/util/sets"
)

// DefaultOwner is the device owner enforced when a network does not list any.
const DefaultOwner = "compute:None"

// ErrMalformedResponse is returned by a PortClient when the control plane answers
// a port listing without a ports list.
var ErrMalformedResponse = errors.New("response does not contain a ports list")

// Port is the view of a control plane port the controller reconciles.
type Port struct {
	ID              string
	SecurityEnabled bool
	Owner           string
	SecurityGroups  []string
}

// Mode selects how drift is corrected.
type Mode int

const (
	// Replace forces the port groups to be exactly the desired ones.
	Replace Mode = iota + 1
	// Append only adds the missing desired groups and keeps any others.
	Append
)

func (m Mode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Append:
		return "append"
	default:
		return "unknown"
	}
}

// Policy is the desired state of a single monitored network.
// DesiredGroups is never empty, config loading rejects that.
type Policy struct {
	NetworkID     string
	DesiredGroups []string
	Exempt        sets.Set[string]
	Owners        sets.Set[string]
	Mode          Mode
}

// NewPolicy returns a Policy with desired groups de-duplicated in their given order.
// An empty owners list falls back to DefaultOwner.
func NewPolicy(networkID string, desired, exempt, owners []string, mode Mode) Policy {
	if len(owners) == 0 {
		owners = []string{DefaultOwner}
	}
	return Policy{
		NetworkID:     networkID,
		DesiredGroups: uniqueOrdered(desired),
		Exempt:        sets.New(exempt...),
		Owners:        sets.New(owners...),
		Mode:          mode,
	}
}
