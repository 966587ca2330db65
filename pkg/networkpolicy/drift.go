package networkpolicy

import (
	"k8s.io/apimachinery/pkg/util/sets"
)

// Decision is a correction for a single port: the complete list of security
// groups the port has to carry.
type Decision struct {
	PortID         string
	SecurityGroups []string
}

// Correct computes the correction an eligible port needs under the policy.
// It returns false when the port already satisfies the policy.
//
// In Replace mode the groups must match the desired ones as a set; a correction
// sets exactly the desired groups. In Append mode the desired groups must be a
// subset of the current ones; a correction keeps the current groups in their order
// and appends the missing desired groups.
func Correct(port Port, policy Policy) (Decision, bool) {
	current := sets.New(port.SecurityGroups...)
	desired := sets.New(policy.DesiredGroups...)

	switch policy.Mode {
	case Append:
		if current.IsSuperset(desired) {
			return Decision{}, false
		}
		groups := uniqueOrdered(port.SecurityGroups)
		for _, group := range policy.DesiredGroups {
			if !current.Has(group) {
				groups = append(groups, group)
				current.Insert(group)
			}
		}
		return Decision{PortID: port.ID, SecurityGroups: groups}, true
	default:
		if current.Equal(desired) {
			return Decision{}, false
		}
		return Decision{PortID: port.ID, SecurityGroups: uniqueOrdered(policy.DesiredGroups)}, true
	}
}
