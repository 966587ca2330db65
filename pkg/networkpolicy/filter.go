package networkpolicy

// skipReason explains why a port is left alone. The empty reason means the port
// is subject to enforcement.
type skipReason string

const (
	eligible             skipReason = ""
	portSecurityDisabled skipReason = "port_security_disabled"
	exemptPort           skipReason = "exempt"
	unmanagedOwner       skipReason = "owner"
)

// Eligible reports whether the port must be evaluated against the policy.
func Eligible(port Port, policy Policy) bool {
	return checkEligibility(port, policy) == eligible
}

func checkEligibility(port Port, policy Policy) skipReason {
	if !port.SecurityEnabled {
		return portSecurityDisabled
	}
	if policy.Exempt.Has(port.ID) {
		return exemptPort
	}
	if !policy.Owners.Has(port.Owner) {
		return unmanagedOwner
	}
	return eligible
}
