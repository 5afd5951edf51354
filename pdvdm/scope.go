package pdvdm

import "fmt"

// Scope is the SOP* address a VDM travels on.
type Scope uint8

const (
	SOP Scope = iota
	SOPPrime
	SOPPrimePrime
	SOPPrimeDebug
	SOPPrimePrimeDebug
)

// DiscoveryScopes are the scopes discovery and mode state are kept for.
var DiscoveryScopes = []Scope{SOP, SOPPrime}

// NumScopes is the number of distinct scope values.
const NumScopes = 5

func (s Scope) String() string {
	switch s {
	case SOP:
		return "SOP"
	case SOPPrime:
		return "SOP'"
	case SOPPrimePrime:
		return "SOP''"
	case SOPPrimeDebug:
		return "SOP'_Debug"
	case SOPPrimePrimeDebug:
		return "SOP''_Debug"
	}
	return fmt.Sprintf("Scope(%d)", uint8(s))
}

// IsCable reports whether the scope addresses a cable plug.
func (s Scope) IsCable() bool {
	return s != SOP
}

// ParseScope accepts the names produced by String, plus "sop1" and "sop2".
func ParseScope(str string) (Scope, error) {
	switch str {
	case "SOP", "sop":
		return SOP, nil
	case "SOP'", "sop'", "sop1":
		return SOPPrime, nil
	case "SOP''", "sop''", "sop2":
		return SOPPrimePrime, nil
	}
	return SOP, fmt.Errorf("unknown scope %q", str)
}
