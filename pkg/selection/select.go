package selection

import (
	"sort"

	"github.com/taps-protocol/taps-go/pkg/property"
)

// SecurityMode says how security parameters constrain stack selection.
type SecurityMode uint8

const (
	// SecurityCleartext eliminates TLS stacks.
	SecurityCleartext SecurityMode = iota

	// SecurityRequired eliminates stacks without TLS.
	SecurityRequired

	// SecurityOpportunistic admits both variants and ranks TLS stacks
	// ahead of their cleartext twins.
	SecurityOpportunistic
)

// String returns the security mode name.
func (m SecurityMode) String() string {
	switch m {
	case SecurityRequired:
		return "required"
	case SecurityOpportunistic:
		return "opportunistic"
	default:
		return "cleartext"
	}
}

// Select returns the protocol stacks able to satisfy the given
// properties, best ranked first. It is pure and performs no I/O.
//
// A stack is eliminated when a Require property is not provided, when a
// Prohibit property is intrinsically provided, or when the security mode
// excludes its variant. Survivors are ranked by the number of satisfied
// Prefer properties minus the number of Avoid properties the stack
// provides anyway; ties keep universe order. Multipath and Direction do
// not take part in elimination.
//
// An empty result means the combination is unsatisfiable and must be
// reported as a configuration error before any network I/O.
func Select(props property.TransportProperties, secured SecurityMode) []ProtocolStack {
	type ranked struct {
		stack ProtocolStack
		score int
	}

	var kept []ranked
	for _, stack := range Universe() {
		if !admissible(stack, secured) {
			continue
		}
		score, ok := evaluate(stack, props)
		if !ok {
			continue
		}
		if secured == SecurityOpportunistic && stack.Secure {
			score++
		}
		kept = append(kept, ranked{stack: stack, score: score})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})

	out := make([]ProtocolStack, len(kept))
	for i, r := range kept {
		out[i] = r.stack
	}
	return out
}

// admissible applies the security variant split.
func admissible(stack ProtocolStack, secured SecurityMode) bool {
	switch secured {
	case SecurityRequired:
		return stack.Secure
	case SecurityCleartext:
		return !stack.Secure
	default:
		return true
	}
}

// evaluate scores one stack against the properties. The second return
// value is false when the stack is eliminated.
func evaluate(stack ProtocolStack, props property.TransportProperties) (int, bool) {
	score := 0
	for kind := property.KindReliability; kind <= property.KindActiveReadBeforeSend; kind++ {
		pref, ok := props.Get(kind)
		if !ok {
			continue
		}
		provides := stack.Provides(kind)
		switch pref {
		case property.Require:
			if !provides {
				return 0, false
			}
		case property.Prohibit:
			if provides {
				return 0, false
			}
		case property.Prefer:
			if provides {
				score++
			}
		case property.Avoid:
			if provides {
				score--
			}
		}
	}
	return score, true
}
