package quantum

import "context"

// Oracle is the external single-qubit transform service. Given a prior
// declared state and a gate it returns the new state label. Any failure is
// an error; the caller must treat it as "no move occurred".
type Oracle interface {
	ApplyGate(ctx context.Context, priorState string, gate GateType) (string, error)
}

// ResolveGate maps (prior state, gate, control state) to the new state.
// CNOT is the one two-qubit gate and is resolved locally: a |1> control
// flips the target exactly like an X, anything else leaves it untouched.
// Every single-qubit gate is delegated to the oracle.
func ResolveGate(ctx context.Context, oracle Oracle, priorState string, gate GateType, controlState string) (string, error) {
	if gate == GateControlledNot {
		if controlState == StateOne {
			return ResolveGate(ctx, oracle, priorState, GateBitFlip, "")
		}
		return priorState, nil
	}
	return oracle.ApplyGate(ctx, priorState, gate)
}
