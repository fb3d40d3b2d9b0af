package bridge

import "github.com/wippyai/protect-bridge/errors"

// Outcome classifies one Protect call.
type Outcome uint8

const (
	OutcomeProtected Outcome = iota
	OutcomeDenied
	OutcomeInvalidInput
	OutcomeUnavailableRuntime
	OutcomeAttachFailed
	OutcomeNoTarget
	OutcomeCallbackFault
)

// Outcomes lists every outcome in declaration order.
var Outcomes = []Outcome{
	OutcomeProtected,
	OutcomeDenied,
	OutcomeInvalidInput,
	OutcomeUnavailableRuntime,
	OutcomeAttachFailed,
	OutcomeNoTarget,
	OutcomeCallbackFault,
}

func (o Outcome) String() string {
	switch o {
	case OutcomeProtected:
		return "protected"
	case OutcomeDenied:
		return "denied"
	case OutcomeInvalidInput:
		return string(errors.KindInvalidInput)
	case OutcomeUnavailableRuntime:
		return string(errors.KindUnavailableRuntime)
	case OutcomeAttachFailed:
		return string(errors.KindAttachFailed)
	case OutcomeNoTarget:
		return string(errors.KindNoTarget)
	case OutcomeCallbackFault:
		return string(errors.KindCallbackFault)
	default:
		return "unknown"
	}
}

// Protected reports whether the outcome is a positive decision.
func (o Outcome) Protected() bool {
	return o == OutcomeProtected
}

// Failed reports whether the call degraded to the safe default.
func (o Outcome) Failed() bool {
	return o != OutcomeProtected && o != OutcomeDenied
}
