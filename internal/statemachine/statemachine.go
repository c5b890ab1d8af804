// Package statemachine holds the transition rules for the global
// SystemState. The System Risk Controller is the only writer; this package
// only answers whether a proposed change is legal, it never mutates state.
package statemachine

import (
	"fmt"

	"github.com/cuongccna/ProjectBotTrading-sub001/internal/domain"
)

// automaticDescents are the only severity-lowering transitions the system
// may perform on its own. Everything below HALTED_HARD self-heals; hard
// halts and lockdowns need an operator.
var automaticDescents = map[domain.SystemState][]domain.SystemState{
	domain.StateDegraded:   {domain.StateRunning},
	domain.StateHaltedSoft: {domain.StateRunning},
}

// Transition validates an automatic (monitor- or system-initiated) change
// from one state to another. Escalations to a strictly higher severity are
// always legal; descents are legal only along automaticDescents; everything
// else wraps domain.ErrInvalidStateTransition.
func Transition(from, to domain.SystemState) error {
	if to == from {
		return fmt.Errorf("%w: already in %s", domain.ErrInvalidStateTransition, from)
	}
	if to.Severity() > from.Severity() {
		return nil
	}
	for _, allowed := range automaticDescents[from] {
		if to == allowed {
			return nil
		}
	}
	if from.RequiresManualResume() {
		return fmt.Errorf("%w: %s -> %s requires an operator resume", domain.ErrManualResumeRequired, from, to)
	}
	return fmt.Errorf("%w: %s -> %s is not an automatic transition", domain.ErrInvalidStateTransition, from, to)
}

// Resume validates an operator-initiated descent back to RUNNING. Soft
// halts resume freely; HALTED_HARD needs a named operator; emergency
// lockdown additionally needs the acknowledged flag.
func Resume(from domain.SystemState, req domain.ResumeRequest) error {
	if !from.RequiresManualResume() && from != domain.StateHaltedSoft {
		return fmt.Errorf("%w: %s is not a halted state", domain.ErrInvalidStateTransition, from)
	}
	if req.Operator == "" {
		return fmt.Errorf("%w: resume requires an operator", domain.ErrManualResumeRequired)
	}
	if from == domain.StateEmergencyLockdown && !req.Acknowledged {
		return fmt.Errorf("%w: emergency lockdown resume requires acknowledgement", domain.ErrManualResumeRequired)
	}
	return nil
}
