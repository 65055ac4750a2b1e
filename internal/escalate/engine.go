// Package escalate maps classifier output and active strike counts to
// escalation outcomes. Escalation state is always derived from the current
// count, never stored, so state and count cannot diverge.
package escalate

import (
	"fmt"

	"github.com/crewsight/foreman/internal/classifier"
)

// State is the escalation level derived from a worker's active strike count
// under one pillar.
type State string

const (
	StateClear    State = "clear"    // 0 active strikes
	StateWarned   State = "warned"   // 1 active strike
	StateElevated State = "elevated" // 2 active strikes
	StateCritical State = "critical" // 3 or more active strikes
)

// Action is the directive the engine emits toward the human-facing channel.
// The engine never takes irreversible action itself.
type Action string

const (
	ActionLogOnly       Action = "log_only"
	ActionFlagForReview Action = "flag_for_review"
	ActionNotifyLead    Action = "notify_lead"
	ActionIntervene     Action = "recommend_intervention"
)

// StateForCount derives the escalation state from an active strike count.
// A pure function of the count: two workers with identical counts always
// land in the same state regardless of history shape.
func StateForCount(count int) State {
	switch {
	case count <= 0:
		return StateClear
	case count == 1:
		return StateWarned
	case count == 2:
		return StateElevated
	default:
		return StateCritical
	}
}

// ActionForState maps a state to its directive.
func ActionForState(state State) Action {
	switch state {
	case StateWarned:
		return ActionFlagForReview
	case StateElevated:
		return ActionNotifyLead
	case StateCritical:
		return ActionIntervene
	default:
		return ActionLogOnly
	}
}

// Outcome is the engine's verdict for one classified event.
type Outcome struct {
	State   State  `json:"state"`
	Action  Action `json:"action"`
	Summary string `json:"summary"`
}

// Notify reports whether the outcome warrants a post to the escalation
// channel rather than a log entry.
func (o Outcome) Notify() bool {
	return o.Action == ActionNotifyLead || o.Action == ActionIntervene
}

// Evaluate re-derives the escalation outcome for a directive that recorded a
// strike. Directives without a strike (check-ins on time, checkouts, other)
// are log-only.
func Evaluate(d classifier.Directive) Outcome {
	if d.Payload.StrikePillar == "" {
		return Outcome{
			State:   StateClear,
			Action:  ActionLogOnly,
			Summary: fmt.Sprintf("%s: %s", d.Payload.Worker, d.Task),
		}
	}

	state := StateForCount(d.Payload.StrikeCount)
	return Outcome{
		State:  state,
		Action: ActionForState(state),
		Summary: fmt.Sprintf("%s: %d active %s strike(s) — %s",
			d.Payload.Worker, d.Payload.StrikeCount, d.Payload.StrikePillar, state),
	}
}
