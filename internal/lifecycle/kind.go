package lifecycle

import "strings"

// Kind is a managed resource type.
type Kind string

const (
	KindVM        Kind = "vms"
	KindContainer Kind = "containers"
	KindJail      Kind = "jails"
)

// Kinds lists every resource kind in display order.
var Kinds = []Kind{KindVM, KindContainer, KindJail}

// ParseKind maps a route segment to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.TrimSpace(s)) {
	case KindVM:
		return KindVM, true
	case KindContainer:
		return KindContainer, true
	case KindJail:
		return KindJail, true
	default:
		return "", false
	}
}

// String returns the route segment of k.
func (k Kind) String() string { return string(k) }

// RunningStatus is the status a started resource of kind k reports.
func (k Kind) RunningStatus() string {
	switch k {
	case KindContainer:
		return "up"
	case KindJail:
		return "active"
	default:
		return "running"
	}
}

// StoppedStatus is the status a stopped resource of kind k reports. New
// resources start in this state.
func (k Kind) StoppedStatus() string {
	switch k {
	case KindContainer:
		return "exited"
	case KindJail:
		return "inactive"
	default:
		return "stopped"
	}
}

// Action is a lifecycle transition.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// ParseAction maps a route segment to an Action.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.TrimSpace(s)) {
	case ActionStart:
		return ActionStart, true
	case ActionStop:
		return ActionStop, true
	case ActionRestart:
		return ActionRestart, true
	default:
		return "", false
	}
}

// NextStatus returns the status a resource of kind k moves to under a.
// Restart settles in the running state.
func NextStatus(k Kind, a Action) string {
	if a == ActionStop {
		return k.StoppedStatus()
	}
	return k.RunningStatus()
}

// pastTense renders a for audit details and messages ("started").
func (a Action) pastTense() string {
	switch a {
	case ActionStop:
		return "stopped"
	default:
		return string(a) + "ed"
	}
}

// auditAction is the log action code for a ("RESOURCE_START").
func (a Action) auditAction() string {
	return "RESOURCE_" + strings.ToUpper(string(a))
}
