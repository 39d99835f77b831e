package domain

import "github.com/google/uuid"

type Role string

const (
	RoleRequester Role = "REQUESTER"
	RoleOperator  Role = "OPERATOR"
)

// Actor is whoever is asking for a transition. The identity collaborator
// decides the role; this package only enforces the transition table.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

// transitions is the lifecycle table: for each legal edge, the set of roles
// allowed to drive it. Cancellation is reachable from every non-terminal
// state; REJECTED and CONFIRMED are terminal apart from the operator's
// administrative CONFIRMED -> CANCELLED override.
var transitions = map[Status]map[Status][]Role{
	StatusPending: {
		StatusApproved:  {RoleOperator},
		StatusRejected:  {RoleOperator},
		StatusCancelled: {RoleRequester, RoleOperator},
	},
	StatusApproved: {
		StatusPaid:      {RoleRequester},
		StatusCancelled: {RoleRequester, RoleOperator},
	},
	StatusPaid: {
		StatusConfirmed: {RoleOperator},
		StatusCancelled: {RoleOperator},
	},
	StatusConfirmed: {
		StatusCancelled: {RoleOperator},
	},
}

// CanTransition returns nil when role may move a reservation from one
// status to target, ErrInvalidTransition when the edge does not exist, and
// ErrForbidden when the edge exists but not for this role.
func CanTransition(from, to Status, role Role) error {
	roles, ok := transitions[from][to]
	if !ok {
		return ErrInvalidTransition
	}
	for _, r := range roles {
		if r == role {
			return nil
		}
	}
	return ErrForbidden
}

// Terminal reports whether no further transition can leave s.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0
}
