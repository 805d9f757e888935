// Package lifecycle defines the fixed BoL status graph and the role checks
// attached to each edge. The graph is a strict linear chain; pending ->
// approved is gated by the approval quorum rather than a direct user action.
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/jconnelly/loadblock-sub002/internal/bolerr"
)

// Status is one of the fixed BoL lifecycle statuses.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusAssigned  Status = "assigned"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "picked_up"
	StatusEnRoute   Status = "en_route"
	StatusDelivered Status = "delivered"
	StatusUnpaid    Status = "unpaid"
	StatusPaid      Status = "paid"
)

// Role identifies the kind of party triggering a transition.
type Role string

const (
	RoleShipper   Role = "shipper"
	RoleConsignee Role = "consignee"
	RoleCarrier   Role = "carrier"
	RoleBroker    Role = "broker"
)

// chain is the single forward path through the lifecycle.
var chain = []Status{
	StatusPending,
	StatusApproved,
	StatusAssigned,
	StatusAccepted,
	StatusPickedUp,
	StatusEnRoute,
	StatusDelivered,
	StatusUnpaid,
	StatusPaid,
}

// edgeRoles lists which roles may trigger each edge, keyed by target status.
// pending -> approved has no entry: it is driven by the approval quorum.
var edgeRoles = map[Status][]Role{
	StatusAssigned:  {RoleBroker, RoleShipper, RoleCarrier},
	StatusAccepted:  {RoleCarrier},
	StatusPickedUp:  {RoleCarrier},
	StatusEnRoute:   {RoleCarrier},
	StatusDelivered: {RoleCarrier},
	StatusUnpaid:    {RoleCarrier, RoleBroker},
	StatusPaid:      {RoleShipper, RoleBroker},
}

// Valid reports whether s is a known status.
func Valid(s Status) bool {
	for _, st := range chain {
		if st == s {
			return true
		}
	}
	return false
}

// Terminal reports whether s allows no further transitions.
func Terminal(s Status) bool { return s == StatusPaid }

// Next returns the unique next status in the chain, or false when s is
// terminal or unknown.
func Next(s Status) (Status, bool) {
	for i, st := range chain {
		if st == s && i+1 < len(chain) {
			return chain[i+1], true
		}
	}
	return "", false
}

// Validate checks that from -> to is the single allowed forward edge.
func Validate(from, to Status) error {
	if !Valid(from) || !Valid(to) {
		return &bolerr.InvalidTransitionError{From: string(from), To: string(to)}
	}
	next, ok := Next(from)
	if !ok {
		// terminal state, no edges out
		return &bolerr.InvalidTransitionError{From: string(from), To: string(to)}
	}
	if to != next {
		return &bolerr.InvalidTransitionError{
			From:    string(from),
			To:      string(to),
			Allowed: string(next),
		}
	}
	return nil
}

// Authorize checks that role may trigger the from -> to edge. The edge
// itself must already have passed Validate.
func Authorize(to Status, role Role) error {
	roles, ok := edgeRoles[to]
	if !ok {
		return &bolerr.InvalidStateError{
			Op:      "authorize",
			Status:  string(to),
			Message: "transition is not actor-triggered",
		}
	}
	for _, r := range roles {
		if r == role {
			return nil
		}
	}
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return &bolerr.InvalidStateError{
		Op:      "authorize",
		Status:  string(to),
		Message: fmt.Sprintf("role %s may not trigger this edge, allowed: %s", role, strings.Join(allowed, ", ")),
	}
}

// RejectionCategory classifies why a pending draft was sent back.
type RejectionCategory string

const (
	RejectMissingInformation RejectionCategory = "missing_information"
	RejectIncorrectCharges   RejectionCategory = "incorrect_charges"
	RejectCargoMismatch      RejectionCategory = "cargo_mismatch"
	RejectOther              RejectionCategory = "other"
)

// MinRejectionReasonLen is the minimum free-text reason length for a
// rejection.
const MinRejectionReasonLen = 10

// ValidateRejection checks the category and reason of a draft rejection.
// Rejection does not advance status; it only requires a meaningful reason
// the originating party can act on.
func ValidateRejection(category RejectionCategory, reason string) error {
	switch category {
	case RejectMissingInformation, RejectIncorrectCharges, RejectCargoMismatch, RejectOther:
	default:
		return &bolerr.InvalidStateError{
			Op:      "reject",
			Message: fmt.Sprintf("unknown rejection category %q", category),
		}
	}
	if len(strings.TrimSpace(reason)) < MinRejectionReasonLen {
		return &bolerr.InvalidStateError{
			Op:      "reject",
			Message: fmt.Sprintf("rejection reason must be at least %d characters", MinRejectionReasonLen),
		}
	}
	return nil
}
