// Package approval tracks the per-party approval flags on a pending draft
// and detects the dual-approval quorum that gates activation.
package approval

import (
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/jconnelly/loadblock-sub002/internal/bolerr"
	"github.com/jconnelly/loadblock-sub002/internal/keylock"
	"github.com/jconnelly/loadblock-sub002/internal/lifecycle"
	"github.com/jconnelly/loadblock-sub002/internal/repository/models"
)

// DraftStore is the slice of the draft-store client the coordinator needs.
type DraftStore interface {
	GetDraft(draftID string) (*models.Draft, error)
	SetApproval(draftID string, party lifecycle.Role, approve bool, actorID string) (*models.Draft, error)
	ClearApprovals(draftID, actorID string) (*models.Draft, error)
}

// State is the approval state of one draft.
type State struct {
	DraftID           string
	ShipperApproved   bool
	ShipperApprovedAt *time.Time
	CarrierApproved   bool
	CarrierApprovedAt *time.Time
	// Quorum is true when both flags are set against the current content.
	Quorum bool
}

func stateOf(draft *models.Draft) State {
	return State{
		DraftID:           draft.ID,
		ShipperApproved:   draft.ShipperApproved,
		ShipperApprovedAt: draft.ShipperApprovedAt,
		CarrierApproved:   draft.CarrierApproved,
		CarrierApprovedAt: draft.CarrierApprovedAt,
		Quorum:            draft.QuorumReached(),
	}
}

// Coordinator serializes approval mutations per draft so that "edit
// invalidates approval" cannot race a concurrent "commit approval" and
// leave a flag set against edited content.
type Coordinator struct {
	drafts DraftStore
	locks  *keylock.KeyLock
	logger cmtlog.Logger
}

func NewCoordinator(drafts DraftStore, locks *keylock.KeyLock, logger cmtlog.Logger) *Coordinator {
	return &Coordinator{drafts: drafts, locks: locks, logger: logger}
}

// RecordApproval sets or withdraws one party's flag. Only shipper and
// carrier hold approval flags; only pending drafts accept them. The
// returned state carries the quorum signal consumed by the orchestrator.
func (c *Coordinator) RecordApproval(draftID string, party lifecycle.Role, approve bool, actorID string) (State, error) {
	if party != lifecycle.RoleShipper && party != lifecycle.RoleCarrier {
		return State{}, &bolerr.InvalidStateError{
			Op: "record approval", ID: draftID,
			Message: "only shipper and carrier hold approval flags",
		}
	}

	c.locks.Lock(draftID)
	defer c.locks.Unlock(draftID)

	draft, err := c.drafts.SetApproval(draftID, party, approve, actorID)
	if err != nil {
		return State{}, err
	}
	state := stateOf(draft)
	if state.Quorum {
		c.logger.Info("Approval quorum reached", "draft", draftID)
	}
	return state, nil
}

// InvalidateApprovals clears both flags after a content mutation that was
// performed outside the draft store's own transaction.
func (c *Coordinator) InvalidateApprovals(draftID, actorID string) (State, error) {
	c.locks.Lock(draftID)
	defer c.locks.Unlock(draftID)

	draft, err := c.drafts.ClearApprovals(draftID, actorID)
	if err != nil {
		return State{}, err
	}
	return stateOf(draft), nil
}

// StateOf returns the current approval state of a draft.
func (c *Coordinator) StateOf(draftID string) (State, error) {
	draft, err := c.drafts.GetDraft(draftID)
	if err != nil {
		return State{}, err
	}
	return stateOf(draft), nil
}
