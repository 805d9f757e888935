// Package orchestrator sequences draft freezing, BoL number allocation,
// version-chain commits and draft finalization across the three stores. It
// owns the retry policy: storage failures are retried with backoff under
// the commit's idempotency keys, domain errors are surfaced untouched.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/google/uuid"

	"github.com/jconnelly/loadblock-sub002/internal/bolerr"
	"github.com/jconnelly/loadblock-sub002/internal/keylock"
	"github.com/jconnelly/loadblock-sub002/internal/ledger"
	"github.com/jconnelly/loadblock-sub002/internal/lifecycle"
	"github.com/jconnelly/loadblock-sub002/internal/notify"
	"github.com/jconnelly/loadblock-sub002/internal/repository"
	"github.com/jconnelly/loadblock-sub002/internal/repository/models"
	"github.com/jconnelly/loadblock-sub002/internal/versionchain"
)

// DraftStore is the draft-store client surface the orchestrator consumes,
// satisfied by *repository.Repository.
type DraftStore interface {
	GetDraft(draftID string) (*models.Draft, error)
	Freeze(draftID string) (*models.Draft, error)
	Unfreeze(draftID string) error
	AllocateBolNumber(year int) (string, error)
	CreateRecord(record *models.Record) error
	GetRecord(recordID string) (*models.Record, error)
	GetRecordByDraft(draftID string) (*models.Record, error)
	LinkDraftToRecord(draftID, recordID string) error
	UpdateRecordStatus(recordID, status string, sequence int64) error
	ListRecords() ([]models.Record, error)
	GetParty(partyID string) (*models.Party, error)
	AppendHistory(entry *models.HistoryEntry) error
}

// ChainBuilder appends versions to a record's hash chain, satisfied by
// *versionchain.Builder.
type ChainBuilder interface {
	Commit(ctx context.Context, record *models.Record, snap *versionchain.Snapshot, newStatus, actorID, notes string) (*models.VersionEntry, error)
}

// Options tunes the retry policy.
type Options struct {
	RetryAttempts int
	RetryBackoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 500 * time.Millisecond
	}
	return o
}

type Orchestrator struct {
	drafts    DraftStore
	builder   ChainBuilder
	ledger    ledger.Client
	publisher *notify.Publisher
	locks     *keylock.KeyLock
	logger    cmtlog.Logger
	opts      Options

	// now is swappable for tests that pin the BoL number year.
	now func() time.Time
}

func New(drafts DraftStore, builder ChainBuilder, lc ledger.Client, publisher *notify.Publisher, locks *keylock.KeyLock, logger cmtlog.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		drafts:    drafts,
		builder:   builder,
		ledger:    lc,
		publisher: publisher,
		locks:     locks,
		logger:    logger,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// withRetry retries fn on storage failures only, backing off between
// attempts. Domain errors return immediately.
func (o *Orchestrator) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= o.opts.RetryAttempts; attempt++ {
		err = fn()
		if err == nil || !bolerr.IsRetriable(err) {
			return err
		}
		o.logger.Info("Retriable failure", "op", op, "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return &bolerr.StorageFailure{Store: "ledger", Op: op, Err: ctx.Err()}
		case <-time.After(o.opts.RetryBackoff):
		}
	}
	return err
}

// Activate converts a pending, quorum-approved draft into an immutable,
// ledger-anchored record. All-or-nothing from the caller's perspective: on
// failure the draft is unfrozen with approvals intact, and retries resume
// the same activation rather than creating a duplicate.
func (o *Orchestrator) Activate(ctx context.Context, draftID, actorID string) (*models.Record, error) {
	o.locks.Lock(draftID)
	defer o.locks.Unlock(draftID)

	draft, err := o.drafts.GetDraft(draftID)
	if err != nil {
		return nil, err
	}
	if draft.RecordID != nil {
		// already activated; concurrent losers observe the winner
		return o.drafts.GetRecord(*draft.RecordID)
	}

	// Freeze validates status and quorum and blocks further edits.
	draft, err = o.drafts.Freeze(draftID)
	if err != nil {
		return nil, err
	}

	// Resume a crashed activation's record if one exists; otherwise
	// allocate a number and create the record row. Numbers burnt by
	// failed activations are never reused.
	record, err := o.drafts.GetRecordByDraft(draftID)
	if bolerr.IsNotFound(err) {
		bolNumber, allocErr := o.drafts.AllocateBolNumber(o.now().UTC().Year())
		if allocErr != nil {
			o.unfreeze(draftID)
			return nil, allocErr
		}
		record = &models.Record{
			ID:            fmt.Sprintf("REC-%s", uuid.NewString()[:8]),
			BolNumber:     bolNumber,
			DraftID:       draftID,
			CurrentStatus: string(lifecycle.StatusApproved),
		}
		if createErr := o.drafts.CreateRecord(record); createErr != nil {
			if bolerr.IsConflict(createErr) {
				// lost the at-most-once race, adopt the winner's record
				record, err = o.drafts.GetRecordByDraft(draftID)
				if err != nil {
					o.unfreeze(draftID)
					return nil, err
				}
			} else {
				o.unfreeze(draftID)
				return nil, createErr
			}
		}
	} else if err != nil {
		o.unfreeze(draftID)
		return nil, err
	}

	// Reload with cargo lines and charges for the snapshot.
	draft, err = o.drafts.GetDraft(draftID)
	if err != nil {
		o.unfreeze(draftID)
		return nil, err
	}
	snap := versionchain.FromDraft(draft, record.BolNumber)

	var entry *models.VersionEntry
	err = o.withRetry(ctx, "activate", func() error {
		var commitErr error
		entry, commitErr = o.builder.Commit(ctx, record, snap, string(lifecycle.StatusApproved), actorID, "")
		return commitErr
	})
	if err != nil {
		// Document blob may be stored; that is invisible and harmless.
		// Unfreeze so editing can resume, approvals untouched.
		o.unfreeze(draftID)
		return nil, err
	}

	if err := o.drafts.UpdateRecordStatus(record.ID, string(lifecycle.StatusApproved), entry.Sequence); err != nil {
		return nil, err
	}
	if err := o.drafts.LinkDraftToRecord(draftID, record.ID); err != nil {
		return nil, err
	}
	record.CurrentStatus = string(lifecycle.StatusApproved)
	record.CurrentSequence = entry.Sequence

	o.publisher.Publish(notify.Event{
		Event:      "activated",
		RecordID:   record.ID,
		DraftID:    draftID,
		FromStatus: string(lifecycle.StatusPending),
		ToStatus:   string(lifecycle.StatusApproved),
		ActorID:    actorID,
		Timestamp:  o.now().UTC(),
	})
	o.logger.Info("Draft activated", "draft", draftID, "record", record.ID, "bol", record.BolNumber)
	return record, nil
}

func (o *Orchestrator) unfreeze(draftID string) {
	if err := o.drafts.Unfreeze(draftID); err != nil {
		o.logger.Error("Failed to unfreeze draft after activation failure", "draft", draftID, "err", err)
	}
}

// Advance moves an activated record along the next lifecycle edge, producing
// exactly one new version entry. Idempotent per edge: a retried call for a
// committed transition returns the existing entry.
func (o *Orchestrator) Advance(ctx context.Context, recordID string, target lifecycle.Status, actorID, notes string) (*models.VersionEntry, error) {
	o.locks.Lock(recordID)
	defer o.locks.Unlock(recordID)

	record, err := o.drafts.GetRecord(recordID)
	if err != nil {
		return nil, err
	}
	from := lifecycle.Status(record.CurrentStatus)

	// Re-validated under the record lock, so a concurrent advance that
	// moved the status makes a stale target fail here instead of racing.
	// A call targeting the current status is a client retry of a committed
	// edge; it replays the entry only for an actor entitled to that edge.
	if target == from && record.CurrentSequence > 0 {
		actor, err := o.drafts.GetParty(actorID)
		if err != nil {
			return nil, err
		}
		if err := lifecycle.Authorize(target, lifecycle.Role(actor.Role)); err != nil {
			return nil, err
		}
		latest, lerr := o.ledger.GetLatest(ctx, recordID)
		if lerr == nil && latest.Status == string(target) {
			return o.existingEntry(record, latest)
		}
	}
	if err := lifecycle.Validate(from, target); err != nil {
		return nil, err
	}
	actor, err := o.drafts.GetParty(actorID)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Authorize(target, lifecycle.Role(actor.Role)); err != nil {
		return nil, err
	}

	draft, err := o.drafts.GetDraft(record.DraftID)
	if err != nil {
		return nil, err
	}
	snap := versionchain.FromDraft(draft, record.BolNumber)

	var entry *models.VersionEntry
	err = o.withRetry(ctx, "advance", func() error {
		var commitErr error
		entry, commitErr = o.builder.Commit(ctx, record, snap, string(target), actorID, notes)
		return commitErr
	})
	if err != nil {
		// Nothing externally visible changed until the ledger commit, so
		// there is no rollback to perform.
		return nil, err
	}

	if err := o.drafts.UpdateRecordStatus(recordID, string(target), entry.Sequence); err != nil {
		return nil, err
	}
	o.appendHistory(&models.HistoryEntry{
		DraftID:    record.DraftID,
		RecordID:   &record.ID,
		Event:      repository.EventStatusAdvanced,
		FromStatus: string(from),
		ToStatus:   string(target),
		ActorID:    actorID,
		Reason:     notes,
	})

	o.publisher.Publish(notify.Event{
		Event:      "status_advanced",
		RecordID:   recordID,
		DraftID:    record.DraftID,
		FromStatus: string(from),
		ToStatus:   string(target),
		ActorID:    actorID,
		Timestamp:  o.now().UTC(),
	})
	o.logger.Info("Record advanced", "record", recordID, "from", from, "to", target, "sequence", entry.Sequence)
	return entry, nil
}

// existingEntry rebuilds the mirror view of an already-committed ledger
// entry for idempotent Advance replays.
func (o *Orchestrator) existingEntry(record *models.Record, latest *ledger.CommittedEntry) (*models.VersionEntry, error) {
	entry := &models.VersionEntry{
		RecordID:   record.ID,
		Sequence:   latest.Sequence,
		NewHash:    latest.NewHash,
		Status:     latest.Status,
		ActorID:    latest.ActorID,
		Notes:      latest.Notes,
		LedgerTxID: latest.TxID,
	}
	if latest.PrevHash != "" {
		h := latest.PrevHash
		entry.PrevHash = &h
	}
	return entry, nil
}

// Reject sends a pending draft back to its originator without advancing
// status. Requires a category and a reason of at least ten characters;
// approvals are untouched and the immutable chain is never involved.
func (o *Orchestrator) Reject(ctx context.Context, draftID, actorID string, category lifecycle.RejectionCategory, reason string) error {
	if err := lifecycle.ValidateRejection(category, reason); err != nil {
		return err
	}

	o.locks.Lock(draftID)
	defer o.locks.Unlock(draftID)

	draft, err := o.drafts.GetDraft(draftID)
	if err != nil {
		return err
	}
	if draft.Status != string(lifecycle.StatusPending) {
		return &bolerr.InvalidStateError{Op: "reject", ID: draftID, Status: draft.Status,
			Message: "only pending drafts can be rejected"}
	}

	if err := o.drafts.AppendHistory(&models.HistoryEntry{
		DraftID:    draftID,
		Event:      repository.EventDraftRejected,
		FromStatus: string(lifecycle.StatusPending),
		ToStatus:   string(lifecycle.StatusPending),
		ActorID:    actorID,
		Category:   string(category),
		Reason:     reason,
	}); err != nil {
		return err
	}

	o.publisher.Publish(notify.Event{
		Event:      "draft_rejected",
		DraftID:    draftID,
		FromStatus: string(lifecycle.StatusPending),
		ToStatus:   string(lifecycle.StatusPending),
		ActorID:    actorID,
		Timestamp:  o.now().UTC(),
	})
	return nil
}

// Reconcile corrects the mirror's cached status from the ledger. The
// ledger always wins; the mirror is never written back to the ledger.
func (o *Orchestrator) Reconcile(ctx context.Context, recordID string) (*models.Record, error) {
	o.locks.Lock(recordID)
	defer o.locks.Unlock(recordID)

	record, err := o.drafts.GetRecord(recordID)
	if err != nil {
		return nil, err
	}

	latest, err := o.ledger.GetLatest(ctx, recordID)
	if bolerr.IsNotFound(err) {
		// nothing committed yet (activation still in flight)
		return record, nil
	}
	if err != nil {
		return nil, err
	}

	if record.CurrentStatus == latest.Status && record.CurrentSequence == latest.Sequence {
		return record, nil
	}

	o.logger.Info("Mirror diverged from ledger, correcting",
		"record", recordID,
		"mirror_status", record.CurrentStatus, "ledger_status", latest.Status,
		"mirror_sequence", record.CurrentSequence, "ledger_sequence", latest.Sequence,
	)
	if err := o.drafts.UpdateRecordStatus(recordID, latest.Status, latest.Sequence); err != nil {
		return nil, err
	}
	o.appendHistory(&models.HistoryEntry{
		DraftID:    record.DraftID,
		RecordID:   &record.ID,
		Event:      repository.EventReconciled,
		FromStatus: record.CurrentStatus,
		ToStatus:   latest.Status,
	})
	record.CurrentStatus = latest.Status
	record.CurrentSequence = latest.Sequence
	return record, nil
}

// ReconcileAll runs one reconcile pass over every activated record.
func (o *Orchestrator) ReconcileAll(ctx context.Context) error {
	records, err := o.drafts.ListRecords()
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := o.Reconcile(ctx, record.ID); err != nil {
			o.logger.Error("Reconcile failed", "record", record.ID, "err", err)
		}
	}
	return nil
}

// appendHistory logs history best-effort; the transition is already
// committed and must not be failed by audit-log writes.
func (o *Orchestrator) appendHistory(entry *models.HistoryEntry) {
	if err := o.drafts.AppendHistory(entry); err != nil {
		o.logger.Error("Failed to append history", "event", entry.Event, "err", err)
	}
}
