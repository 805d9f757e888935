package versionchain

import (
	"context"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"

	"github.com/jconnelly/loadblock-sub002/internal/bolerr"
	"github.com/jconnelly/loadblock-sub002/internal/docstore"
	"github.com/jconnelly/loadblock-sub002/internal/ledger"
	"github.com/jconnelly/loadblock-sub002/internal/repository/models"
)

// VersionStore is the relational mirror of the version chain, satisfied by
// the repository.
type VersionStore interface {
	LatestVersionEntry(recordID string) (*models.VersionEntry, error)
	InsertVersionEntry(entry *models.VersionEntry) error
}

// Renderer produces human-readable document bytes from a snapshot. The
// builder only hashes and stores its output; rendering itself is external.
type Renderer interface {
	Render(ctx context.Context, snap *Snapshot) ([]byte, error)
}

// Builder appends versions to the hash-linked chain of a record.
type Builder struct {
	docs     docstore.Store
	ledger   ledger.Client
	versions VersionStore
	renderer Renderer // optional
	logger   cmtlog.Logger
}

func NewBuilder(docs docstore.Store, lc ledger.Client, versions VersionStore, logger cmtlog.Logger) *Builder {
	return &Builder{docs: docs, ledger: lc, versions: versions, logger: logger}
}

// SetRenderer attaches an optional document renderer whose output is
// content-addressed alongside the canonical snapshot.
func (b *Builder) SetRenderer(r Renderer) { b.renderer = r }

// Commit appends one version: canonicalize and hash the snapshot, store the
// blob (skipped when content is unchanged), commit hash+sequence+status to
// the ledger under the (record, sequence) idempotency key, then mirror the
// entry. Safe to retry verbatim after a storage failure.
func (b *Builder) Commit(ctx context.Context, record *models.Record, snap *Snapshot, newStatus, actorID, notes string) (*models.VersionEntry, error) {
	raw, hash, err := snap.Canonical()
	if err != nil {
		return nil, &bolerr.StorageFailure{Store: "document", Op: "canonicalize", Err: err}
	}

	var prevHash *string
	var sequence int64 = 1
	prev, err := b.versions.LatestVersionEntry(record.ID)
	switch {
	case err == nil:
		if prev.Status == newStatus && prev.NewHash == hash {
			// retried commit that already landed
			return prev, nil
		}
		sequence = prev.Sequence + 1
		h := prev.NewHash
		prevHash = &h
	case bolerr.IsNotFound(err):
		// empty chain, this is version 1
	default:
		return nil, err
	}

	contentChanged := prevHash == nil || *prevHash != hash
	if contentChanged {
		if _, err := b.docs.Put(ctx, raw); err != nil {
			return nil, err
		}
	} else {
		b.logger.Debug("Content unchanged, skipping document store", "record", record.ID, "sequence", sequence)
	}

	var renderedHash *string
	if b.renderer != nil {
		rendered, err := b.renderer.Render(ctx, snap)
		if err != nil {
			return nil, &bolerr.StorageFailure{Store: "document", Op: "render", Err: err}
		}
		rh, err := b.docs.Put(ctx, rendered)
		if err != nil {
			return nil, err
		}
		renderedHash = &rh
	}

	// Ledger commit last: nothing externally visible changes until this
	// succeeds, so no compensating rollback is needed on failure.
	prevHashStr := ""
	if prevHash != nil {
		prevHashStr = *prevHash
	}
	txID, err := b.ledger.Submit(ctx, ledger.Entry{
		RecordID:  record.ID,
		BolNumber: record.BolNumber,
		Sequence:  sequence,
		PrevHash:  prevHashStr,
		NewHash:   hash,
		Status:    newStatus,
		ActorID:   actorID,
		Notes:     notes,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	entry := &models.VersionEntry{
		RecordID:     record.ID,
		Sequence:     sequence,
		PrevHash:     prevHash,
		NewHash:      hash,
		RenderedHash: renderedHash,
		Status:       newStatus,
		ActorID:      actorID,
		Notes:        notes,
		LedgerTxID:   txID,
	}
	if err := b.versions.InsertVersionEntry(entry); err != nil {
		return nil, err
	}
	b.logger.Info("Version committed", "record", record.ID, "sequence", sequence, "status", newStatus, "hash", hash)
	return entry, nil
}
