package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/jconnelly/loadblock-sub002/internal/bolerr"
)

// MemoryLedger is an in-process Client used by tests and single-node
// deployments. It enforces the same contract as the real ledger: atomic
// commits, append-only per record, idempotent on (record id, sequence).
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]map[int64]CommittedEntry
	latest  map[string]int64
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: make(map[string]map[int64]CommittedEntry),
		latest:  make(map[string]int64),
	}
}

func (l *MemoryLedger) Submit(ctx context.Context, entry Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &bolerr.StorageFailure{Store: "ledger", Op: "submit", Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seqs, ok := l.records[entry.RecordID]
	if !ok {
		seqs = make(map[int64]CommittedEntry)
		l.records[entry.RecordID] = seqs
	}

	if existing, ok := seqs[entry.Sequence]; ok {
		if payloadDigest(existing.Entry) == payloadDigest(entry) {
			// retried commit, same content: idempotent
			return existing.TxID, nil
		}
		return "", &bolerr.InvalidStateError{
			Op:      "ledger submit",
			ID:      entry.RecordID,
			Message: fmt.Sprintf("sequence %d already committed with different content", entry.Sequence),
		}
	}

	// append-only: sequence must extend the chain by exactly one
	if entry.Sequence != l.latest[entry.RecordID]+1 {
		return "", &bolerr.InvalidStateError{
			Op:      "ledger submit",
			ID:      entry.RecordID,
			Message: fmt.Sprintf("sequence %d does not extend chain at %d", entry.Sequence, l.latest[entry.RecordID]),
		}
	}

	committed := CommittedEntry{Entry: entry, TxID: txID(entry)}
	seqs[entry.Sequence] = committed
	l.latest[entry.RecordID] = entry.Sequence
	return committed.TxID, nil
}

func (l *MemoryLedger) GetLatest(ctx context.Context, recordID string) (*CommittedEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &bolerr.StorageFailure{Store: "ledger", Op: "get latest", Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seq, ok := l.latest[recordID]
	if !ok {
		return nil, &bolerr.NotFoundError{Kind: "ledger record", ID: recordID}
	}
	entry := l.records[recordID][seq]
	return &entry, nil
}

// Entries returns a copy of the committed chain for a record, in sequence
// order. Test helper.
func (l *MemoryLedger) Entries(recordID string) []CommittedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]CommittedEntry, 0, len(l.records[recordID]))
	for seq := int64(1); seq <= l.latest[recordID]; seq++ {
		out = append(out, l.records[recordID][seq])
	}
	return out
}
