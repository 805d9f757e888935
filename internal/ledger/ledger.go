// Package ledger defines the append-only ledger contract consumed by the
// version chain builder. The ledger is an external service with an
// atomic-commit guarantee; submissions are idempotent on the
// (record id, sequence) pair so a timed-out commit can be retried verbatim.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Entry is the payload committed to the ledger for one version of a record.
type Entry struct {
	RecordID  string    `json:"record_id"`
	BolNumber string    `json:"bol_number"`
	Sequence  int64     `json:"sequence"`
	PrevHash  string    `json:"prev_hash,omitempty"` // empty for sequence 1
	NewHash   string    `json:"new_hash"`
	Status    string    `json:"status"`
	ActorID   string    `json:"actor_id"`
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// CommittedEntry is an Entry together with its ledger transaction identity.
type CommittedEntry struct {
	Entry
	TxID string `json:"tx_id"`
}

// Client is the ledger call contract.
type Client interface {
	// Submit commits an entry. Submitting the same (RecordID, Sequence)
	// with identical content returns the original transaction id;
	// submitting different content at a committed sequence is an
	// append-only violation.
	Submit(ctx context.Context, entry Entry) (string, error)
	// GetLatest returns the newest committed entry for a record, or
	// NotFoundError when the record has no entries.
	GetLatest(ctx context.Context, recordID string) (*CommittedEntry, error)
}

// payloadDigest is the comparison key for idempotent resubmission: two
// submissions are "the same" when their content-bearing fields match.
// The timestamp is excluded so a retried commit built at a later wall time
// still deduplicates.
func payloadDigest(e Entry) string {
	e.Timestamp = time.Time{}
	raw, _ := json.Marshal(e)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// txID derives the deterministic transaction id for an entry.
func txID(e Entry) string {
	sum := sha256.Sum256([]byte(e.RecordID + ":" + payloadDigest(e)))
	return hex.EncodeToString(sum[:])
}
