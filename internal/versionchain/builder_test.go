package versionchain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jconnelly/loadblock-sub002/internal/bolerr"
	"github.com/jconnelly/loadblock-sub002/internal/docstore"
	"github.com/jconnelly/loadblock-sub002/internal/ledger"
	"github.com/jconnelly/loadblock-sub002/internal/repository/models"
)

// memVersions is an in-memory VersionStore.
type memVersions struct {
	mu      sync.Mutex
	entries map[string][]models.VersionEntry
}

func newMemVersions() *memVersions {
	return &memVersions{entries: make(map[string][]models.VersionEntry)}
}

func (m *memVersions) LatestVersionEntry(recordID string) (*models.VersionEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chain := m.entries[recordID]
	if len(chain) == 0 {
		return nil, &bolerr.NotFoundError{Kind: "version entry", ID: recordID}
	}
	e := chain[len(chain)-1]
	return &e, nil
}

func (m *memVersions) InsertVersionEntry(entry *models.VersionEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries[entry.RecordID] {
		if e.Sequence == entry.Sequence {
			return nil // idempotent, mirrors the ON CONFLICT DO NOTHING
		}
	}
	m.entries[entry.RecordID] = append(m.entries[entry.RecordID], *entry)
	return nil
}

func snapshotFixture() *Snapshot {
	return &Snapshot{
		BolNumber:    "BOL-2026-000001",
		ShipperID:    "SHP-001",
		ConsigneeID:  "CNE-001",
		CarrierID:    "CAR-001",
		PickupDate:   time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		DeliveryDate: time.Date(2026, 3, 5, 16, 0, 0, 0, time.UTC),
		CargoLines: []SnapshotCargoLine{
			{LineNumber: 1, Description: "Dimensional lumber", Quantity: 10, WeightLb: 500, ValueUSD: 10000},
		},
		ChargeBase:  1200,
		ChargeTotal: 1200,
		TotalPieces: 10,
		TotalWeight: 500,
		TotalValue:  10000,
	}
}

// flakyLedger fails the next failures submits with a retriable error, then
// delegates to the wrapped ledger.
type flakyLedger struct {
	mem      *ledger.MemoryLedger
	failures int
}

func (f *flakyLedger) Submit(ctx context.Context, entry ledger.Entry) (string, error) {
	if f.failures > 0 {
		f.failures--
		return "", &bolerr.StorageFailure{Store: "ledger", Op: "submit", Err: errors.New("ledger unavailable")}
	}
	return f.mem.Submit(ctx, entry)
}

func (f *flakyLedger) GetLatest(ctx context.Context, recordID string) (*ledger.CommittedEntry, error) {
	return f.mem.GetLatest(ctx, recordID)
}

func newTestBuilder(t *testing.T, lc ledger.Client) (*Builder, *memVersions, *docstore.BadgerStore) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	docs := docstore.NewBadgerStore(db, cmtlog.NewNopLogger())
	versions := newMemVersions()
	return NewBuilder(docs, lc, versions, cmtlog.NewNopLogger()), versions, docs
}

func TestCanonicalIsDeterministic(t *testing.T) {
	a := snapshotFixture()
	b := snapshotFixture()
	// permuted cargo lines hash identically
	b.CargoLines = append(b.CargoLines, SnapshotCargoLine{LineNumber: 2, Description: "Plywood", Quantity: 5, WeightLb: 300, ValueUSD: 2000})
	a.CargoLines = append([]SnapshotCargoLine{{LineNumber: 2, Description: "Plywood", Quantity: 5, WeightLb: 300, ValueUSD: 2000}}, a.CargoLines...)

	rawA, hashA, err := a.Canonical()
	require.NoError(t, err)
	rawB, hashB, err := b.Canonical()
	require.NoError(t, err)
	assert.Equal(t, rawA, rawB)
	assert.Equal(t, hashA, hashB)
}

func TestCanonicalHashChangesWithContent(t *testing.T) {
	a := snapshotFixture()
	b := snapshotFixture()
	b.CargoLines[0].Quantity = 11

	_, hashA, err := a.Canonical()
	require.NoError(t, err)
	_, hashB, err := b.Canonical()
	require.NoError(t, err)
	assert.NotEqual(t, hashA, hashB)
}

func TestCommitBuildsLinearChain(t *testing.T) {
	lc := ledger.NewMemoryLedger()
	b, _, _ := newTestBuilder(t, lc)
	ctx := context.Background()
	record := &models.Record{ID: "REC-001", BolNumber: "BOL-2026-000001"}

	snap := snapshotFixture()
	e1, err := b.Commit(ctx, record, snap, "approved", "SHP-001", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), e1.Sequence)
	assert.Nil(t, e1.PrevHash)

	e2, err := b.Commit(ctx, record, snap, "assigned", "BRK-001", "tendered to carrier")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e2.Sequence)
	require.NotNil(t, e2.PrevHash)
	assert.Equal(t, e1.NewHash, *e2.PrevHash)
	// identical content across adjacent statuses: same hash, deduplicated
	assert.Equal(t, e1.NewHash, e2.NewHash)

	entries := lc.Entries("REC-001")
	require.Len(t, entries, 2)
	assert.Equal(t, "approved", entries[0].Status)
	assert.Equal(t, "assigned", entries[1].Status)
}

func TestCommitIsIdempotent(t *testing.T) {
	lc := ledger.NewMemoryLedger()
	b, versions, _ := newTestBuilder(t, lc)
	ctx := context.Background()
	record := &models.Record{ID: "REC-001", BolNumber: "BOL-2026-000001"}

	snap := snapshotFixture()
	e1, err := b.Commit(ctx, record, snap, "approved", "SHP-001", "")
	require.NoError(t, err)

	// simulated client retry with identical inputs
	e2, err := b.Commit(ctx, record, snap, "approved", "SHP-001", "")
	require.NoError(t, err)
	assert.Equal(t, e1.Sequence, e2.Sequence)
	assert.Equal(t, e1.NewHash, e2.NewHash)
	assert.Len(t, lc.Entries("REC-001"), 1)

	latest, err := versions.LatestVersionEntry("REC-001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest.Sequence)
}

func TestCommitStoresCanonicalBlob(t *testing.T) {
	b, _, docs := newTestBuilder(t, ledger.NewMemoryLedger())
	ctx := context.Background()
	record := &models.Record{ID: "REC-001", BolNumber: "BOL-2026-000001"}

	snap := snapshotFixture()
	entry, err := b.Commit(ctx, record, snap, "approved", "SHP-001", "")
	require.NoError(t, err)

	raw, hash, err := snap.Canonical()
	require.NoError(t, err)
	assert.Equal(t, hash, entry.NewHash)

	blob, err := docs.Get(ctx, entry.NewHash)
	require.NoError(t, err)
	assert.Equal(t, raw, blob)
}

func TestCommitRetriesAfterLedgerFailure(t *testing.T) {
	lc := ledger.NewMemoryLedger()
	flaky := &flakyLedger{mem: lc, failures: 1}
	b, _, _ := newTestBuilder(t, flaky)
	ctx := context.Background()
	record := &models.Record{ID: "REC-001", BolNumber: "BOL-2026-000001"}
	snap := snapshotFixture()

	_, err := b.Commit(ctx, record, snap, "approved", "SHP-001", "")
	require.Error(t, err)
	assert.True(t, bolerr.IsRetriable(err))
	assert.Empty(t, lc.Entries("REC-001"))

	// blob was stored, ledger was not: a verbatim retry resends the same
	// hash and succeeds
	entry, err := b.Commit(ctx, record, snap, "approved", "SHP-001", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Sequence)
	assert.Len(t, lc.Entries("REC-001"), 1)
}

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, snap *Snapshot) ([]byte, error) {
	return []byte("BILL OF LADING " + snap.BolNumber), nil
}

func TestCommitStoresRenderedDocument(t *testing.T) {
	b, _, docs := newTestBuilder(t, ledger.NewMemoryLedger())
	b.SetRenderer(stubRenderer{})
	ctx := context.Background()
	record := &models.Record{ID: "REC-001", BolNumber: "BOL-2026-000001"}

	entry, err := b.Commit(ctx, record, snapshotFixture(), "approved", "SHP-001", "")
	require.NoError(t, err)
	require.NotNil(t, entry.RenderedHash)

	rendered, err := docs.Get(ctx, *entry.RenderedHash)
	require.NoError(t, err)
	assert.Equal(t, []byte("BILL OF LADING BOL-2026-000001"), rendered)
}
