package approval

import (
	"sync"
	"testing"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jconnelly/loadblock-sub002/internal/bolerr"
	"github.com/jconnelly/loadblock-sub002/internal/keylock"
	"github.com/jconnelly/loadblock-sub002/internal/lifecycle"
	"github.com/jconnelly/loadblock-sub002/internal/repository/models"
)

// memDrafts is a minimal in-memory DraftStore mirroring the repository's
// approval semantics.
type memDrafts struct {
	mu     sync.Mutex
	drafts map[string]*models.Draft
}

func newMemDrafts(drafts ...*models.Draft) *memDrafts {
	m := &memDrafts{drafts: make(map[string]*models.Draft)}
	for _, d := range drafts {
		m.drafts[d.ID] = d
	}
	return m
}

func (m *memDrafts) GetDraft(draftID string) (*models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return nil, &bolerr.NotFoundError{Kind: "draft", ID: draftID}
	}
	dup := *d
	return &dup, nil
}

func (m *memDrafts) SetApproval(draftID string, party lifecycle.Role, approve bool, actorID string) (*models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return nil, &bolerr.NotFoundError{Kind: "draft", ID: draftID}
	}
	if d.Status != string(lifecycle.StatusPending) || d.Frozen {
		return nil, &bolerr.InvalidStateError{Op: "record approval", ID: draftID, Status: d.Status}
	}
	now := time.Now().UTC()
	switch party {
	case lifecycle.RoleShipper:
		d.ShipperApproved = approve
		d.ShipperApprovedAt = &now
	case lifecycle.RoleCarrier:
		d.CarrierApproved = approve
		d.CarrierApprovedAt = &now
	}
	dup := *d
	return &dup, nil
}

func (m *memDrafts) ClearApprovals(draftID, actorID string) (*models.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[draftID]
	if !ok {
		return nil, &bolerr.NotFoundError{Kind: "draft", ID: draftID}
	}
	d.ShipperApproved = false
	d.ShipperApprovedAt = nil
	d.CarrierApproved = false
	d.CarrierApprovedAt = nil
	dup := *d
	return &dup, nil
}

func pendingDraft(id string) *models.Draft {
	return &models.Draft{ID: id, Status: string(lifecycle.StatusPending), Version: 1}
}

func newCoordinator(drafts DraftStore) *Coordinator {
	return NewCoordinator(drafts, keylock.New(), cmtlog.NewNopLogger())
}

func TestRecordApprovalReachesQuorum(t *testing.T) {
	store := newMemDrafts(pendingDraft("DRAFT-1"))
	c := newCoordinator(store)

	state, err := c.RecordApproval("DRAFT-1", lifecycle.RoleShipper, true, "SHP-001")
	require.NoError(t, err)
	assert.True(t, state.ShipperApproved)
	assert.False(t, state.Quorum)

	state, err = c.RecordApproval("DRAFT-1", lifecycle.RoleCarrier, true, "CAR-001")
	require.NoError(t, err)
	assert.True(t, state.Quorum)
	assert.NotNil(t, state.CarrierApprovedAt)
}

func TestRecordApprovalRejectsNonApprovingParties(t *testing.T) {
	c := newCoordinator(newMemDrafts(pendingDraft("DRAFT-1")))

	_, err := c.RecordApproval("DRAFT-1", lifecycle.RoleBroker, true, "BRK-001")
	require.Error(t, err)
	var ise *bolerr.InvalidStateError
	assert.ErrorAs(t, err, &ise)
}

func TestRecordApprovalRequiresPendingStatus(t *testing.T) {
	d := pendingDraft("DRAFT-1")
	d.Status = string(lifecycle.StatusApproved)
	c := newCoordinator(newMemDrafts(d))

	_, err := c.RecordApproval("DRAFT-1", lifecycle.RoleShipper, true, "SHP-001")
	require.Error(t, err)
	assert.False(t, bolerr.IsRetriable(err))
}

func TestInvalidateApprovalsClearsBothFlags(t *testing.T) {
	store := newMemDrafts(pendingDraft("DRAFT-1"))
	c := newCoordinator(store)

	_, err := c.RecordApproval("DRAFT-1", lifecycle.RoleShipper, true, "SHP-001")
	require.NoError(t, err)
	_, err = c.RecordApproval("DRAFT-1", lifecycle.RoleCarrier, true, "CAR-001")
	require.NoError(t, err)

	state, err := c.InvalidateApprovals("DRAFT-1", "SHP-001")
	require.NoError(t, err)
	assert.False(t, state.ShipperApproved)
	assert.False(t, state.CarrierApproved)
	assert.False(t, state.Quorum)
	assert.Nil(t, state.ShipperApprovedAt)
}

func TestWithdrawApproval(t *testing.T) {
	c := newCoordinator(newMemDrafts(pendingDraft("DRAFT-1")))

	_, err := c.RecordApproval("DRAFT-1", lifecycle.RoleShipper, true, "SHP-001")
	require.NoError(t, err)
	state, err := c.RecordApproval("DRAFT-1", lifecycle.RoleShipper, false, "SHP-001")
	require.NoError(t, err)
	assert.False(t, state.ShipperApproved)
}

func TestUnknownDraft(t *testing.T) {
	c := newCoordinator(newMemDrafts())
	_, err := c.RecordApproval("DRAFT-404", lifecycle.RoleShipper, true, "SHP-001")
	assert.True(t, bolerr.IsNotFound(err))
}
