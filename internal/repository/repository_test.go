package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jconnelly/loadblock-sub002/internal/bolerr"
	"github.com/jconnelly/loadblock-sub002/internal/lifecycle"
	"github.com/jconnelly/loadblock-sub002/internal/repository/models"
)

func TestCheckVersionRejectsStaleCounter(t *testing.T) {
	draft := &models.Draft{ID: "DRAFT-1", Version: 4}

	require.NoError(t, checkVersion(draft, 4))

	err := checkVersion(draft, 3)
	require.Error(t, err)
	var ce *bolerr.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int64(3), ce.SuppliedVersion)
	assert.Equal(t, int64(4), ce.CurrentVersion)
	assert.True(t, bolerr.IsConflict(err))
	assert.False(t, bolerr.IsRetriable(err))
}

func TestGuardMutable(t *testing.T) {
	pending := &models.Draft{ID: "DRAFT-1", Status: string(lifecycle.StatusPending)}
	require.NoError(t, guardMutable("update draft", pending))

	frozen := &models.Draft{ID: "DRAFT-1", Status: string(lifecycle.StatusPending), Frozen: true}
	err := guardMutable("update draft", frozen)
	require.Error(t, err)
	var ise *bolerr.InvalidStateError
	assert.ErrorAs(t, err, &ise)

	activated := &models.Draft{ID: "DRAFT-1", Status: string(lifecycle.StatusApproved)}
	err = guardMutable("update draft", activated)
	require.Error(t, err)
	assert.ErrorAs(t, err, &ise)
}
