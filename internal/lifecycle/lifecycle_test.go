package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jconnelly/loadblock-sub002/internal/bolerr"
)

func TestNextFollowsChain(t *testing.T) {
	want := map[Status]Status{
		StatusPending:   StatusApproved,
		StatusApproved:  StatusAssigned,
		StatusAssigned:  StatusAccepted,
		StatusAccepted:  StatusPickedUp,
		StatusPickedUp:  StatusEnRoute,
		StatusEnRoute:   StatusDelivered,
		StatusDelivered: StatusUnpaid,
		StatusUnpaid:    StatusPaid,
	}
	for from, to := range want {
		next, ok := Next(from)
		require.True(t, ok, "expected a next status for %s", from)
		assert.Equal(t, to, next)
	}

	_, ok := Next(StatusPaid)
	assert.False(t, ok, "paid is terminal")
}

func TestValidateRejectsSkipsAndBackwardMoves(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
	}{
		{"skip forward", StatusPending, StatusDelivered},
		{"skip one", StatusApproved, StatusAccepted},
		{"backward", StatusEnRoute, StatusPickedUp},
		{"self loop", StatusAssigned, StatusAssigned},
		{"out of terminal", StatusPaid, StatusPending},
		{"unknown target", StatusPending, Status("archived")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.from, tc.to)
			var ite *bolerr.InvalidTransitionError
			require.True(t, errors.As(err, &ite), "expected InvalidTransitionError, got %v", err)
			assert.Equal(t, string(tc.from), ite.From)
		})
	}
}

func TestValidateReportsAllowedEdge(t *testing.T) {
	err := Validate(StatusApproved, StatusDelivered)
	var ite *bolerr.InvalidTransitionError
	require.True(t, errors.As(err, &ite))
	assert.Equal(t, string(StatusAssigned), ite.Allowed)
}

func TestValidateAcceptsAdjacentEdges(t *testing.T) {
	for i := 0; i < len(chain)-1; i++ {
		assert.NoError(t, Validate(chain[i], chain[i+1]))
	}
}

func TestAuthorize(t *testing.T) {
	require.NoError(t, Authorize(StatusAccepted, RoleCarrier))
	require.NoError(t, Authorize(StatusPaid, RoleShipper))
	require.NoError(t, Authorize(StatusAssigned, RoleBroker))
	require.NoError(t, Authorize(StatusAssigned, RoleCarrier))

	err := Authorize(StatusAssigned, RoleConsignee)
	require.Error(t, err)

	err = Authorize(StatusAccepted, RoleShipper)
	var ise *bolerr.InvalidStateError
	require.True(t, errors.As(err, &ise))

	// pending -> approved is quorum-gated, not actor-triggered
	err = Authorize(StatusApproved, RoleCarrier)
	require.Error(t, err)
}

func TestValidateRejection(t *testing.T) {
	assert.Error(t, ValidateRejection(RejectMissingInformation, "too short"))
	assert.Error(t, ValidateRejection(RejectionCategory("bogus"), "a perfectly fine reason"))
	assert.Error(t, ValidateRejection(RejectOther, "         pad      "))
	assert.NoError(t, ValidateRejection(RejectMissingInformation, "hazmat sheet missing"))
}
