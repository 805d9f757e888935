package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeTotals(t *testing.T) {
	d := &Draft{ID: "DRAFT-1"}
	lines := []CargoLine{
		{LineNumber: 1, Quantity: 10, WeightLb: 500, ValueUSD: 10000},
		{LineNumber: 2, Quantity: 5, WeightLb: 300, ValueUSD: 2000},
	}

	d.RecomputeTotals(lines)
	assert.Equal(t, 15, d.TotalPieces)
	assert.Equal(t, 800.0, d.TotalWeight)
	assert.Equal(t, 12000.0, d.TotalValue)

	// update a line
	lines[1].Quantity = 7
	lines[1].WeightLb = 350
	d.RecomputeTotals(lines)
	assert.Equal(t, 17, d.TotalPieces)
	assert.Equal(t, 850.0, d.TotalWeight)

	// delete a line
	d.RecomputeTotals(lines[:1])
	assert.Equal(t, 10, d.TotalPieces)
	assert.Equal(t, 500.0, d.TotalWeight)
	assert.Equal(t, 10000.0, d.TotalValue)

	// no lines left
	d.RecomputeTotals(nil)
	assert.Zero(t, d.TotalPieces)
	assert.Zero(t, d.TotalWeight)
	assert.Zero(t, d.TotalValue)
}

func TestInvalidateApprovalsClearsFlagsAndTimestamps(t *testing.T) {
	now := time.Now().UTC()
	d := &Draft{
		ID:                "DRAFT-1",
		ShipperApproved:   true,
		ShipperApprovedAt: &now,
		CarrierApproved:   true,
		CarrierApprovedAt: &now,
	}
	require.True(t, d.QuorumReached())

	assert.True(t, d.InvalidateApprovals())
	assert.False(t, d.ShipperApproved)
	assert.Nil(t, d.ShipperApprovedAt)
	assert.False(t, d.CarrierApproved)
	assert.Nil(t, d.CarrierApprovedAt)
	assert.False(t, d.QuorumReached())

	// already clear: reports nothing to invalidate
	assert.False(t, d.InvalidateApprovals())
}

func TestInvalidateApprovalsWithOneFlagSet(t *testing.T) {
	now := time.Now().UTC()
	d := &Draft{ShipperApproved: true, ShipperApprovedAt: &now}

	assert.True(t, d.InvalidateApprovals())
	assert.False(t, d.ShipperApproved)
	assert.Nil(t, d.ShipperApprovedAt)
}

func TestQuorumReached(t *testing.T) {
	d := &Draft{}
	assert.False(t, d.QuorumReached())
	d.ShipperApproved = true
	assert.False(t, d.QuorumReached())
	d.CarrierApproved = true
	assert.True(t, d.QuorumReached())
}

func TestFreightChargeRecompute(t *testing.T) {
	c := &FreightCharge{Base: 1200, FuelSurcharge: 180, Accessorials: 45}
	c.Recompute()
	assert.Equal(t, 1425.0, c.Total)
}
