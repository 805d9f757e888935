// Package versionchain builds the append-only, hash-linked version history
// of an activated BoL: canonical snapshot, content hash, document storage
// and the idempotent ledger commit.
package versionchain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/jconnelly/loadblock-sub002/internal/docstore"
	"github.com/jconnelly/loadblock-sub002/internal/repository/models"
)

// Snapshot is the canonical view of a BoL document at one version. It
// deliberately excludes the lifecycle status: status lives on the version
// entry, so a transition that leaves the document content untouched hashes
// identically to its predecessor and is deduplicated in the document store.
type Snapshot struct {
	BolNumber string `json:"bol_number"`

	ShipperID   string `json:"shipper_id"`
	ConsigneeID string `json:"consignee_id"`
	CarrierID   string `json:"carrier_id"`
	BrokerID    string `json:"broker_id,omitempty"`

	PickupDate   time.Time `json:"pickup_date"`
	DeliveryDate time.Time `json:"delivery_date"`

	CargoLines []SnapshotCargoLine `json:"cargo_lines"`

	ChargeBase          float64 `json:"charge_base"`
	ChargeFuelSurcharge float64 `json:"charge_fuel_surcharge"`
	ChargeAccessorials  float64 `json:"charge_accessorials"`
	ChargeTotal         float64 `json:"charge_total"`

	HazmatFlag   bool   `json:"hazmat_flag"`
	HazmatClass  string `json:"hazmat_class,omitempty"`
	HazmatUNCode string `json:"hazmat_un_code,omitempty"`

	TotalPieces int     `json:"total_pieces"`
	TotalWeight float64 `json:"total_weight"`
	TotalValue  float64 `json:"total_value"`
}

// SnapshotCargoLine is one cargo line in canonical order.
type SnapshotCargoLine struct {
	LineNumber  int     `json:"line_number"`
	Description string  `json:"description"`
	Quantity    int     `json:"qty"`
	WeightLb    float64 `json:"weight_lb"`
	ValueUSD    float64 `json:"value_usd"`
	Hazmat      bool    `json:"hazmat"`
}

// FromDraft converts a loaded draft into a canonical snapshot.
func FromDraft(draft *models.Draft, bolNumber string) *Snapshot {
	snap := &Snapshot{
		BolNumber:    bolNumber,
		ShipperID:    draft.ShipperID,
		ConsigneeID:  draft.ConsigneeID,
		CarrierID:    draft.CarrierID,
		PickupDate:   draft.PickupDate.UTC().Truncate(time.Second),
		DeliveryDate: draft.DeliveryDate.UTC().Truncate(time.Second),
		HazmatFlag:   draft.HazmatFlag,
		HazmatClass:  draft.HazmatClass,
		HazmatUNCode: draft.HazmatUNCode,
		TotalPieces:  draft.TotalPieces,
		TotalWeight:  draft.TotalWeight,
		TotalValue:   draft.TotalValue,
	}
	if draft.BrokerID != nil {
		snap.BrokerID = *draft.BrokerID
	}
	if draft.Charge != nil {
		snap.ChargeBase = draft.Charge.Base
		snap.ChargeFuelSurcharge = draft.Charge.FuelSurcharge
		snap.ChargeAccessorials = draft.Charge.Accessorials
		snap.ChargeTotal = draft.Charge.Total
	}
	snap.CargoLines = make([]SnapshotCargoLine, 0, len(draft.CargoLines))
	for _, l := range draft.CargoLines {
		snap.CargoLines = append(snap.CargoLines, SnapshotCargoLine{
			LineNumber:  l.LineNumber,
			Description: l.Description,
			Quantity:    l.Quantity,
			WeightLb:    l.WeightLb,
			ValueUSD:    l.ValueUSD,
			Hazmat:      l.Hazmat,
		})
	}
	sort.Slice(snap.CargoLines, func(i, j int) bool {
		return snap.CargoLines[i].LineNumber < snap.CargoLines[j].LineNumber
	})
	return snap
}

// Canonical returns the deterministic serialization of the snapshot and its
// content hash. Field order is fixed by the struct, cargo lines are sorted
// by line number and timestamps are UTC second precision, so byte-identical
// content always produces the same hash.
func (s *Snapshot) Canonical() ([]byte, string, error) {
	lines := append([]SnapshotCargoLine(nil), s.CargoLines...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })
	normalized := *s
	normalized.CargoLines = lines
	normalized.PickupDate = s.PickupDate.UTC().Truncate(time.Second)
	normalized.DeliveryDate = s.DeliveryDate.UTC().Truncate(time.Second)

	raw, err := json.Marshal(&normalized)
	if err != nil {
		return nil, "", err
	}
	return raw, docstore.Hash(raw), nil
}
