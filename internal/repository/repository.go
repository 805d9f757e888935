// Package repository is the draft-store client: typed access to the mutable
// Postgres mirror. Every content mutation clears both approval flags in the
// same database transaction, so approvals can never refer to stale content.
package repository

import (
	"errors"
	"fmt"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jconnelly/loadblock-sub002/internal/bolerr"
	"github.com/jconnelly/loadblock-sub002/internal/lifecycle"
	"github.com/jconnelly/loadblock-sub002/internal/repository/models"
)

// PostgreSQL error codes the engine branches on.
const (
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrCheckViolation      = "23514" // check_violation
	PgErrNotNullViolation    = "23502" // not_null_violation
	PgErrConnectionException = "08000" // connection_exception
	PgErrConnectionFailure   = "08006" // connection_failure
)

// History event names recorded in the draft audit log.
const (
	EventDraftCreated        = "draft_created"
	EventDraftUpdated        = "draft_updated"
	EventApprovalRecorded    = "approval_recorded"
	EventApprovalWithdrawn   = "approval_withdrawn"
	EventApprovalInvalidated = "approvals_invalidated"
	EventDraftRejected       = "draft_rejected"
	EventActivated           = "activated"
	EventStatusAdvanced      = "status_advanced"
	EventReconciled          = "reconciled"
)

type Repository struct {
	db     *gorm.DB
	logger cmtlog.Logger
}

func NewRepository(logger cmtlog.Logger) *Repository {
	return &Repository{logger: logger}
}

// ConnectDB dials Postgres, retrying while the database container comes up.
func (r *Repository) ConnectDB(dsn string) error {
	var lastErr error
	for i := range 10 {
		db, err := gorm.Open(postgres.Open(dsn))
		if err == nil {
			r.db = db
			r.logger.Info("Connected to Postgres")
			return nil
		}
		lastErr = err
		r.logger.Info("Connection attempt failed", "attempt", i+1, "err", err)
		time.Sleep(2 * time.Second)
	}
	return &bolerr.StorageFailure{Store: "draft", Op: "connect", Err: lastErr}
}

// UseDB injects an already-open gorm handle. Used by tests and by callers
// that manage the connection themselves.
func (r *Repository) UseDB(db *gorm.DB) { r.db = db }

func (r *Repository) Migrate() error {
	err := r.db.AutoMigrate(
		&models.Party{},
		&models.Draft{},
		&models.CargoLine{},
		&models.FreightCharge{},
		&models.HistoryEntry{},
		&models.Record{},
		&models.VersionEntry{},
		&models.BolSequence{},
	)
	if err != nil {
		return &bolerr.StorageFailure{Store: "draft", Op: "migrate", Err: err}
	}
	r.logger.Info("Database migration completed")
	return nil
}

// Seed inserts a small party registry when the table is empty.
func (r *Repository) Seed() error {
	var count int64
	r.db.Model(&models.Party{}).Count(&count)
	if count > 0 {
		r.logger.Info("Seed data already exists, skipping")
		return nil
	}

	parties := []models.Party{
		{ID: "SHP-001", Name: "Cascade Lumber Co.", Role: string(lifecycle.RoleShipper), ContactInfo: "ops@cascadelumber.com", Address: "Portland, OR"},
		{ID: "SHP-002", Name: "Great Plains Grain", Role: string(lifecycle.RoleShipper), ContactInfo: "dispatch@gpgrain.com", Address: "Omaha, NE"},
		{ID: "CNE-001", Name: "Harborview Distribution", Role: string(lifecycle.RoleConsignee), ContactInfo: "receiving@harborview.com", Address: "Oakland, CA"},
		{ID: "CNE-002", Name: "Midtown Retail Group", Role: string(lifecycle.RoleConsignee), ContactInfo: "dock@midtownretail.com", Address: "Chicago, IL"},
		{ID: "CAR-001", Name: "Blue Ridge Freight", Role: string(lifecycle.RoleCarrier), ContactInfo: "dispatch@blueridgefreight.com", Address: "Knoxville, TN"},
		{ID: "CAR-002", Name: "Ironline Trucking", Role: string(lifecycle.RoleCarrier), ContactInfo: "ops@ironline.com", Address: "Denver, CO"},
		{ID: "BRK-001", Name: "Keystone Logistics Brokerage", Role: string(lifecycle.RoleBroker), ContactInfo: "book@keystonelogistics.com", Address: "Harrisburg, PA"},
	}
	for _, p := range parties {
		if err := r.db.Create(&p).Error; err != nil {
			r.logger.Info("Error seeding party", "id", p.ID, "err", err)
		}
	}
	r.logger.Info("Database seeding completed")
	return nil
}

// wrapDBError maps a gorm/pg error onto the engine taxonomy. Constraint
// violations are caller bugs and must not be retried; everything else is a
// retriable storage failure.
func wrapDBError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case PgErrCheckViolation, PgErrNotNullViolation:
			return &bolerr.InvalidStateError{Op: op, Message: pgErr.Message}
		}
	}
	return &bolerr.StorageFailure{Store: "draft", Op: op, Err: err}
}

// DraftInput carries the caller-authored fields of a new draft.
type DraftInput struct {
	ShipperID    string
	ConsigneeID  string
	CarrierID    string
	BrokerID     *string
	PickupDate   time.Time
	DeliveryDate time.Time
	HazmatFlag   bool
	HazmatClass  string
	HazmatUNCode string
}

// CreateDraft inserts a new pending draft with an empty charge breakdown.
func (r *Repository) CreateDraft(in DraftInput) (*models.Draft, error) {
	draft := models.Draft{
		ID:           fmt.Sprintf("DRAFT-%s", uuid.NewString()[:8]),
		Status:       string(lifecycle.StatusPending),
		ShipperID:    in.ShipperID,
		ConsigneeID:  in.ConsigneeID,
		CarrierID:    in.CarrierID,
		BrokerID:     in.BrokerID,
		PickupDate:   in.PickupDate,
		DeliveryDate: in.DeliveryDate,
		HazmatFlag:   in.HazmatFlag,
		HazmatClass:  in.HazmatClass,
		HazmatUNCode: in.HazmatUNCode,
		Version:      1,
	}

	dbTx := r.db.Begin()
	if err := dbTx.Create(&draft).Error; err != nil {
		dbTx.Rollback()
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == PgErrForeignKeyViolation {
			return nil, &bolerr.NotFoundError{Kind: "party", ID: pgErr.Detail}
		}
		return nil, wrapDBError("create draft", err)
	}
	charge := models.FreightCharge{DraftID: draft.ID}
	if err := dbTx.Create(&charge).Error; err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("create charge", err)
	}
	history := models.HistoryEntry{
		ID:       fmt.Sprintf("HIST-%s", uuid.NewString()[:8]),
		DraftID:  draft.ID,
		Event:    EventDraftCreated,
		ToStatus: draft.Status,
	}
	if err := dbTx.Create(&history).Error; err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("create history", err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return nil, wrapDBError("commit", err)
	}
	draft.Charge = &charge
	return &draft, nil
}

// GetDraft loads a draft with its cargo lines, charge and parties.
func (r *Repository) GetDraft(draftID string) (*models.Draft, error) {
	var draft models.Draft
	err := r.db.
		Preload("CargoLines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		Preload("Charge").
		Preload("Shipper").Preload("Consignee").Preload("Carrier").Preload("Broker").
		Where("draft_id = ?", draftID).First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bolerr.NotFoundError{Kind: "draft", ID: draftID}
		}
		return nil, wrapDBError("get draft", err)
	}
	return &draft, nil
}

// guardMutable rejects edits on drafts that are frozen or past activation.
func guardMutable(op string, draft *models.Draft) error {
	if draft.Frozen {
		return &bolerr.InvalidStateError{Op: op, ID: draft.ID, Status: draft.Status,
			Message: "draft is frozen pending activation"}
	}
	if draft.Status != string(lifecycle.StatusPending) {
		return &bolerr.InvalidStateError{Op: op, ID: draft.ID, Status: draft.Status,
			Message: "draft is no longer editable after activation"}
	}
	return nil
}

// checkVersion enforces optimistic concurrency against the supplied counter.
func checkVersion(draft *models.Draft, version int64) error {
	if draft.Version != version {
		return &bolerr.ConflictError{DraftID: draft.ID, SuppliedVersion: version, CurrentVersion: draft.Version}
	}
	return nil
}

// invalidateApprovals clears both approval flags inside an open transaction
// and logs the invalidation when any flag was set.
func invalidateApprovals(dbTx *gorm.DB, draft *models.Draft, actorID string) error {
	if !draft.InvalidateApprovals() {
		return nil
	}
	history := models.HistoryEntry{
		ID:      fmt.Sprintf("HIST-%s", uuid.NewString()[:8]),
		DraftID: draft.ID,
		Event:   EventApprovalInvalidated,
		ActorID: actorID,
		Reason:  "content changed after approval",
	}
	return dbTx.Create(&history).Error
}

// DraftPatch is a partial update; nil fields are left untouched.
type DraftPatch struct {
	ShipperID    *string
	ConsigneeID  *string
	CarrierID    *string
	BrokerID     *string
	PickupDate   *time.Time
	DeliveryDate *time.Time
	HazmatFlag   *bool
	HazmatClass  *string
	HazmatUNCode *string
}

// UpdateDraft applies a patch under optimistic concurrency. A stale version
// yields ConflictError; any applied patch clears both approval flags.
func (r *Repository) UpdateDraft(draftID string, version int64, patch DraftPatch, actorID string) (*models.Draft, error) {
	dbTx := r.db.Begin()
	draft, err := lockDraft(dbTx, draftID)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}
	if err := guardMutable("update draft", draft); err != nil {
		dbTx.Rollback()
		return nil, err
	}
	if err := checkVersion(draft, version); err != nil {
		dbTx.Rollback()
		return nil, err
	}

	if patch.ShipperID != nil {
		draft.ShipperID = *patch.ShipperID
	}
	if patch.ConsigneeID != nil {
		draft.ConsigneeID = *patch.ConsigneeID
	}
	if patch.CarrierID != nil {
		draft.CarrierID = *patch.CarrierID
	}
	if patch.BrokerID != nil {
		draft.BrokerID = patch.BrokerID
	}
	if patch.PickupDate != nil {
		draft.PickupDate = *patch.PickupDate
	}
	if patch.DeliveryDate != nil {
		draft.DeliveryDate = *patch.DeliveryDate
	}
	if patch.HazmatFlag != nil {
		draft.HazmatFlag = *patch.HazmatFlag
	}
	if patch.HazmatClass != nil {
		draft.HazmatClass = *patch.HazmatClass
	}
	if patch.HazmatUNCode != nil {
		draft.HazmatUNCode = *patch.HazmatUNCode
	}

	if err := invalidateApprovals(dbTx, draft, actorID); err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("invalidate approvals", err)
	}
	draft.Version++

	if err := dbTx.Save(draft).Error; err != nil {
		dbTx.Rollback()
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == PgErrForeignKeyViolation {
			return nil, &bolerr.NotFoundError{Kind: "party", ID: pgErr.Detail}
		}
		return nil, wrapDBError("update draft", err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return nil, wrapDBError("commit", err)
	}
	return draft, nil
}

// lockDraft loads a draft FOR UPDATE inside an open transaction.
func lockDraft(dbTx *gorm.DB, draftID string) (*models.Draft, error) {
	var draft models.Draft
	err := dbTx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("draft_id = ?", draftID).First(&draft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bolerr.NotFoundError{Kind: "draft", ID: draftID}
		}
		return nil, wrapDBError("lock draft", err)
	}
	return &draft, nil
}

// recomputeTotals re-derives piece count, weight and value from the current
// cargo lines inside an open transaction.
func recomputeTotals(dbTx *gorm.DB, draft *models.Draft) error {
	var lines []models.CargoLine
	if err := dbTx.Where("draft_id = ?", draft.ID).Find(&lines).Error; err != nil {
		return err
	}
	draft.RecomputeTotals(lines)
	return nil
}

// CargoLineInput carries the authored fields of a cargo line.
type CargoLineInput struct {
	Description string
	Quantity    int
	WeightLb    float64
	ValueUSD    float64
	Hazmat      bool
}

func validateCargoLine(in CargoLineInput) error {
	if in.Quantity <= 0 {
		return &bolerr.InvalidStateError{Op: "cargo line", Message: "quantity must be positive"}
	}
	if in.WeightLb < 0 {
		return &bolerr.InvalidStateError{Op: "cargo line", Message: "weight must not be negative"}
	}
	if in.ValueUSD < 0 {
		return &bolerr.InvalidStateError{Op: "cargo line", Message: "value must not be negative"}
	}
	return nil
}

// AddCargoLine appends a cargo line, recomputes totals and clears approvals.
func (r *Repository) AddCargoLine(draftID string, version int64, in CargoLineInput, actorID string) (*models.Draft, error) {
	if err := validateCargoLine(in); err != nil {
		return nil, err
	}
	return r.mutateCargo(draftID, version, actorID, func(dbTx *gorm.DB, draft *models.Draft) error {
		var maxLine int
		row := dbTx.Model(&models.CargoLine{}).Where("draft_id = ?", draftID).
			Select("COALESCE(MAX(line_number), 0)")
		if err := row.Scan(&maxLine).Error; err != nil {
			return err
		}
		line := models.CargoLine{
			ID:          fmt.Sprintf("CARGO-%s", uuid.NewString()[:8]),
			DraftID:     draftID,
			LineNumber:  maxLine + 1,
			Description: in.Description,
			Quantity:    in.Quantity,
			WeightLb:    in.WeightLb,
			ValueUSD:    in.ValueUSD,
			Hazmat:      in.Hazmat,
		}
		return dbTx.Create(&line).Error
	})
}

// UpdateCargoLine rewrites one line, recomputes totals and clears approvals.
func (r *Repository) UpdateCargoLine(draftID string, version int64, lineID string, in CargoLineInput, actorID string) (*models.Draft, error) {
	if err := validateCargoLine(in); err != nil {
		return nil, err
	}
	return r.mutateCargo(draftID, version, actorID, func(dbTx *gorm.DB, draft *models.Draft) error {
		var line models.CargoLine
		err := dbTx.Where("cargo_line_id = ? AND draft_id = ?", lineID, draftID).First(&line).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &bolerr.NotFoundError{Kind: "cargo line", ID: lineID}
			}
			return err
		}
		line.Description = in.Description
		line.Quantity = in.Quantity
		line.WeightLb = in.WeightLb
		line.ValueUSD = in.ValueUSD
		line.Hazmat = in.Hazmat
		return dbTx.Save(&line).Error
	})
}

// DeleteCargoLine removes one line, recomputes totals and clears approvals.
func (r *Repository) DeleteCargoLine(draftID string, version int64, lineID, actorID string) (*models.Draft, error) {
	return r.mutateCargo(draftID, version, actorID, func(dbTx *gorm.DB, draft *models.Draft) error {
		res := dbTx.Where("cargo_line_id = ? AND draft_id = ?", lineID, draftID).Delete(&models.CargoLine{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &bolerr.NotFoundError{Kind: "cargo line", ID: lineID}
		}
		return nil
	})
}

// mutateCargo runs a cargo mutation under the shared guard/version/totals
// protocol.
func (r *Repository) mutateCargo(draftID string, version int64, actorID string, fn func(*gorm.DB, *models.Draft) error) (*models.Draft, error) {
	dbTx := r.db.Begin()
	draft, err := lockDraft(dbTx, draftID)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}
	if err := guardMutable("mutate cargo", draft); err != nil {
		dbTx.Rollback()
		return nil, err
	}
	if err := checkVersion(draft, version); err != nil {
		dbTx.Rollback()
		return nil, err
	}
	if err := fn(dbTx, draft); err != nil {
		dbTx.Rollback()
		var nf *bolerr.NotFoundError
		if errors.As(err, &nf) {
			return nil, err
		}
		return nil, wrapDBError("mutate cargo", err)
	}
	if err := recomputeTotals(dbTx, draft); err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("recompute totals", err)
	}
	if err := invalidateApprovals(dbTx, draft, actorID); err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("invalidate approvals", err)
	}
	draft.Version++
	if err := dbTx.Save(draft).Error; err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("save draft", err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return nil, wrapDBError("commit", err)
	}
	return r.GetDraft(draftID)
}

// UpdateCharges rewrites the charge breakdown. Total is recomputed from its
// parts; approvals are cleared.
func (r *Repository) UpdateCharges(draftID string, version int64, base, fuelSurcharge, accessorials float64, actorID string) (*models.Draft, error) {
	dbTx := r.db.Begin()
	draft, err := lockDraft(dbTx, draftID)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}
	if err := guardMutable("update charges", draft); err != nil {
		dbTx.Rollback()
		return nil, err
	}
	if err := checkVersion(draft, version); err != nil {
		dbTx.Rollback()
		return nil, err
	}

	var charge models.FreightCharge
	if err := dbTx.Where("draft_id = ?", draftID).First(&charge).Error; err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("load charge", err)
	}
	charge.Base = base
	charge.FuelSurcharge = fuelSurcharge
	charge.Accessorials = accessorials
	charge.Recompute()
	if err := dbTx.Save(&charge).Error; err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("save charge", err)
	}

	if err := invalidateApprovals(dbTx, draft, actorID); err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("invalidate approvals", err)
	}
	draft.Version++
	if err := dbTx.Save(draft).Error; err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("save draft", err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return nil, wrapDBError("commit", err)
	}
	return r.GetDraft(draftID)
}

// SetApproval records or withdraws one party's approval on a pending draft.
func (r *Repository) SetApproval(draftID string, party lifecycle.Role, approve bool, actorID string) (*models.Draft, error) {
	dbTx := r.db.Begin()
	draft, err := lockDraft(dbTx, draftID)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}
	if draft.Status != string(lifecycle.StatusPending) || draft.Frozen {
		dbTx.Rollback()
		return nil, &bolerr.InvalidStateError{Op: "record approval", ID: draftID, Status: draft.Status,
			Message: "approvals only apply to pending drafts"}
	}

	now := time.Now().UTC()
	switch party {
	case lifecycle.RoleShipper:
		draft.ShipperApproved = approve
		if approve {
			draft.ShipperApprovedAt = &now
		} else {
			draft.ShipperApprovedAt = nil
		}
	case lifecycle.RoleCarrier:
		draft.CarrierApproved = approve
		if approve {
			draft.CarrierApprovedAt = &now
		} else {
			draft.CarrierApprovedAt = nil
		}
	default:
		dbTx.Rollback()
		return nil, &bolerr.InvalidStateError{Op: "record approval", ID: draftID,
			Message: fmt.Sprintf("party %s does not hold an approval flag", party)}
	}

	event := EventApprovalRecorded
	if !approve {
		event = EventApprovalWithdrawn
	}
	history := models.HistoryEntry{
		ID:      fmt.Sprintf("HIST-%s", uuid.NewString()[:8]),
		DraftID: draftID,
		Event:   event,
		ActorID: actorID,
		Reason:  string(party),
	}
	if err := dbTx.Create(&history).Error; err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("create history", err)
	}
	if err := dbTx.Save(draft).Error; err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("save draft", err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return nil, wrapDBError("commit", err)
	}
	return draft, nil
}

// ClearApprovals resets both approval flags on a pending draft. Exposed
// for the approval coordinator's invalidation path; content mutations clear
// the flags themselves inside their own transaction.
func (r *Repository) ClearApprovals(draftID, actorID string) (*models.Draft, error) {
	dbTx := r.db.Begin()
	draft, err := lockDraft(dbTx, draftID)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}
	if draft.Status != string(lifecycle.StatusPending) {
		dbTx.Rollback()
		return nil, &bolerr.InvalidStateError{Op: "clear approvals", ID: draftID, Status: draft.Status}
	}
	if err := invalidateApprovals(dbTx, draft, actorID); err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("invalidate approvals", err)
	}
	if err := dbTx.Save(draft).Error; err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("save draft", err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return nil, wrapDBError("commit", err)
	}
	return draft, nil
}

// Freeze marks a pending, quorum-approved draft immutable-pending so edits
// are blocked while the activation is in flight.
func (r *Repository) Freeze(draftID string) (*models.Draft, error) {
	dbTx := r.db.Begin()
	draft, err := lockDraft(dbTx, draftID)
	if err != nil {
		dbTx.Rollback()
		return nil, err
	}
	if draft.Status != string(lifecycle.StatusPending) {
		dbTx.Rollback()
		return nil, &bolerr.InvalidStateError{Op: "freeze", ID: draftID, Status: draft.Status}
	}
	if !draft.QuorumReached() {
		dbTx.Rollback()
		missing := "shipper approval missing"
		if draft.ShipperApproved {
			missing = "carrier approval missing"
		}
		return nil, &bolerr.InvalidStateError{Op: "freeze", ID: draftID, Status: draft.Status, Message: missing}
	}
	draft.Frozen = true
	if err := dbTx.Save(draft).Error; err != nil {
		dbTx.Rollback()
		return nil, wrapDBError("save draft", err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return nil, wrapDBError("commit", err)
	}
	return draft, nil
}

// Unfreeze reverts a failed activation, leaving approvals intact.
func (r *Repository) Unfreeze(draftID string) error {
	res := r.db.Model(&models.Draft{}).Where("draft_id = ?", draftID).Update("frozen", false)
	if res.Error != nil {
		return wrapDBError("unfreeze", res.Error)
	}
	if res.RowsAffected == 0 {
		return &bolerr.NotFoundError{Kind: "draft", ID: draftID}
	}
	return nil
}

// AllocateBolNumber hands out the next business BoL number for the year.
// The counter row is locked FOR UPDATE and bumped before the caller's
// ledger commit, so numbers burnt by failed activations leave gaps.
func (r *Repository) AllocateBolNumber(year int) (string, error) {
	dbTx := r.db.Begin()
	var seq models.BolSequence
	err := dbTx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("year = ?", year).First(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		seq = models.BolSequence{Year: year, NextSeq: 1}
		if err := dbTx.Create(&seq).Error; err != nil {
			dbTx.Rollback()
			return "", wrapDBError("create sequence", err)
		}
	} else if err != nil {
		dbTx.Rollback()
		return "", wrapDBError("lock sequence", err)
	}
	n := seq.NextSeq
	seq.NextSeq++
	if err := dbTx.Save(&seq).Error; err != nil {
		dbTx.Rollback()
		return "", wrapDBError("save sequence", err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return "", wrapDBError("commit", err)
	}
	return fmt.Sprintf("BOL-%d-%06d", year, n), nil
}

// CreateRecord inserts the immutable record row. The unique draft_id index
// is the at-most-once activation constraint: a second activation attempt
// surfaces the winner's record via GetRecordByDraft.
func (r *Repository) CreateRecord(record *models.Record) error {
	if err := r.db.Create(record).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == PgErrUniqueViolation {
			return &bolerr.ConflictError{DraftID: record.DraftID}
		}
		return wrapDBError("create record", err)
	}
	return nil
}

// GetRecord loads an immutable record by id.
func (r *Repository) GetRecord(recordID string) (*models.Record, error) {
	var record models.Record
	err := r.db.Where("record_id = ?", recordID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bolerr.NotFoundError{Kind: "record", ID: recordID}
		}
		return nil, wrapDBError("get record", err)
	}
	return &record, nil
}

// GetRecordByDraft loads the immutable record linked to a draft, if any.
func (r *Repository) GetRecordByDraft(draftID string) (*models.Record, error) {
	var record models.Record
	err := r.db.Where("draft_id = ?", draftID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bolerr.NotFoundError{Kind: "record", ID: draftID}
		}
		return nil, wrapDBError("get record by draft", err)
	}
	return &record, nil
}

// LinkDraftToRecord finalizes a successful activation: the draft becomes an
// approved, unfrozen mirror of the new immutable record.
func (r *Repository) LinkDraftToRecord(draftID, recordID string) error {
	dbTx := r.db.Begin()
	draft, err := lockDraft(dbTx, draftID)
	if err != nil {
		dbTx.Rollback()
		return err
	}
	draft.Status = string(lifecycle.StatusApproved)
	draft.Frozen = false
	draft.RecordID = &recordID
	history := models.HistoryEntry{
		ID:         fmt.Sprintf("HIST-%s", uuid.NewString()[:8]),
		DraftID:    draftID,
		RecordID:   &recordID,
		Event:      EventActivated,
		FromStatus: string(lifecycle.StatusPending),
		ToStatus:   string(lifecycle.StatusApproved),
	}
	if err := dbTx.Create(&history).Error; err != nil {
		dbTx.Rollback()
		return wrapDBError("create history", err)
	}
	if err := dbTx.Save(draft).Error; err != nil {
		dbTx.Rollback()
		return wrapDBError("save draft", err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return wrapDBError("commit", err)
	}
	return nil
}

// UpdateRecordStatus moves the cached status/sequence pointers after a
// committed transition and mirrors the status onto the linked draft.
func (r *Repository) UpdateRecordStatus(recordID, status string, sequence int64) error {
	dbTx := r.db.Begin()
	var record models.Record
	err := dbTx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("record_id = ?", recordID).First(&record).Error
	if err != nil {
		dbTx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &bolerr.NotFoundError{Kind: "record", ID: recordID}
		}
		return wrapDBError("lock record", err)
	}
	record.CurrentStatus = status
	record.CurrentSequence = sequence
	if err := dbTx.Save(&record).Error; err != nil {
		dbTx.Rollback()
		return wrapDBError("save record", err)
	}
	err = dbTx.Model(&models.Draft{}).Where("record_id = ?", recordID).
		Update("status", status).Error
	if err != nil {
		dbTx.Rollback()
		return wrapDBError("mirror status", err)
	}
	if err := dbTx.Commit().Error; err != nil {
		return wrapDBError("commit", err)
	}
	return nil
}

// LatestVersionEntry returns the mirror row of the newest version entry, or
// NotFoundError when the chain is empty.
func (r *Repository) LatestVersionEntry(recordID string) (*models.VersionEntry, error) {
	var entry models.VersionEntry
	err := r.db.Where("record_id = ?", recordID).
		Order("sequence DESC").First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bolerr.NotFoundError{Kind: "version entry", ID: recordID}
		}
		return nil, wrapDBError("latest version", err)
	}
	return &entry, nil
}

// InsertVersionEntry mirrors a committed version entry. Re-inserting the
// same (record, sequence) pair is treated as an idempotent no-op.
func (r *Repository) InsertVersionEntry(entry *models.VersionEntry) error {
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error
	if err != nil {
		return wrapDBError("insert version", err)
	}
	return nil
}

// ListVersionEntries returns the full chain in sequence order.
func (r *Repository) ListVersionEntries(recordID string) ([]models.VersionEntry, error) {
	var entries []models.VersionEntry
	err := r.db.Where("record_id = ?", recordID).Order("sequence ASC").Find(&entries).Error
	if err != nil {
		return nil, wrapDBError("list versions", err)
	}
	return entries, nil
}

// GetParty loads a party by id.
func (r *Repository) GetParty(partyID string) (*models.Party, error) {
	var party models.Party
	err := r.db.Where("party_id = ?", partyID).First(&party).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &bolerr.NotFoundError{Kind: "party", ID: partyID}
		}
		return nil, wrapDBError("get party", err)
	}
	return &party, nil
}

// ListRecords returns all immutable records, oldest first. Used by the
// periodic reconcile pass.
func (r *Repository) ListRecords() ([]models.Record, error) {
	var records []models.Record
	err := r.db.Order("created_at ASC").Find(&records).Error
	if err != nil {
		return nil, wrapDBError("list records", err)
	}
	return records, nil
}

// AppendHistory writes one audit-log row.
func (r *Repository) AppendHistory(entry *models.HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = fmt.Sprintf("HIST-%s", uuid.NewString()[:8])
	}
	if err := r.db.Create(entry).Error; err != nil {
		return wrapDBError("append history", err)
	}
	return nil
}
