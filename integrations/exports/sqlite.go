package exports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"yieldledger/native/accrual"
)

const insertBatch = 200

// SnapshotRow is one exported ledger snapshot.
type SnapshotRow struct {
	ID              string `gorm:"primaryKey"`
	TakenAt         time.Time
	Watermark       uint64
	Minted          uint64
	LiveClaims      uint64
	LivePrincipal   uint64
	Redeemed        uint64
	VestingReleased uint64
	YieldEmitted    string
	YieldAllocated  string
	YieldRedeemed   string
	YieldDust       string
	CreatedAt       time.Time
}

func (SnapshotRow) TableName() string { return "snapshots" }

// ClaimRow is a live claim as of a snapshot.
type ClaimRow struct {
	SnapshotID string `gorm:"primaryKey"`
	ClaimID    uint64 `gorm:"primaryKey;autoIncrement:false"`
	MintHour   uint64 `gorm:"index"`
	Principal  uint64
	TrustShare string
	Yield      string
}

func (ClaimRow) TableName() string { return "snapshot_claims" }

// MintRow is one hour of the cumulative mint index.
type MintRow struct {
	SnapshotID string `gorm:"primaryKey"`
	Hour       uint64 `gorm:"primaryKey;autoIncrement:false"`
	Cumulative uint64
}

func (MintRow) TableName() string { return "snapshot_mint" }

// VestingRow is one epoch of the vesting schedule.
type VestingRow struct {
	SnapshotID string `gorm:"primaryKey"`
	EpochIndex uint64 `gorm:"primaryKey;autoIncrement:false"`
	Epoch      time.Time
	Used       bool
}

func (VestingRow) TableName() string { return "snapshot_vesting" }

// SnapshotStore persists ledger snapshots into a SQLite reporting database.
type SnapshotStore struct {
	db *gorm.DB
}

// OpenSnapshotStore opens (creating if needed) the reporting database at dsn
// and migrates its schema.
func OpenSnapshotStore(dsn string) (*SnapshotStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("exports: sqlite path required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("exports: open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&SnapshotRow{}, &ClaimRow{}, &MintRow{}, &VestingRow{}); err != nil {
		return nil, fmt.Errorf("exports: migrate: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Close releases database resources.
func (s *SnapshotStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Write stores snap in a single transaction and returns the snapshot id.
func (s *SnapshotStore) Write(ctx context.Context, snap *accrual.Snapshot) (string, error) {
	if snap == nil {
		return "", errNilSnapshot
	}
	id := uuid.NewString()
	takenAt := snap.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}
	totals := snap.Totals
	row := SnapshotRow{
		ID:              id,
		TakenAt:         takenAt.UTC(),
		Watermark:       snap.Watermark,
		Minted:          totals.Minted,
		LiveClaims:      totals.LiveClaims,
		LivePrincipal:   totals.LivePrincipal,
		Redeemed:        totals.Redeemed,
		VestingReleased: totals.VestingReleased,
		YieldEmitted:    totals.YieldEmitted.String(),
		YieldAllocated:  totals.YieldAllocated.String(),
		YieldRedeemed:   totals.YieldRedeemed.String(),
		YieldDust:       totals.YieldDust().String(),
	}
	claims := make([]ClaimRow, 0, len(snap.Claims))
	for _, view := range snap.Claims {
		if view == nil {
			continue
		}
		claims = append(claims, ClaimRow{
			SnapshotID: id,
			ClaimID:    view.Claim.ID,
			MintHour:   view.Claim.MintHour,
			Principal:  view.Claim.Principal,
			TrustShare: view.Claim.TrustShare.String(),
			Yield:      view.Yield.String(),
		})
	}
	mint := make([]MintRow, 0, len(snap.Mint))
	for _, entry := range snap.Mint {
		mint = append(mint, MintRow{SnapshotID: id, Hour: entry.Hour, Cumulative: entry.Cumulative})
	}
	var vesting []VestingRow
	if snap.Vesting != nil {
		for _, entry := range snap.Vesting.Entries {
			vesting = append(vesting, VestingRow{SnapshotID: id, EpochIndex: entry.Index, Epoch: entry.Epoch, Used: entry.Used})
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		if len(claims) > 0 {
			if err := tx.CreateInBatches(claims, insertBatch).Error; err != nil {
				return err
			}
		}
		if len(mint) > 0 {
			if err := tx.CreateInBatches(mint, insertBatch).Error; err != nil {
				return err
			}
		}
		if len(vesting) > 0 {
			if err := tx.CreateInBatches(vesting, insertBatch).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("exports: write snapshot: %w", err)
	}
	return id, nil
}

// Latest returns the most recently taken snapshot.
func (s *SnapshotStore) Latest(ctx context.Context) (*SnapshotRow, error) {
	var row SnapshotRow
	err := s.db.WithContext(ctx).Order("taken_at DESC").Order("created_at DESC").First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Claims returns the claims stored under snapshot id in claim order.
func (s *SnapshotStore) Claims(ctx context.Context, id string) ([]ClaimRow, error) {
	var rows []ClaimRow
	err := s.db.WithContext(ctx).Where("snapshot_id = ?", id).Order("claim_id").Find(&rows).Error
	return rows, err
}

// Mint returns the mint index stored under snapshot id.
func (s *SnapshotStore) Mint(ctx context.Context, id string) ([]MintRow, error) {
	var rows []MintRow
	err := s.db.WithContext(ctx).Where("snapshot_id = ?", id).Order("hour").Find(&rows).Error
	return rows, err
}

// SQLiteSnapshot writes snap into the reporting database at path and closes it.
func SQLiteSnapshot(ctx context.Context, path string, snap *accrual.Snapshot) (string, error) {
	store, err := OpenSnapshotStore(path)
	if err != nil {
		return "", err
	}
	id, err := store.Write(ctx, snap)
	closeErr := store.Close()
	if err != nil {
		return "", err
	}
	return id, closeErr
}
