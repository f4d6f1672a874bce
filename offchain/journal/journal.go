// Package journal keeps a local SQLite record of settlement attempts so an
// interrupted or indeterminate payment can be reconciled later.
package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Abdullah1738/itheum-agent/offchain/settlement"
	"github.com/Abdullah1738/itheum-agent/offchain/solana"
)

var ErrNotFound = errors.New("settlement not found")

// Entry is the stored row for one settlement.
type Entry struct {
	ID               string `gorm:"primaryKey;size:36"`
	Owner            string `gorm:"index;size:44"`
	Operations       int
	RequiredAmount   string
	PurchaseAmount   string
	SwapSignature    string `gorm:"size:88"`
	PaymentSignature string `gorm:"size:88"`
	State            string `gorm:"index;size:16"`
	Error            string
	StartedAt        time.Time `gorm:"index"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime:false"`
}

func (Entry) TableName() string { return "settlements" }

func fromRecord(rec settlement.Record) Entry {
	return Entry{
		ID:               rec.ID.String(),
		Owner:            rec.Owner.Base58(),
		Operations:       rec.Operations,
		RequiredAmount:   rec.RequiredAmount.String(),
		PurchaseAmount:   rec.PurchaseAmount.String(),
		SwapSignature:    rec.SwapSignature,
		PaymentSignature: rec.PaymentSignature,
		State:            string(rec.State),
		Error:            rec.Error,
		StartedAt:        rec.StartedAt.UTC(),
		UpdatedAt:        rec.UpdatedAt.UTC(),
	}
}

// Record converts the row back to the engine's view.
func (e Entry) Record() (settlement.Record, error) {
	id, err := uuid.Parse(e.ID)
	if err != nil {
		return settlement.Record{}, fmt.Errorf("settlement id %q: %w", e.ID, err)
	}
	owner, err := solana.ParsePubkey(e.Owner)
	if err != nil {
		return settlement.Record{}, fmt.Errorf("settlement %s owner: %w", e.ID, err)
	}
	required, err := parseAmount(e.RequiredAmount)
	if err != nil {
		return settlement.Record{}, fmt.Errorf("settlement %s required amount: %w", e.ID, err)
	}
	purchase, err := parseAmount(e.PurchaseAmount)
	if err != nil {
		return settlement.Record{}, fmt.Errorf("settlement %s purchase amount: %w", e.ID, err)
	}
	return settlement.Record{
		ID:               id,
		Owner:            owner,
		Operations:       e.Operations,
		RequiredAmount:   required,
		PurchaseAmount:   purchase,
		SwapSignature:    e.SwapSignature,
		PaymentSignature: e.PaymentSignature,
		State:            settlement.State(e.State),
		Error:            e.Error,
		StartedAt:        e.StartedAt,
		UpdatedAt:        e.UpdatedAt,
	}, nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

type Store struct {
	db *gorm.DB
}

var _ settlement.Journal = (*Store)(nil)

// DefaultPath is the journal location under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "itheum-agent", "journal.db"), nil
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("journal path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Begin(ctx context.Context, rec settlement.Record) error {
	e := fromRecord(rec)
	return s.db.WithContext(ctx).Create(&e).Error
}

func (s *Store) Update(ctx context.Context, rec settlement.Record) error {
	e := fromRecord(rec)
	return s.db.WithContext(ctx).Save(&e).Error
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (settlement.Record, error) {
	var e Entry
	err := s.db.WithContext(ctx).First(&e, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return settlement.Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return settlement.Record{}, err
	}
	return e.Record()
}

// Unfinished lists owner's settlements that need reconciliation, oldest
// first: attempts that were interrupted and attempts left indeterminate by
// an unconfirmed swap or transfer.
func (s *Store) Unfinished(ctx context.Context, owner solana.Pubkey) ([]settlement.Record, error) {
	var rows []Entry
	err := s.db.WithContext(ctx).
		Where("owner = ? AND state NOT IN ?", owner.Base58(), []string{string(settlement.StateDone), string(settlement.StateFailed)}).
		Order("started_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows)
}

// Recent lists owner's latest settlements, newest first.
func (s *Store) Recent(ctx context.Context, owner solana.Pubkey, limit int) ([]settlement.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []Entry
	err := s.db.WithContext(ctx).
		Where("owner = ?", owner.Base58()).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toRecords(rows)
}

func toRecords(rows []Entry) ([]settlement.Record, error) {
	out := make([]settlement.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := r.Record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
