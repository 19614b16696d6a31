package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	// OutcomePersistPending marks a payment the gateway confirmed but the
	// backend has not acknowledged yet. A retry of the triple must re-forward
	// the stored body instead of charging the gateway again.
	OutcomePersistPending = "persist-pending"
)

// Attempt is one confirm call keyed by its triple. The stored gateway body
// lets a replayed triple answer without touching the gateway again.
type Attempt struct {
	ID          uint   `gorm:"primaryKey"`
	PaymentKey  string `gorm:"uniqueIndex:idx_confirm_triple;size:200;not null"`
	OrderID     string `gorm:"uniqueIndex:idx_confirm_triple;size:64;not null"`
	Amount      int64  `gorm:"uniqueIndex:idx_confirm_triple;not null"`
	Outcome     string `gorm:"uniqueIndex:idx_confirm_triple;not null"`
	GatewayBody []byte
	CreatedAt   time.Time
}

type Ledger struct {
	DB *gorm.DB
}

// OpenLedger connects to postgres when a DSN is configured and falls back to
// a local sqlite file otherwise.
func OpenLedger(databaseURL, sqlitePath string) (*Ledger, error) {
	var (
		db  *gorm.DB
		err error
	)
	if databaseURL != "" {
		db, err = gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	} else {
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.AutoMigrate(&Attempt{}); err != nil {
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}
	return &Ledger{DB: db}, nil
}

// FindSuccess returns the recorded successful attempt for the triple, or nil
// when the triple has never succeeded.
func (l *Ledger) FindSuccess(ctx context.Context, t Triple) (*Attempt, error) {
	return l.find(ctx, t, OutcomeSuccess)
}

// FindPersistPending returns the gateway-confirmed attempt still waiting for
// backend acknowledgement, or nil.
func (l *Ledger) FindPersistPending(ctx context.Context, t Triple) (*Attempt, error) {
	return l.find(ctx, t, OutcomePersistPending)
}

func (l *Ledger) find(ctx context.Context, t Triple, outcome string) (*Attempt, error) {
	var att Attempt
	err := l.DB.WithContext(ctx).
		Where("payment_key = ? AND order_id = ? AND amount = ? AND outcome = ?",
			t.PaymentKey, t.OrderID, t.Amount, outcome).
		First(&att).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger lookup: %w", err)
	}
	return &att, nil
}

// Record stores the outcome of one confirm call. The first write for a
// triple wins; replays leave the original row untouched.
func (l *Ledger) Record(ctx context.Context, t Triple, outcome string, gatewayBody []byte) error {
	att := Attempt{
		PaymentKey:  t.PaymentKey,
		OrderID:     t.OrderID,
		Amount:      t.Amount,
		Outcome:     outcome,
		GatewayBody: gatewayBody,
	}
	err := l.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&att).Error
	if err != nil {
		return fmt.Errorf("ledger record: %w", err)
	}
	return nil
}
