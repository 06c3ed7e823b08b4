package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/drover-sh/drover/internal/models"
	sqlite3 "github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Ledger is the append-only set of processed event identifiers. Admission
// is a single insert into a table whose event id is the primary key; the
// constraint violation on replay is the only duplicate signal, so there is
// no check-then-act window.
type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	if db == nil {
		panic("ledger requires a database connection")
	}
	return &Ledger{db: db}
}

// Admit records the event id. It returns false when the id was already
// admitted, and an error only for infrastructure failures, in which case
// the event is not admitted and the caller may retry it safely.
func (l *Ledger) Admit(ctx context.Context, eventID string) (bool, error) {
	record := &models.CallbackEvent{
		EventID:   eventID,
		CreatedAt: time.Now().UTC(),
	}

	err := l.db.WithContext(ctx).Create(record).Error
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}

	// pgx surfaces SQLSTATE 23505 for unique violations.
	return strings.Contains(err.Error(), "SQLSTATE 23505") ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}
