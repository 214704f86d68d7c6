package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Base is embedded by the gorm-backed stores. It carries the connection, an
// optional per-query timeout and the clock used for created/updated stamps.
type Base struct {
	db      *gorm.DB
	timeout time.Duration
	now     func() time.Time
}

// NewBase binds a Base to db. A zero timeout leaves contexts untouched.
func NewBase(db *gorm.DB, timeout time.Duration) Base {
	return Base{db: db, timeout: timeout, now: time.Now}
}

// WithTx returns a copy whose queries run on tx.
func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	b.db = tx
	return b
}

// WithClock overrides the timestamp source.
func (b Base) WithClock(now func() time.Time) Base {
	if now != nil {
		b.now = now
	}
	return b
}

// DB returns the connection bound to ctx (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Now is the UTC timestamp stores write into created_at/updated_at.
func (b Base) Now() time.Time {
	if b.now == nil {
		return time.Now().UTC()
	}
	return b.now().UTC()
}

// Bound applies the configured query timeout to ctx.
func (b Base) Bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.timeout)
}

// Transaction runs fn in a transaction on the bound connection. Nested calls
// on a Base already scoped by WithTx become savepoints.
func (b Base) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return b.DB(ctx).Transaction(fn)
}
