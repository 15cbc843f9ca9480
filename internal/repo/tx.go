package repo

import (
	"context"

	"gorm.io/gorm"
)

// Tx runs functions inside a database transaction so multi-row cart and
// session writes commit or roll back together.
type Tx struct {
	db *gorm.DB
}

// NewTx constructs a transaction runner backed by the provided GORM connection.
func NewTx(db *gorm.DB) *Tx {
	return &Tx{db: db}
}

// WithTx executes fn inside a transaction bound to ctx. A non-nil error from
// fn rolls everything back.
func (t *Tx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return t.db.WithContext(ctx).Transaction(fn)
}
